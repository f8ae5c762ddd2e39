package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/output"
	"github.com/takuphilchan/offgrid-bpe/internal/server"
)

// loadTokenizer builds the engine from the configured pre-tokenizer and
// the table at path (the configured output when path is empty).
func loadTokenizer(cfg *config.Config, path string) (*bpe.Tokenizer, string) {
	if path == "" {
		path = cfg.OutputFileInfo.FilePath
	}
	pre, err := cfg.PreTokenizer()
	if err != nil {
		fatal("Invalid configuration", err)
	}
	table, err := bpe.LoadTable(path)
	if err != nil {
		fatal("Failed to load merge table", err)
	}
	return bpe.NewTokenizer(table, pre), path
}

func handleEncode(args []string) {
	fs, configPath := commonFlags("encode")
	tablePath := fs.String("table", "", "merge table file (default: output_file_info.file_path)")
	showTokens := fs.Bool("tokens", false, "print each token with its text")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fatal("Usage: bpe encode [--table path] <text>", bpe.ConfigErrorf("no text given"))
	}
	text := strings.Join(fs.Args(), " ")

	cfg := loadConfig(*configPath)
	tok, _ := loadTokenizer(cfg, *tablePath)

	spans, err := tok.Spans(text)
	if err != nil {
		fatal("Failed to encode", err)
	}
	ids := make([]int, len(spans))
	for i, sp := range spans {
		ids[i] = sp.ID
	}
	stats := bpe.Summarize(text, ids)

	if output.JSONMode {
		output.Success("encoded", map[string]any{"ids": ids, "stats": stats})
		return
	}

	fmt.Println(formatIDs(ids))
	if *showTokens {
		fmt.Println()
		for _, sp := range spans {
			label := strconv.Quote(sp.Text())
			if !sp.ValidUTF8() {
				label = fmt.Sprintf("% x", sp.Bytes)
			}
			fmt.Printf("  %s%6d%s  [%d:%d]  %s\n", brandMuted, sp.ID, colorReset, sp.Start, sp.End, label)
		}
	}
	fmt.Println()
	printItem("Total tokens", strconv.Itoa(stats.TotalTokens))
	printItem("Unique tokens", strconv.Itoa(stats.UniqueTokens))
	printItem("Characters", strconv.Itoa(stats.Characters))
	printItem("Bytes", strconv.Itoa(stats.Bytes))
	printItem("Compression", fmt.Sprintf("%.2fx", stats.Compression))
}

func handleDecode(args []string) {
	fs, configPath := commonFlags("decode")
	tablePath := fs.String("table", "", "merge table file (default: output_file_info.file_path)")
	fs.Parse(args)

	ids, err := parseIDs(fs.Args())
	if err != nil {
		fatal("Usage: bpe decode [--table path] <id...>", err)
	}

	cfg := loadConfig(*configPath)
	tok, _ := loadTokenizer(cfg, *tablePath)

	text, err := tok.Decode(ids)
	if err != nil {
		fatal("Failed to decode", err)
	}
	if output.JSONMode {
		output.Success("decoded", map[string]any{"text": text})
		return
	}
	fmt.Println(text)
}

// parseIDs accepts ids separated by spaces and/or commas, optionally
// wrapped in brackets as printed by encode.
func parseIDs(args []string) ([]int, error) {
	joined := strings.Join(args, " ")
	joined = strings.Trim(strings.TrimSpace(joined), "[]")
	fields := strings.FieldsFunc(joined, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return nil, bpe.ConfigErrorf("no ids given")
	}
	ids := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, bpe.ConfigErrorf("invalid id %q", f)
		}
		ids[i] = v
	}
	return ids, nil
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func handleInspect(args []string) {
	fs, configPath := commonFlags("inspect")
	tablePath := fs.String("table", "", "merge table file (default: output_file_info.file_path)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	tok, path := loadTokenizer(cfg, *tablePath)
	table := tok.Table()

	info := output.TableInfo{
		Path:      path,
		VocabSize: table.VocabSize(),
		Merges:    table.Len(),
		Checksum:  bpe.Checksum(table),
	}
	for _, r := range table.Rules() {
		b, _ := tok.TokenBytes(r.ID)
		if len(b) > info.LongestLen {
			info.LongestID, info.LongestLen = r.ID, len(b)
		}
	}

	var decoded string
	var encoded []int
	if cfg.TestText != "" {
		ids, err := tok.Encode(cfg.TestText)
		if err != nil {
			fatal("Failed to encode test_text", err)
		}
		encoded = ids
		text, err := tok.Decode(ids)
		ok := err == nil && text == cfg.TestText
		decoded = text
		info.Roundtrip = &ok
	}

	if output.JSONMode {
		output.Success("inspected", info)
		return
	}

	printSection("Merge Table")
	printItem("Path", info.Path)
	printItem("Vocabulary size", strconv.Itoa(info.VocabSize))
	printItem("Merges", strconv.Itoa(info.Merges))
	printItem("Checksum", info.Checksum[:16])
	if info.LongestLen > 0 {
		b, _ := tok.TokenBytes(info.LongestID)
		printItem("Longest token", fmt.Sprintf("%d (%d bytes) %q", info.LongestID, info.LongestLen, b))
	}
	if info.Roundtrip != nil {
		fmt.Println()
		printSection("Test Text")
		printItem("Text", cfg.TestText)
		printItem("Encoded", formatIDs(encoded))
		printItem("Decoded", decoded)
		if *info.Roundtrip {
			printSuccess("Successful roundtrip")
		} else {
			printError("Roundtrip mismatch")
		}
	}
}

func handleServe(args []string) {
	fs, configPath := commonFlags("serve")
	tablePath := fs.String("table", "", "merge table file (default: output_file_info.file_path)")
	port := fs.Int("port", 0, "listen port (default: server_port)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *port != 0 {
		cfg.ServerPort = *port
	}
	tok, path := loadTokenizer(cfg, *tablePath)
	printInfo(fmt.Sprintf("Loaded %s (%d symbols)", path, tok.VocabSize()))

	srv, err := server.New(cfg, tok, logging.Default())
	if err != nil {
		fatal("Failed to create server", err)
	}
	if err := srv.Start(); err != nil {
		fatal("Server stopped", err)
	}
}
