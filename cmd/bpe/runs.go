package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/output"
	"github.com/takuphilchan/offgrid-bpe/internal/store"
)

func handleRuns(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bpe runs <action>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Actions:")
		fmt.Fprintln(os.Stderr, "  list                 List recorded training runs")
		fmt.Fprintln(os.Stderr, "  export <id> <path>   Write a run's merge table to a file")
		fmt.Fprintln(os.Stderr, "  delete <id>          Remove a run from the registry")
		os.Exit(1)
	}

	fs, configPath := commonFlags("runs")
	fs.Parse(args[1:])
	cfg := loadConfig(*configPath)

	reg, err := store.Open(cfg.DBPath)
	if err != nil {
		fatal("Failed to open run registry", err)
	}
	defer reg.Close()

	switch action := args[0]; action {
	case "list", "ls":
		runsList(reg)
	case "export":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: bpe runs export <id> <path>")
			os.Exit(1)
		}
		runsExport(reg, fs.Arg(0), fs.Arg(1))
	case "delete", "rm":
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: bpe runs delete <id>")
			os.Exit(1)
		}
		id := parseRunID(fs.Arg(0))
		if err := reg.DeleteRun(id); err != nil {
			fatal("Failed to delete run", err)
		}
		output.Success("deleted", map[string]int64{"id": id})
		printSuccess(fmt.Sprintf("Deleted run #%d", id))
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", action)
		os.Exit(1)
	}
}

func runsList(reg *store.Registry) {
	runs, err := reg.ListRuns()
	if err != nil {
		fatal("Failed to list runs", err)
	}
	if output.JSONMode {
		output.PrintJSON(map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		})
		return
	}
	if len(runs) == 0 {
		printInfo("No recorded runs")
		return
	}
	printSection("Training Runs")
	for _, r := range runs {
		status := ""
		if r.Exhausted {
			status = " (exhausted)"
		}
		fmt.Printf("  #%-4d %s  vocab %d/%d%s  %s → %s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.AchievedVocab, r.RequestedVocab,
			status, r.CorpusPath, r.OutputPath)
	}
}

func runsExport(reg *store.Registry, idArg, path string) {
	id := parseRunID(idArg)
	table, err := reg.LoadTable(id)
	if err != nil {
		fatal("Failed to load run", err)
	}
	if err := bpe.SaveTable(path, table); err != nil {
		fatal("Failed to write merge table", err)
	}
	output.Success("exported", map[string]any{"id": id, "path": path, "vocab_size": table.VocabSize()})
	printSuccess(fmt.Sprintf("Exported run #%d to %s", id, path))
}

func parseRunID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal("Invalid run id", bpe.ConfigErrorf("invalid run id %q", s))
	}
	return id
}

func handleConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: bpe config <action>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Actions:")
		fmt.Fprintln(os.Stderr, "  init [path]      Create a new config file (YAML/JSON)")
		fmt.Fprintln(os.Stderr, "  show             Display current configuration")
		fmt.Fprintln(os.Stderr, "  validate <path>  Validate a config file")
		os.Exit(1)
	}

	switch action := args[0]; action {
	case "init":
		outputPath := "bpe.yaml"
		if len(args) > 1 {
			outputPath = args[1]
		}
		if err := config.Default().SaveToFile(outputPath); err != nil {
			fatal("Failed to create config", err)
		}
		output.Success("created", map[string]string{"path": outputPath})
		printSuccess(fmt.Sprintf("Created config: %s", outputPath))

	case "show":
		cfg, err := config.LoadWithPriority(os.Getenv("BPE_CONFIG"))
		if err != nil {
			fatal("Failed to load config", err)
		}
		if output.JSONMode {
			output.PrintJSON(cfg)
			return
		}
		printSection("Tokenizer")
		printItem("Vocab size", strconv.Itoa(cfg.VocabSize))
		pattern := cfg.SegmentationPattern
		if pattern == "" {
			pattern = "(none, whole text)"
		}
		printItem("Pattern", pattern)
		if cfg.Normalize != "" {
			printItem("Normalize", cfg.Normalize)
		}
		fmt.Println()
		printSection("Training")
		printItem("Corpus", cfg.InputFileInfo.FilePath)
		printItem("Line limit", strconv.Itoa(cfg.InputFileInfo.InputFileLimit))
		printItem("Output", cfg.OutputFileInfo.FilePath)
		printItem("Checkpoint every", strconv.Itoa(cfg.CheckpointInterval))
		printItem("Registry", cfg.DBPath)
		fmt.Println()
		printSection("Service")
		printItem("Port", strconv.Itoa(cfg.ServerPort))
		printItem("Cache size", strconv.Itoa(cfg.CacheSize))
		printItem("Log level", cfg.LogLevel)

	case "validate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: bpe config validate <path>")
			os.Exit(1)
		}
		cfg, err := config.LoadFromFile(args[1])
		if err != nil {
			fatal("Invalid config", err)
		}
		if err := cfg.Validate(); err != nil {
			fatal("Validation failed", err)
		}
		output.Success("valid", map[string]string{"path": args[1]})
		printSuccess(fmt.Sprintf("Config valid: %s", args[1]))

	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", action)
		os.Exit(1)
	}
}
