package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/output"
)

// Visual identity constants
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"

	brandPrimary = "\033[38;5;45m"  // Bright cyan
	brandAccent  = "\033[38;5;226m" // Yellow
	brandSuccess = "\033[38;5;78m"  // Green
	brandError   = "\033[38;5;196m" // Red
	brandMuted   = "\033[38;5;240m" // Gray

	boxH      = "─"
	separator = "━"

	iconBolt    = "⚡"
	iconCheck   = "✓"
	iconCross   = "✗"
	iconArrow   = "→"
	iconDiamond = "◆"
)

func printSection(title string) {
	if output.JSONMode {
		return
	}
	fmt.Printf("%s%s%s %s%s\n", brandPrimary, iconDiamond, colorReset, colorBold, title)
	fmt.Printf("%s%s%s\n", brandMuted, strings.Repeat(boxH, 50), colorReset)
}

func printSuccess(message string) {
	if output.JSONMode {
		return
	}
	fmt.Printf("%s%s%s %s\n", brandSuccess, iconCheck, colorReset, message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "%s%s%s %s\n", brandError, iconCross, colorReset, message)
}

func printInfo(message string) {
	if output.JSONMode {
		return
	}
	fmt.Printf("%s%s%s %s\n", brandPrimary, iconArrow, colorReset, message)
}

func printWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s%s%s %s\n", brandAccent, iconBolt, colorReset, message)
}

func printItem(label, value string) {
	if output.JSONMode {
		return
	}
	fmt.Printf("  %s%-18s%s %s%s%s\n", brandMuted, label+":", colorReset, colorBold, value, colorReset)
}

func printDivider() {
	fmt.Printf("%s%s%s\n", brandMuted, strings.Repeat(separator, 60), colorReset)
}

func main() {
	// Global --json flag may appear anywhere
	args := make([]string, 0, len(os.Args))
	for _, arg := range os.Args {
		if arg == "--json" {
			output.JSONMode = true
			continue
		}
		args = append(args, arg)
	}

	if len(args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command, rest := args[1], args[2:]
	switch command {
	case "train":
		handleTrain(rest)
	case "encode":
		handleEncode(rest)
	case "decode":
		handleDecode(rest)
	case "inspect", "info":
		handleInspect(rest)
	case "serve", "server":
		handleServe(rest)
	case "runs", "run":
		handleRuns(rest)
	case "config":
		handleConfig(rest)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

// commonFlags registers the flags every tokenizer command accepts.
func commonFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("BPE_CONFIG"), "configuration file (YAML/JSON)")
	return fs, configPath
}

// loadConfig loads and validates configuration and applies logging settings.
func loadConfig(path string) *config.Config {
	cfg, err := config.LoadWithPriority(path)
	if err != nil {
		fatal("Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration", err)
	}
	logging.Configure(cfg.LogLevel, cfg.LogJSON)
	return cfg
}

// fatal reports err and exits. Configuration errors exit with 2.
func fatal(message string, err error) {
	kind := ""
	if bpeErr := bpe.AsError(err); bpeErr != nil {
		kind = string(bpeErr.Kind)
	}
	if output.JSONMode {
		output.Failure(message, err, kind)
	} else {
		printError(fmt.Sprintf("%s: %v", message, err))
	}
	if errors.Is(err, bpe.ErrConfig) {
		os.Exit(2)
	}
	os.Exit(1)
}

func printHelp() {
	printDivider()
	fmt.Println()

	printSection("Usage")
	fmt.Printf("  %sbpe%s [command] [options]\n", colorBold, colorReset)
	fmt.Println()

	fmt.Printf("%sTokenizer%s\n", colorBold, colorReset)
	printDivider()
	fmt.Printf("  %strain%s              Learn a merge table from the configured corpus\n", brandPrimary, colorReset)
	fmt.Printf("  %sencode%s <text>      Encode text to token ids\n", brandPrimary, colorReset)
	fmt.Printf("  %sdecode%s <id...>     Decode token ids to text\n", brandPrimary, colorReset)
	fmt.Printf("  %sinspect%s            Summarize the merge table, check test_text roundtrip\n", brandPrimary, colorReset)
	fmt.Printf("  %sserve%s              Start the encode/decode HTTP service\n", brandPrimary, colorReset)
	fmt.Println()

	fmt.Printf("%sRuns & Configuration%s\n", colorBold, colorReset)
	printDivider()
	fmt.Printf("  %sruns%s <action>      List, export or delete recorded runs\n", brandPrimary, colorReset)
	fmt.Printf("  %sconfig%s <action>    Manage configuration\n", brandPrimary, colorReset)
	fmt.Printf("  %shelp%s               Show this help\n", brandPrimary, colorReset)
	fmt.Println()

	printSection("Examples")
	fmt.Printf("  %s$%s bpe config init bpe.yaml\n", brandMuted, colorReset)
	fmt.Printf("  %s$%s bpe train --config bpe.yaml --record\n", brandMuted, colorReset)
	fmt.Printf("  %s$%s bpe train --resume tokenizer.json.checkpoint\n", brandMuted, colorReset)
	fmt.Printf("  %s$%s bpe encode \"नमस्ते, आप कैसे हैं?\"\n", brandMuted, colorReset)
	fmt.Printf("  %s$%s bpe decode 256 257 32\n", brandMuted, colorReset)
	fmt.Println()

	printSection("Environment Variables")
	printItem("BPE_CONFIG", "Configuration file path (YAML/JSON)")
	printItem("BPE_VOCAB_SIZE", "Target vocabulary size")
	printItem("BPE_PATTERN", "Segmentation pattern")
	printItem("BPE_INPUT_PATH", "Corpus file")
	printItem("BPE_OUTPUT_PATH", "Merge table file")
	printItem("BPE_LOG_LEVEL", "debug, info, warn, error")
	fmt.Println()

	printSection("Global Flags")
	printItem("--json", "Output in JSON format (for scripting)")
	fmt.Println()

	printDivider()
	fmt.Println()
}
