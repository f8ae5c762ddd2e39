package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/corpus"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/output"
	"github.com/takuphilchan/offgrid-bpe/internal/store"
)

func handleTrain(args []string) {
	fs, configPath := commonFlags("train")
	resumePath := fs.String("resume", "", "seed training with an existing merge table (e.g. a checkpoint)")
	record := fs.Bool("record", false, "record the run in the SQLite registry")
	fs.Parse(args)

	// Everything that can be wrong with the configuration fails here,
	// before the corpus is read.
	cfg := loadConfig(*configPath)
	pre, err := cfg.PreTokenizer()
	if err != nil {
		fatal("Invalid configuration", err)
	}

	var resume *bpe.MergeTable
	if *resumePath != "" {
		resume, err = bpe.LoadTable(*resumePath)
		if err != nil {
			fatal("Failed to load resume table", err)
		}
	}

	log := logging.Default()
	text, err := corpus.Load(corpus.Options{
		Path:        cfg.InputFileInfo.FilePath,
		LineLimit:   cfg.InputFileInfo.InputFileLimit,
		PrintSample: cfg.InputFileInfo.PrintText,
	}, log)
	if err != nil {
		fatal("Failed to load corpus", err)
	}

	trainer, err := bpe.NewTrainer(pre, bpe.TrainOptions{
		VocabSize:          cfg.VocabSize,
		CheckpointInterval: cfg.CheckpointInterval,
		CheckpointPath:     cfg.CheckpointPath(),
		ProgressInterval:   cfg.ProgressInterval,
		Resume:             resume,
		Logger:             log,
	})
	if err != nil {
		fatal("Invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, trainErr := trainer.Train(ctx, text)
	if res == nil {
		fatal("Training failed", trainErr)
	}

	exhausted := errors.Is(trainErr, bpe.ErrVocabularyExhausted)
	interrupted := errors.Is(trainErr, context.Canceled)
	if trainErr != nil && !exhausted && !interrupted {
		fatal("Training failed", trainErr)
	}

	// An interrupted run only refreshes the checkpoint; the output path is
	// reserved for runs that finished.
	savePath := cfg.OutputFileInfo.FilePath
	if interrupted {
		savePath = cfg.CheckpointPath()
	}
	if err := bpe.SaveTable(savePath, res.Table); err != nil {
		fatal("Failed to save merge table", err)
	}

	summary := output.TrainSummary{
		VocabSize:        res.Table.VocabSize(),
		RequestedVocab:   cfg.VocabSize,
		Exhausted:        exhausted,
		InitialTokens:    res.InitialTokens,
		FinalTokens:      res.FinalTokens,
		CompressionRatio: res.CompressionRatio(),
		OutputPath:       savePath,
		DurationMs:       res.Duration.Milliseconds(),
	}

	if *record && !interrupted {
		id, err := recordRun(cfg, res, exhausted, savePath)
		if err != nil {
			printWarning(fmt.Sprintf("Failed to record run: %v", err))
		} else {
			summary.RunID = id
		}
	}

	printTrainSummary(summary)

	switch {
	case interrupted:
		fatal("Training interrupted", trainErr)
	case exhausted:
		fatal("Vocabulary exhausted", trainErr)
	}
}

func recordRun(cfg *config.Config, res *bpe.TrainResult, exhausted bool, outputPath string) (int64, error) {
	reg, err := store.Open(cfg.DBPath)
	if err != nil {
		return 0, err
	}
	defer reg.Close()

	return reg.RecordRun(&store.Run{
		CorpusPath:     cfg.InputFileInfo.FilePath,
		LineLimit:      cfg.InputFileInfo.InputFileLimit,
		Pattern:        cfg.SegmentationPattern,
		RequestedVocab: cfg.VocabSize,
		InitialTokens:  res.InitialTokens,
		FinalTokens:    res.FinalTokens,
		Exhausted:      exhausted,
		OutputPath:     outputPath,
		DurationMs:     res.Duration.Milliseconds(),
	}, res.Table)
}

func printTrainSummary(s output.TrainSummary) {
	if output.JSONMode {
		output.Success("training finished", s)
		return
	}
	fmt.Println()
	printSection("Final Statistics")
	printItem("Vocabulary size", fmt.Sprintf("%d (requested %d)", s.VocabSize, s.RequestedVocab))
	printItem("Initial tokens", formatNumber(s.InitialTokens))
	printItem("Final tokens", formatNumber(s.FinalTokens))
	printItem("Compression", fmt.Sprintf("%.2fX", s.CompressionRatio))
	if s.RunID != 0 {
		printItem("Run", fmt.Sprintf("#%d", s.RunID))
	}
	fmt.Println()
	printSuccess(fmt.Sprintf("Saved tokenizer to %s", s.OutputPath))
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
