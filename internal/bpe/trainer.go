package bpe

import (
	"context"
	"fmt"
	"time"

	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/resource"
)

// TrainOptions control a training run.
type TrainOptions struct {
	// VocabSize is the target symbol count including the 256 byte symbols.
	VocabSize int

	// CheckpointInterval is the number of merges between checkpoint writes
	// to CheckpointPath. Zero or an empty path disables checkpoints.
	CheckpointInterval int
	CheckpointPath     string

	// ProgressInterval is the number of merges between progress reports.
	// Zero disables them.
	ProgressInterval int

	// Resume seeds the run with previously learned merges. They are replayed
	// over the corpus and training continues at the next id.
	Resume *MergeTable

	Logger *logging.Logger

	// OnProgress, if set, is called alongside each progress log entry.
	OnProgress func(Progress)
}

// Progress is an advisory snapshot reported during training.
type Progress struct {
	Merges           int
	Target           int
	LastPair         Pair
	LastCount        int
	Tokens           int
	CompressionRatio float64
	Resources        resource.Stats
}

// TrainResult describes a finished (or interrupted) run. Table is always
// valid and holds every merge learned up to the point the run stopped.
type TrainResult struct {
	Table         *MergeTable
	InitialTokens int
	FinalTokens   int
	Resumed       int
	Learned       int
	Duration      time.Duration
}

// CompressionRatio is initial over final symbol count.
func (r *TrainResult) CompressionRatio() float64 {
	if r.FinalTokens == 0 {
		return 0
	}
	return float64(r.InitialTokens) / float64(r.FinalTokens)
}

// Trainer learns a merge table from a corpus.
type Trainer struct {
	splitter Splitter
	opts     TrainOptions
	log      *logging.Logger
	save     func(path string, t *MergeTable) error
}

// NewTrainer validates opts. A nil splitter keeps the corpus as one chunk.
func NewTrainer(splitter Splitter, opts TrainOptions) (*Trainer, error) {
	if opts.VocabSize <= ByteSymbols {
		return nil, configError("vocab_size must be greater than %d, got %d", ByteSymbols, opts.VocabSize)
	}
	if opts.CheckpointInterval < 0 {
		return nil, configError("checkpoint_interval must not be negative, got %d", opts.CheckpointInterval)
	}
	if opts.ProgressInterval < 0 {
		return nil, configError("progress_interval must not be negative, got %d", opts.ProgressInterval)
	}
	if opts.Resume != nil && opts.Resume.VocabSize() > opts.VocabSize {
		return nil, configError("resume table already has %d symbols, more than vocab_size %d",
			opts.Resume.VocabSize(), opts.VocabSize)
	}
	if splitter == nil {
		splitter = WholeText{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Trainer{
		splitter: splitter,
		opts:     opts,
		log:      log,
		save:     SaveTable,
	}, nil
}

// Train runs merges until the target vocabulary size is reached.
//
// If the corpus runs out of adjacent pairs first, the partial result is
// returned with a KindVocabularyExhausted error. If ctx is cancelled the
// partial result is returned with ctx.Err(). Cancellation is only observed
// between merges.
func (t *Trainer) Train(ctx context.Context, text string) (*TrainResult, error) {
	start := time.Now()

	seqs, err := chunkSymbols(t.splitter, text)
	if err != nil {
		return nil, err
	}

	table := NewMergeTable()
	res := &TrainResult{Table: table, InitialTokens: totalSymbols(seqs)}
	finish := func() {
		res.FinalTokens = totalSymbols(seqs)
		res.Duration = time.Since(start)
	}

	if t.opts.Resume != nil {
		for _, r := range t.opts.Resume.rules {
			if err := table.Insert(r.Pair, r.ID); err != nil {
				return nil, err
			}
			mergeAll(seqs, r.Pair, r.ID)
		}
		res.Resumed = table.Len()
		t.log.Info("resumed from existing merges", logging.Fields{"merges": res.Resumed})
	}

	target := t.opts.VocabSize - ByteSymbols
	t.log.Info("training tokenizer", logging.Fields{
		"chunks":     len(seqs),
		"tokens":     res.InitialTokens,
		"vocab_size": t.opts.VocabSize,
	})

	for i := table.Len(); i < target; i++ {
		if err := ctx.Err(); err != nil {
			finish()
			return res, err
		}

		pair, count, ok := CountPairs(seqs...).Best()
		if !ok {
			finish()
			return res, &Error{
				Kind: KindVocabularyExhausted,
				Message: fmt.Sprintf("no pairs left after %d merges: vocabulary size %d of requested %d",
					table.Len(), table.VocabSize(), t.opts.VocabSize),
				Requested: t.opts.VocabSize,
				Achieved:  table.VocabSize(),
			}
		}

		idx, err := table.Add(pair)
		if err != nil {
			finish()
			return res, err
		}
		mergeAll(seqs, pair, idx)
		res.Learned++

		n := i + 1
		if t.opts.ProgressInterval > 0 && n%t.opts.ProgressInterval == 0 {
			t.report(Progress{
				Merges:    n,
				Target:    target,
				LastPair:  pair,
				LastCount: count,
				Tokens:    totalSymbols(seqs),
			}, res.InitialTokens)
		}
		if t.opts.CheckpointInterval > 0 && t.opts.CheckpointPath != "" && n%t.opts.CheckpointInterval == 0 {
			t.checkpoint(table, n)
		}
	}

	finish()
	t.log.Info("training complete", logging.Fields{
		"vocab_size":        table.VocabSize(),
		"final_tokens":      res.FinalTokens,
		"compression_ratio": fmt.Sprintf("%.2fX", res.CompressionRatio()),
		"duration":          res.Duration.Round(time.Millisecond),
	})
	return res, nil
}

func (t *Trainer) report(p Progress, initial int) {
	if p.Tokens > 0 {
		p.CompressionRatio = float64(initial) / float64(p.Tokens)
	}
	p.Resources = resource.Sample()
	t.log.Info("training progress", logging.Fields{
		"iteration":         p.Merges,
		"compression_ratio": fmt.Sprintf("%.2fX", p.CompressionRatio),
		"heap_mb":           p.Resources.HeapAllocMB,
	})
	if t.opts.OnProgress != nil {
		t.opts.OnProgress(p)
	}
}

// checkpoint failures are logged and training carries on; the next
// checkpoint or the final save may still succeed.
func (t *Trainer) checkpoint(table *MergeTable, merges int) {
	if err := t.save(t.opts.CheckpointPath, table); err != nil {
		t.log.Warn("checkpoint failed", logging.Fields{"path": t.opts.CheckpointPath, "error": err.Error()})
		return
	}
	t.log.Debug("checkpoint written", logging.Fields{"path": t.opts.CheckpointPath, "merges": merges})
}
