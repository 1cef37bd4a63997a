package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/importer"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
)

var (
	batchFile  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run intelligence for every prospect in a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reqs, err := importer.ReadFile(ctx, batchFile, "batch")
		if err != nil {
			return eris.Wrap(err, "batch: read input")
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		_, err = processBatch(ctx, reqs, batchLimit, cfg.Batch.MaxConcurrent, env.Pipeline.Run)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or XLSX file of website,name,city rows (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of prospects to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// runFunc is the callback signature for running one prospect.
type runFunc func(ctx context.Context, req pipeline.RunRequest) (*model.Prospect, error)

// batchSummary counts batch outcomes.
type batchSummary struct {
	Succeeded int64
	Failed    int64
}

// processBatch applies limit, then runs the requests concurrently. The
// importer drops duplicate websites, so no two workers share a prospect.
// Individual failures are logged and counted; they never abort the batch.
func processBatch(ctx context.Context, reqs []pipeline.RunRequest, limit, concurrency int, run runFunc) (batchSummary, error) {
	if len(reqs) == 0 {
		zap.L().Info("no prospects to process")
		return batchSummary{}, nil
	}

	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("prospects", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("website", req.Website))

			if gctx.Err() != nil {
				return gctx.Err()
			}

			p, err := run(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("intelligence run failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("intelligence run complete", zap.String("grade", gradeOf(p)))
			return nil
		})
	}

	summary := func() batchSummary {
		return batchSummary{Succeeded: succeeded.Load(), Failed: failed.Load()}
	}
	if err := g.Wait(); err != nil {
		return summary(), eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return summary(), nil
}
