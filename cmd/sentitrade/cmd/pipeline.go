package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentitrade/config"
	"sentitrade/feed"
	"sentitrade/indicators"
	"sentitrade/merge"
	"sentitrade/sentiment"
	"sentitrade/store"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Ingest bars and posts, compute indicators, merge sentiment",
	Long: `Run the data pipeline: backfill price bars and social posts from the
feeds, compute technical indicators for the new bars, and merge them with the
sentiment signal. By default the pipeline repeats on an interval; --once runs
a single pass.

With --stream the pipeline also subscribes to the push bar feed, appending
bars to the store as they arrive between passes.`,
	RunE: runPipeline,
}

var (
	pipelineOnce   bool
	pipelineEvery  time.Duration
	pipelineStream bool
)

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().BoolVar(&pipelineOnce, "once", false, "run a single pipeline pass and exit")
	pipelineCmd.Flags().DurationVar(&pipelineEvery, "every", time.Hour, "delay between pipeline passes")
	pipelineCmd.Flags().BoolVar(&pipelineStream, "stream", false, "also consume the push bar feed between passes")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	secrets, err := config.LoadSecrets(envPath)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bars := feed.NewBarClient(secrets.APIKey, secrets.APISecret, cfg.Data.RatePerMinute, log)
	posts := feed.NewPostClient(sentiment.NewLexicon(), log)
	features := indicators.NewEngine(st, log)
	merger := merge.NewEngine(st, log)

	if pipelineStream {
		stream := feed.NewBarStream(secrets.APIKey, secrets.APISecret, log)
		go func() {
			if err := stream.Run(ctx, st, cfg.Symbols()); err != nil && ctx.Err() == nil {
				log.Error("bar stream stopped", zap.Error(err))
			}
		}()
	}

	start, _ := time.Parse(time.RFC3339, cfg.Data.StartDate)

	for {
		if err := pipelinePass(ctx, cfg, st, bars, posts, features, merger, start, log); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("pipeline pass failed", zap.Error(err))
		}
		if pipelineOnce {
			return nil
		}

		log.Info("pipeline pass complete, sleeping", zap.Duration("every", pipelineEvery))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pipelineEvery):
		}
	}
}

func pipelinePass(
	ctx context.Context,
	cfg *config.Config,
	st *store.Store,
	bars *feed.BarClient,
	posts *feed.PostClient,
	features *indicators.Engine,
	merger *merge.Engine,
	start time.Time,
	log *zap.Logger,
) error {
	if err := bars.Backfill(ctx, st, cfg.Symbols(), cfg.Data.Timeframe, start); err != nil {
		// Partial ingestion is fine: indicators only cover what arrived.
		log.Warn("bar backfill incomplete", zap.Error(err))
	}
	if err := posts.Backfill(ctx, st, cfg.Data.Watchlist, start); err != nil {
		log.Warn("post backfill incomplete", zap.Error(err))
	}

	// Recompute from the merge watermark so indicator rows and merged rows
	// stay aligned; replacement is idempotent either way.
	since, ok, err := st.MergedWatermark()
	if err != nil {
		return err
	}
	if !ok {
		since = start
	}

	var until time.Time
	for _, symbol := range cfg.Symbols() {
		latest, ok, err := st.LatestBarTime(symbol)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if latest.After(until) {
			until = latest
		}
		if _, err := features.Compute(symbol, since, latest); err != nil {
			return err
		}
	}
	if until.IsZero() || !until.After(since) {
		log.Info("no new bars to merge")
		return nil
	}

	_, err = merger.Run(until)
	return err
}
