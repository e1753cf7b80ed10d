package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentitrade/broker"
	"sentitrade/broker/paper"
	"sentitrade/config"
	"sentitrade/reconcile"
	"sentitrade/store"
	"sentitrade/trade"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading decision loop",
	Long: `Run the trading loop: each cycle synchronizes positions and orders with
the broker, then evaluates every watchlist symbol against the prediction model
and hands trade decisions to the reconciler.

With trading.dry_run enabled the loop trades against an in-memory paper book
seeded from the merged store, requiring no credentials.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	model, err := trade.LoadModel(cfg.Trading.ModelFile)
	if err != nil {
		return err
	}

	var brk broker.Broker
	if cfg.Trading.DryRun {
		engine := paper.NewEngine(cfg.Trading.Cash)
		for _, symbol := range cfg.Symbols() {
			row, err := st.LatestMerged(symbol)
			if err != nil {
				log.Warn("no merged data for symbol, dry-run price unset",
					zap.String("symbol", symbol))
				continue
			}
			engine.SetPrice(symbol, row.Close)
		}
		brk = engine
		log.Info("dry run: trading against in-memory paper book",
			zap.Float64("cash", cfg.Trading.Cash))
	} else {
		secrets, err := config.LoadSecrets(envPath)
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}
		brk = broker.NewClient(secrets.APIKey, secrets.APISecret, cfg.Trading.Paper)
	}

	rec := reconcile.New(brk, cfg.Trading.MaxShares, log)
	loop := trade.NewLoop(st, brk, model, rec, trade.Options{
		Symbols:        cfg.Symbols(),
		EntryThreshold: cfg.Trading.EntryThreshold,
		ShortThreshold: cfg.Trading.ShortThreshold,
		MaxShares:      cfg.Trading.MaxShares,
		Interval:       cfg.TradingInterval(),
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("trading loop starting",
		zap.Strings("symbols", cfg.Symbols()),
		zap.Int64("max_shares", cfg.Trading.MaxShares),
		zap.Duration("interval", cfg.TradingInterval()))

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
