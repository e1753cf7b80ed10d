package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentitrade/serve"
	"sentitrade/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Replay merged rows to TCP clients as JSON lines",
	Long: `Serve the merged table over TCP: each connecting client receives the
merged rows from the configured start time as newline-delimited JSON, paced at
the configured interval. Useful for driving downstream consumers against
recorded history.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	since, _ := time.Parse(time.RFC3339, cfg.Serve.Since)
	interval, _ := time.ParseDuration(cfg.Serve.Interval)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve.New(st, since, interval, log).ListenAndServe(ctx, cfg.Serve.Addr)
}
