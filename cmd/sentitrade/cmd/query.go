package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sentitrade/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Inspect or prune the stored tables",
	Long: `Query the store directly.

Examples:
  sentitrade query --table merged --ticker AAPL --since 2025-03-01T00:00:00Z --until 2025-03-04T00:00:00Z
  sentitrade query --table posts --query find_unique_stocks
  sentitrade query --table bars --ticker TSLA --query delete --since 2025-01-01T00:00:00Z --until 2025-02-01T00:00:00Z`,
	RunE: runQuery,
}

var (
	queryTable  string
	queryTicker string
	querySince  string
	queryUntil  string
	queryKind   string
)

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryTable, "table", "merged", "table to query (bars|posts|features|merged)")
	queryCmd.Flags().StringVar(&queryTicker, "ticker", "", "restrict to one symbol (keyword for posts)")
	queryCmd.Flags().StringVar(&querySince, "since", "", "range start, RFC3339 (default: beginning of time)")
	queryCmd.Flags().StringVar(&queryUntil, "until", "", "range end, RFC3339 (default: now)")
	queryCmd.Flags().StringVar(&queryKind, "query", "search", "operation: search|delete|show_table|find_unique_stocks")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	since := time.Time{}
	if querySince != "" {
		if since, err = time.Parse(time.RFC3339, querySince); err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
	}
	until := time.Now().UTC()
	if queryUntil != "" {
		if until, err = time.Parse(time.RFC3339, queryUntil); err != nil {
			return fmt.Errorf("parse --until: %w", err)
		}
	}

	switch queryKind {
	case "search":
		return querySearch(st, since, until)

	case "delete":
		n, err := st.DeleteRange(queryTable, queryTicker, since, until)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d rows from %s\n", n, queryTable)
		return nil

	case "show_table":
		n, err := st.CountRange(queryTable, queryTicker, since, until)
		if err != nil {
			return err
		}
		keys, err := st.UniqueKeys(queryTable)
		if err != nil {
			return err
		}
		fmt.Printf("Table %s: %d rows, %d unique keys %v\n", queryTable, n, len(keys), keys)
		return nil

	case "find_unique_stocks":
		keys, err := st.UniqueKeys(queryTable)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil

	default:
		return fmt.Errorf("unknown query %q (want search|delete|show_table|find_unique_stocks)", queryKind)
	}
}

func querySearch(st *store.Store, since, until time.Time) error {
	switch queryTable {
	case "bars":
		if queryTicker == "" {
			return fmt.Errorf("--ticker is required for bar search")
		}
		bars, err := st.Bars(queryTicker, since, until)
		if err != nil {
			return err
		}
		for _, b := range bars {
			fmt.Printf("%s %s O=%.2f H=%.2f L=%.2f C=%.2f V=%.0f\n",
				b.Symbol, b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		fmt.Printf("%d bars\n", len(bars))

	case "posts":
		if queryTicker == "" {
			return fmt.Errorf("--ticker is required for post search")
		}
		posts, err := st.Posts(queryTicker, since, until)
		if err != nil {
			return err
		}
		var sum float64
		for _, p := range posts {
			fmt.Printf("%s %s @%s likes=%d sentiment=%+.3f %q\n",
				p.Keyword, p.Time.Format(time.RFC3339), p.Author, p.Likes, p.Sentiment, p.Text)
			sum += p.Sentiment
		}
		if len(posts) > 0 {
			fmt.Printf("%d posts, mean sentiment %+.4f\n", len(posts), sum/float64(len(posts)))
		} else {
			fmt.Println("0 posts")
		}

	case "features":
		if queryTicker == "" {
			return fmt.Errorf("--ticker is required for feature search")
		}
		rows, err := st.Features(queryTicker, since, until)
		if err != nil {
			return err
		}
		for _, r := range rows {
			mom := "n/a"
			if r.Momentum5 != nil {
				mom = fmt.Sprintf("%+.2f", *r.Momentum5)
			}
			fmt.Printf("%s %s C=%.2f SMA20=%.2f SMA50=%.2f SMA100=%.2f Vol=%.3f BB=[%.2f,%.2f] Mom5=%s\n",
				r.Symbol, r.Time.Format(time.RFC3339), r.Close, r.SMA20, r.SMA50, r.SMA100,
				r.Volatility, r.BollingerLower, r.BollingerUpper, mom)
		}
		fmt.Printf("%d rows\n", len(rows))

	case "merged":
		rows, err := st.Merged(queryTicker, since, until)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s %s C=%.2f SMA20=%.2f sentiment=%+.4f likes=%d\n",
				r.Symbol, r.Time.Format(time.RFC3339), r.Close, r.SMA20, r.Sentiment, r.Likes)
		}
		fmt.Printf("%d rows\n", len(rows))

	default:
		return fmt.Errorf("unknown table %q (want one of %v)", queryTable, store.Tables)
	}
	return nil
}
