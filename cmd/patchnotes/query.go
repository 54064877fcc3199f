package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	queryCollections string
	queryFrom        string
	queryTo          string
	queryDays        int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print stored publications as JSON",
	Long:  "Print publications for a date window (--from/--to) or the last --days days. The store is synced first when stale.",
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryCollections, "collections", "all", "Comma-separated collections: bills, execOrders, regulations, proposedRegulations or all")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "First day, YYYY-MM-DD")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "Last day, YYYY-MM-DD (default today)")
	queryCmd.Flags().IntVar(&queryDays, "days", 7, "Days back from today when --from is not set")
	queryCmd.MarkFlagsMutuallyExclusive("from", "days")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	var data any
	if queryFrom != "" {
		from, to, err := parseWindow(queryFrom, queryTo, time.Now())
		if err != nil {
			return err
		}
		data, err = a.query.QueryRange(cmd.Context(), queryCollections, from, to)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
	} else {
		data, err = a.query.Latest(cmd.Context(), queryCollections, queryDays, time.Now())
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
	}
	return printJSON(os.Stdout, data)
}
