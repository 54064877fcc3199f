package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/patchnotes/internal/query"
)

var (
	preloadFrom string
	preloadTo   string
)

var preloadCmd = &cobra.Command{
	Use:   "preload",
	Short: "Fetch and store an explicit date window",
	Long:  "Fetch every publication in [--from, --to] and store the new ones. The checkpoint is neither read nor moved.",
	RunE:  runPreload,
}

func init() {
	preloadCmd.Flags().StringVar(&preloadFrom, "from", "", "First day, YYYY-MM-DD (required)")
	preloadCmd.Flags().StringVar(&preloadTo, "to", "", "Last day, YYYY-MM-DD (default today)")

	if err := preloadCmd.MarkFlagRequired("from"); err != nil {
		panic(fmt.Sprintf("failed to mark from flag as required: %v", err))
	}
	rootCmd.AddCommand(preloadCmd)
}

func runPreload(cmd *cobra.Command, _ []string) error {
	from, to, err := parseWindow(preloadFrom, preloadTo, time.Now())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.scheduler.Sync(cmd.Context(), from, to)
	if result != nil {
		if printErr := printCycle(os.Stdout, result); printErr != nil {
			return printErr
		}
	}
	return err
}

// parseWindow turns YYYY-MM-DD bounds into [start of from, end of to] in
// UTC. An empty to means the day of now.
func parseWindow(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: want YYYY-MM-DD", fromRaw)
	}
	to := now
	if toRaw != "" {
		to, err = time.Parse(time.DateOnly, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: want YYYY-MM-DD", toRaw)
		}
	}
	start, end := query.StartOfDay(from), query.EndOfDay(to)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toRaw, fromRaw)
	}
	return start, end, nil
}
