package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/patchnotes/internal/pipeline"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the store up to date",
	Long:  "Fetch everything published since the checkpoint when the store is stale (or always with --force), then advance the checkpoint.",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Sync even when the store is fresh")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	var result *pipeline.CycleResult
	if syncForce {
		result, err = a.scheduler.ForceSync(cmd.Context())
	} else {
		result, err = a.scheduler.SyncIfStale(cmd.Context())
	}
	if result != nil {
		if printErr := printCycle(os.Stdout, result); printErr != nil {
			return printErr
		}
	}
	return err
}

// cycleSummary is the printed form of a cycle.
type cycleSummary struct {
	Ran         bool           `json:"ran"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to,omitempty"`
	Inserted    map[string]int `json:"inserted,omitempty"`
	Failed      []string       `json:"failed,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

func summarizeCycle(result *pipeline.CycleResult) cycleSummary {
	s := cycleSummary{Ran: result.Ran}
	if result.Ran {
		s.From = result.From.Format(time.RFC3339)
		s.To = result.To.Format(time.RFC3339)
		s.Inserted = result.Inserted()
	}
	for _, pr := range result.Results {
		if pr.Err != nil {
			s.Failed = append(s.Failed, fmt.Sprintf("%s %s", pr.Source, pr.Kind))
		}
	}
	if result.Checkpoint != nil {
		s.LastUpdated = result.Checkpoint.LastUpdated.Format(time.RFC3339)
	}
	return s
}

func printCycle(w io.Writer, result *pipeline.CycleResult) error {
	return printJSON(w, summarizeCycle(result))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
