package commands

import (
	"context"
	"time"

	"github.com/dyluth/drey/internal/printer"
	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List registered workers",
	Long: `List the farm's registered workers.

Reads the worker membership hash. Entries that do not parse as worker
records are evicted and announced on the worker channel as a side effect,
so the listing only ever contains valid registrations.`,
	RunE: runWorkers,
}

func init() {
	rootCmd.AddCommand(workersCmd)
}

func runWorkers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	bp, cleanup, err := newBackplane(ctx)
	if err != nil {
		return printer.Error(
			"failed to reach the backplane",
			err.Error(),
			[]string{"Check drey.yml and that Redis is reachable"},
		)
	}
	defer cleanup()

	workers := bp.GetWorkers()
	if len(workers) == 0 {
		printer.Info("No workers registered\n")
		return nil
	}

	printer.Info("%-32s %-8s %s\n", "NAME", "SLOTS", "STARTED")
	for _, w := range workers {
		started := time.UnixMilli(w.StartedAtMs).Format(time.RFC3339)
		printer.Info("%-32s %-8d %s\n", w.Name, w.ExecSlots, started)
	}
	printer.Success("%d worker(s) registered\n", len(workers))
	return nil
}
