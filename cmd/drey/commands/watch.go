package commands

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/backplane"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch <job-name>",
	Short: "Stream a job's change events",
	Long: `Stream change events for one job as they are published.

Delivery is best-effort Redis Pub/Sub: events published before the watch
started, or while the subscriber lags, are not replayed. Use 'drey status'
to reconcile when in doubt.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch a job until interrupted
  drey watch builds/a1b2c3

  # Export events as JSON
  drey watch builds/a1b2c3 --output=json > events.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutputFormat != "default" && watchOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			"Unknown format: "+watchOutputFormat,
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobName := args[0]

	bp, cleanup, err := newBackplane(ctx)
	if err != nil {
		return printer.Error(
			"failed to reach the backplane",
			err.Error(),
			[]string{"Check drey.yml and that Redis is reachable"},
		)
	}
	defer cleanup()

	sub, err := bp.SubscribeJobEvents(ctx, jobName)
	if err != nil {
		return printer.Error("failed to subscribe", err.Error(), nil)
	}
	defer sub.Close()

	if watchOutputFormat == "default" {
		printer.Info("Watching %s (Ctrl-C to stop)\n", jobName)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("skipped event: %v\n", err)
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printEvent(event)
		}
	}
}

func printEvent(event *backplane.ChangeEvent) {
	if watchOutputFormat == "json" {
		if data, err := json.Marshal(event); err == nil {
			printer.Info("%s\n", data)
		}
		return
	}

	ts := time.UnixMilli(event.EffectiveAtMs).Format(time.RFC3339)
	switch event.Type {
	case backplane.ChangeTypeReset:
		stage := string(event.Reset.Job.Stage)
		if stage == "" {
			stage = "(deleted)"
		}
		printer.Info("%s reset   %-24s stage=%s source=%s\n", ts, event.Reset.Job.Name, stage, event.Source)
	case backplane.ChangeTypeRemove:
		printer.Info("%s remove  %-24s reason=%s\n", ts, event.Remove.Name, event.Remove.Reason)
	}
}
