package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/backplane"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-name>",
	Short: "Show a job's lifecycle record",
	Long: `Show the canonical lifecycle record for one job.

The record is the reconciling source of truth for a job's position in the
farm: queue and dispatch membership can lag it transiently, the record
cannot. A missing record means the job was deleted or its TTL elapsed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
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

	job, err := bp.GetJob(ctx, jobName)
	if err != nil {
		if backplane.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("job %q not found", jobName),
				"No record exists under the job key. It may have been deleted or expired.",
				[]string{"Check the name with the submitter", "Watch the job channel for a resubmission: drey watch " + jobName},
			)
		}
		return printer.Error("failed to read job record", err.Error(), nil)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render job record: %w", err)
	}
	printer.Info("%s\n", data)
	return nil
}
