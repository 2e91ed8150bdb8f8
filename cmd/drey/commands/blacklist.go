package commands

import (
	"context"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/backplane"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist <invocation-id>",
	Short: "Check whether an invocation is blacklisted",
	Long: `Check the invocation blacklist for one tool invocation id.

Jobs submitted under a blacklisted invocation are rejected or suppressed
by the farm's frontend. This performs the same namespaced existence check
the frontend does.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlacklist,
}

func init() {
	rootCmd.AddCommand(blacklistCmd)
}

func runBlacklist(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	invocationID := args[0]

	if _, err := uuid.Parse(invocationID); err != nil {
		return printer.Error(
			"invalid invocation id",
			"Invocation ids are UUIDs assigned by the submitting tool.",
			[]string{"Example: drey blacklist 6c0f8c1e-2ad2-4f47-9b8c-3de01a0f7a42"},
		)
	}

	bp, cleanup, err := newBackplane(ctx)
	if err != nil {
		return printer.Error(
			"failed to reach the backplane",
			err.Error(),
			[]string{"Check drey.yml and that Redis is reachable"},
		)
	}
	defer cleanup()

	blacklisted, err := bp.IsBlacklisted(ctx, backplane.RequestMetadata{InvocationID: invocationID})
	if err != nil {
		return printer.Error("failed to check blacklist", err.Error(), nil)
	}

	if blacklisted {
		printer.Warning("%s is blacklisted\n", invocationID)
	} else {
		printer.Success("%s is not blacklisted\n", invocationID)
	}
	return nil
}
