package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type staleSweeper interface {
	SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// newReapCommand runs one reaper sweep and exits. The app is bootstrapped
// by pocketbase before the command runs.
func newReapCommand(reaper staleSweeper, defaultMaxAge time.Duration) *cobra.Command {
	var maxAge time.Duration

	command := &cobra.Command{
		Use:   "reap",
		Short: "Delete pending payers older than --max-age together with their registrations",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if maxAge <= 0 {
				return fmt.Errorf("--max-age must be positive, got %s", maxAge)
			}

			n, err := reaper.SweepOlderThan(command.Context(), maxAge)
			if err != nil {
				return err
			}

			fmt.Fprintf(command.OutOrStdout(), "deleted %d stale payer(s) older than %s\n", n, maxAge)
			return nil
		},
	}
	command.Flags().DurationVar(&maxAge, "max-age", defaultMaxAge, "minimum age of a pending payer to be deleted")

	return command
}
