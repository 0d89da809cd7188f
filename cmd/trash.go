package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/barrulus/clepho/internal/app"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Move, restore, purge, and clean up trashed photos (§4.8)",
}

var trashMoveCmd = &cobra.Command{
	Use:   "move [photo-id]",
	Short: "Move a photo to the trash root",
	Args:  cobra.ExactArgs(1),
	RunE:  withTrashID(func(ctx context.Context, a *app.App, id int64) error { return a.Trash.Trash(ctx, id) }),
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore [photo-id]",
	Short: "Restore a trashed photo to its original path",
	Args:  cobra.ExactArgs(1),
	RunE:  withTrashID(func(ctx context.Context, a *app.App, id int64) error { return a.Trash.Restore(ctx, id) }),
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge [photo-id]",
	Short: "Permanently delete a trashed photo and its row",
	Args:  cobra.ExactArgs(1),
	RunE:  withTrashID(func(ctx context.Context, a *app.App, id int64) error { return a.Trash.Purge(ctx, id) }),
}

var trashCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge trashed photos older than max_age_days or over max_size_bytes",
	RunE:  runTrashCleanup,
}

func init() {
	trashCmd.AddCommand(trashMoveCmd, trashRestoreCmd, trashPurgeCmd, trashCleanupCmd)
	rootCmd.AddCommand(trashCmd)
}

// withTrashID opens an App, parses the photo id argument, and runs fn
// against it, closing the App afterward either way.
func withTrashID(fn func(ctx context.Context, a *app.App, id int64) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid photo id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		a, closer, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := fn(ctx, a, id); err != nil {
			return err
		}
		fmt.Printf("photo %d: ok\n", id)
		return nil
	}
}

func runTrashCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	counts, err := a.Trash.Cleanup(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	fmt.Printf("expired by age: %d, expired by size: %d\n", counts.ExpiredByAge, counts.ExpiredBySize)
	return nil
}
