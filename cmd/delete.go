package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	tsync "github.com/tempohq/tempo/internal/sync"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <activity-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an activity from the backend",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		opts := engineOptions(deps)
		opts.DisableHealthMonitor = true

		engine := tsync.New(deps.client, nil, opts)
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			return err
		}
		defer engine.Close()

		existed, err := engine.DeleteActivity(ctx, args[0])
		if err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
		if !existed {
			fmt.Printf("activity %s not found (already deleted?)\n", args[0])
			return nil
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
