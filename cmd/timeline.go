package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	tsync "github.com/tempohq/tempo/internal/sync"
	"github.com/tempohq/tempo/pkg/monitor"
)

var timelineCmd = &cobra.Command{
	Use:     "timeline",
	Aliases: []string{"tl"},
	Short:   "Live TUI timeline of recent activity",
	Long: `Launch a live-updating timeline of your recent activity, grouped by
day, newest first. The view stays in sync with the backend in the
background.

Key bindings:
  j/k, ↑/↓  Move selection (past the bottom loads older days)
  g/G       Jump to newest / oldest loaded entry
  Enter     Open activity details
  r         Force a sync cycle
  ?         Toggle help
  q         Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		interval, _ := cmd.Flags().GetDuration("interval")

		// Buffered so the engine's notifier never blocks; a dropped
		// notification only delays the status line until the next one.
		notifCh := make(chan tsync.Notification, 16)

		opts := engineOptions(deps)
		opts.Notifier = func(n tsync.Notification) {
			select {
			case notifCh <- n:
			default:
			}
		}

		engine := tsync.New(deps.client, deps.events, opts)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("start sync engine: %w", err)
		}
		defer engine.Close()

		// Prime the cache before first paint. Failures here are fine;
		// the engine keeps retrying in the background.
		_ = engine.SyncOnce(ctx)

		model := monitor.NewModel(engine, interval, notifCh)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running timeline: %w", err)
		}
		return nil
	},
}

func init() {
	timelineCmd.Flags().Duration("interval", monitor.DefaultRefreshInterval, "snapshot refresh interval")
	rootCmd.AddCommand(timelineCmd)
}
