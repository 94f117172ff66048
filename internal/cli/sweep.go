package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and superseded records",
		Long: `Run one retention pass over every store, or keep sweeping at the
configured sweeper.interval until interrupted.

Examples:
  scopemem sweep          # One pass
  scopemem sweep --watch  # Run as a sweeper process`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				fmt.Fprintln(cmd.OutOrStdout(), "Sweeping until interrupted (Ctrl+C to stop)")
				return mgr.RunSweeper(ctx)
			}

			report, err := mgr.SweepOnce(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Swept %d records from %d stores in %s\n",
				report.Deleted, report.Stores, report.Duration.Round(time.Millisecond))
			ids := make([]string, 0, len(report.PerStore))
			for id := range report.PerStore {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(out, "  %-32s %d\n", id, report.PerStore[id])
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep sweeping at the configured interval")
	return cmd
}
