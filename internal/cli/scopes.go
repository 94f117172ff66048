package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/scopemem/internal/memory"
)

func newScopesCmd(opts *rootOptions) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List configured scopes",
		Long: `List every configured scope with its retention, default priority,
sharing mode and access list.

Examples:
  scopemem scopes                      # All scopes
  scopemem scopes --agent risk_agent   # What risk_agent can read and write`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			registry, err := memory.NewRegistry(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if agent != "" {
				guard := memory.NewGuard(registry)
				fmt.Fprintf(out, "Agent: %s\n", agent)
				fmt.Fprintf(out, "  Readable: %s\n", scopeNames(guard.Readable(agent)))
				fmt.Fprintf(out, "  Writable: %s\n", scopeNames(guard.Writable(agent)))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCOPE\tRETENTION\tPRIORITY\tSTORE\tACCESS")
			for _, s := range registry.Scopes() {
				store := "per-agent"
				if s.Shared {
					store = memory.PoolStoreID(s.Pool)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					s.Name,
					formatRetention(s.Retention),
					s.DefaultPriority,
					store,
					strings.Join(s.Access(), ","),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "show the scopes one agent can reach")
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show record counts per physical store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			rows, err := mgr.Summary(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No stores found.")
				return nil
			}

			category := ""
			var total int64
			for _, row := range rows {
				if row.Category != category {
					category = row.Category
					fmt.Fprintf(out, "\n%s:\n", category)
				}
				fmt.Fprintf(out, "  %-32s %6d records", row.Store, row.Records)
				if row.SizeBytes > 0 {
					fmt.Fprintf(out, "  %s", formatBytes(row.SizeBytes))
				}
				fmt.Fprintln(out)
				total += row.Records
			}
			fmt.Fprintf(out, "\nTotal: %d records in %d stores\n", total, len(rows))
			return nil
		},
	}
}

func scopeNames(scopes []*memory.Scope) string {
	if len(scopes) == 0 {
		return "(none)"
	}
	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}

// formatRetention prints whole days as "Nd".
func formatRetention(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}
	return d.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
