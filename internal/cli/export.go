package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/scopemem/internal/memory"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	format := formatValue{f: memory.FormatJSON}
	var (
		compress       bool
		includeExpired bool
		output         string
	)
	cmd := &cobra.Command{
		Use:   "export <store>",
		Short: "Export every record of one physical store",
		Long: `Export a physical store (see 'scopemem summary') as JSON, CSV or CBOR,
optionally zstd-compressed.

Examples:
  scopemem export pool_risk                          # JSON to stdout
  scopemem export agent_whale_agent -f csv -o whale.csv
  scopemem export pool_alerts -f cbor --zstd -o alerts.cbor.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := mgr.Export(cmd.Context(), args[0], w, memory.ExportOptions{
				Format:         format.f,
				Compress:       compress,
				IncludeExpired: includeExpired,
			})
			if err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records from %s to %s\n", n, args[0], output)
			}
			return nil
		},
	}
	cmd.Flags().VarP(&format, "format", "f", "output format (json, csv, cbor)")
	cmd.Flags().BoolVar(&compress, "zstd", false, "zstd-compress the output")
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "include expired records not yet swept")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newOptimizeCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "optimize [store]",
		Short: "Reclaim space in a physical store",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			stores := args
			if all {
				rows, err := mgr.Summary(cmd.Context())
				if err != nil {
					return err
				}
				for _, row := range rows {
					stores = append(stores, row.Store)
				}
			}
			for _, store := range stores {
				if err := mgr.Optimize(cmd.Context(), store); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: optimized\n", store)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "optimize every store")
	return cmd
}
