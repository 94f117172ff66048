package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/scopemem/internal/config"
	"github.com/cadre-oss/scopemem/internal/memory"
)

func newStoreCmd(opts *rootOptions) *cobra.Command {
	var (
		agent    string
		priority priorityValue
		metadata map[string]string
	)
	cmd := &cobra.Command{
		Use:   "store <scope> <content>",
		Short: "Store a record as an agent",
		Long: `Store a record in a scope on behalf of an agent. The agent must be on
the scope's access list.

Examples:
  scopemem store risk "BTC exposure 42%" --agent risk_agent -p critical
  scopemem store market "funding flipped negative" -a whale_agent -m source=coinglass`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			storeOpts := priority.storeOptions()
			if md := toMetadata(metadata); md != nil {
				storeOpts = append(storeOpts, memory.WithMetadata(md))
			}
			id, err := mgr.ForAgent(agent).Store(cmd.Context(), args[0], args[1], storeOpts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "agent id (required)")
	addPriorityFlag(cmd.Flags(), &priority)
	cmd.Flags().StringToStringVarP(&metadata, "meta", "m", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		agent    string
		scope    string
		window   string
		priority priorityValue
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Show recent records visible to an agent",
		Long: `Show the newest non-expired records an agent can read.

Examples:
  scopemem query --agent trading_agent                 # Every readable scope, last hour
  scopemem query -a trading_agent -s risk -w 7d        # Risk pool, last week
  scopemem query -a risk_agent -p critical --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := memory.Query{Scope: scope, Priority: priority.p, Limit: limit}
			if window != "" {
				d, err := config.ParseDuration(window)
				if err != nil {
					return fmt.Errorf("invalid --window: %w", err)
				}
				q.Window = d
			}

			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			recs, err := mgr.ForAgent(agent).GetRecent(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs, asJSON)
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "agent id (required)")
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "scope to read; empty reads every readable scope")
	cmd.Flags().StringVarP(&window, "window", "w", "", "look-back window, e.g. 30m, 24h, 7d")
	addPriorityFlag(cmd.Flags(), &priority)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum records (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newBroadcastCmd(opts *rootOptions) *cobra.Command {
	var (
		agent    string
		priority priorityValue
	)
	cmd := &cobra.Command{
		Use:   "broadcast <message>",
		Short: "Publish an alert every agent can read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			id, err := mgr.ForAgent(agent).Broadcast(cmd.Context(), args[0], priority.storeOptions()...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "sending agent id (required)")
	addPriorityFlag(cmd.Flags(), &priority)
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newHandoffCmd(opts *rootOptions) *cobra.Command {
	var (
		from string
		to   string
		hctx map[string]string
	)
	cmd := &cobra.Command{
		Use:   "handoff <message>",
		Short: "Hand a message from one agent to another",
		Long: `Deliver a directed message into the recipient's handoff inbox.

Examples:
  scopemem handoff "execute long BTC" --from strategy_agent --to trading_agent -c size=0.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			id, err := mgr.ForAgent(from).Handoff(cmd.Context(), to, args[0], toMetadata(hctx))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sending agent id (required)")
	cmd.Flags().StringVar(&to, "to", "", "receiving agent id (required)")
	cmd.Flags().StringToStringVarP(&hctx, "context", "c", nil, "context key=value pairs")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newHandoffsCmd(opts *rootOptions) *cobra.Command {
	var (
		agent  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "handoffs",
		Short: "Show an agent's handoff inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			recs, err := mgr.ForAgent(agent).GetHandoffs(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs, asJSON)
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "receiving agent id (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write cached API responses",
	}

	var (
		getAgent string
		putAgent string
		ttl      time.Duration
	)
	get := &cobra.Command{
		Use:   "get <provider> <endpoint>",
		Short: "Print the freshest cached response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			data, ok, err := mgr.ForAgent(getAgent).GetCachedResponse(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no fresh cache entry for %s", memory.CacheKey(args[0], args[1]))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	get.Flags().StringVarP(&getAgent, "agent", "a", "", "reading agent id (required)")
	_ = get.MarkFlagRequired("agent")

	put := &cobra.Command{
		Use:   "put <provider> <endpoint> <json>",
		Short: "Cache a JSON response",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[2])) {
				return fmt.Errorf("response is not valid JSON")
			}
			mgr, err := opts.openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			id, err := mgr.ForAgent(putAgent).CacheAPIResponse(cmd.Context(), args[0], args[1], json.RawMessage(args[2]), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	put.Flags().StringVarP(&putAgent, "agent", "a", "", "writing agent id (required)")
	put.Flags().DurationVar(&ttl, "ttl", 0, "entry lifetime (default from config)")
	_ = put.MarkFlagRequired("agent")

	cmd.AddCommand(get, put)
	return cmd
}

func printRecords(w io.Writer, recs []memory.Record, asJSON bool) error {
	if asJSON {
		if recs == nil {
			recs = []memory.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(w, "[%s] %s/%s  %s  (%s)\n",
			r.CreatedAt.Format(time.RFC3339),
			r.Scope,
			r.AgentID,
			r.Content,
			r.Priority,
		)
		if len(r.Metadata) > 0 {
			md, err := json.Marshal(r.Metadata)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "   %s\n", md)
		}
	}
	return nil
}
