package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cadre-oss/scopemem/internal/config"
	"github.com/cadre-oss/scopemem/internal/memory"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Commands for viewing, validating and modifying scopemem.yaml.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Current Configuration:")
			fmt.Fprintln(w, "----------------------")
			fmt.Fprintln(w, string(out))
			if _, err := os.Stat(opts.configPath()); err == nil {
				fmt.Fprintf(w, "Config file: %s\n", opts.configPath())
			} else {
				fmt.Fprintln(w, "Config file: none (built-in defaults)")
			}
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err == nil {
				_, err = memory.NewRegistry(cfg)
			}
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: INVALID\n", opts.configPath())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d scopes, %s driver)\n",
				opts.configPath(), len(cfg.Scopes), cfg.Storage.Driver)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a value in scopemem.yaml using a dotted key.

Examples:
  scopemem config set storage.driver postgres
  scopemem config set query.max_results 50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, opts.configPath(), args[0], args[1])
		},
	}

	cmd.AddCommand(show, validate, set)
	return cmd
}

func runConfigSet(cmd *cobra.Command, path, key, value string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}
	if err := setNestedValue(doc, key, parseScalar(value)); err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Refuse to write a file that would no longer load.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := config.LoadFile(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func setNestedValue(m map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	current := m
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			return fmt.Errorf("invalid key %q", key)
		}
		next, ok := current[part]
		if !ok {
			child := make(map[string]interface{})
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s is not a section", part)
		}
		current = child
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// parseScalar keeps numbers and booleans typed in the written YAML.
func parseScalar(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}
