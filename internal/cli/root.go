package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/scopemem/internal/config"
	memerrors "github.com/cadre-oss/scopemem/internal/errors"
	"github.com/cadre-oss/scopemem/internal/memory"
	"github.com/cadre-oss/scopemem/pkg/scopemem"
)

// envPrefix namespaces environment overrides, e.g. SCOPEMEM_STORAGE_DRIVER.
const envPrefix = "SCOPEMEM"

// overrides maps viper keys to the config fields they replace.
var overrides = []struct {
	key  string
	flag string
	set  func(*config.Config, string)
}{
	{"storage.driver", "driver", func(c *config.Config, v string) { c.Storage.Driver = v }},
	{"storage.path", "storage-path", func(c *config.Config, v string) { c.Storage.Path = v }},
	{"storage.dsn", "dsn", func(c *config.Config, v string) { c.Storage.DSN = v }},
	{"logging.level", "log-level", func(c *config.Config, v string) { c.Logging.Level = v }},
	{"logging.format", "log-format", func(c *config.Config, v string) { c.Logging.Format = v }},
}

type rootOptions struct {
	v       *viper.Viper
	cfgFile string
	dir     string
	verbose bool
}

// NewRootCmd builds the scopemem command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "scopemem",
		Short: "Scoped memory for cooperating agents",
		Long: `scopemem - shared and private memory for a fleet of agents.

Agents store records in named scopes, read each other's shared pools,
hand work to one another, broadcast alerts and cache API responses.
This CLI inspects and maintains the stores behind them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./"+config.FileName+")")
	flags.StringVarP(&opts.dir, "dir", "C", ".", "project directory holding "+config.FileName+" and .env")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.String("driver", "", "storage driver override (sqlite, postgres, redis, memory)")
	flags.String("storage-path", "", "sqlite directory override")
	flags.String("dsn", "", "postgres or redis URL override")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.String("log-format", "", "log format override (text, json)")
	for _, o := range overrides {
		_ = opts.v.BindPFlag(o.key, flags.Lookup(o.flag))
	}

	cmd.AddCommand(
		newInitCmd(opts),
		newConfigCmd(opts),
		newScopesCmd(opts),
		newSummaryCmd(opts),
		newStoreCmd(opts),
		newQueryCmd(opts),
		newBroadcastCmd(opts),
		newHandoffCmd(opts),
		newHandoffsCmd(opts),
		newCacheCmd(opts),
		newExportCmd(opts),
		newOptimizeCmd(opts),
		newSweepCmd(opts),
		newVersionCmd(),
		newCompletionCmd(),
	)
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if s := memerrors.Suggestion(err); s != "" {
			fmt.Fprintln(os.Stderr, "Hint:", s)
		}
	}
	return err
}

func (o *rootOptions) initConfig(cmd *cobra.Command) error {
	envFile := filepath.Join(o.dir, ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	o.v.AutomaticEnv()

	if o.verbose {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", o.configPath())
	}
	return nil
}

func (o *rootOptions) configPath() string {
	if o.cfgFile != "" {
		return o.cfgFile
	}
	return filepath.Join(o.dir, config.FileName)
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath())
	if err != nil {
		return nil, err
	}
	for _, ov := range overrides {
		if o.v.IsSet(ov.key) {
			ov.set(cfg, o.v.GetString(ov.key))
		}
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func (o *rootOptions) openManager(ctx context.Context) (*memory.Manager, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return scopemem.Open(ctx, cfg)
}
