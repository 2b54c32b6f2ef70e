package main

import (
	"os"

	"github.com/Sternrassler/connsync/internal/config"
	"github.com/Sternrassler/connsync/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags; set flags override the environment.
type rootOptions struct {
	cfg config.Config

	dataDir   string
	redisURL  string
	logLevel  string
	logPretty bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "connsync",
		Short: "Incremental connection-list sync",
		Long: `connsync pages through the connection list of an authenticated session,
newest first, and appends records it has not captured yet to
<data-dir>/exported_data/<tenant>/<subject>/<platform>/<platform>.json.

Settings are read from CONNSYNC_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (CONNSYNC_DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", "", "Redis URL, empty disables Redis features (CONNSYNC_REDIS_URL)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error (CONNSYNC_LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&opts.logPretty, "log-pretty", false, "human-readable logs (CONNSYNC_LOG_PRETTY)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConsumeCommand(opts))
	cmd.AddCommand(newCredentialsCommand(opts))

	return cmd
}

// load reads the environment, applies changed flags and configures logging.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = o.redisURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-pretty") {
		cfg.LogPretty = o.logPretty
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	log.Debug().Str("data_dir", cfg.DataDir).Bool("redis", cfg.RedisURL != "").Msg("Configuration loaded")

	o.cfg = cfg
	return nil
}
