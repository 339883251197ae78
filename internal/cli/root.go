// Package cli implements the mrrp command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrrp-bot/mrrp/internal/bot"
	"github.com/mrrp-bot/mrrp/internal/config"
	"github.com/mrrp-bot/mrrp/internal/db"
	"github.com/mrrp-bot/mrrp/internal/logging"
	"github.com/mrrp-bot/mrrp/internal/mastodon"
	"github.com/mrrp-bot/mrrp/internal/misskey"
	"github.com/mrrp-bot/mrrp/internal/ratelimit"
	"github.com/mrrp-bot/mrrp/internal/responses"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	createConfig bool
	forceCreate  bool
	logLevel     string
	logFormat    string
	noColor      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "config file (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (auto, console, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.Flags().BoolVarP(&createConfig, "create-config", "c", false, "write the default config file and exit")
	rootCmd.Flags().BoolVar(&forceCreate, "force", false, "overwrite an existing config file with --create-config")
}

var rootCmd = &cobra.Command{
	Use:   "mrrp",
	Short: "Reply to fediverse mentions with meows",
	Long: `mrrp polls a Mastodon-compatible instance for mentions and answers each one
with a short random reply built from the configured response table.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging("", "")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if createConfig {
			return runCreateConfig(cmd)
		}
		return runBot(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging applies flag values over the given config defaults.
func initLogging(cfgLevel, cfgFormat string) error {
	level := cfgLevel
	if logLevel != "" {
		level = logLevel
	}
	format := cfgFormat
	if logFormat != "" {
		format = logFormat
	}
	return logging.Init(logging.Config{Level: level, Format: format, Output: os.Stderr})
}

func runCreateConfig(cmd *cobra.Command) error {
	if err := config.WriteDefault(configPath, forceCreate); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", configPath)
	return nil
}

func runBot(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := initLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	logger := logging.Component("cli")

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	generator, err := responses.NewGenerator(table, responses.WithMaxRegenerations(cfg.MaxRegenerations))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := bot.Deps{
		Primary: mastodon.NewClient(cfg.Instance, cfg.Token,
			mastodon.WithTimeout(cfg.Timeout()),
			mastodon.WithUserAgent(userAgent())),
		Secondary: misskey.NewClient(cfg.MisskeyURL(), cfg.Token,
			misskey.WithTimeout(cfg.Timeout()),
			misskey.WithUserAgent(userAgent())),
		Generator: generator,
		Limiter: ratelimit.New(ratelimit.Config{
			PerSecond: cfg.ReplyRatePerSecond,
			Burst:     cfg.ReplyBurst,
		}),
	}

	if cfg.Database != "" {
		database, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()
		deps.Ledger = db.NewReplyRepository(database)
		deps.Events = db.NewEventRepository(database)
		version, err := database.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		logger.Debug().Str("path", database.Path()).Int("schema_version", version).Msg("reply ledger opened")
	}

	b, err := bot.New(bot.OptionsFromConfig(cfg), deps)
	if err != nil {
		return err
	}

	logger.Info().Str("config", configPath).Int("rules", table.Len()).Msg("parsed config file")

	if err := b.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return b.Run(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func userAgent() string {
	return "mrrp/" + Version
}
