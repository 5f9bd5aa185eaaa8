package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "ember",
		Usage:   "rule-driven discord bot daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for persistent bot state",
			EnvVars: []string{"EMBER_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "sqlite or postgres database URL for persistent bot state",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"EMBER_MAX_DB_CONNECTIONS"},
			Value:   8,
		},
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "JSON document for persistent bot state, used if no redis or database is configured (default: $XDG_STATE_HOME/ember/config.json; ':memory:' for none)",
			EnvVars: []string{"EMBER_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"EMBER_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			EnvVars: []string{"EMBER_LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		configCmd,
	}

	return app.Run(args)
}

func configureLogging(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to discord and run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "token",
			Usage:   "discord bot token (falls back to config.token in the persistent store)",
			EnvVars: []string{"EMBER_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"EMBER_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "slack incoming webhook for handler and unit failure alerts",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "bot-name",
			Usage:   "display name of the bot (overrides config.botName)",
			EnvVars: []string{"EMBER_BOT_NAME"},
		},
		&cli.DurationFlag{
			Name:    "emoji-timeout",
			Usage:   "delay between successive reactions on one message (overrides config.emojiTimeout)",
			EnvVars: []string{"EMBER_EMOJI_TIMEOUT"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "include stack traces in failure logs (overrides config.debug)",
			EnvVars: []string{"EMBER_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "log-incoming-events",
			Usage:   "log every incoming event (overrides config.logIncomingEvents)",
			EnvVars: []string{"EMBER_LOG_INCOMING_EVENTS"},
		},
		&cli.StringFlag{
			Name:    "fallback-reaction",
			Usage:   "reaction for mentions no rule handled (overrides config.fallbackReaction)",
			EnvVars: []string{"EMBER_FALLBACK_REACTION"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := configureLogging(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL := configOTEL(ctx, "ember")
		defer shutdownOTEL()

		kv, err := openKVStore(cctx, logger)
		if err != nil {
			return err
		}

		botConfig, err := engine.LoadConfig(ctx, kv)
		if err != nil {
			return fmt.Errorf("loading bot config: %w", err)
		}
		applyConfigFlags(cctx, &botConfig)

		token := cctx.String("token")
		if token == "" {
			token, err = kv.Get(ctx, engine.ConfigToken)
			if err != nil {
				return fmt.Errorf("reading stored token: %w", err)
			}
		}
		if token == "" {
			return fmt.Errorf("no discord token: set --token, EMBER_TOKEN, or %s in the persistent store", engine.ConfigToken)
		}

		srv, err := NewServer(kv, Config{
			Token:           token,
			Bot:             botConfig,
			SlackWebhookURL: cctx.String("slack-webhook-url"),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run bot: %w", err)
		}
		return nil
	},
}

// Explicitly set flags take precedence over stored config values.
func applyConfigFlags(cctx *cli.Context, cfg *engine.Config) {
	if cctx.IsSet("bot-name") {
		cfg.BotName = cctx.String("bot-name")
	}
	if cctx.IsSet("emoji-timeout") {
		cfg.EmojiTimeout = cctx.Duration("emoji-timeout")
	}
	if cctx.IsSet("debug") {
		cfg.Debug = cctx.Bool("debug")
	}
	if cctx.IsSet("log-incoming-events") {
		cfg.LogIncomingEvents = cctx.Bool("log-incoming-events")
	}
	if cctx.IsSet("fallback-reaction") {
		cfg.FallbackReaction = cctx.String("fallback-reaction")
	}
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "read and write values in the persistent store",
	Subcommands: []*cli.Command{
		{
			Name:      "get",
			Usage:     "print the value at a dotted path",
			ArgsUsage: "<path>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 1 {
					return fmt.Errorf("expected exactly one path argument")
				}
				logger, err := configureLogging(cctx)
				if err != nil {
					return err
				}
				kv, err := openKVStore(cctx, logger)
				if err != nil {
					return err
				}
				val, err := kv.Get(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				fmt.Println(val)
				return nil
			},
		},
		{
			Name:      "set",
			Usage:     "store a value at a dotted path (eg, config.botName)",
			ArgsUsage: "<path> <value>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 2 {
					return fmt.Errorf("expected path and value arguments")
				}
				logger, err := configureLogging(cctx)
				if err != nil {
					return err
				}
				kv, err := openKVStore(cctx, logger)
				if err != nil {
					return err
				}
				return kv.Set(cctx.Context, cctx.Args().Get(0), cctx.Args().Get(1))
			},
		},
	},
}
