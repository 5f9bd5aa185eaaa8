package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/emberbot/ember/dispatch/consumer"
	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/kvstore"
	"github.com/emberbot/ember/dispatch/reactions"
	"github.com/emberbot/ember/dispatch/rules"
	"github.com/emberbot/ember/util/cliutil"

	"github.com/adrg/xdg"
	"github.com/bwmarrin/discordgo"
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
)

type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	consumer *consumer.DiscordConsumer
	units    []engine.Unit
}

type Config struct {
	Token           string
	Bot             engine.Config
	SlackWebhookURL string
	// Defaults to rules.DefaultUnits()
	Units  []engine.Unit
	Logger *slog.Logger
}

// Picks the persistent store backend: redis, then SQL, then a JSON file.
func openKVStore(cctx *cli.Context, logger *slog.Logger) (kvstore.KVStore, error) {
	if u := cctx.String("redis-url"); u != "" {
		kv, err := kvstore.NewRedisKVStore(u)
		if err != nil {
			return nil, fmt.Errorf("initializing redis kvstore: %w", err)
		}
		logger.Info("using redis kvstore")
		return kv, nil
	}
	if u := cctx.String("database-url"); u != "" {
		db, err := cliutil.SetupDatabase(u, cctx.Int("max-db-connections"), logger)
		if err != nil {
			return nil, err
		}
		kv, err := kvstore.NewGormKVStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing database kvstore: %w", err)
		}
		logger.Info("using database kvstore")
		return kv, nil
	}
	p := cctx.String("config-file")
	if p == ":memory:" {
		logger.Warn("no persistent store configured, cooldowns and config will not survive restarts")
		return kvstore.NewMemKVStore(), nil
	}
	if p == "" {
		var err error
		p, err = xdg.StateFile("ember/config.json")
		if err != nil {
			return nil, fmt.Errorf("locating state directory: %w", err)
		}
	}
	kv, err := kvstore.NewFileKVStore(p)
	if err != nil {
		return nil, fmt.Errorf("initializing file kvstore: %w", err)
	}
	logger.Info("using file kvstore", "path", p)
	return kv, nil
}

func NewServer(kv kvstore.KVStore, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.UserAgent = fmt.Sprintf("DiscordBot (https://github.com/emberbot/ember, %s)", versioninfo.Short())

	kit := &consumer.DiscordKit{
		Session: session,
		Name:    config.Bot.BotName,
	}
	resolver := reactions.NewResolver(kit, 1_000, 30*time.Minute)
	kit.Sequencer = reactions.NewSequencer(kit, resolver, config.Bot.EmojiTimeout, logger.With("component", "reactions"))

	eng := engine.NewEngine(logger, kv, kit, config.Bot)
	if config.SlackWebhookURL != "" {
		logger.Info("configuring slack error notifications")
		eng.Notifier = engine.NewSlackNotifier(config.SlackWebhookURL, logger)
	}

	units := config.Units
	if units == nil {
		units = rules.DefaultUnits()
	}

	s := &Server{
		logger: logger,
		engine: eng,
		consumer: &consumer.DiscordConsumer{
			Session:   session,
			Engine:    eng,
			Sequencer: kit.Sequencer,
			KV:        kv,
			Logger:    logger.With("component", "consumer"),
		},
		units: units,
	}
	return s, nil
}

// Loads handler units, then consumes gateway events until the context is cancelled. Units which fail to load are skipped.
func (s *Server) Run(ctx context.Context) error {
	if err := s.engine.LoadUnits(ctx, s.units...); err != nil {
		s.logger.Warn("some units failed to load", "err", err)
	}
	rulesLoaded.Set(float64(s.engine.Rules.Len()))
	botInfo.WithLabelValues(versioninfo.Short()).Set(1)
	s.logger.Info("starting bot", "rules", s.engine.Rules.Len(), "version", versioninfo.Short())
	return s.consumer.Run(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
