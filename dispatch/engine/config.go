package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emberbot/ember/dispatch/kvstore"
)

// Bot-level settings. Persisted under `config.<field>` in the kv store.
type Config struct {
	// Display name of the bot
	BotName string
	// Delay between successive reactions in one sequence (stored as milliseconds)
	EmojiTimeout time.Duration
	// Include stack traces when logging load and handler failures
	Debug bool
	// Log a one-line trace of every incoming event
	LogIncomingEvents bool
	// Reaction used when the bot was mentioned but no rule handled the message
	FallbackReaction string
}

func DefaultConfig() Config {
	return Config{
		BotName:           "Discord Bot",
		EmojiTimeout:      500 * time.Millisecond,
		Debug:             true,
		LogIncomingEvents: true,
		FallbackReaction:  "hmm",
	}
}

const (
	ConfigBotName           = "config.botName"
	ConfigEmojiTimeout      = "config.emojiTimeout"
	ConfigDebug             = "config.debug"
	ConfigLogIncomingEvents = "config.logIncomingEvents"
	ConfigFallbackReaction  = "config.fallbackReaction"
	ConfigToken             = "config.token"
)

// Overlays any values present in the store on top of the defaults.
func LoadConfig(ctx context.Context, kv kvstore.KVStore) (Config, error) {
	cfg := DefaultConfig()

	get := func(path string) (string, error) {
		v, err := kv.Get(ctx, path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return v, nil
	}

	v, err := get(ConfigBotName)
	if err != nil {
		return cfg, err
	}
	if v != "" {
		cfg.BotName = v
	}

	v, err = get(ConfigEmojiTimeout)
	if err != nil {
		return cfg, err
	}
	if v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return cfg, fmt.Errorf("invalid %s value: %q", ConfigEmojiTimeout, v)
		}
		cfg.EmojiTimeout = time.Duration(ms) * time.Millisecond
	}

	for path, dst := range map[string]*bool{
		ConfigDebug:             &cfg.Debug,
		ConfigLogIncomingEvents: &cfg.LogIncomingEvents,
	} {
		v, err := get(path)
		if err != nil {
			return cfg, err
		}
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s value: %q", path, v)
		}
		*dst = b
	}

	v, err = get(ConfigFallbackReaction)
	if err != nil {
		return cfg, err
	}
	if v != "" {
		cfg.FallbackReaction = v
	}
	return cfg, nil
}
