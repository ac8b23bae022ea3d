package main

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/config"
)

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	level := cfg.Level()
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Debug().
		Str("config", opts.ConfigPath).
		Int("port", cfg.HTTP.Port).
		Str("history_driver", cfg.History.Driver).
		Bool("nats", cfg.NATS.JetStream.Enabled()).
		Msg("configuration loaded")
	return cfg, nil
}
