package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/config"
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/bus"
	"github.com/mcdev12/duel/go/internal/match/gateway"
	"github.com/mcdev12/duel/go/internal/match/history"
)

// Services is everything serve runs. History, Ledger, Outbox and Consumer are nil when
// their backend is not configured.
type Services struct {
	Gateway  *gateway.Service
	Engine   *match.Engine
	History  *history.Store
	Ledger   *history.Ledger
	Outbox   *bus.Outbox
	Consumer *bus.ResponseConsumer

	nats *nats.Conn
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Stores → Sinks → Gateway transport → Engine → inbound consumers
	s := &Services{}
	var sinks []match.Sink

	if cfg.History.Enabled() {
		store, err := setupHistory(ctx, cfg.History)
		if err != nil {
			return nil, err
		}
		s.History = store
		s.Ledger = history.NewLedger(store, uuid.NewString(), cfg.History.QueueSize)
		sinks = append(sinks, s.Ledger)
	}

	var js jetstream.JetStream
	if cfg.NATS.JetStream.Enabled() {
		nc, stream, err := bus.Connect(cfg.NATS.JetStream)
		if err != nil {
			s.close()
			return nil, err
		}
		s.nats = nc
		js = stream

		publisher, err := bus.NewJetStreamPublisher(ctx, js, cfg.NATS.JetStream)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		s.Outbox = bus.NewOutbox(publisher, cfg.NATS.Outbox)
		sinks = append(sinks, s.Outbox)
	}

	s.Gateway = gateway.NewService(cfg.Gateway)
	s.Engine = match.NewEngine(s.Gateway.Transport(), match.WithRules(cfg.Rules), match.WithSinks(sinks...))

	// A nil *history.Store must not become a non-nil interface.
	var reader gateway.HistoryReader
	if s.History != nil {
		reader = s.History
	}
	s.Gateway.Attach(s.Engine, reader)

	if js != nil {
		consumer, err := bus.NewResponseConsumer(ctx, js, s.Engine, cfg.NATS.JetStream)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create response consumer: %w", err)
		}
		s.Consumer = consumer
	}

	log.Info().
		Bool("history", s.History != nil).
		Bool("nats", s.nats != nil).
		Int("sinks", len(sinks)).
		Msg("services wired")
	return s, nil
}

// Start launches the background workers. They stop when ctx is cancelled.
func (s *Services) Start(ctx context.Context) error {
	go s.Gateway.Start(ctx)

	if s.Outbox != nil {
		if err := s.Outbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox: %w", err)
		}
	}
	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("response consumer failed")
			}
		}()
	}
	return nil
}

// Shutdown stops the engine first so nothing new reaches the sinks, then flushes them.
func (s *Services) Shutdown(ctx context.Context) {
	if err := s.Engine.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("engine shutdown incomplete")
	}
	if s.Outbox != nil {
		if err := s.Outbox.Stop(); err != nil {
			log.Warn().Err(err).Msg("outbox stop")
		}
	}
	s.close()
}

func (s *Services) close() {
	if s.Ledger != nil {
		s.Ledger.Close()
	}
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			log.Warn().Err(err).Msg("NATS drain failed")
		}
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			log.Warn().Err(err).Msg("history close failed")
		}
	}
}
