package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

// ResponseHandler accepts inbound responses. *match.Engine satisfies it.
type ResponseHandler interface {
	HandleResponse(ctx context.Context, ev match.ResponseSubmitted) error
}

// ResponseConsumer feeds responses published by remote transports into the engine.
type ResponseConsumer struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  ResponseHandler
	config   JetStreamConfig
}

func NewResponseConsumer(ctx context.Context, js jetstream.JetStream, handler ResponseHandler, cfg JetStreamConfig) (*ResponseConsumer, error) {
	rc := &ResponseConsumer{js: js, handler: handler, config: cfg}

	if err := ensureStream(ctx, js, responseStreamConfig(cfg)); err != nil {
		return nil, fmt.Errorf("ensure response stream: %w", err)
	}
	if err := rc.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return rc, nil
}

func responseStreamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.ResponseStream,
		Description: "Participant responses from remote transports",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.ResponsePrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      time.Hour,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

// ensureConsumer creates or gets the durable consumer. Only new messages are delivered:
// sessions do not survive a restart, so older responses have nothing to land on.
func (rc *ResponseConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := rc.js.Stream(ctx, rc.config.ResponseStream)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          rc.config.ConsumerName,
		Durable:       rc.config.ConsumerName,
		Description:   "Duel engine response consumer",
		FilterSubject: fmt.Sprintf("%s.>", rc.config.ResponsePrefix),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, rc.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("consumer", rc.config.ConsumerName).Msg("created JetStream response consumer")
	} else {
		log.Info().Str("consumer", rc.config.ConsumerName).Msg("using existing JetStream response consumer")
	}

	rc.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled.
func (rc *ResponseConsumer) Start(ctx context.Context) error {
	log.Info().Msg("starting response consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := rc.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("response consumer shutting down")
			return nil
		case msg := <-messageCh:
			rc.settle(msg, rc.processMessage(ctx, msg.Data()))
		}
	}
}

func (rc *ResponseConsumer) processMessage(ctx context.Context, data []byte) error {
	ev, err := decodeResponse(data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("handle", string(ev.Handle)).
		Str("participant_id", ev.ParticipantID).
		Msg("processing remote response")

	if err := rc.handler.HandleResponse(ctx, ev); err != nil {
		return fmt.Errorf("handle response: %w", err)
	}
	return nil
}

func (rc *ResponseConsumer) settle(msg jetstream.Msg, err error) {
	var ackErr error
	switch classify(err) {
	case dispositionAck:
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("response dropped")
		}
		ackErr = msg.Ack()
	case dispositionTerm:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("malformed response")
		ackErr = msg.Term()
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process response")
		ackErr = msg.Nak()
	}
	if ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to settle message")
	}
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionNak
	dispositionTerm
)

var errMalformed = errors.New("malformed response")

// classify decides what happens to a message after processing. Responses the engine
// rejects will never succeed on redelivery, so they are acked and dropped.
func classify(err error) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, errMalformed):
		return dispositionTerm
	case errors.Is(err, match.ErrSessionNotFound),
		errors.Is(err, match.ErrNotParticipant),
		errors.Is(err, match.ErrInvalidMove):
		return dispositionAck
	default:
		return dispositionNak
	}
}

type responseMessage struct {
	Handle        string `json:"handle"`
	ParticipantID string `json:"participant_id"`
	Choice        string `json:"choice"`
}

func decodeResponse(data []byte) (match.ResponseSubmitted, error) {
	var msg responseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return match.ResponseSubmitted{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.Handle == "" || msg.ParticipantID == "" {
		return match.ResponseSubmitted{}, fmt.Errorf("%w: handle and participant_id are required", errMalformed)
	}
	choice, err := models.ParseChoice(msg.Choice)
	if err != nil {
		return match.ResponseSubmitted{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return match.ResponseSubmitted{
		Handle:        models.Handle(msg.Handle),
		ParticipantID: msg.ParticipantID,
		Choice:        choice,
	}, nil
}
