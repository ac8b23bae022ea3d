package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/events"
	"github.com/mcdev12/duel/go/internal/models"
)

type Config struct {
	QueueSize    int           `yaml:"queue_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:    1024,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// Outbox is a match.Sink that queues lifecycle events and publishes them from its own
// goroutine, so arbiters never wait on the network. A full queue drops the event.
type Outbox struct {
	publisher EventPublisher
	config    Config
	queue     chan Event
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

var _ match.Sink = (*Outbox)(nil)

func NewOutbox(publisher EventPublisher, cfg Config) *Outbox {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Outbox{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan Event, cfg.QueueSize),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

func (o *Outbox) SessionStarted(_ context.Context, snap match.Snapshot) error {
	return o.enqueue(events.TypeMatchStarted, snap.ID, events.MatchStarted(snap))
}

func (o *Outbox) ResponseRecorded(_ context.Context, snap match.Snapshot, side models.Side) error {
	return o.enqueue(events.TypeResponseRecorded, snap.ID, events.ResponseRecorded(snap, side))
}

func (o *Outbox) SideTimedOut(_ context.Context, snap match.Snapshot, side models.Side) error {
	return o.enqueue(events.TypeSideTimedOut, snap.ID, events.SideTimedOut(snap, side))
}

func (o *Outbox) SessionFinalized(_ context.Context, out match.Outcome) error {
	return o.enqueue(events.TypeMatchFinalized, out.SessionID, events.MatchFinalized(out))
}

func (o *Outbox) enqueue(eventType string, id models.SessionID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event := Event{
		ID:        uuid.New(),
		SessionID: int64(id),
		EventType: eventType,
		Payload:   data,
		CreatedAt: o.now().UTC(),
	}

	select {
	case o.queue <- event:
		return nil
	default:
		return fmt.Errorf("outbox full, dropped %s for session %d", eventType, id)
	}
}

func (o *Outbox) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("outbox already running")
	}
	o.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(ctx)

	log.Info().
		Int("queue_size", o.config.QueueSize).
		Int("max_retries", o.config.MaxRetries).
		Msg("outbox started")
	return nil
}

// Stop flushes whatever is queued, bounded by DrainTimeout, and waits for the worker.
func (o *Outbox) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("outbox not running")
	}
	o.running = false
	o.mu.Unlock()

	close(o.stopChan)
	o.wg.Wait()

	log.Info().Msg("outbox stopped")
	return nil
}

func (o *Outbox) run(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopChan:
			o.drain()
			return
		case event := <-o.queue:
			o.publish(ctx, event)
		}
	}
}

func (o *Outbox) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.DrainTimeout)
	defer cancel()

	for {
		select {
		case event := <-o.queue:
			o.publish(ctx, event)
		default:
			return
		}
	}
}

func (o *Outbox) publish(ctx context.Context, event Event) {
	if err := o.publishWithRetry(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int64("session_id", event.SessionID).
			Msg("failed to publish event")
	}
}

func (o *Outbox) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := o.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("after %d attempts: %w", o.config.MaxRetries+1, lastErr)
}
