package match

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/models"
)

// Rules are the challenge limits and countdown cadence.
type Rules struct {
	MinDuration     int           `yaml:"min_duration" env:"MIN_DURATION"`
	MaxDuration     int           `yaml:"max_duration" env:"MAX_DURATION"`
	DefaultDuration int           `yaml:"default_duration" env:"DEFAULT_DURATION"`
	TickInterval    time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
}

// DefaultRules returns the 10-60 second window with a one second tick.
func DefaultRules() Rules {
	return Rules{
		MinDuration:     10,
		MaxDuration:     60,
		DefaultDuration: 10,
		TickInterval:    time.Second,
	}
}

// Engine is the process-scoped owner of the registry and every running arbiter. Inbound
// responses from any transport are routed through it by handle or session id.
type Engine struct {
	registry  *Registry
	transport Transport
	sink      Sink
	clock     clockwork.Clock
	rules     Rules

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	arbiters map[models.SessionID]*Arbiter
	handles  map[models.Handle]models.SessionID
	routes   map[models.SessionID][]models.Handle
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock swaps the clock used for countdowns and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRules overrides DefaultRules.
func WithRules(rules Rules) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithSinks registers lifecycle sinks.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.sink = append(e.sink.(Sinks), sinks...) }
}

// NewEngine creates an engine rendering through transport.
func NewEngine(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		sink:      Sinks{},
		clock:     clockwork.NewRealClock(),
		rules:     DefaultRules(),
		arbiters:  make(map[models.SessionID]*Arbiter),
		handles:   make(map[models.Handle]models.SessionID),
		routes:    make(map[models.SessionID][]models.Handle),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = NewRegistry(e.clock)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Registry exposes the live-session registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Rules returns the active rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// validate applies the checks that do not need the registry. The first failing check is
// the one reported.
func (e *Engine) validate(host, opponent models.Participant, timeLimit int) error {
	rangeDetail := fmt.Sprintf("The time limit can only be between %d and %d", e.rules.MinDuration, e.rules.MaxDuration)
	switch {
	case timeLimit < e.rules.MinDuration:
		return challengeRejected(ErrDurationTooShort, "Sorry, the time you selected was too short", rangeDetail)
	case timeLimit > e.rules.MaxDuration:
		return challengeRejected(ErrDurationTooLong, "Sorry, the time you selected was too long", rangeDetail)
	case host.ID == opponent.ID:
		return challengeRejected(ErrSelfChallenge, "Sorry, you cannot battle yourself", "You can only battle other players")
	case opponent.Bot:
		return challengeRejected(ErrBotOpponent, "Sorry, you cannot battle a Bot", "You can only battle other players")
	}
	return nil
}

// Challenge validates and starts a session between host and opponent. A zero timeLimit
// selects the default duration. Validation failures are *ChallengeError values.
func (e *Engine) Challenge(ctx context.Context, host, opponent models.Participant, timeLimit int) (Snapshot, error) {
	if timeLimit == 0 {
		timeLimit = e.rules.DefaultDuration
	}
	if err := e.validate(host, opponent, timeLimit); err != nil {
		return Snapshot{}, err
	}

	s, err := e.registry.CreateSession(host, opponent, timeLimit)
	switch err {
	case nil:
	case ErrHostBusy:
		return Snapshot{}, challengeRejected(err, "Sorry, you are currently in another game",
			"You can only battle other players once you're done with your match")
	case ErrOpponentBusy:
		return Snapshot{}, challengeRejected(err, fmt.Sprintf("Sorry, %s is currently in another game", opponent.Name),
			fmt.Sprintf("You can only battle %s when %s is done with their match", opponent.Name, opponent.Name))
	case ErrSelfChallenge:
		return Snapshot{}, challengeRejected(err, "Sorry, you cannot battle yourself", "You can only battle other players")
	default:
		return Snapshot{}, fmt.Errorf("create session: %w", err)
	}

	a := newArbiter(arbiterConfig{
		session:   s,
		registry:  e.registry,
		transport: e.transport,
		sink:      Sinks{e.sink, cleanupSink{engine: e}},
		clock:     e.clock,
		interval:  e.rules.TickInterval,
	})

	// The arbiter is registered before anything is sent so a response on a prompt the
	// moment it is delivered finds its session.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.registry.Remove(s.ID)
		return Snapshot{}, ErrEngineClosed
	}
	e.arbiters[s.ID] = a
	e.mu.Unlock()

	if err := e.present(ctx, s, a); err != nil {
		a.abort()
		e.retract(s.ID)
		e.forget(s.ID)
		e.registry.Remove(s.ID)
		return Snapshot{}, fmt.Errorf("present session %d: %w", s.ID, err)
	}

	snap := a.initial
	log.Info().
		Int64("session_id", int64(s.ID)).
		Str("host_id", host.ID).
		Str("opponent_id", opponent.ID).
		Int("duration", timeLimit).
		Msg("session created")

	a.open(ctx)
	e.mu.RLock()
	select {
	case <-a.Done():
		// Both sides answered while the prompts were going out.
	default:
		if !e.closed {
			a.Start(e.ctx)
		}
	}
	e.mu.RUnlock()
	return snap, nil
}

// present posts the broadcast and both private prompts with their choices. Each handle
// is routable as soon as the transport returns it. Only the sends are required to
// succeed; attaching choices is best-effort.
func (e *Engine) present(ctx context.Context, s *Session, a *Arbiter) error {
	h, err := e.transport.SendBroadcastMessage(ctx, a.render(renderChallenge))
	if err != nil {
		return fmt.Errorf("send broadcast: %w", err)
	}
	a.setBoard(h)
	e.route(s.ID, h)

	for _, side := range models.Sides {
		content := a.render(func(s *Session) Content { return renderPrompt(s, side) })
		h, err := e.transport.SendPrivateMessage(ctx, s.Participant(side), content)
		if err != nil {
			return fmt.Errorf("send %s prompt: %w", side, err)
		}
		a.setPrompt(side, h)
		e.route(s.ID, h)
		if err := e.transport.AttachChoices(ctx, h, models.Choices); err != nil {
			log.Warn().Err(err).Int64("session_id", int64(s.ID)).Str("side", side.String()).Msg("failed to attach choices")
		}
	}
	return nil
}

// route makes h resolve to session id while the session is live.
func (e *Engine) route(id models.SessionID, h models.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.arbiters[id]; !ok {
		return
	}
	e.handles[h] = id
	e.routes[id] = append(e.routes[id], h)
}

// retract deletes whatever present managed to send, prompts first.
func (e *Engine) retract(id models.SessionID) {
	e.mu.RLock()
	sent := append([]models.Handle(nil), e.routes[id]...)
	e.mu.RUnlock()

	for i := len(sent) - 1; i >= 0; i-- {
		if err := e.transport.DeleteMessage(e.ctx, sent[i]); err != nil {
			log.Warn().Err(err).Int64("session_id", int64(id)).Msg("failed to retract message")
		}
	}
}

// HandleResponse routes an inbound choice by the handle it was made on.
func (e *Engine) HandleResponse(ctx context.Context, ev ResponseSubmitted) error {
	e.mu.RLock()
	id, ok := e.handles[ev.Handle]
	e.mu.RUnlock()
	if !ok {
		log.Debug().Str("handle", string(ev.Handle)).Msg("response for unknown handle dropped")
		return ErrSessionNotFound
	}
	return e.Respond(ctx, id, ev.ParticipantID, ev.Choice)
}

// Respond routes a choice to session id.
func (e *Engine) Respond(ctx context.Context, id models.SessionID, participantID string, move models.Move) error {
	a, ok := e.arbiter(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := a.Submit(ctx, participantID, move); err != nil {
		log.Warn().
			Err(err).
			Int64("session_id", int64(id)).
			Str("participant_id", participantID).
			Msg("response dropped")
		return err
	}
	return nil
}

func (e *Engine) arbiter(id models.SessionID) (*Arbiter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.arbiters[id]
	return a, ok
}

// Lookup returns a snapshot of a live session.
func (e *Engine) Lookup(id models.SessionID) (Snapshot, bool) {
	a, ok := e.arbiter(id)
	if !ok {
		return Snapshot{}, false
	}
	return a.Snapshot(), true
}

// Sessions returns snapshots of every live session ordered by id.
func (e *Engine) Sessions() []Snapshot {
	e.mu.RLock()
	arbiters := make([]*Arbiter, 0, len(e.arbiters))
	for _, a := range e.arbiters {
		arbiters = append(arbiters, a)
	}
	e.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(arbiters))
	for _, a := range arbiters {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// forget drops the routing entries of a finalized session.
func (e *Engine) forget(id models.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.routes[id] {
		delete(e.handles, h)
	}
	delete(e.routes, id)
	delete(e.arbiters, id)
}

// Shutdown stops every countdown without finalizing and waits for the goroutines to
// exit or ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	arbiters := make([]*Arbiter, 0, len(e.arbiters))
	for _, a := range e.arbiters {
		arbiters = append(arbiters, a)
	}
	e.mu.Unlock()

	e.cancel()
	for _, a := range arbiters {
		a.Stop()
	}

	done := make(chan struct{})
	go func() {
		for _, a := range arbiters {
			a.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("sessions", len(arbiters)).Msg("engine shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cleanupSink unregisters a session from the engine once it is finalized.
type cleanupSink struct {
	NopSink
	engine *Engine
}

func (c cleanupSink) SessionFinalized(_ context.Context, out Outcome) error {
	c.engine.forget(out.SessionID)
	return nil
}
