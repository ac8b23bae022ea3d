package match

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match/outcome"
	"github.com/mcdev12/duel/go/internal/models"
)

// Arbiter serializes every mutation of one session. Two countdown goroutines (one per
// side) and any number of response submissions race through a single mutex; whichever
// event resolves the second response runs finalize, which stops both countdowns.
type Arbiter struct {
	mu        sync.Mutex
	session   *Session
	registry  remover
	transport Transport
	sink      Sink
	clock     clockwork.Clock
	interval  time.Duration

	// handles are filled in while the session is presented.
	handles [2]models.Handle
	board   models.Handle

	// Notifications raised before open wait in pending and are released behind
	// SessionStarted.
	opened  bool
	pending []func() error
	initial Snapshot

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
	result   *Outcome
}

// remover is the part of Registry an arbiter needs.
type remover interface {
	Remove(id models.SessionID)
}

type arbiterConfig struct {
	session   *Session
	registry  remover
	transport Transport
	sink      Sink
	clock     clockwork.Clock
	interval  time.Duration
}

func newArbiter(cfg arbiterConfig) *Arbiter {
	if cfg.sink == nil {
		cfg.sink = NopSink{}
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if cfg.interval <= 0 {
		cfg.interval = time.Second
	}
	return &Arbiter{
		session:   cfg.session,
		registry:  cfg.registry,
		transport: cfg.transport,
		sink:      cfg.sink,
		clock:     cfg.clock,
		interval:  cfg.interval,
		initial:   cfg.session.Snapshot(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (a *Arbiter) setBoard(h models.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.board = h
}

func (a *Arbiter) setPrompt(side models.Side, h models.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles[side] = h
}

// render builds content from the session through the gate.
func (a *Arbiter) render(fn func(*Session) Content) Content {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.session)
}

// open announces the session to the sink, then releases anything recorded while it
// was being presented.
func (a *Arbiter) open(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return
	}
	a.opened = true
	snap := a.initial
	a.notify(func() error { return a.sink.SessionStarted(ctx, snap) })
	for _, fn := range a.pending {
		a.notify(fn)
	}
	a.pending = nil
}

// abort ends a session that never opened. Held notifications are discarded and later
// events become no-ops.
func (a *Arbiter) abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return
	}
	a.session.markFinalized()
	a.pending = nil
	a.halt()
}

// Start launches both countdowns. ctx bounds their lifetime; cancelling it stops the
// timers without finalizing.
func (a *Arbiter) Start(ctx context.Context) {
	for _, side := range models.Sides {
		a.wg.Add(1)
		go a.countdown(ctx, side)
	}
	log.Info().
		Int64("session_id", int64(a.session.ID)).
		Int("duration", a.session.Duration).
		Msg("countdowns started")
}

// countdown ticks side once per interval until its countdown expires or the session
// finalizes. The timer is re-armed only after Tick returns so a slow tick never queues a
// second one behind it.
func (a *Arbiter) countdown(ctx context.Context, side models.Side) {
	defer a.wg.Done()

	timer := a.clock.NewTimer(a.interval)
	defer stopAndDrainTimer(timer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-timer.Chan():
			if !a.Tick(ctx, side) {
				log.Debug().
					Int64("session_id", int64(a.session.ID)).
					Str("side", side.String()).
					Msg("countdown finished")
				return
			}
			timer.Reset(a.interval)
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Tick decrements side's countdown through the gate. It reports whether the countdown
// for side should keep running.
func (a *Arbiter) Tick(ctx context.Context, side models.Side) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.session
	if s.Finalized() {
		return false
	}

	res := s.tick(side)
	switch {
	case res.timedOut:
		log.Info().
			Int64("session_id", int64(s.ID)).
			Str("side", side.String()).
			Str("participant_id", s.Participant(side).ID).
			Msg("side timed out")
		a.sideResolved(ctx, side)
		a.notify(func() error { return a.sink.SideTimedOut(ctx, s.Snapshot(), side) })
	case !s.Response(side).IsSet():
		a.bestEffort(a.transport.EditMessage(ctx, a.handles[side], renderPrompt(s, side)), "edit prompt")
	}

	if res.complete {
		a.finalize(ctx)
		return false
	}
	return res.remaining > 0
}

// Submit routes a response from participantID to its side. Anyone other than the host or
// the opponent gets ErrNotParticipant.
func (a *Arbiter) Submit(ctx context.Context, participantID string, move models.Move) error {
	side, ok := a.session.SideOf(participantID)
	if !ok {
		return ErrNotParticipant
	}
	if !isChoice(move) {
		return ErrInvalidMove
	}
	a.SubmitResponse(ctx, side, move)
	return nil
}

// SubmitResponse records move for side through the gate. The latest submission before
// finalize wins. It reports whether the move was applied.
func (a *Arbiter) SubmitResponse(ctx context.Context, side models.Side, move models.Move) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.session
	if s.Finalized() {
		return false
	}

	first := !s.Response(side).IsSet()
	complete := s.submit(side, move)

	log.Info().
		Int64("session_id", int64(s.ID)).
		Str("side", side.String()).
		Str("participant_id", s.Participant(side).ID).
		Bool("overwrite", !first).
		Msg("response submitted")

	if first {
		a.sideResolved(ctx, side)
	}
	a.notify(func() error { return a.sink.ResponseRecorded(ctx, s.Snapshot(), side) })

	if complete {
		a.finalize(ctx)
	}
	return true
}

// sideResolved removes side's prompt and, while the other side is still pending, updates
// the broadcast to show who is left.
func (a *Arbiter) sideResolved(ctx context.Context, side models.Side) {
	a.bestEffort(a.transport.DeleteMessage(ctx, a.handles[side]), "delete prompt")
	if !a.session.resolved() {
		a.bestEffort(a.transport.EditMessage(ctx, a.board, renderProgress(a.session)), "edit broadcast")
	}
}

// finalize must be called with mu held. The check-and-set on the session makes every
// call after the first a no-op.
func (a *Arbiter) finalize(ctx context.Context) {
	s := a.session
	if !s.markFinalized() {
		return
	}

	out := Outcome{
		SessionID:         s.ID,
		Host:              s.Host,
		Opponent:          s.Opponent,
		HostMove:          s.Response(models.SideHost),
		OpponentMove:      s.Response(models.SideOpponent),
		Result:            outcome.Decide(s.Response(models.SideHost), s.Response(models.SideOpponent)),
		Duration:          s.Duration,
		HostRemaining:     s.Remaining(models.SideHost),
		OpponentRemaining: s.Remaining(models.SideOpponent),
		StartedAt:         s.CreatedAt,
		FinishedAt:        a.clock.Now().UTC(),
	}
	a.result = &out

	a.bestEffort(a.transport.EditMessage(ctx, a.board, renderResult(out)), "edit result")
	a.halt()
	a.registry.Remove(s.ID)

	log.Info().
		Int64("session_id", int64(s.ID)).
		Str("host_move", string(out.HostMove)).
		Str("opponent_move", string(out.OpponentMove)).
		Str("result", string(out.Result)).
		Msg("session finalized")

	a.notify(func() error { return a.sink.SessionFinalized(ctx, out) })
	close(a.done)
}

// halt signals both countdowns to stop. Safe to call more than once.
func (a *Arbiter) halt() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Stop halts both countdowns without finalizing. Used on shutdown.
func (a *Arbiter) Stop() {
	a.halt()
}

// Wait blocks until both countdown goroutines have returned.
func (a *Arbiter) Wait() {
	a.wg.Wait()
}

// Done is closed once the session has been finalized.
func (a *Arbiter) Done() <-chan struct{} {
	return a.done
}

// Outcome returns the result once finalized.
func (a *Arbiter) Outcome() (Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return Outcome{}, false
	}
	return *a.result, true
}

// Snapshot copies the session state through the gate.
func (a *Arbiter) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Snapshot()
}

func (a *Arbiter) bestEffort(err error, op string) {
	if err != nil {
		log.Warn().
			Err(err).
			Int64("session_id", int64(a.session.ID)).
			Str("op", op).
			Msg("transport call failed")
	}
}

func (a *Arbiter) notify(fn func() error) {
	if !a.opened {
		a.pending = append(a.pending, fn)
		return
	}
	if err := fn(); err != nil {
		log.Error().Err(err).Int64("session_id", int64(a.session.ID)).Msg("sink notification failed")
	}
}

func isChoice(m models.Move) bool {
	for _, c := range models.Choices {
		if c == m {
			return true
		}
	}
	return false
}
