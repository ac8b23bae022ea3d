package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/duel/go/internal/models"
)

type engineFixture struct {
	engine    *Engine
	transport *fakeTransport
	sink      *recordingSink
	clock     *clockwork.FakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		transport: newFakeTransport(),
		sink:      &recordingSink{},
		clock:     clockwork.NewFakeClock(),
	}
	f.engine = NewEngine(f.transport, WithClock(f.clock), WithSinks(f.sink))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.engine.Shutdown(ctx)
	})
	return f
}

// start issues a challenge and returns the arbiter running it.
func (f *engineFixture) start(t *testing.T, host, opponent models.Participant, timeLimit int) (Snapshot, *Arbiter) {
	t.Helper()
	snap, err := f.engine.Challenge(context.Background(), host, opponent, timeLimit)
	require.NoError(t, err)
	a, ok := f.engine.arbiter(snap.ID)
	require.True(t, ok)
	return snap, a
}

func (f *engineFixture) finish(t *testing.T, a *Arbiter) Outcome {
	t.Helper()
	waitDone(t, a.Done())
	out, ok := a.Outcome()
	require.True(t, ok)
	return out
}

func requireChallengeError(t *testing.T, err error, target error) *ChallengeError {
	t.Helper()
	require.ErrorIs(t, err, target)
	var ce *ChallengeError
	require.True(t, errors.As(err, &ce))
	return ce
}

func TestEngine_HostWinsBeforeTimeout(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)
	assert.Equal(t, models.SessionID(0), snap.ID)
	assert.Equal(t, StateAwaitingBoth, snap.State)

	advance(t, f.clock, 2, 2)
	settle(t, f.clock, 2)
	require.NoError(t, f.engine.Respond(ctx, snap.ID, alice.ID, models.MoveRock))

	live, ok := f.engine.Lookup(snap.ID)
	require.True(t, ok)
	assert.Equal(t, StateOneReceived, live.State)
	assert.Equal(t, 8, live.HostRemaining)

	advance(t, f.clock, 3, 2)
	settle(t, f.clock, 2)
	require.NoError(t, f.engine.Respond(ctx, snap.ID, bob.ID, models.MoveScissors))

	out := f.finish(t, a)
	assert.Equal(t, models.ResultHost, out.Result)
	assert.Equal(t, models.MoveRock, out.HostMove)
	assert.Equal(t, models.MoveScissors, out.OpponentMove)
	assert.Equal(t, 5, out.OpponentRemaining)

	assert.Equal(t, 0, f.engine.Registry().Len())
	assert.Equal(t, models.SessionID(1), f.engine.Registry().NextID())
	_, ok = f.engine.Lookup(snap.ID)
	assert.False(t, ok)
	assert.Len(t, f.sink.finalized(), 1)

	board := f.transport.message(f.transport.order[0])
	assert.Contains(t, board.content.Body, "@alice(✊) won @bob(✌️)!")
}

func TestEngine_SameMoveTies(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)

	require.NoError(t, f.engine.Respond(ctx, snap.ID, alice.ID, models.MovePaper))
	require.NoError(t, f.engine.Respond(ctx, snap.ID, bob.ID, models.MovePaper))

	out := f.finish(t, a)
	assert.Equal(t, models.ResultTie, out.Result)
	_, ok := out.Winner()
	assert.False(t, ok)
}

func TestEngine_HostTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)

	advance(t, f.clock, 3, 2)
	settle(t, f.clock, 2)
	require.NoError(t, f.engine.Respond(ctx, snap.ID, bob.ID, models.MoveRock))

	// The opponent's countdown keeps running after it responded.
	advance(t, f.clock, 7, 2)

	out := f.finish(t, a)
	assert.Equal(t, models.MoveTimeoutForfeit, out.HostMove)
	assert.Equal(t, models.MoveRock, out.OpponentMove)
	assert.Equal(t, models.ResultOpponent, out.Result)
	assert.Equal(t, []models.Side{models.SideHost}, f.sink.timeouts)
}

func TestEngine_BothTimeOut(t *testing.T) {
	f := newEngineFixture(t)
	_, a := f.start(t, alice, bob, 10)

	advance(t, f.clock, 10, 2)

	out := f.finish(t, a)
	assert.Equal(t, models.MoveTimeoutForfeit, out.HostMove)
	assert.Equal(t, models.MoveTimeoutForfeit, out.OpponentMove)
	assert.Equal(t, models.ResultTie, out.Result)
	assert.Equal(t, 0, f.engine.Registry().Len())
}

func TestEngine_ForfeitLoses(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)

	require.NoError(t, f.engine.Respond(ctx, snap.ID, alice.ID, models.MoveForfeit))
	require.NoError(t, f.engine.Respond(ctx, snap.ID, bob.ID, models.MoveScissors))

	assert.Equal(t, models.ResultOpponent, f.finish(t, a).Result)
}

func TestEngine_RejectsDuration(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, alice, bob, 5)
	ce := requireChallengeError(t, err, ErrDurationTooShort)
	assert.Equal(t, "Sorry, the time you selected was too short", ce.Heading)
	assert.Equal(t, "The time limit can only be between 10 and 60", ce.Detail)

	_, err = f.engine.Challenge(ctx, alice, bob, 61)
	requireChallengeError(t, err, ErrDurationTooLong)

	assert.Equal(t, 0, f.engine.Registry().Len())
	assert.Equal(t, models.SessionID(0), f.engine.Registry().NextID())
	assert.Empty(t, f.transport.order)
}

func TestEngine_DefaultDuration(t *testing.T) {
	f := newEngineFixture(t)
	snap, _ := f.start(t, alice, bob, 0)
	assert.Equal(t, 10, snap.Duration)
}

func TestEngine_RejectsSelfAndBot(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, alice, alice, 10)
	ce := requireChallengeError(t, err, ErrSelfChallenge)
	assert.Equal(t, "Sorry, you cannot battle yourself", ce.Heading)

	_, err = f.engine.Challenge(ctx, alice, robot, 10)
	requireChallengeError(t, err, ErrBotOpponent)

	assert.Equal(t, 0, f.engine.Registry().Len())
	assert.Empty(t, f.transport.order)
}

func TestEngine_RejectsBusyParticipants(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.start(t, alice, bob, 10)

	_, err := f.engine.Challenge(ctx, carol, bob, 10)
	ce := requireChallengeError(t, err, ErrOpponentBusy)
	assert.Equal(t, "Sorry, bob is currently in another game", ce.Heading)

	_, err = f.engine.Challenge(ctx, bob, carol, 10)
	ce = requireChallengeError(t, err, ErrHostBusy)
	assert.Equal(t, "Sorry, you are currently in another game", ce.Heading)

	assert.Equal(t, 1, f.engine.Registry().Len())
	assert.Len(t, f.engine.Sessions(), 1)
}

func TestEngine_ParticipantFreedAfterFinalize(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)
	require.NoError(t, f.engine.Respond(ctx, snap.ID, alice.ID, models.MoveRock))
	require.NoError(t, f.engine.Respond(ctx, snap.ID, bob.ID, models.MoveRock))
	f.finish(t, a)

	next, _ := f.start(t, bob, alice, 20)
	assert.Equal(t, models.SessionID(1), next.ID)
}

func TestEngine_PresentsPromptsWithChoices(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t, alice, bob, 10)

	require.Len(t, f.transport.order, 3)
	board := f.transport.message(f.transport.order[0])
	assert.Empty(t, board.to)
	assert.Equal(t, "Waiting for response from @alice...\nWaiting for response from @bob...", board.content.Body)

	host := f.transport.message(f.transport.order[1])
	assert.Equal(t, alice.ID, host.to)
	assert.Equal(t, models.Choices, host.choices)

	opponent := f.transport.message(f.transport.order[2])
	assert.Equal(t, bob.ID, opponent.to)
	assert.Contains(t, opponent.content.Body, "What will you play against alice?")
}

func TestEngine_HandleResponse(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	_, a := f.start(t, alice, bob, 10)
	hostPrompt, opponentPrompt := f.transport.order[1], f.transport.order[2]

	require.NoError(t, f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: hostPrompt, ParticipantID: alice.ID, Choice: models.MovePaper}))

	// A prompt only routes to the session; the participant id picks the side.
	err := f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: opponentPrompt, ParticipantID: carol.ID, Choice: models.MoveRock})
	assert.ErrorIs(t, err, ErrNotParticipant)

	err = f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: opponentPrompt, ParticipantID: bob.ID, Choice: models.MoveTimeoutForfeit})
	assert.ErrorIs(t, err, ErrInvalidMove)

	require.NoError(t, f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: opponentPrompt, ParticipantID: bob.ID, Choice: models.MoveRock}))
	assert.Equal(t, models.ResultHost, f.finish(t, a).Result)

	// Handles are forgotten with the session.
	err = f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: hostPrompt, ParticipantID: alice.ID, Choice: models.MoveRock})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngine_UnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	assert.ErrorIs(t, f.engine.Respond(ctx, 42, alice.ID, models.MoveRock), ErrSessionNotFound)
	assert.ErrorIs(t, f.engine.HandleResponse(ctx, ResponseSubmitted{Handle: "nope", ParticipantID: alice.ID, Choice: models.MoveRock}), ErrSessionNotFound)
}

func TestEngine_PresentFailureReleasesParticipants(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.transport.failPrivate = true

	_, err := f.engine.Challenge(ctx, alice, bob, 10)
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Equal(t, 0, f.engine.Registry().Len())
	require.Len(t, f.transport.order, 1)
	assert.True(t, f.transport.message(f.transport.order[0]).deleted)

	f.transport.failPrivate = false
	f.start(t, alice, bob, 10)
}

func TestEngine_ShutdownStopsCountdowns(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	snap, a := f.start(t, alice, bob, 10)
	advance(t, f.clock, 2, 2)
	settle(t, f.clock, 2)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(shutdownCtx))

	f.clock.Advance(20 * time.Second)
	live, ok := f.engine.Lookup(snap.ID)
	require.True(t, ok)
	assert.Equal(t, 8, live.HostRemaining)
	assert.Empty(t, f.sink.finalized())

	select {
	case <-a.Done():
		t.Fatal("shutdown must not finalize")
	default:
	}

	_, err := f.engine.Challenge(ctx, carol, robot, 10)
	assert.ErrorIs(t, err, ErrBotOpponent)
	_, err = f.engine.Challenge(ctx, carol, models.Participant{ID: "u-dave", Name: "dave"}, 10)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

// answeringTransport replies on each prompt as soon as its choices are attached, the
// way a fast client does.
type answeringTransport struct {
	*fakeTransport
	engine *Engine
	moves  map[string]models.Move
	failTo string

	mu   sync.Mutex
	errs []error
}

func newAnsweringEngine(t *testing.T, moves map[string]models.Move) (*Engine, *answeringTransport, *recordingSink) {
	t.Helper()
	at := &answeringTransport{fakeTransport: newFakeTransport(), moves: moves}
	sink := &recordingSink{}
	e := NewEngine(at, WithClock(clockwork.NewFakeClock()), WithSinks(sink))
	at.engine = e
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, at, sink
}

func (a *answeringTransport) SendPrivateMessage(ctx context.Context, to models.Participant, c Content) (models.Handle, error) {
	if to.ID == a.failTo {
		return "", errors.New("direct messages disabled")
	}
	return a.fakeTransport.SendPrivateMessage(ctx, to, c)
}

func (a *answeringTransport) AttachChoices(ctx context.Context, h models.Handle, choices []models.Move) error {
	if err := a.fakeTransport.AttachChoices(ctx, h, choices); err != nil {
		return err
	}
	to := a.message(h).to
	move, ok := a.moves[to]
	if !ok {
		return nil
	}
	err := a.engine.HandleResponse(ctx, ResponseSubmitted{Handle: h, ParticipantID: to, Choice: move})
	a.mu.Lock()
	a.errs = append(a.errs, err)
	a.mu.Unlock()
	return nil
}

func (a *answeringTransport) responseErrs() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.errs...)
}

func TestEngine_AcceptsResponsesOnFreshPrompts(t *testing.T) {
	e, at, sink := newAnsweringEngine(t, map[string]models.Move{
		alice.ID: models.MoveRock,
		bob.ID:   models.MoveScissors,
	})

	snap, err := e.Challenge(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	assert.Equal(t, []error{nil, nil}, at.responseErrs())

	outcomes := sink.finalized()
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultHost, outcomes[0].Result)
	assert.Equal(t, []string{"started", "response", "response", "finalized"}, sink.order())

	_, live := e.Lookup(snap.ID)
	assert.False(t, live)
	assert.Equal(t, 0, e.Registry().Len())
	assert.Contains(t, at.message(at.order[0]).content.Body, "@alice(✊) won @bob(✌️)!")
}

func TestEngine_EarlyResponseCountsOnceOpened(t *testing.T) {
	ctx := context.Background()
	e, at, sink := newAnsweringEngine(t, map[string]models.Move{alice.ID: models.MovePaper})

	snap, err := e.Challenge(ctx, alice, bob, 10)
	require.NoError(t, err)
	assert.Equal(t, []error{nil}, at.responseErrs())
	assert.Equal(t, []string{"started", "response"}, sink.order())

	live, ok := e.Lookup(snap.ID)
	require.True(t, ok)
	assert.Equal(t, StateOneReceived, live.State)

	a, ok := e.arbiter(snap.ID)
	require.True(t, ok)
	require.NoError(t, e.Respond(ctx, snap.ID, bob.ID, models.MoveRock))
	waitDone(t, a.Done())
	assert.Equal(t, models.ResultHost, sink.finalized()[0].Result)
}

func TestEngine_PresentFailureDiscardsEarlyResponse(t *testing.T) {
	ctx := context.Background()
	e, at, sink := newAnsweringEngine(t, map[string]models.Move{alice.ID: models.MoveRock})
	at.failTo = bob.ID

	_, err := e.Challenge(ctx, alice, bob, 10)
	require.Error(t, err)
	assert.Equal(t, []error{nil}, at.responseErrs())
	assert.Empty(t, sink.order())
	assert.Equal(t, 0, e.Registry().Len())
	assert.Empty(t, e.Sessions())
	for _, h := range at.order {
		assert.True(t, at.message(h).deleted)
	}

	at.failTo = ""
	_, err = e.Challenge(ctx, alice, bob, 10)
	require.NoError(t, err)
}

func TestEngine_ChallengeAfterShutdownLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	require.NoError(t, f.engine.Shutdown(ctx))

	_, err := f.engine.Challenge(ctx, alice, bob, 10)
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.Equal(t, 0, f.engine.Registry().Len())
	assert.False(t, f.engine.Registry().IsOccupied(alice.ID))
	assert.Empty(t, f.transport.order)
	assert.Empty(t, f.sink.order())
}
