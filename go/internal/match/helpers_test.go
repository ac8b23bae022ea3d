package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/duel/go/internal/models"
)

var (
	alice = models.Participant{ID: "u-alice", Name: "alice"}
	bob   = models.Participant{ID: "u-bob", Name: "bob"}
	carol = models.Participant{ID: "u-carol", Name: "carol"}
	robot = models.Participant{ID: "u-robot", Name: "robot", Bot: true}
)

var errGone = errors.New("message gone")

type fakeMessage struct {
	to      string
	content Content
	choices []models.Move
	deleted bool
	edits   int
}

// fakeTransport records every call. Edits and deletes on deleted messages fail the way a
// chat API does when the message is already gone.
type fakeTransport struct {
	mu          sync.Mutex
	seq         int
	messages    map[models.Handle]*fakeMessage
	order       []models.Handle
	failPrivate bool
	editErrs    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(map[models.Handle]*fakeMessage)}
}

func (f *fakeTransport) send(to string, c Content) models.Handle {
	f.seq++
	h := models.Handle(fmt.Sprintf("msg-%d", f.seq))
	f.messages[h] = &fakeMessage{to: to, content: c}
	f.order = append(f.order, h)
	return h
}

func (f *fakeTransport) SendPrivateMessage(_ context.Context, to models.Participant, c Content) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrivate {
		return "", errors.New("direct messages disabled")
	}
	return f.send(to.ID, c), nil
}

func (f *fakeTransport) SendBroadcastMessage(_ context.Context, c Content) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.send("", c), nil
}

func (f *fakeTransport) EditMessage(_ context.Context, h models.Handle, c Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[h]
	if !ok || m.deleted {
		f.editErrs++
		return errGone
	}
	m.content = c
	m.edits++
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, h models.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[h]
	if !ok || m.deleted {
		return errGone
	}
	m.deleted = true
	return nil
}

func (f *fakeTransport) AttachChoices(_ context.Context, h models.Handle, choices []models.Move) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[h]
	if !ok {
		return errGone
	}
	m.choices = choices
	return nil
}

func (f *fakeTransport) message(h models.Handle) fakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.messages[h]
}

func (f *fakeTransport) totalEdits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		n += m.edits
	}
	return n
}

// recordingSink counts lifecycle notifications.
type recordingSink struct {
	mu        sync.Mutex
	started   int
	responses int
	timeouts  []models.Side
	outcomes  []Outcome
	events    []string
}

func (r *recordingSink) SessionStarted(context.Context, Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.events = append(r.events, "started")
	return nil
}

func (r *recordingSink) ResponseRecorded(context.Context, Snapshot, models.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses++
	r.events = append(r.events, "response")
	return nil
}

func (r *recordingSink) SideTimedOut(_ context.Context, _ Snapshot, side models.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, side)
	r.events = append(r.events, "timeout")
	return nil
}

func (r *recordingSink) SessionFinalized(_ context.Context, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
	r.events = append(r.events, "finalized")
	return nil
}

func (r *recordingSink) finalized() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *recordingSink) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// countingRemover wraps a Registry and counts Remove calls.
type countingRemover struct {
	mu       sync.Mutex
	registry *Registry
	calls    int
}

func (c *countingRemover) Remove(id models.SessionID) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.registry.Remove(id)
}

func (c *countingRemover) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// advance moves the fake clock forward n ticks, waiting before each step for the given
// number of countdowns to be armed.
func advance(t *testing.T, clock *clockwork.FakeClock, n, armed int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, armed), "countdowns not armed at step %d", i)
		clock.Advance(time.Second)
	}
}

// settle waits until the countdowns have handled the last tick and re-armed.
func settle(t *testing.T, clock *clockwork.FakeClock, armed int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, armed))
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not finalized")
	}
}
