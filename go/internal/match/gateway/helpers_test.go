package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/models"
)

var (
	alice = models.Participant{ID: "u-alice", Name: "alice"}
	bob   = models.Participant{ID: "u-bob", Name: "bob"}
	carol = models.Participant{ID: "u-carol", Name: "carol"}
)

type fakeDeliverer struct {
	mu        sync.Mutex
	connected map[string]bool
	broadcast []*ServerEvent
	direct    map[string][]*ServerEvent
	toConn    map[string][]*ServerEvent
}

func newFakeDeliverer(connected ...string) *fakeDeliverer {
	f := &fakeDeliverer{
		connected: make(map[string]bool),
		direct:    make(map[string][]*ServerEvent),
		toConn:    make(map[string][]*ServerEvent),
	}
	for _, id := range connected {
		f.connected[id] = true
	}
	return f
}

func (f *fakeDeliverer) Broadcast(ev *ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, ev)
}

func (f *fakeDeliverer) SendToParticipant(pid string, ev *ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct[pid] = append(f.direct[pid], ev)
}

func (f *fakeDeliverer) SendToConnection(c *Connection, ev *ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toConn[c.ID] = append(f.toConn[c.ID], ev)
}

func (f *fakeDeliverer) Connected(pid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[pid]
}

func (f *fakeDeliverer) Lookup(pid string) (models.Participant, bool) {
	for _, p := range []models.Participant{alice, bob, carol} {
		if p.ID == pid && f.Connected(pid) {
			return p, true
		}
	}
	return models.Participant{}, false
}

func decode[T any](t *testing.T, ev *ServerEvent) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

// fakeEngine records calls made through the gateway.
type fakeEngine struct {
	mu         sync.Mutex
	challenges [][2]models.Participant
	responses  []match.ResponseSubmitted
	sessions   []match.Snapshot
	err        error
}

func (f *fakeEngine) Challenge(_ context.Context, host, opponent models.Participant, timeLimit int) (match.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return match.Snapshot{}, f.err
	}
	f.challenges = append(f.challenges, [2]models.Participant{host, opponent})
	snap := match.Snapshot{ID: models.SessionID(len(f.sessions)), Host: host, Opponent: opponent, Duration: timeLimit, State: match.StateAwaitingBoth}
	f.sessions = append(f.sessions, snap)
	return snap, nil
}

func (f *fakeEngine) HandleResponse(_ context.Context, ev match.ResponseSubmitted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.responses = append(f.responses, ev)
	return nil
}

func (f *fakeEngine) Sessions() []match.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]match.Snapshot(nil), f.sessions...)
}

func (f *fakeEngine) Lookup(id models.SessionID) (match.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return match.Snapshot{}, false
}
