package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/duel/go/internal/match"
)

type liveGateway struct {
	service *Service
	engine  *match.Engine
	server  *httptest.Server
}

func newLiveGateway(t *testing.T) *liveGateway {
	t.Helper()
	service := NewService(DefaultConfig())
	engine := match.NewEngine(service.Transport())
	service.Attach(engine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go service.Start(ctx)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = engine.Shutdown(shutdownCtx)
		cancel()
		server.Close()
	})
	return &liveGateway{service: service, engine: engine, server: server}
}

func (g *liveGateway) dial(t *testing.T, id, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws?participant_id=" + id + "&name=" + name
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		_, ok := g.service.Directory().Lookup(id)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want func(*ServerEvent) bool) *ServerEvent {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev ServerEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if want(&ev) {
			return &ev
		}
	}
}

func isMessage(t *testing.T, eventType EventType, scope Scope, text string) func(*ServerEvent) bool {
	return func(ev *ServerEvent) bool {
		if ev.Type != eventType {
			return false
		}
		p := decode[MessagePayload](t, ev)
		return p.Scope == scope && strings.Contains(p.Text, text)
	}
}

func TestService_MatchOverWebSocket(t *testing.T) {
	g := newLiveGateway(t)
	aliceConn := g.dial(t, alice.ID, alice.Name)
	bobConn := g.dial(t, bob.ID, bob.Name)

	require.NoError(t, aliceConn.WriteJSON(ClientCommand{Type: CommandChallenge, OpponentID: bob.ID, TimeLimit: 10}))

	alicePrompt := decode[MessagePayload](t, readUntil(t, aliceConn, isMessage(t, EventTypeMessageCreated, ScopePrivate, "")))
	bobPrompt := decode[MessagePayload](t, readUntil(t, bobConn, isMessage(t, EventTypeMessageCreated, ScopePrivate, "")))
	assert.NotEqual(t, alicePrompt.Handle, bobPrompt.Handle)
	require.Len(t, g.engine.Sessions(), 1)

	require.NoError(t, aliceConn.WriteJSON(ClientCommand{Type: CommandRespond, Handle: string(alicePrompt.Handle), Choice: "rock"}))
	require.NoError(t, bobConn.WriteJSON(ClientCommand{Type: CommandRespond, Handle: string(bobPrompt.Handle), Choice: "scissors"}))

	readUntil(t, aliceConn, isMessage(t, EventTypeMessageEdited, ScopeBroadcast, "@alice(✊) won @bob(✌️)!"))
	require.Eventually(t, func() bool { return len(g.engine.Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestService_RejectsOfflineOpponent(t *testing.T) {
	g := newLiveGateway(t)
	aliceConn := g.dial(t, alice.ID, alice.Name)

	require.NoError(t, aliceConn.WriteJSON(ClientCommand{Type: CommandChallenge, OpponentID: carol.ID}))

	ev := readUntil(t, aliceConn, func(ev *ServerEvent) bool { return ev.Type == EventTypeChallengeRejected })
	assert.Equal(t, "Sorry, I could not find that player", decode[RejectedPayload](t, ev).Heading)
	assert.Empty(t, g.engine.Sessions())
}

func TestService_LateJoinerSeesBoard(t *testing.T) {
	g := newLiveGateway(t)
	aliceConn := g.dial(t, alice.ID, alice.Name)
	g.dial(t, bob.ID, bob.Name)

	require.NoError(t, aliceConn.WriteJSON(ClientCommand{Type: CommandChallenge, OpponentID: bob.ID}))
	board := decode[MessagePayload](t, readUntil(t, aliceConn, isMessage(t, EventTypeMessageCreated, ScopeBroadcast, "")))

	carolConn := g.dial(t, carol.ID, carol.Name)
	replayed := decode[MessagePayload](t, readUntil(t, carolConn, isMessage(t, EventTypeMessageCreated, ScopeBroadcast, "")))
	assert.Equal(t, board.Handle, replayed.Handle)
}

func TestService_MissingParticipant(t *testing.T) {
	g := newLiveGateway(t)

	resp, err := http.Get(g.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := checkOrigin(nil)
	assert.True(t, open(withOrigin("https://anywhere.example")))

	wildcard := checkOrigin([]string{"*"})
	assert.True(t, wildcard(withOrigin("https://anywhere.example")))

	restricted := checkOrigin([]string{"https://duel.example"})
	assert.True(t, restricted(withOrigin("https://duel.example")))
	assert.True(t, restricted(withOrigin("")))
	assert.False(t, restricted(withOrigin("https://evil.example")))
}
