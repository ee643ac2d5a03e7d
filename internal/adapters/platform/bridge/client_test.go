package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sidecarMessage struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type sidecar struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
}

func (s *sidecar) next() sidecarMessage {
	s.t.Helper()
	_ = s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.True(s.t, s.scanner.Scan(), "sidecar expected a message: %v", s.scanner.Err())
	var msg sidecarMessage
	require.NoError(s.t, json.Unmarshal(s.scanner.Bytes(), &msg))
	return msg
}

func (s *sidecar) send(v any) {
	s.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(s.t, err)
	_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = s.conn.Write(append(data, '\n'))
	require.NoError(s.t, err)
}

func (s *sidecar) reply(id string) {
	s.send(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{}})
}

func (s *sidecar) push(method string, params any) {
	s.send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

type recordedEvent struct {
	name string
	peer domain.PeerID
	kind domain.RelationshipKind
	err  *domain.PlatformError
}

type recordingHandler struct {
	events    chan recordedEvent
	guardCode string
}

var _ ports.PlatformEventHandler = (*recordingHandler)(nil)

func (h *recordingHandler) HandleLoggedOn() {
	h.events <- recordedEvent{name: "loggedOn"}
}

func (h *recordingHandler) HandleError(err *domain.PlatformError) {
	h.events <- recordedEvent{name: "error", err: err}
}

func (h *recordingHandler) HandleRelationship(peer domain.PeerID, kind domain.RelationshipKind) {
	h.events <- recordedEvent{name: "relationship", peer: peer, kind: kind}
}

func (h *recordingHandler) HandleRelationshipsChanged() {
	h.events <- recordedEvent{name: "relationships"}
}

func (h *recordingHandler) HandleGuardRequested(respond ports.GuardResponder) {
	h.events <- recordedEvent{name: "guard"}
	respond(h.guardCode)
}

func (h *recordingHandler) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case event := <-h.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
		return recordedEvent{}
	}
}

func newTestBridge(t *testing.T, opts ...Option) (*Client, *sidecar, *recordingHandler) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	logger, _ := test.NewNullLogger()
	client := New(clientConn, append([]Option{WithLogger(logger)}, opts...)...)
	handler := &recordingHandler{events: make(chan recordedEvent, 16), guardCode: "BK7QX"}
	client.SetEventHandler(handler)

	t.Cleanup(func() {
		_ = serverConn.Close()
		_ = client.Close()
	})

	return client, &sidecar{t: t, conn: serverConn, scanner: bufio.NewScanner(serverConn)}, handler
}

func TestLogOnSendsDetails(t *testing.T) {
	client, side, _ := newTestBridge(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.LogOn(context.Background(), domain.LogOnDetails{
			AccountName:   "bot",
			Password:      "hunter2",
			TwoFactorCode: "BK7QX",
			DataDir:       "/data/bot-1234",
		})
	}()

	msg := side.next()
	assert.Equal(t, "logOn", msg.Method)
	assert.NotEmpty(t, msg.ID)
	assert.JSONEq(t, `{"accountName":"bot","password":"hunter2","twoFactorCode":"BK7QX","dataDirectory":"/data/bot-1234"}`, string(msg.Params))

	side.reply(msg.ID)
	require.NoError(t, <-errCh)
}

func TestCallsMapToMethods(t *testing.T) {
	client, side, _ := newTestBridge(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		method string
		params string
	}{
		{"presence", func() error { return client.SetPresence(ctx, domain.PresenceOnline) }, "setPersona", `{"state":"online"}`},
		{"activity", func() error { return client.DeclareActivity(ctx, 730) }, "gamesPlayed", `{"appIds":[730]}`},
		{"add peer", func() error { return client.AddPeer(ctx, "765") }, "addFriend", `{"peer":"765"}`},
		{"message", func() error { return client.SendMessage(ctx, "765", "hi") }, "chatMessage", `{"peer":"765","text":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			go func() { errCh <- tt.call() }()

			msg := side.next()
			assert.Equal(t, tt.method, msg.Method)
			assert.JSONEq(t, tt.params, string(msg.Params))
			side.reply(msg.ID)
			require.NoError(t, <-errCh)
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- client.LogOff(ctx) }()
	msg := side.next()
	assert.Equal(t, "logOff", msg.Method)
	side.reply(msg.ID)
	require.NoError(t, <-errCh)
}

func TestCallReturnsRPCError(t *testing.T) {
	client, side, _ := newTestBridge(t)

	errCh := make(chan error, 1)
	go func() { errCh <- client.SendMessage(context.Background(), "765", "hi") }()

	msg := side.next()
	side.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      msg.ID,
		"error":   map[string]any{"code": 84, "message": "rate limit exceeded"},
	})

	err := <-errCh
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 84, rpcErr.Code)
	assert.Equal(t, "rate limit exceeded", rpcErr.Message)
}

func TestCallHonorsContext(t *testing.T) {
	client, side, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- client.AddPeer(ctx, "765") }()

	side.next()
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRelationshipsTrackNotifications(t *testing.T) {
	client, side, handler := newTestBridge(t)

	assert.Nil(t, client.Relationships(), "no snapshot yet")

	side.push("friendsList", map[string]any{"relationships": map[string]string{
		"A": "incoming_request",
		"B": "friend",
	}})
	assert.Equal(t, recordedEvent{name: "relationships"}, handler.next(t))
	assert.Equal(t, map[domain.PeerID]domain.RelationshipKind{
		"A": domain.RelationshipIncomingRequest,
		"B": domain.RelationshipFriend,
	}, client.Relationships())

	side.push("friendRelationship", map[string]any{"peer": "A", "kind": "friend"})
	assert.Equal(t, recordedEvent{name: "relationship", peer: "A", kind: domain.RelationshipFriend}, handler.next(t))

	snapshot := client.Relationships()
	assert.Equal(t, domain.RelationshipFriend, snapshot["A"])

	snapshot["C"] = domain.RelationshipFriend
	_, leaked := client.Relationships()["C"]
	assert.False(t, leaked, "returned map is a copy")
}

func TestRelationshipEventBeforeSnapshotCreatesMap(t *testing.T) {
	client, side, handler := newTestBridge(t)

	side.push("friendRelationship", map[string]any{"peer": "Z", "kind": "incoming_request"})
	handler.next(t)

	assert.Equal(t, map[domain.PeerID]domain.RelationshipKind{"Z": domain.RelationshipIncomingRequest}, client.Relationships())
}

func TestUnknownRelationshipKindsAreDropped(t *testing.T) {
	client, side, handler := newTestBridge(t)

	side.push("friendsList", map[string]any{"relationships": map[string]string{
		"A": "friend",
		"B": "blocked",
	}})
	assert.Equal(t, recordedEvent{name: "relationships"}, handler.next(t))
	assert.Equal(t, map[domain.PeerID]domain.RelationshipKind{"A": domain.RelationshipFriend}, client.Relationships())

	side.push("friendRelationship", map[string]any{"peer": "A", "kind": "bogus"})
	side.push("friendRelationship", map[string]any{"peer": "C", "kind": "incoming_request"})

	assert.Equal(t, recordedEvent{name: "relationship", peer: "C", kind: domain.RelationshipIncomingRequest}, handler.next(t))
	assert.Equal(t, domain.RelationshipFriend, client.Relationships()["A"], "unknown kind leaves the peer untouched")
}

func TestRelationshipWithoutPeerIsSkipped(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	logger, hook := test.NewNullLogger()
	client := New(clientConn, WithLogger(logger))
	handler := &recordingHandler{events: make(chan recordedEvent, 16)}
	client.SetEventHandler(handler)
	t.Cleanup(func() {
		_ = serverConn.Close()
		_ = client.Close()
	})
	side := &sidecar{t: t, conn: serverConn, scanner: bufio.NewScanner(serverConn)}

	side.push("friendRelationship", map[string]any{"kind": "friend"})
	side.push("friendRelationship", map[string]any{"peer": "D", "kind": "friend"})

	assert.Equal(t, recordedEvent{name: "relationship", peer: "D", kind: domain.RelationshipFriend}, handler.next(t))
	assert.NotContains(t, client.Relationships(), domain.PeerID(""))

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Relationship notification without a peer" {
			warned = true
			assert.NotContains(t, entry.Data, logrus.ErrorKey)
		}
	}
	assert.True(t, warned, "empty peer is logged on its own")
}

func TestSessionNotifications(t *testing.T) {
	_, side, handler := newTestBridge(t)

	side.push("loggedOn", map[string]any{})
	assert.Equal(t, "loggedOn", handler.next(t).name)

	side.push("error", map[string]any{"code": 5, "message": "InvalidPassword"})
	event := handler.next(t)
	require.Equal(t, "error", event.name)
	assert.True(t, event.err.ExpiredCredential())
	assert.Equal(t, "InvalidPassword", event.err.Message)
}

func TestGuardChallengeIsAnswered(t *testing.T) {
	_, side, handler := newTestBridge(t)

	side.push("steamGuard", map[string]any{"id": "challenge-1"})

	msg := side.next()
	assert.Equal(t, "steamGuardCode", msg.Method)
	assert.Empty(t, msg.ID)
	assert.JSONEq(t, `{"id":"challenge-1","code":"BK7QX"}`, string(msg.Params))
	assert.Equal(t, "guard", handler.next(t).name)
}

func TestStalledGuardAnswerDoesNotBlockDispatch(t *testing.T) {
	_, side, handler := newTestBridge(t, WithGuardAnswerTimeout(100*time.Millisecond))

	// The sidecar never reads the guard code, so the answer write stalls.
	side.push("steamGuard", map[string]any{"id": "challenge-2"})
	assert.Equal(t, "guard", handler.next(t).name)

	side.push("loggedOn", map[string]any{})
	assert.Equal(t, "loggedOn", handler.next(t).name)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	_, side, handler := newTestBridge(t)

	_, err := side.conn.Write([]byte("not json\n"))
	require.NoError(t, err)
	side.push("somethingNew", map[string]any{})
	side.push("loggedOn", nil)

	assert.Equal(t, "loggedOn", handler.next(t).name)
}

func TestConnectionLossFailsCallsAndReportsError(t *testing.T) {
	client, side, handler := newTestBridge(t)

	errCh := make(chan error, 1)
	go func() { errCh <- client.AddPeer(context.Background(), "765") }()
	side.next()

	require.NoError(t, side.conn.Close())

	assert.True(t, errors.Is(<-errCh, ErrClosed))
	event := handler.next(t)
	require.Equal(t, "error", event.name)
	assert.Equal(t, ErrorCodeBridgeClosed, event.err.Code)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not done after connection loss")
	}

	assert.ErrorIs(t, client.AddPeer(context.Background(), "765"), ErrClosed)
}

func TestCloseDoesNotReportError(t *testing.T) {
	client, _, handler := newTestBridge(t)

	require.NoError(t, client.Close())

	select {
	case event := <-handler.events:
		t.Fatalf("unexpected event after close: %+v", event)
	default:
	}
}

func TestSessionLoginTimesOutOnUnansweredLogOn(t *testing.T) {
	client, side, _ := newTestBridge(t)

	logger, _ := test.NewNullLogger()
	service := application.NewService(client, nil, ports.SystemClock{}, logger, application.SessionConfig{
		Credentials:  domain.Credentials{AccountName: "bot", Password: "hunter2"},
		LoginTimeout: 200 * time.Millisecond,
	})

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- service.Login(ctx, "")
	}()

	msg := side.next()
	require.Equal(t, "logOn", msg.Method)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrLoginTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not time out while the bridge stayed silent")
	}
	assert.Equal(t, domain.StateDisconnected, service.Session().State())
}
