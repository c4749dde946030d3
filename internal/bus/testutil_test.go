package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) BroadcastToRoom(roomID uint64, event string, payload any) {
	f.events = append(f.events, event)
}

type fakeAlerter struct{}

func (f *fakeAlerter) Alert(ctx context.Context, subject, detail string) {}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return store.New(db)
}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)
	mix := mixcoordinator.New(st, 5*time.Second)
	return New(Config{JWTSigningKey: "test-signing-key"}, commons.NewNop(), orc, mix, st, nil, nil)
}

// newConnectedSession upgrades a real websocket connection in front of a
// server-side Session running b's dispatch loop, so handler calls that
// reach hub.broadcast/send never hit a nil connection — matching how the
// teacher's websocket executor is only ever exercised over a live socket.
func newConnectedSession(t *testing.T, b *Bus) (*Session, *websocket.Conn) {
	t.Helper()

	sessionCh := make(chan *Session, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		s := NewSession(conn)
		sessionCh <- s
		s.Serve(context.Background(), b)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := <-sessionCh
	return s, client
}

// readEvent reads one outboundMessage off conn, failing the test if none
// arrives within the deadline.
func readEvent(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg outboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// shortDeadline is used to assert a message does NOT arrive: long enough
// to rule out scheduling jitter, short enough to keep tests fast.
func shortDeadline() time.Time {
	return time.Now().Add(200 * time.Millisecond)
}

func sendEvent(t *testing.T, conn *websocket.Conn, event, requestID string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "requestId": requestID, "data": data}))
}
