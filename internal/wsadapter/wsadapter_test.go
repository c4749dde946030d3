package wsadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onairhq/studio/internal/bus"
	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	st := store.New(db)

	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	mix := mixcoordinator.New(st, 5*time.Second)

	b := bus.New(bus.Config{JWTSigningKey: "test-signing-key"}, commons.NewNop(), orc, mix, st, nil, nil)
	return New(b, commons.NewNop())
}

func TestHandlerUpgradesAndDispatchesUnknownEvent(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "no:such-event", "requestId": "1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, false, reply["success"])
}

func TestHandlerRejectsNonWebsocketRequest(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEqual(t, http.StatusSwitchingProtocols, resp.StatusCode)
}
