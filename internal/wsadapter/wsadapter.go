// Package wsadapter upgrades inbound HTTP requests on the signaling
// namespace (§6 "/call-center"-equivalent) into internal/bus sessions.
// It owns nothing about rooms or events; it is the thin HTTP-upgrade
// façade spec.md treats as an external collaborator.
//
// Grounded on the teacher's webrtcUpgrader
// (api/assistant-api/api/talk/webrtc.go): a package-level
// websocket.Upgrader with a permissive CheckOrigin, since origin
// enforcement for a browser-embeddable contribution client is a
// deployment concern, not a core one.
package wsadapter

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/onairhq/studio/internal/bus"
	"github.com/onairhq/studio/internal/commons"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades every request it receives and hands the resulting
// connection to a fresh bus.Session, blocking until the session's
// Serve loop returns.
type Handler struct {
	bus *bus.Bus
	log commons.Logger
}

func New(b *bus.Bus, log commons.Logger) *Handler {
	return &Handler{bus: b, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("wsadapter: upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	session := bus.NewSession(conn)
	session.Serve(r.Context(), h.bus)
}
