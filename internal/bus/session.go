package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onairhq/studio/internal/types"
)

// inboundMessage is every message a client sends: a named event, an opaque
// payload, and — for request events — a client-chosen id used to correlate
// the reply (§6 "request events carry a reply callback").
type inboundMessage struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// outboundMessage is every message the bus sends: either a reply to a
// specific request (RequestID set, Success/Data/Error populated) or a
// broadcast (RequestID empty, Success always true, Data carries the event
// payload).
type outboundMessage struct {
	Event     string `json:"event"`
	RequestID string `json:"requestId,omitempty"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Session is one connected client (§4.2). It starts unauthenticated and
// unjoined; room:join is the only event dispatch permits before that.
type Session struct {
	ID   string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	userID        *uint64
	roomID        uint64
	participantID uint64
	waiting       bool
	joined        bool

	done chan struct{}
}

// NewSession wraps an upgraded websocket connection. The caller (the HTTP
// transport adapter) owns accepting the connection; Session owns its
// lifecycle from there.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		ID:   types.NewUUID(),
		conn: conn,
		done: make(chan struct{}),
	}
}

// Serve runs the session's read loop until the connection closes or ctx is
// cancelled, dispatching every inbound message through b. It always runs
// disconnect cleanup on the way out, exactly once, regardless of which path
// ended the loop (§5 "Per-participant disconnect idempotency").
func (s *Session) Serve(ctx context.Context, b *Bus) {
	defer s.handleDisconnect(b)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		b.dispatch(ctx, s, msg)
	}
}

func (s *Session) isJoined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func (s *Session) send(msg outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) sendReply(event, requestID string, data any) {
	s.send(outboundMessage{Event: event, RequestID: requestID, Success: true, Data: data})
}

func (s *Session) sendError(event, requestID, message string) {
	s.send(outboundMessage{Event: event, RequestID: requestID, Success: false, Error: message})
}

// Close ends the session's read loop; used by host:kick.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()
}
