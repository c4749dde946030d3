// Package bus is the Room Session Bus (spec §4.2): it authenticates a
// session, attaches it to a room, and translates the request/broadcast
// event vocabulary between connected clients and the SFU Orchestrator, Mix
// Coordinator, Egress Supervisor, and Ingest Supervisor.
//
// Grounded in the teacher's WSRequest/WSResponse envelope and
// read-loop/write-mutex split (api/assistant-api/internal/agent/executor/
// llm/internal/websocket/websocket_executor.go), turned around from a
// client dialing an upstream service into a server accepting many
// connections, each dispatched through a named-event handler table instead
// of a fixed switch over a handful of message types.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/egress"
	"github.com/onairhq/studio/internal/ingest"
	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
)

// Config is the bus's tunables, loaded from config.Config at wiring time.
type Config struct {
	Namespace         string
	JWTSigningKey     string
	ICEServers        []string
	IFBPollMaxRetries int
	IFBPollInterval   time.Duration
	ChatHistoryLimit  int
}

// handlerFunc handles one request event. It returns the reply payload on
// success; a non-nil error becomes a {error} reply (§4.2, §7).
type handlerFunc func(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error)

// Bus implements spec §4.2 in full, and implements egress.Broadcaster,
// egress.Alerter, ingest.Broadcaster and ingest.Alerter so the supervisors
// can reach connected clients without importing this package.
type Bus struct {
	cfg Config
	log commons.Logger

	orc *orchestrator.Orchestrator
	mix *mixcoordinator.Coordinator
	st  store.Store
	eg  *egress.Supervisor
	ing *ingest.Supervisor

	hub *hub

	handlers map[string]handlerFunc

	// grQueues holds each green room's pending-guest queue (§4.2 Green
	// rooms' update-queue/get-queue). This is ephemeral, not persisted:
	// a process restart loses queue order the same way it loses in-flight
	// WebRTC state.
	grMu     sync.Mutex
	grQueues map[uint64][]uint64
}

var (
	_ egress.Broadcaster = (*Bus)(nil)
	_ egress.Alerter     = (*Bus)(nil)
	_ ingest.Broadcaster = (*Bus)(nil)
	_ ingest.Alerter     = (*Bus)(nil)
)

// New wires a Bus over its collaborators. eg/ing may be nil in tests that
// don't exercise the egress/ingest event classes.
func New(cfg Config, log commons.Logger, orc *orchestrator.Orchestrator, mix *mixcoordinator.Coordinator, st store.Store, eg *egress.Supervisor, ing *ingest.Supervisor) *Bus {
	if cfg.IFBPollMaxRetries <= 0 {
		cfg.IFBPollMaxRetries = 10
	}
	if cfg.IFBPollInterval <= 0 {
		cfg.IFBPollInterval = 300 * time.Millisecond
	}
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = 200
	}

	b := &Bus{
		cfg:      cfg,
		log:      log,
		orc:      orc,
		mix:      mix,
		st:       st,
		eg:       eg,
		ing:      ing,
		hub:      newHub(),
		grQueues: make(map[uint64][]uint64),
	}
	b.handlers = b.buildHandlerTable()
	return b
}

// buildHandlerTable collects every event class's handlers into one
// dispatch map keyed by event name.
func (b *Bus) buildHandlerTable() map[string]handlerFunc {
	m := make(map[string]handlerFunc)
	register := func(table map[string]handlerFunc) {
		for k, v := range table {
			m[k] = v
		}
	}
	register(map[string]handlerFunc{"room:join": handleRoomJoin, "room:leave": handleRoomLeave})
	register(mediaHandlers())
	register(presenceHandlers())
	register(hostControlHandlers())
	register(cueHandlers())
	register(chatHandlers())
	register(timerHandlers())
	register(rundownHandlers())
	register(recordingHandlers())
	register(ifbHandlers())
	register(remoteDSPHandlers())
	register(greenRoomHandlers())
	register(mixHandlers())
	return m
}

// BroadcastToRoom implements egress.Broadcaster / ingest.Broadcaster: it
// fans out to every session joined to room:<roomID>.
func (b *Bus) BroadcastToRoom(roomID uint64, event string, payload any) {
	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: event, Success: true, Data: payload})
}

// Alert implements egress.Alerter / ingest.Alerter: today this just logs,
// since no paging/notification integration is in scope (§7 External
// failures are logged and surfaced, not retried by the caller).
func (b *Bus) Alert(ctx context.Context, subject, detail string) {
	b.log.Warn("bus: alert", "subject", subject, "detail", detail)
}

func roomChannel(roomID uint64) string { return fmt.Sprintf("room:%d", roomID) }
func waitingChannel(roomID uint64) string { return fmt.Sprintf("room:%d:waiting", roomID) }
func ifbChannel(roomID uint64) string { return fmt.Sprintf("%d:ifb", roomID) }

// dispatch routes one inbound message to its handler, recovering a handler
// panic into an {error} reply rather than taking the connection down (§7:
// cleanup is always attempted, one bad request never kills the session).
func (b *Bus) dispatch(ctx context.Context, s *Session, msg inboundMessage) {
	h, ok := b.handlers[msg.Event]
	if !ok {
		if msg.RequestID != "" {
			s.sendError(msg.Event, msg.RequestID, fmt.Sprintf("unknown event %q", msg.Event))
		}
		return
	}
	if msg.Event != "room:join" && !s.isJoined() {
		s.sendError(msg.Event, msg.RequestID, "session has not joined a room")
		return
	}

	var (
		reply any
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("bus: handler panic: %v", r)
				b.log.Error("bus: handler panic", "event", msg.Event, "panic", r)
			}
		}()
		reply, err = h(ctx, b, s, msg.Data)
	}()

	if err != nil {
		if msg.RequestID != "" {
			s.sendError(msg.Event, msg.RequestID, err.Error())
		}
		return
	}
	if msg.RequestID != "" {
		s.sendReply(msg.Event, msg.RequestID, reply)
	}
}

// hub is the in-process channel registry every Session joins on room:join
// (§4.2 "the session joins the channel room:<id>"). Broadcast order follows
// mutation order observed by this process (§5 Ordering guarantees), not
// wall-clock order of clients.
type hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Session]struct{}

	byParticipant map[uint64]*Session
}

func newHub() *hub {
	return &hub{
		channels:      make(map[string]map[*Session]struct{}),
		byParticipant: make(map[uint64]*Session),
	}
}

func (h *hub) registerParticipant(participantID uint64, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byParticipant[participantID] = s
}

func (h *hub) unregisterParticipant(participantID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byParticipant, participantID)
}

func (h *hub) sessionForParticipant(participantID uint64) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.byParticipant[participantID]
	return s, ok
}

func (h *hub) join(channel string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[*Session]struct{})
		h.channels[channel] = set
	}
	set[s] = struct{}{}
}

func (h *hub) leave(channel string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.channels, channel)
	}
}

// leaveAll removes s from every channel it belongs to, used on disconnect.
func (h *hub) leaveAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, set := range h.channels {
		if _, ok := set[s]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.channels, ch)
			}
		}
	}
}

func (h *hub) sessionsInChannel(channel string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.channels[channel]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

func (h *hub) broadcast(channel string, msg outboundMessage) {
	h.mu.RLock()
	set := h.channels[channel]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.send(msg)
	}
}

// broadcastExcept is broadcast minus one session, used for events where the
// acting session already has the result from its own reply.
func (h *hub) broadcastExcept(channel string, except *Session, msg outboundMessage) {
	h.mu.RLock()
	set := h.channels[channel]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		if s != except {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.send(msg)
	}
}
