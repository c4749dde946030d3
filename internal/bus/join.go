package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/types"
)

func roomKeyString(roomID uint64) string { return strconv.FormatUint(roomID, 10) }

// rtpCapabilities is a static description of this system's one supported
// media profile, handed to every joiner alongside the room's live producer
// list (§4.2, §6 "Opus/48k/stereo").
type rtpCapabilities struct {
	Codecs []codecCapability `json:"codecs"`
}

type codecCapability struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	ClockRate   int    `json:"clockRate"`
	Channels    int    `json:"channels"`
	PayloadType int    `json:"payloadType"`
}

var staticRTPCapabilities = rtpCapabilities{
	Codecs: []codecCapability{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111},
	},
}

type iceServerDTO struct {
	URLs string `json:"urls"`
}

type producerDTO struct {
	ParticipantID string `json:"participantId"`
	ProducerID    string `json:"producerId"`
	Kind          string `json:"kind"`
	BusType       string `json:"busType,omitempty"`
	IsBusOutput   bool   `json:"isBusOutput,omitempty"`
}

type roomJoinRequest struct {
	RoomID         uint64 `json:"roomId"`
	DisplayName    string `json:"displayName"`
	AccessCode     string `json:"accessCode,omitempty"`
	Token          string `json:"token,omitempty"`
	TimeZoneOffset int    `json:"timeZoneOffset,omitempty"`
}

type roomJoinReply struct {
	Waiting         bool              `json:"waiting"`
	ParticipantID   uint64            `json:"participantId,omitempty"`
	RoomID          uint64            `json:"roomId,omitempty"`
	Role            types.ParticipantRole `json:"role,omitempty"`
	RTPCapabilities *rtpCapabilities  `json:"rtpCapabilities,omitempty"`
	ICEServers      []iceServerDTO    `json:"iceServers,omitempty"`
	Producers       []producerDTO     `json:"producers,omitempty"`
}

// handleRoomJoin implements §4.2's connection & join flow end to end.
func handleRoomJoin(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req roomJoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed room:join payload: %w", err)
	}
	if req.RoomID == 0 || req.DisplayName == "" {
		return nil, fmt.Errorf("bus: room:join requires roomId and displayName")
	}

	room, err := b.st.FindRoomByID(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("bus: room %d not found: %w", req.RoomID, err)
	}
	if !room.IsActive {
		return nil, fmt.Errorf("bus: room %d is not active", req.RoomID)
	}

	connected, err := b.st.CountConnectedParticipants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if connected >= room.Capacity {
		return nil, fmt.Errorf("bus: room %d is at capacity", req.RoomID)
	}

	if room.Visibility == types.RoomPublic && room.AccessCode != "" && req.AccessCode != room.AccessCode {
		return nil, fmt.Errorf("bus: invalid access code")
	}
	if room.Visibility == types.RoomPrivate && req.Token == "" {
		return nil, fmt.Errorf("bus: token required to join this room")
	}

	userID, authenticated, err := decodeToken(b.cfg.JWTSigningKey, req.Token)
	if err != nil {
		return nil, err
	}

	var userIDPtr *uint64
	if authenticated {
		userIDPtr = &userID
	}

	waits := room.WaitingRoom && (userIDPtr == nil || *userIDPtr != room.CreatedByID)
	role := model.ResolveRole(userIDPtr, room.CreatedByID, authenticated)

	now := time.Now()
	p := &model.Participant{
		RoomID:          room.ID,
		UserID:          userIDPtr,
		DisplayName:     req.DisplayName,
		Role:            role,
		IsConnected:     true,
		IsInWaitingRoom: waits,
		JoinedAt:        &now,
	}
	if err := b.st.CreateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("bus: create participant: %w", err)
	}

	s.mu.Lock()
	s.authenticated = authenticated
	s.userID = userIDPtr
	s.roomID = room.ID
	s.participantID = p.ID
	s.waiting = waits
	s.joined = true
	s.mu.Unlock()

	b.hub.join(roomChannel(room.ID), s)
	b.hub.registerParticipant(p.ID, s)
	if waits {
		b.hub.join(waitingChannel(room.ID), s)
	}
	if room.IsGreenRoom() {
		b.hub.join(ifbChannel(*room.ParentID), s)
	}

	if waits {
		b.hub.broadcastExcept(waitingChannel(room.ID), s, outboundMessage{
			Event: "waitingroom:new-participant",
			Success: true,
			Data: map[string]any{
				"participantId": p.ID,
				"displayName":   p.DisplayName,
			},
		})
		return roomJoinReply{Waiting: true}, nil
	}

	if err := b.orc.AddParticipant(roomKeyString(room.ID), strconv.FormatUint(p.ID, 10), p.DisplayName); err != nil {
		return nil, fmt.Errorf("bus: register participant with orchestrator: %w", err)
	}

	return roomJoinReply{
		Waiting:         false,
		ParticipantID:   p.ID,
		RoomID:          room.ID,
		Role:            role,
		RTPCapabilities: &staticRTPCapabilities,
		ICEServers:      iceServerDTOs(b.cfg.ICEServers),
		Producers:       producerDTOs(b.orc.GetProducersInRoom(roomKeyString(room.ID), strconv.FormatUint(p.ID, 10))),
	}, nil
}

func iceServerDTOs(urls []string) []iceServerDTO {
	out := make([]iceServerDTO, 0, len(urls))
	for _, u := range urls {
		out = append(out, iceServerDTO{URLs: u})
	}
	return out
}

func producerDTOs(infos []orchestrator.ProducerInfo) []producerDTO {
	out := make([]producerDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, producerDTO{
			ParticipantID: info.ParticipantID,
			ProducerID:    info.ProducerID,
			Kind:          info.Kind.String(),
			BusType:       info.BusType,
			IsBusOutput:   info.IsBusOutput,
		})
	}
	return out
}

// handleRoomLeave is the explicit client-initiated half of disconnect
// (§4.2 state machine: IN_ROOM -> (room:leave) -> DISCONNECTED). It shares
// teardown with the transport-close path via leaveRoom, which is idempotent
// under a race between the two (§5).
func handleRoomLeave(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	b.leaveRoom(ctx, s)
	return map[string]any{"left": true}, nil
}

// handleDisconnect is invoked exactly once per session from Session.Serve's
// deferred cleanup, covering the transport-close half of the race named in
// §5.
func (s *Session) handleDisconnect(b *Bus) {
	b.leaveRoom(context.Background(), s)
}

// leaveRoom performs the full disconnect teardown named in §4.2: unregister
// from the Mix Coordinator, close the participant in the SFU orchestrator,
// mark the Participant row disconnected, broadcast room:participant-left.
// Safe to call twice for the same session (idempotent per §5).
func (b *Bus) leaveRoom(ctx context.Context, s *Session) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return
	}
	roomID := s.roomID
	participantID := s.participantID
	waiting := s.waiting
	s.joined = false
	s.mu.Unlock()

	b.hub.leaveAll(s)
	b.hub.unregisterParticipant(participantID)
	b.mix.UnregisterClient(roomKeyString(roomID), strconv.FormatUint(participantID, 10))
	_ = b.orc.RemoveParticipant(roomKeyString(roomID), strconv.FormatUint(participantID, 10))

	p, err := b.st.FindParticipantByID(ctx, participantID)
	if err == nil {
		now := time.Now()
		p.IsConnected = false
		p.LeftAt = &now
		_ = b.st.UpdateParticipant(ctx, p)
	}

	if !waiting {
		b.hub.broadcast(roomChannel(roomID), outboundMessage{
			Event:   "room:participant-left",
			Success: true,
			Data:    map[string]any{"participantId": participantID},
		})
	}
}

// requireStaff re-reads the Participant row (never the cached role) before
// authorizing a host/moderator-gated action (§4.2 "the bus re-reads the
// Participant record when making this decision").
func requireStaff(ctx context.Context, b *Bus, s *Session) (*model.Participant, error) {
	p, err := b.st.FindParticipantByID(ctx, s.currentParticipantID())
	if err != nil {
		return nil, fmt.Errorf("bus: load participant: %w", err)
	}
	if !p.Role.IsStaff() {
		return nil, fmt.Errorf("bus: requires HOST or MODERATOR role")
	}
	return p, nil
}

func (s *Session) currentParticipantID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantID
}

func (s *Session) currentRoomID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}
