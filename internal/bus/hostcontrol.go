package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// hostControlHandlers implements §4.2's Host control class. Every handler
// here requires HOST/MODERATOR, re-checked against the Participant row
// rather than any cached session state.
func hostControlHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"host:kick":        handleHostKick,
		"host:close-room":  handleHostCloseRoom,
		"host:admit":       handleHostAdmit,
		"host:reject":      handleHostReject,
	}
}

type participantTargetRequest struct {
	ParticipantID uint64 `json:"participantId"`
}

func handleHostKick(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req participantTargetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed host:kick payload: %w", err)
	}

	roomID := s.currentRoomID()
	p, err := b.st.FindParticipantByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	_ = b.orc.RemoveParticipant(roomKeyString(roomID), strconv.FormatUint(req.ParticipantID, 10))
	now := time.Now()
	p.IsConnected = false
	p.LeftAt = &now
	_ = b.st.UpdateParticipant(ctx, p)

	if target, ok := b.hub.sessionForParticipant(req.ParticipantID); ok {
		target.sendReply("host:kick", "", map[string]any{"kicked": true})
		target.Close()
	}
	b.hub.broadcast(roomChannel(roomID), outboundMessage{
		Event: "room:participant-left", Success: true,
		Data: map[string]any{"participantId": req.ParticipantID},
	})
	return map[string]any{"ok": true}, nil
}

func handleHostCloseRoom(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	roomID := s.currentRoomID()

	room, err := b.st.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.IsActive = false
	if err := b.st.UpdateRoom(ctx, room); err != nil {
		return nil, err
	}

	// Room-close errors are collected, not propagated (§7) — closeRoom's
	// job is to finish the teardown, not report partial failure to the
	// client that asked for it.
	_ = b.orc.CloseRoom(roomKeyString(roomID))

	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: "room:closed", Success: true})
	for _, target := range b.hub.sessionsInChannel(roomChannel(roomID)) {
		target.Close()
	}
	return map[string]any{"ok": true}, nil
}

// handleHostAdmit pulls a waiting participant into the SFU and pushes them
// the same join payload a non-waiting joiner would have received (§4.2
// "sends them the RTP capabilities, ICE config, and existing producers").
func handleHostAdmit(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req participantTargetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed host:admit payload: %w", err)
	}

	roomID := s.currentRoomID()
	p, err := b.st.FindParticipantByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	p.IsInWaitingRoom = false
	if err := b.st.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}

	if err := b.orc.AddParticipant(roomKeyString(roomID), strconv.FormatUint(p.ID, 10), p.DisplayName); err != nil {
		return nil, err
	}

	target, ok := b.hub.sessionForParticipant(req.ParticipantID)
	if ok {
		target.mu.Lock()
		target.waiting = false
		target.mu.Unlock()
		b.hub.leave(waitingChannel(roomID), target)
		target.send(outboundMessage{
			Event: "room:admitted", Success: true,
			Data: roomJoinReply{
				Waiting:         false,
				ParticipantID:   p.ID,
				RoomID:          roomID,
				Role:            p.Role,
				RTPCapabilities: &staticRTPCapabilities,
				ICEServers:      iceServerDTOs(b.cfg.ICEServers),
				Producers:       producerDTOs(b.orc.GetProducersInRoom(roomKeyString(roomID), strconv.FormatUint(p.ID, 10))),
			},
		})
	}
	return map[string]any{"ok": true}, nil
}

func handleHostReject(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req participantTargetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed host:reject payload: %w", err)
	}

	p, err := b.st.FindParticipantByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p.IsConnected = false
	p.LeftAt = &now
	if err := b.st.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}

	if target, ok := b.hub.sessionForParticipant(req.ParticipantID); ok {
		target.send(outboundMessage{Event: "room:rejected", Success: true})
		target.Close()
	}
	return map[string]any{"ok": true}, nil
}
