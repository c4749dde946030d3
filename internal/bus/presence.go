package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// presenceHandlers implements §4.2's Presence class: broadcast to room;
// vad/mute are also persisted on the Participant row so a late joiner's
// roster reflects current state.
func presenceHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"vad:speaking": handleVADSpeaking,
		"mute:update":  handleMuteUpdate,
		"tally:update": handleTallyUpdate,
	}
}

type vadSpeakingRequest struct {
	Speaking bool `json:"speaking"`
}

func handleVADSpeaking(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req vadSpeakingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed vad:speaking payload: %w", err)
	}
	p, err := b.st.FindParticipantByID(ctx, s.currentParticipantID())
	if err != nil {
		return nil, err
	}
	p.IsSpeaking = req.Speaking
	if err := b.st.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}
	b.hub.broadcastExcept(roomChannel(s.currentRoomID()), s, outboundMessage{
		Event: "vad:speaking", Success: true,
		Data: map[string]any{"participantId": p.ID, "speaking": req.Speaking},
	})
	return map[string]any{"ok": true}, nil
}

type muteUpdateRequest struct {
	Muted bool `json:"muted"`
}

func handleMuteUpdate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req muteUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed mute:update payload: %w", err)
	}
	p, err := b.st.FindParticipantByID(ctx, s.currentParticipantID())
	if err != nil {
		return nil, err
	}
	p.IsMuted = req.Muted
	if err := b.st.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "mute:update", Success: true,
		Data: map[string]any{"participantId": p.ID, "muted": req.Muted},
	})
	return map[string]any{"ok": true}, nil
}

type tallyUpdateRequest struct {
	ParticipantID uint64 `json:"participantId,omitempty"`
	OnAir         bool   `json:"onAir"`
}

// handleTallyUpdate broadcasts an on-air tally light change. It is not
// persisted — a tally reflects live mix-bus routing, not a durable
// participant attribute.
func handleTallyUpdate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req tallyUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed tally:update payload: %w", err)
	}
	target := req.ParticipantID
	if target == 0 {
		target = s.currentParticipantID()
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "tally:update", Success: true,
		Data: map[string]any{"participantId": target, "onAir": req.OnAir},
	})
	return map[string]any{"ok": true}, nil
}
