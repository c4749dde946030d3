package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// cueHandlers implements §4.2's Cues class.
func cueHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"cue:send":  handleCueSend,
		"cue:clear": handleCueClear,
	}
}

type cueSendRequest struct {
	TargetParticipantID *uint64        `json:"targetParticipantId,omitempty"`
	Color               types.CueColor `json:"color"`
	CustomLabel         string         `json:"customLabel,omitempty"`
}

func handleCueSend(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req cueSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed cue:send payload: %w", err)
	}
	if req.Color == "" {
		return nil, fmt.Errorf("bus: cue:send requires color")
	}

	cue := &model.RoomCue{
		RoomID:              s.currentRoomID(),
		TargetParticipantID: req.TargetParticipantID,
		Color:               req.Color,
		CustomLabel:         req.CustomLabel,
		SentByID:            s.currentParticipantID(),
	}
	if err := b.st.CreateCue(ctx, cue); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"cueId":               cue.ID,
		"color":               cue.Color,
		"customLabel":         cue.CustomLabel,
		"sentById":            cue.SentByID,
		"targetParticipantId": cue.TargetParticipantID,
	}
	if req.TargetParticipantID != nil {
		if target, ok := b.hub.sessionForParticipant(*req.TargetParticipantID); ok {
			target.send(outboundMessage{Event: "cue:received", Success: true, Data: payload})
		}
	} else {
		b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{Event: "cue:received", Success: true, Data: payload})
	}
	return map[string]any{"cueId": cue.ID}, nil
}

type cueClearRequest struct {
	CueID uint64 `json:"cueId"`
}

func handleCueClear(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req cueClearRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed cue:clear payload: %w", err)
	}
	if err := b.st.DeleteCue(ctx, req.CueID); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "cue:cleared", Success: true, Data: map[string]any{"cueId": req.CueID},
	})
	return map[string]any{"ok": true}, nil
}
