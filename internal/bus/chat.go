package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// chatHandlers implements §4.2's Chat class.
func chatHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"chat:send":    handleChatSend,
		"chat:history": handleChatHistory,
	}
}

type chatSendRequest struct {
	Body             string                `json:"body"`
	Type             types.ChatMessageType `json:"type,omitempty"`
	ForParticipantID *uint64               `json:"forParticipantId,omitempty"`
}

// handleChatSend persists the message and routes its broadcast by type:
// PRODUCER_NOTE gets its own channel event, a set ForParticipantID narrows
// delivery to one recipient via chat:private, everything else goes to the
// whole room (§4.2 Chat contract).
func handleChatSend(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req chatSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed chat:send payload: %w", err)
	}
	if req.Body == "" {
		return nil, fmt.Errorf("bus: chat:send requires body")
	}
	if req.Type == "" {
		req.Type = types.ChatTypeChat
	}

	msg := &model.ChatMessage{
		RoomID:            s.currentRoomID(),
		FromParticipantID: s.currentParticipantID(),
		ForParticipantID:  req.ForParticipantID,
		Type:              req.Type,
		Body:              req.Body,
	}
	if err := b.st.CreateChatMessage(ctx, msg); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"messageId":         msg.ID,
		"fromParticipantId": msg.FromParticipantID,
		"forParticipantId":  msg.ForParticipantID,
		"type":              msg.Type,
		"body":              msg.Body,
	}

	switch {
	case req.ForParticipantID != nil:
		if target, ok := b.hub.sessionForParticipant(*req.ForParticipantID); ok {
			target.send(outboundMessage{Event: "chat:private", Success: true, Data: payload})
		}
	case req.Type == types.ChatTypeProducerNote:
		b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{Event: "chat:producer-note", Success: true, Data: payload})
	default:
		b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{Event: "chat:message", Success: true, Data: payload})
	}

	return map[string]any{"messageId": msg.ID}, nil
}

type chatHistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

func handleChatHistory(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req chatHistoryRequest
	_ = json.Unmarshal(data, &req)
	limit := req.Limit
	if limit <= 0 || limit > b.cfg.ChatHistoryLimit {
		limit = b.cfg.ChatHistoryLimit
	}
	history, err := b.st.FindChatHistory(ctx, s.currentRoomID(), limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": history}, nil
}
