package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// greenRoomHandlers implements §4.2's Green rooms class.
func greenRoomHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"greenroom:create":          handleGreenRoomCreate,
		"greenroom:delete":          handleGreenRoomDelete,
		"greenroom:list":            handleGreenRoomList,
		"greenroom:move-participant": handleGreenRoomMoveParticipant,
		"greenroom:update-queue":    handleGreenRoomUpdateQueue,
		"greenroom:countdown":       handleGreenRoomCountdown,
		"greenroom:get-queue":       handleGreenRoomGetQueue,
	}
}

type greenRoomCreateRequest struct {
	Name string `json:"name"`
}

func handleGreenRoomCreate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	staff, err := requireStaff(ctx, b, s)
	if err != nil {
		return nil, err
	}
	var req greenRoomCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:create payload: %w", err)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("bus: greenroom:create requires name")
	}

	parentID := s.currentRoomID()
	room := &model.Room{
		Name:        req.Name,
		Visibility:  types.RoomPrivate,
		IsActive:    true,
		Capacity:    50,
		Type:        types.RoomTypeGreenRoom,
		ParentID:    &parentID,
		CreatedByID: staff.ID,
	}
	if err := b.st.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	b.hub.broadcast(roomChannel(parentID), outboundMessage{
		Event: "greenroom:created", Success: true,
		Data: map[string]any{"roomId": room.ID, "name": room.Name, "parentId": parentID},
	})
	return map[string]any{"roomId": room.ID}, nil
}

type greenRoomIDRequest struct {
	RoomID uint64 `json:"roomId"`
}

// handleGreenRoomDelete migrates every connected participant in the green
// room back to its parent before removing the row (§4.2 Green rooms
// contract: "Delete migrates all connected participants back to the parent
// before removing the room").
func handleGreenRoomDelete(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req greenRoomIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:delete payload: %w", err)
	}

	room, err := b.st.FindRoomByID(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if room.ParentID == nil {
		return nil, fmt.Errorf("bus: room %d is not a green room", req.RoomID)
	}
	parentID := *room.ParentID

	participants, err := b.st.FindConnectedParticipants(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		p.RoomID = parentID
		if err := b.st.UpdateParticipant(ctx, p); err != nil {
			return nil, err
		}
		if sess, ok := b.hub.sessionForParticipant(p.ID); ok {
			b.hub.leave(roomChannel(req.RoomID), sess)
			b.hub.leave(ifbChannel(req.RoomID), sess)
			b.hub.join(roomChannel(parentID), sess)
			sess.mu.Lock()
			sess.roomID = parentID
			sess.mu.Unlock()
		}
	}

	if err := b.st.DeleteRoom(ctx, req.RoomID); err != nil {
		return nil, err
	}

	b.grMu.Lock()
	delete(b.grQueues, req.RoomID)
	b.grMu.Unlock()

	b.hub.broadcast(roomChannel(parentID), outboundMessage{
		Event: "greenroom:deleted", Success: true, Data: map[string]any{"roomId": req.RoomID},
	})
	return map[string]any{"ok": true}, nil
}

func handleGreenRoomList(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	children, err := b.st.FindChildRooms(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(children))
	for _, r := range children {
		out = append(out, map[string]any{"roomId": r.ID, "name": r.Name, "isActive": r.IsActive})
	}
	return map[string]any{"rooms": out}, nil
}

type greenRoomMoveRequest struct {
	ParticipantID uint64 `json:"participantId"`
	ToRoomID      uint64 `json:"toRoomId"`
}

// handleGreenRoomMoveParticipant notifies the source room, the destination
// room, and — if the two aren't already in one of each other's channel sets
// — the nearest parent shared by neither, per the "non-overlapping parent"
// clause of §4.2's Green rooms contract.
func handleGreenRoomMoveParticipant(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req greenRoomMoveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:move-participant payload: %w", err)
	}

	p, err := b.st.FindParticipantByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	fromRoomID := p.RoomID
	p.RoomID = req.ToRoomID
	if err := b.st.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}

	if sess, ok := b.hub.sessionForParticipant(req.ParticipantID); ok {
		b.hub.leave(roomChannel(fromRoomID), sess)
		b.hub.join(roomChannel(req.ToRoomID), sess)
		sess.mu.Lock()
		sess.roomID = req.ToRoomID
		sess.mu.Unlock()
	}

	payload := map[string]any{
		"participantId": req.ParticipantID,
		"fromRoomId":    fromRoomID,
		"toRoomId":      req.ToRoomID,
	}
	b.hub.broadcast(roomChannel(fromRoomID), outboundMessage{Event: "greenroom:participant-moved", Success: true, Data: payload})
	b.hub.broadcast(roomChannel(req.ToRoomID), outboundMessage{Event: "greenroom:participant-moved", Success: true, Data: payload})

	fromRoom, err := b.st.FindRoomByID(ctx, fromRoomID)
	if err == nil && fromRoom.ParentID != nil {
		toRoom, err := b.st.FindRoomByID(ctx, req.ToRoomID)
		notOverlapping := err != nil || toRoom.ParentID == nil || *toRoom.ParentID != *fromRoom.ParentID
		if notOverlapping && *fromRoom.ParentID != fromRoomID && *fromRoom.ParentID != req.ToRoomID {
			b.hub.broadcast(roomChannel(*fromRoom.ParentID), outboundMessage{Event: "greenroom:participant-moved", Success: true, Data: payload})
		}
	}
	return map[string]any{"ok": true}, nil
}

type greenRoomQueueRequest struct {
	RoomID         uint64   `json:"roomId"`
	ParticipantIDs []uint64 `json:"participantIds"`
}

func handleGreenRoomUpdateQueue(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req greenRoomQueueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:update-queue payload: %w", err)
	}
	b.grMu.Lock()
	b.grQueues[req.RoomID] = req.ParticipantIDs
	b.grMu.Unlock()

	b.hub.broadcast(roomChannel(req.RoomID), outboundMessage{
		Event: "greenroom:queue-updated", Success: true,
		Data: map[string]any{"roomId": req.RoomID, "participantIds": req.ParticipantIDs},
	})
	return map[string]any{"ok": true}, nil
}

func handleGreenRoomGetQueue(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req greenRoomIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:get-queue payload: %w", err)
	}
	b.grMu.Lock()
	queue := append([]uint64(nil), b.grQueues[req.RoomID]...)
	b.grMu.Unlock()
	return map[string]any{"roomId": req.RoomID, "participantIds": queue}, nil
}

type greenRoomCountdownRequest struct {
	RoomID     uint64 `json:"roomId"`
	DurationMs int64  `json:"durationMs"`
}

// handleGreenRoomCountdown is a one-shot broadcast announcing a countdown;
// clients own the ticking, the bus just carries the announcement and its
// start time to the sessions in the room at that moment. Nothing is stored,
// so a session that joins later does not receive the countdown.
func handleGreenRoomCountdown(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req greenRoomCountdownRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed greenroom:countdown payload: %w", err)
	}
	b.hub.broadcast(roomChannel(req.RoomID), outboundMessage{
		Event: "greenroom:countdown-started", Success: true,
		Data: map[string]any{"roomId": req.RoomID, "durationMs": req.DurationMs, "startedAt": time.Now()},
	})
	return map[string]any{"ok": true}, nil
}
