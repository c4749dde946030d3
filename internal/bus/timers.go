package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onairhq/studio/internal/model"
)

// timerHandlers implements §4.2's Timers class. Elapsed time while running
// is never persisted tick-by-tick; it is always derived as a wall-clock
// delta since StartedAt, added to the elapsed total banked at the last
// pause (§4.2 Timers contract).
func timerHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"timer:create": handleTimerCreate,
		"timer:start":  handleTimerStart,
		"timer:pause":  handleTimerPause,
		"timer:reset":  handleTimerReset,
		"timer:delete": handleTimerDelete,
		"timer:list":   handleTimerList,
	}
}

type timerCreateRequest struct {
	Label      string `json:"label"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

type timerDTO struct {
	ID          uint64 `json:"id"`
	Label       string `json:"label"`
	DurationMs  int64  `json:"durationMs"`
	ElapsedMs   int64  `json:"elapsedMs"`
	RemainingMs *int64 `json:"remainingMs,omitempty"`
	Running     bool   `json:"running"`
}

func timerToDTO(t *model.RoomTimer) timerDTO {
	elapsed := currentElapsedMs(t)
	dto := timerDTO{ID: t.ID, Label: t.Label, DurationMs: t.DurationMs, ElapsedMs: elapsed, Running: t.Running}
	if t.DurationMs > 0 {
		remaining := t.DurationMs - elapsed
		if remaining < 0 {
			remaining = 0
		}
		dto.RemainingMs = &remaining
	}
	return dto
}

// currentElapsedMs adds the wall-clock delta since StartedAt to the banked
// ElapsedMs, if the timer is currently running.
func currentElapsedMs(t *model.RoomTimer) int64 {
	if !t.Running || t.StartedAt == nil {
		return t.ElapsedMs
	}
	return t.ElapsedMs + time.Since(*t.StartedAt).Milliseconds()
}

func handleTimerCreate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req timerCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed timer:create payload: %w", err)
	}
	if req.Label == "" {
		return nil, fmt.Errorf("bus: timer:create requires label")
	}
	t := &model.RoomTimer{
		RoomID:      s.currentRoomID(),
		Label:       req.Label,
		DurationMs:  req.DurationMs,
		CreatedByID: s.currentParticipantID(),
	}
	if err := b.st.CreateTimer(ctx, t); err != nil {
		return nil, err
	}
	b.broadcastTimer(s.currentRoomID(), "timer:created", t)
	return timerToDTO(t), nil
}

type timerIDRequest struct {
	TimerID uint64 `json:"timerId"`
}

func (b *Bus) broadcastTimer(roomID uint64, event string, t *model.RoomTimer) {
	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: event, Success: true, Data: timerToDTO(t)})
}

func handleTimerStart(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req timerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed timer:start payload: %w", err)
	}
	t, err := b.st.FindTimerByID(ctx, req.TimerID)
	if err != nil {
		return nil, err
	}
	if !t.Running {
		now := time.Now()
		t.Running = true
		t.StartedAt = &now
		if err := b.st.UpdateTimer(ctx, t); err != nil {
			return nil, err
		}
	}
	b.broadcastTimer(s.currentRoomID(), "timer:updated", t)
	return timerToDTO(t), nil
}

func handleTimerPause(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req timerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed timer:pause payload: %w", err)
	}
	t, err := b.st.FindTimerByID(ctx, req.TimerID)
	if err != nil {
		return nil, err
	}
	if t.Running {
		t.ElapsedMs = currentElapsedMs(t)
		t.Running = false
		t.StartedAt = nil
		if err := b.st.UpdateTimer(ctx, t); err != nil {
			return nil, err
		}
	}
	b.broadcastTimer(s.currentRoomID(), "timer:updated", t)
	return timerToDTO(t), nil
}

func handleTimerReset(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req timerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed timer:reset payload: %w", err)
	}
	t, err := b.st.FindTimerByID(ctx, req.TimerID)
	if err != nil {
		return nil, err
	}
	t.ElapsedMs = 0
	t.Running = false
	t.StartedAt = nil
	if err := b.st.UpdateTimer(ctx, t); err != nil {
		return nil, err
	}
	b.broadcastTimer(s.currentRoomID(), "timer:updated", t)
	return timerToDTO(t), nil
}

func handleTimerDelete(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req timerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed timer:delete payload: %w", err)
	}
	if err := b.st.DeleteTimer(ctx, req.TimerID); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "timer:deleted", Success: true, Data: map[string]any{"timerId": req.TimerID},
	})
	return map[string]any{"ok": true}, nil
}

func handleTimerList(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	timers, err := b.st.FindTimersByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	out := make([]timerDTO, 0, len(timers))
	for _, t := range timers {
		out = append(out, timerToDTO(t))
	}
	return map[string]any{"timers": out}, nil
}
