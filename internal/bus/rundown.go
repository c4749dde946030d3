package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/store"
)

// rundownHandlers implements §4.2's Rundown class.
func rundownHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"rundown:set-current": handleRundownSetCurrent,
		"rundown:get":         handleRundownGet,
	}
}

type rundownItemDTO struct {
	ID                uint64     `json:"id"`
	Position          int        `json:"position"`
	Title             string     `json:"title"`
	PlannedDurationMs int64      `json:"plannedDurationMs"`
	IsCurrent         bool       `json:"isCurrent"`
	IsCompleted       bool       `json:"isCompleted"`
	ActualStartAt     *time.Time `json:"actualStartAt,omitempty"`
	ActualEndAt       *time.Time `json:"actualEndAt,omitempty"`
}

func rundownItemToDTO(it *model.RundownItem) rundownItemDTO {
	return rundownItemDTO{
		ID: it.ID, Position: it.Position, Title: it.Title, PlannedDurationMs: it.PlannedDurationMs,
		IsCurrent: it.IsCurrent, IsCompleted: it.IsCompleted,
		ActualStartAt: it.ActualStartAt, ActualEndAt: it.ActualEndAt,
	}
}

type rundownSetCurrentRequest struct {
	RundownItemID uint64 `json:"rundownItemId"`
}

// handleRundownSetCurrent switches the current segment transactionally: the
// previously current item is marked completed, the new one is marked
// current and stamped with its actual start time (§4.2 Rundown contract).
func handleRundownSetCurrent(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req rundownSetCurrentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed rundown:set-current payload: %w", err)
	}

	rundown, err := b.st.FindRundownByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}

	var next *model.RundownItem
	err = b.st.Transaction(ctx, func(tx store.Store) error {
		now := time.Now()

		if prev, err := tx.FindCurrentRundownItem(ctx, rundown.ID); err == nil {
			prev.IsCurrent = false
			prev.IsCompleted = true
			prev.ActualEndAt = &now
			if err := tx.UpdateRundownItem(ctx, prev); err != nil {
				return err
			}
		} else if err != store.ErrNotFound {
			return err
		}

		items, err := tx.FindRundownItems(ctx, rundown.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.ID == req.RundownItemID {
				it.IsCurrent = true
				it.ActualStartAt = &now
				if err := tx.UpdateRundownItem(ctx, it); err != nil {
					return err
				}
				next = it
			}
		}
		if next == nil {
			return fmt.Errorf("bus: rundown item %d not in rundown %d", req.RundownItemID, rundown.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "rundown:current-changed", Success: true, Data: rundownItemToDTO(next),
	})
	return rundownItemToDTO(next), nil
}

func handleRundownGet(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	rundown, err := b.st.FindRundownByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	items, err := b.st.FindRundownItems(ctx, rundown.ID)
	if err != nil {
		return nil, err
	}
	out := make([]rundownItemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, rundownItemToDTO(it))
	}
	return map[string]any{"rundownId": rundown.ID, "name": rundown.Name, "items": out}, nil
}
