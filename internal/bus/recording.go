package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// recordingHandlers implements §4.2's Recording class.
func recordingHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"recording:start": handleRecordingStart,
		"recording:stop":  handleRecordingStop,
		"recording:list":  handleRecordingList,
	}
}

type recordingDTO struct {
	ID         uint64               `json:"id"`
	State      types.RecordingState `json:"state"`
	FilePath   string               `json:"filePath,omitempty"`
	DurationMs int64                `json:"durationMs"`
	StartedAt  time.Time            `json:"startedAt"`
	EndedAt    *time.Time           `json:"endedAt,omitempty"`
}

func recordingToDTO(r *model.Recording) recordingDTO {
	return recordingDTO{ID: r.ID, State: r.State, FilePath: r.FilePath, DurationMs: r.DurationMs, StartedAt: r.StartedAt, EndedAt: r.EndedAt}
}

func handleRecordingStart(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	r := &model.Recording{
		RoomID:      s.currentRoomID(),
		StartedByID: s.currentParticipantID(),
		State:       types.RecordingRecording,
		StartedAt:   time.Now(),
	}
	if err := b.st.CreateRecording(ctx, r); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "recording:started", Success: true, Data: recordingToDTO(r),
	})
	return recordingToDTO(r), nil
}

type recordingIDRequest struct {
	RecordingID uint64 `json:"recordingId"`
}

// handleRecordingStop transitions RECORDING to PROCESSING; a downstream
// process (outside the bus) is responsible for flipping PROCESSING to READY
// or FAILED once the file is finalized (§4.2 Recording — muxing is out of
// this event's scope).
func handleRecordingStop(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req recordingIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed recording:stop payload: %w", err)
	}

	recordings, err := b.st.FindRecordingsByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	var r *model.Recording
	for _, candidate := range recordings {
		if candidate.ID == req.RecordingID {
			r = candidate
			break
		}
	}
	if r == nil {
		return nil, fmt.Errorf("bus: recording %d not found in room", req.RecordingID)
	}
	if r.State != types.RecordingRecording {
		return nil, fmt.Errorf("bus: recording %d is not recording", req.RecordingID)
	}

	now := time.Now()
	r.State = types.RecordingProcessing
	r.EndedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
	if err := b.st.UpdateRecording(ctx, r); err != nil {
		return nil, err
	}

	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "recording:stopped", Success: true, Data: recordingToDTO(r),
	})
	return recordingToDTO(r), nil
}

func handleRecordingList(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	recordings, err := b.st.FindRecordingsByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	out := make([]recordingDTO, 0, len(recordings))
	for _, r := range recordings {
		out = append(out, recordingToDTO(r))
	}
	return map[string]any{"recordings": out}, nil
}
