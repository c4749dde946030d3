package ingest

import (
	"context"
	"fmt"

	"github.com/onairhq/studio/internal/types"
)

// whipTransitions enumerates the legal edges of the small WHIP state
// machine named in §4.5: PENDING → CONNECTING → CONNECTED → DISCONNECTED,
// with ERROR reachable from any non-terminal state.
var whipTransitions = map[types.WHIPState][]types.WHIPState{
	types.WHIPPending:      {types.WHIPConnecting, types.WHIPError},
	types.WHIPConnecting:   {types.WHIPConnected, types.WHIPError, types.WHIPDisconnected},
	types.WHIPConnected:    {types.WHIPDisconnected, types.WHIPError},
	types.WHIPDisconnected: {},
	types.WHIPError:        {},
}

func canTransitionWHIP(from, to types.WHIPState) bool {
	for _, allowed := range whipTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionWHIP moves a WHIPStream row to a new state if the edge is legal,
// persists it, and broadcasts whip:stream-updated (§4.5 "broadcast via
// whip:stream-updated and whip:stream-deleted").
func (s *Supervisor) TransitionWHIP(ctx context.Context, whipID uint64, to types.WHIPState, errMsg string) error {
	w, err := s.st.FindWHIPStreamByID(ctx, whipID)
	if err != nil {
		return fmt.Errorf("ingest: load whip stream %d: %w", whipID, err)
	}
	if !canTransitionWHIP(w.State, to) {
		return fmt.Errorf("ingest: illegal WHIP transition %s -> %s", w.State, to)
	}
	w.State = to
	w.ErrorMessage = errMsg
	if err := s.st.UpdateWHIPStream(ctx, w); err != nil {
		return err
	}
	if s.bc != nil {
		s.bc.BroadcastToRoom(w.RoomID, "whip:stream-updated", map[string]any{
			"whipId":       w.ID,
			"sourceId":     w.SourceID,
			"state":        w.State,
			"errorMessage": w.ErrorMessage,
		})
	}
	return nil
}

// DeleteWHIP removes the WHIP stream row and broadcasts whip:stream-deleted.
func (s *Supervisor) DeleteWHIP(ctx context.Context, whipID uint64) error {
	w, err := s.st.FindWHIPStreamByID(ctx, whipID)
	if err != nil {
		return err
	}
	if err := s.st.DeleteWHIPStream(ctx, whipID); err != nil {
		return err
	}
	if s.bc != nil {
		s.bc.BroadcastToRoom(w.RoomID, "whip:stream-deleted", map[string]any{"whipId": whipID})
	}
	return nil
}

// StartWHIPIngest binds a WHIPStream to its AudioSource's ingest flow:
// transitions PENDING → CONNECTING, then drives the same plain-transport +
// watchdog machinery as SRT/RIST, since WHIP's difference is purely in its
// HTTP-verb-driven admission state machine (§4.5), not in its RTP path.
func (s *Supervisor) StartWHIPIngest(ctx context.Context, whipID, sourceID, roomID uint64) error {
	if err := s.TransitionWHIP(ctx, whipID, types.WHIPConnecting, ""); err != nil {
		return err
	}
	if err := s.StartIngest(ctx, sourceID, roomID); err != nil {
		_ = s.TransitionWHIP(ctx, whipID, types.WHIPError, err.Error())
		return err
	}
	return nil
}
