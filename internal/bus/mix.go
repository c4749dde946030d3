package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// mixHandlers implements §4.2's Mix coordinator class: thin delegates onto
// internal/mixcoordinator.Coordinator (see §4.3).
func mixHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"mix:register":      handleMixRegister,
		"mix:heartbeat":      handleMixHeartbeat,
		"mix:state-change":  handleMixStateChange,
		"mix:full-sync":     handleMixFullSync,
		"mix:add-channel":   handleMixAddChannel,
		"mix:remove-channel": handleMixRemoveChannel,
		"mix:get-state":     handleMixGetState,
		"mix:takeover":      handleMixTakeover,
		"mix:persist":       handleMixPersist,
	}
}

func mixSnapshotPayload(mix *mixcoordinator.Coordinator, roomKey string) map[string]any {
	channels, master, soloMode, lastUpdated := mix.Snapshot(roomKey)
	return map[string]any{
		"channels":    channels,
		"master":      master,
		"soloMode":    soloMode,
		"lastUpdated": lastUpdated,
	}
}

func handleMixRegister(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	roomKey := roomKeyString(s.currentRoomID())
	clientID := participantKey(s)
	isPrimary := b.mix.RegisterPrimaryClient(roomKey, clientID)
	payload := mixSnapshotPayload(b.mix, roomKey)
	payload["isPrimary"] = isPrimary
	return payload, nil
}

func handleMixHeartbeat(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	ok := b.mix.Heartbeat(roomKeyString(s.currentRoomID()), participantKey(s))
	return map[string]any{"isPrimary": ok}, nil
}

type mixStateChangeRequest struct {
	Type             types.MixChangeType `json:"type"`
	ChannelID        string              `json:"channelId,omitempty"`
	Channel          *model.ChannelMix   `json:"channel,omitempty"`
	Master           *model.MasterMix    `json:"master,omitempty"`
	RoutingChannelID string              `json:"routingChannelId,omitempty"`
	Routing          map[string]float64  `json:"routing,omitempty"`
}

func handleMixStateChange(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req mixStateChangeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed mix:state-change payload: %w", err)
	}
	roomKey := roomKeyString(s.currentRoomID())
	change := mixcoordinator.Change{
		Type:             req.Type,
		ChannelID:        req.ChannelID,
		Channel:          req.Channel,
		Master:           req.Master,
		RoutingChannelID: req.RoutingChannelID,
		Routing:          req.Routing,
	}
	if err := b.mix.ApplyStateChange(roomKey, participantKey(s), change); err != nil {
		return nil, err
	}
	payload := mixSnapshotPayload(b.mix, roomKey)
	payload["changeType"] = req.Type
	b.hub.broadcastExcept(roomChannel(s.currentRoomID()), s, outboundMessage{Event: "mix:state-changed", Success: true, Data: payload})
	return payload, nil
}

type mixFullSyncRequest struct {
	Channels map[string]model.ChannelMix `json:"channels,omitempty"`
	Master   *model.MasterMix            `json:"master,omitempty"`
	SoloMode *bool                       `json:"soloMode,omitempty"`
}

func handleMixFullSync(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req mixFullSyncRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed mix:full-sync payload: %w", err)
	}
	roomKey := roomKeyString(s.currentRoomID())
	if err := b.mix.SyncFullState(roomKey, participantKey(s), req.Channels, req.Master, req.SoloMode); err != nil {
		return nil, err
	}
	payload := mixSnapshotPayload(b.mix, roomKey)
	b.hub.broadcastExcept(roomChannel(s.currentRoomID()), s, outboundMessage{Event: "mix:full-synced", Success: true, Data: payload})
	return payload, nil
}

type mixChannelRequest struct {
	ChannelID string `json:"channelId"`
}

func handleMixAddChannel(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req mixChannelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed mix:add-channel payload: %w", err)
	}
	roomKey := roomKeyString(s.currentRoomID())
	ch := b.mix.AddChannel(roomKey, req.ChannelID)
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{Event: "mix:channel-added", Success: true, Data: ch})
	return ch, nil
}

func handleMixRemoveChannel(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	var req mixChannelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed mix:remove-channel payload: %w", err)
	}
	roomKey := roomKeyString(s.currentRoomID())
	b.mix.RemoveChannel(roomKey, req.ChannelID)
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "mix:channel-removed", Success: true, Data: map[string]any{"channelId": req.ChannelID},
	})
	return map[string]any{"ok": true}, nil
}

func handleMixGetState(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	return mixSnapshotPayload(b.mix, roomKeyString(s.currentRoomID())), nil
}

// handleMixTakeover is RegisterPrimaryClient under another name: the
// coordinator's own staleness-driven failover logic is what actually lets a
// new client win primary status, this just gives the client an explicit
// verb to request it after noticing the prior primary went stale (§4.3
// getFailoverStatus / §7 failover).
func handleMixTakeover(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	roomKey := roomKeyString(s.currentRoomID())
	status := b.mix.GetFailoverStatus(roomKey)
	if !status.NeedsFailover && status.PrimaryClientID != "" && status.PrimaryClientID != participantKey(s) {
		return nil, fmt.Errorf("bus: primary %s is still active, takeover not needed", status.PrimaryClientID)
	}
	isPrimary := b.mix.RegisterPrimaryClient(roomKey, participantKey(s))
	payload := mixSnapshotPayload(b.mix, roomKey)
	payload["isPrimary"] = isPrimary
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "mix:primary-changed", Success: true,
		Data: map[string]any{"primaryParticipantId": s.currentParticipantID()},
	})
	return payload, nil
}

func handleMixPersist(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	roomID := s.currentRoomID()
	if err := b.mix.PersistState(ctx, roomID, roomKeyString(roomID)); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}
