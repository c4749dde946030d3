// Package mixcoordinator is the Mix Coordinator collaborator (spec §4.3): it
// maintains a per-room authoritative mix snapshot with a single primary
// writer, persists it into the Room row, and restores it on demand.
//
// Grounded in the teacher's per-call state machine idiom (api/assistant-api
// internal/channel state structs guarded by a single mutex per call) here
// generalized to one mutex per room instead of one per call.
package mixcoordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
)

var (
	ErrNotPrimary  = fmt.Errorf("mixcoordinator: client is not the current primary writer")
	ErrRoomUnknown = fmt.Errorf("mixcoordinator: room not initialized")
)

// Change is one mutation accepted by applyStateChange (§4.3). Only the
// fields relevant to Type are read.
type Change struct {
	Type types.MixChangeType

	ChannelID string
	Channel   *model.ChannelMix // channel: upsert this value (defaulted if nil)

	// master: replaces the current master as a whole; fields are not merged
	// one by one, so a field left out of the client's payload arrives as its
	// zero value.
	Master *model.MasterMix

	RoutingChannelID string             // routing: target channel
	Routing          map[string]float64 // routing: merged into that channel's BusRouting

	FullChannels map[string]model.ChannelMix // full: replaces channels if non-nil
	FullMaster   *model.MasterMix            // full: replaces master if non-nil
}

// FailoverStatus is the result of getFailoverStatus (§4.3).
type FailoverStatus struct {
	PrimaryClientID  string
	NeedsFailover    bool
	IsServerFallback bool
}

type roomState struct {
	mu sync.Mutex

	channels    map[string]model.ChannelMix
	master      model.MasterMix
	soloMode    bool
	lastUpdated int64

	primaryClientID  string
	isServerFallback bool
	lastHeartbeat    time.Time
}

func newRoomState() *roomState {
	return &roomState{
		channels: make(map[string]model.ChannelMix),
		master:   model.DefaultMasterMix(),
	}
}

// Coordinator implements spec §4.3 in full. All per-room operations
// serialize on that room's mutex (§5 "Per-room mix lock").
type Coordinator struct {
	mu              sync.Mutex
	rooms           map[string]*roomState
	failoverTimeout time.Duration
	rs              store.RoomStore
}

// New constructs a Coordinator backed by the given RoomStore for
// persist/restore and using failoverTimeout as the heartbeat staleness
// window (default 5s per §8).
func New(rs store.RoomStore, failoverTimeout time.Duration) *Coordinator {
	if failoverTimeout <= 0 {
		failoverTimeout = 5 * time.Second
	}
	return &Coordinator{rooms: make(map[string]*roomState), failoverTimeout: failoverTimeout, rs: rs}
}

func (c *Coordinator) getOrInit(roomID string) *roomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[roomID]
	if !ok {
		rs = newRoomState()
		c.rooms[roomID] = rs
	}
	return rs
}

// InitRoom installs the default master block and empty channels. Idempotent
// (§4.3 initRoom).
func (c *Coordinator) InitRoom(roomID string) {
	c.getOrInit(roomID)
}

func (c *Coordinator) lookup(roomID string) (*roomState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[roomID]
	return rs, ok
}

// RegisterPrimaryClient succeeds if there is no current primary, or the
// current primary has missed the heartbeat window (§4.3, §8 uniqueness
// invariant).
func (c *Coordinator) RegisterPrimaryClient(roomID, clientID string) bool {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.primaryClientID != "" && rs.primaryClientID != clientID && time.Since(rs.lastHeartbeat) < c.failoverTimeout {
		return false
	}
	rs.primaryClientID = clientID
	rs.isServerFallback = false
	rs.lastHeartbeat = time.Now()
	return true
}

// Heartbeat refreshes the primary's liveness timestamp; rejected if clientID
// is not the current primary.
func (c *Coordinator) Heartbeat(roomID, clientID string) bool {
	rs, ok := c.lookup(roomID)
	if !ok {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.primaryClientID != clientID {
		return false
	}
	rs.lastHeartbeat = time.Now()
	rs.isServerFallback = false
	return true
}

// ApplyStateChange applies one mutation on behalf of clientID, rejected
// unless clientID is the current primary (§4.3 applyStateChange).
func (c *Coordinator) ApplyStateChange(roomID, clientID string, change Change) error {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.primaryClientID != clientID {
		return ErrNotPrimary
	}

	switch change.Type {
	case types.MixChangeChannel:
		ch, ok := rs.channels[change.ChannelID]
		if !ok {
			ch = model.DefaultChannelMix(change.ChannelID)
		}
		if change.Channel != nil {
			ch = *change.Channel
			ch.ChannelID = change.ChannelID
		}
		rs.channels[change.ChannelID] = ch

	case types.MixChangeMaster:
		if change.Master != nil {
			rs.master = *change.Master
		}

	case types.MixChangeRouting:
		ch, ok := rs.channels[change.RoutingChannelID]
		if !ok {
			ch = model.DefaultChannelMix(change.RoutingChannelID)
		}
		if ch.BusRouting == nil {
			ch.BusRouting = make(map[string]float64)
		}
		for bus, level := range change.Routing {
			ch.BusRouting[bus] = level
		}
		rs.channels[change.RoutingChannelID] = ch

	case types.MixChangeFull:
		if change.FullChannels != nil {
			rs.channels = change.FullChannels
		}
		if change.FullMaster != nil {
			rs.master = *change.FullMaster
		}

	default:
		return fmt.Errorf("mixcoordinator: unknown change type %q", change.Type)
	}

	rs.lastUpdated = time.Now().UnixMilli()
	return nil
}

// SyncFullState replaces channels/master/soloMode fields that are present,
// same authorization as ApplyStateChange (§4.3 syncFullState).
func (c *Coordinator) SyncFullState(roomID, clientID string, channels map[string]model.ChannelMix, master *model.MasterMix, soloMode *bool) error {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.primaryClientID != clientID {
		return ErrNotPrimary
	}
	if channels != nil {
		rs.channels = channels
	}
	if master != nil {
		rs.master = *master
	}
	if soloMode != nil {
		rs.soloMode = *soloMode
	}
	rs.lastUpdated = time.Now().UnixMilli()
	return nil
}

// AddChannel inserts a default channel without requiring primary — channel
// membership is driven by SFU joins/leaves, not mixer ownership (§4.3).
func (c *Coordinator) AddChannel(roomID, channelID string) model.ChannelMix {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if ch, ok := rs.channels[channelID]; ok {
		return ch
	}
	ch := model.DefaultChannelMix(channelID)
	rs.channels[channelID] = ch
	rs.lastUpdated = time.Now().UnixMilli()
	return ch
}

// RemoveChannel deletes a channel without requiring primary (§4.3).
func (c *Coordinator) RemoveChannel(roomID, channelID string) {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.channels, channelID)
	rs.lastUpdated = time.Now().UnixMilli()
}

// Snapshot returns a copy of the room's current mix state for broadcast.
func (c *Coordinator) Snapshot(roomID string) (channels map[string]model.ChannelMix, master model.MasterMix, soloMode bool, lastUpdated int64) {
	rs := c.getOrInit(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]model.ChannelMix, len(rs.channels))
	for k, v := range rs.channels {
		out[k] = v
	}
	return out, rs.master, rs.soloMode, rs.lastUpdated
}

// PersistState snapshots {channels, master, soloMode, lastUpdated} into
// Room.mixState (§4.3 persistState).
func (c *Coordinator) PersistState(ctx context.Context, roomID uint64, roomKey string) error {
	rs := c.getOrInit(roomKey)
	rs.mu.Lock()
	blob := &model.MixStateBlob{
		Channels:    copyChannels(rs.channels),
		Master:      rs.master,
		SoloMode:    rs.soloMode,
		LastUpdated: rs.lastUpdated,
	}
	rs.mu.Unlock()
	return c.rs.SaveMixState(ctx, roomID, blob)
}

// RestoreState reads Room.mixState back and repopulates in-memory state
// (§4.3 restoreState). Round-trips exactly with PersistState (§8).
func (c *Coordinator) RestoreState(ctx context.Context, roomID uint64, roomKey string) error {
	blob, err := c.rs.LoadMixState(ctx, roomID)
	if err != nil {
		return err
	}
	rs := c.getOrInit(roomKey)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.channels = copyChannels(blob.Channels)
	rs.master = blob.Master
	rs.soloMode = blob.SoloMode
	rs.lastUpdated = blob.LastUpdated
	return nil
}

func copyChannels(in map[string]model.ChannelMix) map[string]model.ChannelMix {
	out := make(map[string]model.ChannelMix, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetFailoverStatus reports whether the room's primary writer is stale
// while channels still exist (§4.3 getFailoverStatus).
func (c *Coordinator) GetFailoverStatus(roomID string) FailoverStatus {
	rs, ok := c.lookup(roomID)
	if !ok {
		return FailoverStatus{}
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	alive := rs.primaryClientID != "" && time.Since(rs.lastHeartbeat) < c.failoverTimeout
	return FailoverStatus{
		PrimaryClientID:  rs.primaryClientID,
		NeedsFailover:    !alive && len(rs.channels) > 0,
		IsServerFallback: rs.isServerFallback,
	}
}

// UnregisterClient flags the room as running on server fallback when the
// disconnecting client is the primary. The primary id is kept, so no
// failover is forced; heartbeat expiry alone unblocks takeover attempts
// (§5 ordering guarantees).
func (c *Coordinator) UnregisterClient(roomID, clientID string) {
	rs, ok := c.lookup(roomID)
	if !ok {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.primaryClientID == clientID {
		rs.isServerFallback = true
	}
}
