package model

import (
	"time"

	"github.com/onairhq/studio/internal/model/gormbase"
	"github.com/onairhq/studio/internal/types"
)

// Room is the persisted entity backing every live/green/breakout room (§3).
// MixState is kept as an opaque JSON blob here; the mix coordinator owns its
// authoritative in-memory shape and only touches this column via
// Store.SaveMixState / LoadMixState.
type Room struct {
	gormbase.Audited
	gormbase.Organizational

	Name             string             `json:"name" gorm:"column:name;type:varchar(200);not null"`
	Visibility       types.RoomVisibility `json:"visibility" gorm:"column:visibility;type:varchar(20);not null;default:PRIVATE"`
	AccessCode       string             `json:"accessCode,omitempty" gorm:"column:access_code;type:varchar(50)"`
	InviteToken      string             `json:"inviteToken,omitempty" gorm:"column:invite_token;type:varchar(100);index"`
	IsActive         bool               `json:"isActive" gorm:"column:is_active;not null;default:true"`
	Capacity         int                `json:"capacity" gorm:"column:capacity;not null;default:50"`
	WaitingRoom      bool               `json:"waitingRoom" gorm:"column:waiting_room;not null;default:false"`
	RecordingEnabled bool               `json:"recordingEnabled" gorm:"column:recording_enabled;not null;default:false"`
	Type             types.RoomType     `json:"type" gorm:"column:type;type:varchar(20);not null;default:LIVE_ROOM"`
	ParentID         *uint64            `json:"parentId,omitempty" gorm:"column:parent_id;type:bigint;index"`
	CreatedByID      uint64             `json:"createdById" gorm:"column:created_by_id;type:bigint;not null"`

	// MixStateJSON is the raw persisted blob written by
	// mixcoordinator.Coordinator.Persist; §6 documents its shape.
	MixStateJSON []byte `json:"-" gorm:"column:mix_state;type:jsonb"`
}

func (Room) TableName() string { return "rooms" }

// IsGreenRoom reports whether this room participates in a parent's IFB
// broadcast channel (§4.2, glossary).
func (r *Room) IsGreenRoom() bool {
	return r.ParentID != nil
}

// ChannelName returns the bus channel every connected session of this room
// joins.
func (r *Room) ChannelName() string {
	return "room:" + formatID(r.ID)
}

// WaitingChannelName returns the channel waiting-room participants join in
// addition to the room channel itself.
func (r *Room) WaitingChannelName() string {
	return r.ChannelName() + ":waiting"
}

// IFBChannelName returns the channel name for a room acting as an IFB
// broadcast parent.
func (r *Room) IFBChannelName() string {
	return formatID(r.ID) + ":ifb"
}

func formatID(id uint64) string {
	// Deliberately not strconv.FormatUint inline at call sites: centralizing
	// this keeps every channel-name helper consistent if the id encoding
	// ever changes (e.g. to a public-facing slug).
	return uintToString(id)
}

// RoomTimer is a persisted countdown/count-up clock scoped to a room (§4.2).
type RoomTimer struct {
	gormbase.Audited
	RoomID      uint64     `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	Label       string     `json:"label" gorm:"column:label;type:varchar(100);not null"`
	DurationMs  int64      `json:"durationMs" gorm:"column:duration_ms"` // 0 => count-up
	ElapsedMs   int64      `json:"elapsedMs" gorm:"column:elapsed_ms;not null;default:0"`
	Running     bool       `json:"running" gorm:"column:running;not null;default:false"`
	StartedAt   *time.Time `json:"startedAt,omitempty" gorm:"column:started_at"`
	CreatedByID uint64     `json:"createdById" gorm:"column:created_by_id;type:bigint;not null"`
}

func (RoomTimer) TableName() string { return "room_timers" }
