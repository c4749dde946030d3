package model

import (
	"time"

	"github.com/onairhq/studio/internal/model/gormbase"
	"github.com/onairhq/studio/internal/types"
)

// RoomCue is a colored signal sent by the host to one or all participants
// (glossary, §4.2 Cues).
type RoomCue struct {
	gormbase.Audited
	RoomID          uint64         `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	TargetParticipantID *uint64    `json:"targetParticipantId,omitempty" gorm:"column:target_participant_id;type:bigint"`
	Color           types.CueColor `json:"color" gorm:"column:color;type:varchar(20);not null"`
	CustomLabel     string         `json:"customLabel,omitempty" gorm:"column:custom_label;type:varchar(100)"`
	SentByID        uint64         `json:"sentById" gorm:"column:sent_by_id;type:bigint;not null"`
}

func (RoomCue) TableName() string { return "room_cues" }

// Rundown is an ordered list of show segments (glossary).
type Rundown struct {
	gormbase.Audited
	RoomID uint64 `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	Name   string `json:"name" gorm:"column:name;type:varchar(200);not null"`
}

func (Rundown) TableName() string { return "rundowns" }

// RundownItem is one segment of a Rundown; at most one per Rundown carries
// IsCurrent=true (§4.2 Rundown).
type RundownItem struct {
	gormbase.Audited
	RundownID        uint64     `json:"rundownId" gorm:"column:rundown_id;type:bigint;not null;index"`
	Position         int        `json:"position" gorm:"column:position;not null"`
	Title            string     `json:"title" gorm:"column:title;type:varchar(200);not null"`
	PlannedDurationMs int64     `json:"plannedDurationMs" gorm:"column:planned_duration_ms;not null;default:0"`
	IsCurrent        bool       `json:"isCurrent" gorm:"column:is_current;not null;default:false"`
	IsCompleted      bool       `json:"isCompleted" gorm:"column:is_completed;not null;default:false"`
	ActualStartAt    *time.Time `json:"actualStartAt,omitempty" gorm:"column:actual_start_at"`
	ActualEndAt      *time.Time `json:"actualEndAt,omitempty" gorm:"column:actual_end_at"`
}

func (RundownItem) TableName() string { return "rundown_items" }

// TalkbackGroup is a named subset of participants reachable by a single IFB
// session (§4.2 IFB/Talkback).
type TalkbackGroup struct {
	gormbase.Audited
	RoomID uint64 `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	Name   string `json:"name" gorm:"column:name;type:varchar(100);not null"`
}

func (TalkbackGroup) TableName() string { return "talkback_groups" }

// TalkbackGroupMember links a Participant into a TalkbackGroup.
type TalkbackGroupMember struct {
	gormbase.Audited
	GroupID       uint64 `json:"groupId" gorm:"column:group_id;type:bigint;not null;index"`
	ParticipantID uint64 `json:"participantId" gorm:"column:participant_id;type:bigint;not null;index"`
}

func (TalkbackGroupMember) TableName() string { return "talkback_group_members" }

// IFBSession records a live talkback session so state survives a
// mid-session bus reconnect (§4.2 IFB).
type IFBSession struct {
	gormbase.Audited
	RoomID       uint64          `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	StartedByID  uint64          `json:"startedById" gorm:"column:started_by_id;type:bigint;not null"`
	TargetType   types.TargetType `json:"targetType" gorm:"column:target_type;type:varchar(20);not null"`
	TargetGroupID *uint64        `json:"targetGroupId,omitempty" gorm:"column:target_group_id;type:bigint"`
	TargetParticipantID *uint64  `json:"targetParticipantId,omitempty" gorm:"column:target_participant_id;type:bigint"`
	Active       bool            `json:"active" gorm:"column:active;not null;default:true"`
	EndedAt      *time.Time      `json:"endedAt,omitempty" gorm:"column:ended_at"`
}

func (IFBSession) TableName() string { return "ifb_sessions" }

// ChatMessage is a persisted chat/producer-note/system message (§4.2 Chat).
type ChatMessage struct {
	gormbase.Audited
	RoomID              uint64                 `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	FromParticipantID   uint64                 `json:"fromParticipantId" gorm:"column:from_participant_id;type:bigint;not null"`
	ForParticipantID    *uint64                `json:"forParticipantId,omitempty" gorm:"column:for_participant_id;type:bigint"`
	Type                types.ChatMessageType  `json:"type" gorm:"column:type;type:varchar(20);not null;default:CHAT"`
	Body                string                 `json:"body" gorm:"column:body;type:text;not null"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// Recording is the persisted result of a recording:start/stop cycle
// (§4.2 Recording).
type Recording struct {
	gormbase.Audited
	RoomID       uint64               `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	StartedByID  uint64               `json:"startedById" gorm:"column:started_by_id;type:bigint;not null"`
	State        types.RecordingState `json:"state" gorm:"column:state;type:varchar(20);not null;default:RECORDING"`
	FilePath     string               `json:"filePath,omitempty" gorm:"column:file_path;type:varchar(500)"`
	DurationMs   int64                `json:"durationMs" gorm:"column:duration_ms;not null;default:0"`
	StartedAt    time.Time            `json:"startedAt" gorm:"column:started_at;not null"`
	EndedAt      *time.Time           `json:"endedAt,omitempty" gorm:"column:ended_at"`
}

func (Recording) TableName() string { return "recordings" }
