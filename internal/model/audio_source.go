package model

import (
	"github.com/onairhq/studio/internal/model/gormbase"
	"github.com/onairhq/studio/internal/types"
)

// AudioSource is an ingest origin (§3, §9 tagged union over Type).
type AudioSource struct {
	gormbase.Audited
	gormbase.Organizational

	RoomID uint64                `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	Name   string                `json:"name" gorm:"column:name;type:varchar(100);not null"`
	Type   types.AudioSourceType `json:"type" gorm:"column:type;type:varchar(20);not null"`

	// HTTP_STREAM / FILE fields.
	URL string `json:"url,omitempty" gorm:"column:url;type:varchar(500)"`

	// SRT/RIST fields.
	Mode          types.ConnectionMode `json:"mode,omitempty" gorm:"column:mode;type:varchar(20)"`
	RemoteHost    string               `json:"remoteHost,omitempty" gorm:"column:remote_host;type:varchar(200)"`
	RemotePort    int                  `json:"remotePort,omitempty" gorm:"column:remote_port"`
	StreamID      string               `json:"streamId,omitempty" gorm:"column:stream_id;type:varchar(100)"`
	Passphrase    string               `json:"-" gorm:"column:passphrase;type:varchar(100)"`
	LatencyMs     int                  `json:"latencyMs,omitempty" gorm:"column:latency_ms"`

	// WHIP fields.
	WHIPBearerToken string `json:"-" gorm:"column:whip_bearer_token;type:varchar(200)"`

	// Runtime state.
	PlaybackState   types.PlaybackState `json:"playbackState" gorm:"column:playback_state;type:varchar(20);not null;default:IDLE"`
	ErrorMessage    string              `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`
	ListenerPort    int                 `json:"listenerPort,omitempty" gorm:"column:listener_port"`
	RemoteAddress   string              `json:"remoteAddress,omitempty" gorm:"column:remote_address_observed;type:varchar(200)"`
}

func (AudioSource) TableName() string { return "audio_sources" }

// WHIPStream is the persisted WHIP-specific state machine entity (§4.5).
type WHIPStream struct {
	gormbase.Audited
	RoomID      uint64          `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	SourceID    uint64          `json:"sourceId" gorm:"column:source_id;type:bigint;not null;index"`
	BearerToken string          `json:"-" gorm:"column:bearer_token;type:varchar(200)"`
	State       types.WHIPState `json:"state" gorm:"column:state;type:varchar(20);not null;default:PENDING"`
	ErrorMessage string         `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`
}

func (WHIPStream) TableName() string { return "whip_streams" }
