package model

import (
	"encoding/json"
	"time"

	"github.com/onairhq/studio/internal/model/gormbase"
	"github.com/onairhq/studio/internal/types"
)

// AudioOutput is an egress destination (§3, §9: a tagged union over Type —
// only the fields relevant to the tagged variant are populated/consulted;
// the rest stay zero-valued).
type AudioOutput struct {
	gormbase.Audited
	gormbase.Organizational

	RoomID uint64                `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	Name   string                `json:"name" gorm:"column:name;type:varchar(100);not null"`
	Type   types.AudioOutputType `json:"type" gorm:"column:type;type:varchar(20);not null"`

	Codec      string `json:"codec" gorm:"column:codec;type:varchar(20);not null;default:libmp3lame"`
	BitrateKbps int    `json:"bitrateKbps" gorm:"column:bitrate_kbps;not null;default:128"`
	SampleRate  int    `json:"sampleRate" gorm:"column:sample_rate;not null;default:48000"`
	Channels    int    `json:"channels" gorm:"column:channels;not null;default:2"`

	// BusRouting maps bus name -> linear gain in [0,1]; more than one
	// non-zero entry triggers startMultiBusEncoder (§4.4).
	BusRoutingJSON []byte `json:"-" gorm:"column:bus_routing;type:jsonb"`

	// Icecast fields.
	IcecastHost        string `json:"icecastHost,omitempty" gorm:"column:icecast_host;type:varchar(200)"`
	IcecastPort        int    `json:"icecastPort,omitempty" gorm:"column:icecast_port"`
	IcecastMount       string `json:"icecastMount,omitempty" gorm:"column:icecast_mount;type:varchar(100)"`
	IcecastUser        string `json:"icecastUser,omitempty" gorm:"column:icecast_user;type:varchar(100)"`
	IcecastPassword    string `json:"-" gorm:"column:icecast_password;type:varchar(100)"`
	IcecastName        string `json:"icecastName,omitempty" gorm:"column:icecast_name;type:varchar(200)"`
	IcecastDescription string `json:"icecastDescription,omitempty" gorm:"column:icecast_description;type:varchar(500)"`
	IcecastGenre       string `json:"icecastGenre,omitempty" gorm:"column:icecast_genre;type:varchar(100)"`
	IcecastURL         string `json:"icecastUrl,omitempty" gorm:"column:icecast_url;type:varchar(200)"`
	IcecastPublic      bool   `json:"icecastPublic,omitempty" gorm:"column:icecast_public"`

	// SRT fields.
	SRTHost       string `json:"srtHost,omitempty" gorm:"column:srt_host;type:varchar(200)"`
	SRTPort       int    `json:"srtPort,omitempty" gorm:"column:srt_port"`
	SRTMode       string `json:"srtMode,omitempty" gorm:"column:srt_mode;type:varchar(20)"` // caller|listener|rendezvous
	SRTStreamID   string `json:"srtStreamId,omitempty" gorm:"column:srt_stream_id;type:varchar(100)"`
	SRTPassphrase string `json:"-" gorm:"column:srt_passphrase;type:varchar(100)"`
	SRTLatencyMs  int    `json:"srtLatencyMs,omitempty" gorm:"column:srt_latency_ms"`

	// File recording fields.
	RecordingDir string `json:"recordingDir,omitempty" gorm:"column:recording_dir;type:varchar(300)"`

	// Runtime flags, all mutated by the egress supervisor via Store.UpdateAudioOutput.
	IsEnabled     bool       `json:"isEnabled" gorm:"column:is_enabled;not null;default:true"`
	IsActive      bool       `json:"isActive" gorm:"column:is_active;not null;default:false"`
	IsConnected   bool       `json:"isConnected" gorm:"column:is_connected;not null;default:false"`
	ErrorMessage  string     `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty" gorm:"column:connected_at"`
	BytesStreamed uint64     `json:"bytesStreamed" gorm:"column:bytes_streamed;not null;default:0"`
	RetryCount    int        `json:"retryCount" gorm:"column:retry_count;not null;default:0"`
}

func (AudioOutput) TableName() string { return "audio_outputs" }

// BusRouting decodes BusRoutingJSON, defaulting to an empty map.
func (o *AudioOutput) BusRouting() (map[string]float64, error) {
	if len(o.BusRoutingJSON) == 0 {
		return map[string]float64{}, nil
	}
	var routing map[string]float64
	if err := json.Unmarshal(o.BusRoutingJSON, &routing); err != nil {
		return nil, err
	}
	return routing, nil
}

// SetBusRouting encodes routing into BusRoutingJSON.
func (o *AudioOutput) SetBusRouting(routing map[string]float64) error {
	b, err := json.Marshal(routing)
	if err != nil {
		return err
	}
	o.BusRoutingJSON = b
	return nil
}
