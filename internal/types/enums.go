// Package types holds the small value types and enums shared across the
// persisted entities and the in-memory components: room/participant/bus
// discriminants, and the tagged-union variant tags for AudioOutput and
// AudioSource (see internal/model).
package types

// RecordState mirrors the enum used across the corpus's persisted entities
// for soft lifecycle state, independent of any domain-specific status.
type RecordState string

const (
	RecordActive   RecordState = "ACTIVE"
	RecordInactive RecordState = "INACTIVE"
	RecordDeleted  RecordState = "DELETED"
)

// RoomVisibility is the Room.visibility discriminant.
type RoomVisibility string

const (
	RoomPrivate RoomVisibility = "PRIVATE"
	RoomPublic  RoomVisibility = "PUBLIC"
)

// RoomType distinguishes the hierarchy described in spec §3: a LIVE_ROOM is
// top-level, a GREEN_ROOM or BREAKOUT carries a ParentID.
type RoomType string

const (
	RoomTypeLive      RoomType = "LIVE_ROOM"
	RoomTypeGreenRoom RoomType = "GREEN_ROOM"
	RoomTypeBreakout  RoomType = "BREAKOUT"
)

// ParticipantRole gates authorization for host-only/moderator-only bus
// events (§4.2).
type ParticipantRole string

const (
	RoleHost        ParticipantRole = "HOST"
	RoleModerator   ParticipantRole = "MODERATOR"
	RoleParticipant ParticipantRole = "PARTICIPANT"
	RoleListener    ParticipantRole = "LISTENER"
)

// IsStaff reports whether the role may perform host/moderator-gated actions.
func (r ParticipantRole) IsStaff() bool {
	return r == RoleHost || r == RoleModerator
}

// BusType names a mixed output channel fed back into the SFU as a producer.
// Comparisons against this type are case-insensitive at the call sites that
// accept client-supplied strings (see orchestrator.GetBusProducer).
type BusType string

const (
	BusPGM  BusType = "PGM"
	BusTB   BusType = "TB"
	BusAux1 BusType = "AUX1"
	BusAux2 BusType = "AUX2"
	BusAux3 BusType = "AUX3"
	BusAux4 BusType = "AUX4"
)

// AudioOutputType is the AudioOutput tagged-union discriminant (§3, §9).
type AudioOutputType string

const (
	OutputIcecast  AudioOutputType = "ICECAST"
	OutputSRT      AudioOutputType = "SRT"
	OutputFileRec  AudioOutputType = "FILE_RECORDING"
)

// AudioSourceType is the AudioSource tagged-union discriminant.
type AudioSourceType string

const (
	SourceHTTPStream AudioSourceType = "HTTP_STREAM"
	SourceFile       AudioSourceType = "FILE"
	SourceTone       AudioSourceType = "TONE"
	SourceSilence    AudioSourceType = "SILENCE"
	SourceSRTStream  AudioSourceType = "SRT_STREAM"
	SourceRISTStream AudioSourceType = "RIST_STREAM"
	SourceParticipant AudioSourceType = "PARTICIPANT"
)

// ConnectionMode distinguishes SRT/RIST LISTENER vs CALLER behavior (§4.5).
type ConnectionMode string

const (
	ModeListener    ConnectionMode = "LISTENER"
	ModeCaller      ConnectionMode = "CALLER"
	ModeRendezvous  ConnectionMode = "RENDEZVOUS"
)

// PlaybackState tracks an AudioSource's runtime connection lifecycle.
type PlaybackState string

const (
	PlaybackIdle        PlaybackState = "IDLE"
	PlaybackListening   PlaybackState = "LISTENING"
	PlaybackConnecting  PlaybackState = "CONNECTING"
	PlaybackConnected   PlaybackState = "CONNECTED"
	PlaybackDisconnected PlaybackState = "DISCONNECTED"
	PlaybackError       PlaybackState = "ERROR"
)

// WHIPState is the small state machine described in §4.5 for WHIP streams.
type WHIPState string

const (
	WHIPPending      WHIPState = "PENDING"
	WHIPConnecting   WHIPState = "CONNECTING"
	WHIPConnected    WHIPState = "CONNECTED"
	WHIPDisconnected WHIPState = "DISCONNECTED"
	WHIPError        WHIPState = "ERROR"
)

// EncoderState is broadcast on output:stateChanged (§4.4, §7).
type EncoderState string

const (
	EncoderIdle       EncoderState = "idle"
	EncoderRunning    EncoderState = "running"
	EncoderRestarting EncoderState = "restarting"
	EncoderError      EncoderState = "error"
)

// CueColor is the RoomCue payload discriminant (glossary).
type CueColor string

const (
	CueOff    CueColor = "OFF"
	CueRed    CueColor = "RED"
	CueYellow CueColor = "YELLOW"
	CueGreen  CueColor = "GREEN"
	CueCustom CueColor = "CUSTOM"
)

// ChatMessageType distinguishes chat channel semantics (§4.2).
type ChatMessageType string

const (
	ChatTypeChat         ChatMessageType = "CHAT"
	ChatTypeProducerNote ChatMessageType = "PRODUCER_NOTE"
	ChatTypeSystem       ChatMessageType = "SYSTEM"
)

// RecordingState is the Recording entity's lifecycle (§4.2 Recording).
type RecordingState string

const (
	RecordingRecording RecordingState = "RECORDING"
	RecordingProcessing RecordingState = "PROCESSING"
	RecordingReady      RecordingState = "READY"
	RecordingFailed     RecordingState = "FAILED"
)

// MixChangeType is the MixState change discriminant (§4.3).
type MixChangeType string

const (
	MixChangeChannel MixChangeType = "channel"
	MixChangeMaster  MixChangeType = "master"
	MixChangeRouting MixChangeType = "routing"
	MixChangeFull    MixChangeType = "full"
)

// TargetType selects the recipient set for IFB/remote-control events.
type TargetType string

const (
	TargetAll          TargetType = "ALL"
	TargetGroup        TargetType = "GROUP"
	TargetParticipant  TargetType = "PARTICIPANT"
)
