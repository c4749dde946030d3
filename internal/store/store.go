// Package store defines the persistence collaborator described in spec
// §2: transactional CRUD over the entities in §3, with a transaction
// primitive the bus uses for the rundown current-item switch.
package store

import (
	"context"
	"errors"

	"github.com/onairhq/studio/internal/model"
)

// ErrNotFound is returned by every FindBy* method when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence surface the rest of the core depends on.
// Every method that can fail returns an error; the core never retries a
// Store call itself (§7: External failures are logged and surfaced, not
// retried by the caller that isn't the owning supervisor).
type Store interface {
	// Transaction runs fn with a Store bound to a single database
	// transaction; if fn returns an error the transaction rolls back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	RoomStore
	ParticipantStore
	AudioOutputStore
	AudioSourceStore
	CueStore
	RundownStore
	TalkbackStore
	IFBStore
	ChatStore
	TimerStore
	RecordingStore
	WHIPStore
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *model.Room) error
	FindRoomByID(ctx context.Context, id uint64) (*model.Room, error)
	FindRoomByInviteToken(ctx context.Context, token string) (*model.Room, error)
	UpdateRoom(ctx context.Context, r *model.Room) error
	DeleteRoom(ctx context.Context, id uint64) error
	FindChildRooms(ctx context.Context, parentID uint64) ([]*model.Room, error)

	// SaveMixState/LoadMixState persist and restore the opaque mix-state
	// blob backing mixcoordinator.Coordinator.Persist/Restore (§4.3, §6).
	SaveMixState(ctx context.Context, roomID uint64, blob *model.MixStateBlob) error
	LoadMixState(ctx context.Context, roomID uint64) (*model.MixStateBlob, error)
}

type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p *model.Participant) error
	FindParticipantByID(ctx context.Context, id uint64) (*model.Participant, error)
	UpdateParticipant(ctx context.Context, p *model.Participant) error
	CountConnectedParticipants(ctx context.Context, roomID uint64) (int, error)
	FindConnectedParticipants(ctx context.Context, roomID uint64) ([]*model.Participant, error)
}

type AudioOutputStore interface {
	CreateAudioOutput(ctx context.Context, o *model.AudioOutput) error
	FindAudioOutputByID(ctx context.Context, id uint64) (*model.AudioOutput, error)
	UpdateAudioOutput(ctx context.Context, o *model.AudioOutput) error
	DeleteAudioOutput(ctx context.Context, id uint64) error
	FindAudioOutputsByRoom(ctx context.Context, roomID uint64) ([]*model.AudioOutput, error)
}

type AudioSourceStore interface {
	CreateAudioSource(ctx context.Context, s *model.AudioSource) error
	FindAudioSourceByID(ctx context.Context, id uint64) (*model.AudioSource, error)
	UpdateAudioSource(ctx context.Context, s *model.AudioSource) error
	DeleteAudioSource(ctx context.Context, id uint64) error
	FindAudioSourcesByRoom(ctx context.Context, roomID uint64) ([]*model.AudioSource, error)
}

type CueStore interface {
	CreateCue(ctx context.Context, c *model.RoomCue) error
	DeleteCue(ctx context.Context, id uint64) error
	FindCuesByRoom(ctx context.Context, roomID uint64) ([]*model.RoomCue, error)
}

type RundownStore interface {
	CreateRundown(ctx context.Context, r *model.Rundown) error
	FindRundownByRoom(ctx context.Context, roomID uint64) (*model.Rundown, error)
	CreateRundownItem(ctx context.Context, it *model.RundownItem) error
	UpdateRundownItem(ctx context.Context, it *model.RundownItem) error
	FindRundownItems(ctx context.Context, rundownID uint64) ([]*model.RundownItem, error)
	FindCurrentRundownItem(ctx context.Context, rundownID uint64) (*model.RundownItem, error)
}

type TalkbackStore interface {
	CreateTalkbackGroup(ctx context.Context, g *model.TalkbackGroup) error
	UpdateTalkbackGroup(ctx context.Context, g *model.TalkbackGroup) error
	DeleteTalkbackGroup(ctx context.Context, id uint64) error
	FindTalkbackGroupsByRoom(ctx context.Context, roomID uint64) ([]*model.TalkbackGroup, error)
	AddTalkbackMember(ctx context.Context, m *model.TalkbackGroupMember) error
	RemoveTalkbackMember(ctx context.Context, groupID, participantID uint64) error
	FindTalkbackMembers(ctx context.Context, groupID uint64) ([]*model.TalkbackGroupMember, error)
}

type IFBStore interface {
	CreateIFBSession(ctx context.Context, s *model.IFBSession) error
	EndIFBSession(ctx context.Context, id uint64) error
	FindActiveIFBSessions(ctx context.Context, roomID uint64) ([]*model.IFBSession, error)
}

type ChatStore interface {
	CreateChatMessage(ctx context.Context, m *model.ChatMessage) error
	FindChatHistory(ctx context.Context, roomID uint64, limit int) ([]*model.ChatMessage, error)
}

type TimerStore interface {
	CreateTimer(ctx context.Context, t *model.RoomTimer) error
	UpdateTimer(ctx context.Context, t *model.RoomTimer) error
	DeleteTimer(ctx context.Context, id uint64) error
	FindTimerByID(ctx context.Context, id uint64) (*model.RoomTimer, error)
	FindTimersByRoom(ctx context.Context, roomID uint64) ([]*model.RoomTimer, error)
}

type RecordingStore interface {
	CreateRecording(ctx context.Context, r *model.Recording) error
	UpdateRecording(ctx context.Context, r *model.Recording) error
	FindRecordingsByRoom(ctx context.Context, roomID uint64) ([]*model.Recording, error)
}

type WHIPStore interface {
	CreateWHIPStream(ctx context.Context, w *model.WHIPStream) error
	UpdateWHIPStream(ctx context.Context, w *model.WHIPStream) error
	FindWHIPStreamByID(ctx context.Context, id uint64) (*model.WHIPStream, error)
	DeleteWHIPStream(ctx context.Context, id uint64) error
}
