package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/onairhq/studio/internal/model"
	"gorm.io/gorm"
)

// gormStore implements Store over a gorm.DB, the way the corpus's entity
// layer (internal/entity, internal/callcontext) expects to be driven —
// one struct embedding nothing but the *gorm.DB handle, CRUD methods that
// translate gorm.ErrRecordNotFound into store.ErrNotFound.
type gormStore struct {
	db *gorm.DB
}

// New wraps an already-opened *gorm.DB (postgres in production, sqlite in
// tests) as a Store.
func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func wrapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Room ---

func (s *gormStore) CreateRoom(ctx context.Context, r *model.Room) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *gormStore) FindRoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	var r model.Room
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &r, nil
}

func (s *gormStore) FindRoomByInviteToken(ctx context.Context, token string) (*model.Room, error) {
	var r model.Room
	if err := s.db.WithContext(ctx).First(&r, "invite_token = ?", token).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &r, nil
}

func (s *gormStore) UpdateRoom(ctx context.Context, r *model.Room) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *gormStore) DeleteRoom(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.Room{}, "id = ?", id).Error
}

func (s *gormStore) FindChildRooms(ctx context.Context, parentID uint64) ([]*model.Room, error) {
	var rooms []*model.Room
	err := s.db.WithContext(ctx).Where("parent_id = ?", parentID).Find(&rooms).Error
	return rooms, err
}

func (s *gormStore) SaveMixState(ctx context.Context, roomID uint64, blob *model.MixStateBlob) error {
	raw, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Room{}).
		Where("id = ?", roomID).
		Update("mix_state", raw).Error
}

func (s *gormStore) LoadMixState(ctx context.Context, roomID uint64) (*model.MixStateBlob, error) {
	room, err := s.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(room.MixStateJSON) == 0 {
		return nil, ErrNotFound
	}
	var blob model.MixStateBlob
	if err := json.Unmarshal(room.MixStateJSON, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

// --- Participant ---

func (s *gormStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *gormStore) FindParticipantByID(ctx context.Context, id uint64) (*model.Participant, error) {
	var p model.Participant
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *gormStore) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *gormStore) CountConnectedParticipants(ctx context.Context, roomID uint64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Participant{}).
		Where("room_id = ? AND is_connected = ?", roomID, true).
		Count(&count).Error
	return int(count), err
}

func (s *gormStore) FindConnectedParticipants(ctx context.Context, roomID uint64) ([]*model.Participant, error) {
	var ps []*model.Participant
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND is_connected = ?", roomID, true).
		Find(&ps).Error
	return ps, err
}

// --- AudioOutput ---

func (s *gormStore) CreateAudioOutput(ctx context.Context, o *model.AudioOutput) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *gormStore) FindAudioOutputByID(ctx context.Context, id uint64) (*model.AudioOutput, error) {
	var o model.AudioOutput
	if err := s.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &o, nil
}

func (s *gormStore) UpdateAudioOutput(ctx context.Context, o *model.AudioOutput) error {
	return s.db.WithContext(ctx).Save(o).Error
}

func (s *gormStore) DeleteAudioOutput(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.AudioOutput{}, "id = ?", id).Error
}

func (s *gormStore) FindAudioOutputsByRoom(ctx context.Context, roomID uint64) ([]*model.AudioOutput, error) {
	var outs []*model.AudioOutput
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&outs).Error
	return outs, err
}

// --- AudioSource ---

func (s *gormStore) CreateAudioSource(ctx context.Context, a *model.AudioSource) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *gormStore) FindAudioSourceByID(ctx context.Context, id uint64) (*model.AudioSource, error) {
	var a model.AudioSource
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

func (s *gormStore) UpdateAudioSource(ctx context.Context, a *model.AudioSource) error {
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *gormStore) DeleteAudioSource(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.AudioSource{}, "id = ?", id).Error
}

func (s *gormStore) FindAudioSourcesByRoom(ctx context.Context, roomID uint64) ([]*model.AudioSource, error) {
	var srcs []*model.AudioSource
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&srcs).Error
	return srcs, err
}

// --- Cue ---

func (s *gormStore) CreateCue(ctx context.Context, c *model.RoomCue) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *gormStore) DeleteCue(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.RoomCue{}, "id = ?", id).Error
}

func (s *gormStore) FindCuesByRoom(ctx context.Context, roomID uint64) ([]*model.RoomCue, error) {
	var cues []*model.RoomCue
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&cues).Error
	return cues, err
}

// --- Rundown ---

func (s *gormStore) CreateRundown(ctx context.Context, r *model.Rundown) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *gormStore) FindRundownByRoom(ctx context.Context, roomID uint64) (*model.Rundown, error) {
	var r model.Rundown
	if err := s.db.WithContext(ctx).First(&r, "room_id = ?", roomID).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &r, nil
}

func (s *gormStore) CreateRundownItem(ctx context.Context, it *model.RundownItem) error {
	return s.db.WithContext(ctx).Create(it).Error
}

func (s *gormStore) UpdateRundownItem(ctx context.Context, it *model.RundownItem) error {
	return s.db.WithContext(ctx).Save(it).Error
}

func (s *gormStore) FindRundownItems(ctx context.Context, rundownID uint64) ([]*model.RundownItem, error) {
	var items []*model.RundownItem
	err := s.db.WithContext(ctx).
		Where("rundown_id = ?", rundownID).
		Order("position asc").
		Find(&items).Error
	return items, err
}

func (s *gormStore) FindCurrentRundownItem(ctx context.Context, rundownID uint64) (*model.RundownItem, error) {
	var it model.RundownItem
	err := s.db.WithContext(ctx).
		Where("rundown_id = ? AND is_current = ?", rundownID, true).
		First(&it).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &it, nil
}

// --- Talkback ---

func (s *gormStore) CreateTalkbackGroup(ctx context.Context, g *model.TalkbackGroup) error {
	return s.db.WithContext(ctx).Create(g).Error
}

func (s *gormStore) UpdateTalkbackGroup(ctx context.Context, g *model.TalkbackGroup) error {
	return s.db.WithContext(ctx).Save(g).Error
}

func (s *gormStore) DeleteTalkbackGroup(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.TalkbackGroup{}, "id = ?", id).Error
}

func (s *gormStore) FindTalkbackGroupsByRoom(ctx context.Context, roomID uint64) ([]*model.TalkbackGroup, error) {
	var groups []*model.TalkbackGroup
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&groups).Error
	return groups, err
}

func (s *gormStore) AddTalkbackMember(ctx context.Context, m *model.TalkbackGroupMember) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *gormStore) RemoveTalkbackMember(ctx context.Context, groupID, participantID uint64) error {
	return s.db.WithContext(ctx).
		Where("group_id = ? AND participant_id = ?", groupID, participantID).
		Delete(&model.TalkbackGroupMember{}).Error
}

func (s *gormStore) FindTalkbackMembers(ctx context.Context, groupID uint64) ([]*model.TalkbackGroupMember, error) {
	var members []*model.TalkbackGroupMember
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Find(&members).Error
	return members, err
}

// --- IFB ---

func (s *gormStore) CreateIFBSession(ctx context.Context, sess *model.IFBSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *gormStore) EndIFBSession(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Model(&model.IFBSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false}).Error
}

func (s *gormStore) FindActiveIFBSessions(ctx context.Context, roomID uint64) ([]*model.IFBSession, error) {
	var sessions []*model.IFBSession
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND active = ?", roomID, true).
		Find(&sessions).Error
	return sessions, err
}

// --- Chat ---

func (s *gormStore) CreateChatMessage(ctx context.Context, m *model.ChatMessage) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *gormStore) FindChatHistory(ctx context.Context, roomID uint64, limit int) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_date desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&msgs).Error
	return msgs, err
}

// --- Timer ---

func (s *gormStore) CreateTimer(ctx context.Context, t *model.RoomTimer) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *gormStore) UpdateTimer(ctx context.Context, t *model.RoomTimer) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *gormStore) DeleteTimer(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.RoomTimer{}, "id = ?", id).Error
}

func (s *gormStore) FindTimerByID(ctx context.Context, id uint64) (*model.RoomTimer, error) {
	var t model.RoomTimer
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &t, nil
}

func (s *gormStore) FindTimersByRoom(ctx context.Context, roomID uint64) ([]*model.RoomTimer, error) {
	var timers []*model.RoomTimer
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&timers).Error
	return timers, err
}

// --- Recording ---

func (s *gormStore) CreateRecording(ctx context.Context, r *model.Recording) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *gormStore) UpdateRecording(ctx context.Context, r *model.Recording) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *gormStore) FindRecordingsByRoom(ctx context.Context, roomID uint64) ([]*model.Recording, error) {
	var recs []*model.Recording
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_date desc").Find(&recs).Error
	return recs, err
}

// --- WHIP ---

func (s *gormStore) CreateWHIPStream(ctx context.Context, w *model.WHIPStream) error {
	return s.db.WithContext(ctx).Create(w).Error
}

func (s *gormStore) UpdateWHIPStream(ctx context.Context, w *model.WHIPStream) error {
	return s.db.WithContext(ctx).Save(w).Error
}

func (s *gormStore) FindWHIPStreamByID(ctx context.Context, id uint64) (*model.WHIPStream, error) {
	var w model.WHIPStream
	if err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &w, nil
}

func (s *gormStore) DeleteWHIPStream(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.WHIPStream{}, "id = ?", id).Error
}

// AutoMigrate creates/updates every table this store owns. Called once at
// startup, mirroring the corpus's golang-migrate-driven migrations but
// inlined here since the core ships its own schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Room{},
		&model.Participant{},
		&model.AudioOutput{},
		&model.AudioSource{},
		&model.WHIPStream{},
		&model.RoomCue{},
		&model.Rundown{},
		&model.RundownItem{},
		&model.TalkbackGroup{},
		&model.TalkbackGroupMember{},
		&model.IFBSession{},
		&model.ChatMessage{},
		&model.RoomTimer{},
		&model.Recording{},
	)
}
