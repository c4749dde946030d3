package store_test

import (
	"context"
	"testing"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return store.New(db)
}

func TestRoomCRUDRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &model.Room{
		Name:        "Morning Show",
		Visibility:  types.RoomPublic,
		Capacity:    10,
		CreatedByID: 42,
		Type:        types.RoomTypeLive,
	}
	require.NoError(t, s.CreateRoom(ctx, room))
	require.NotZero(t, room.ID)

	got, err := s.FindRoomByID(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, "Morning Show", got.Name)
	require.Equal(t, types.RecordActive, got.Status)

	got.IsActive = false
	require.NoError(t, s.UpdateRoom(ctx, got))

	again, err := s.FindRoomByID(ctx, room.ID)
	require.NoError(t, err)
	require.False(t, again.IsActive)

	require.NoError(t, s.DeleteRoom(ctx, room.ID))
	_, err = s.FindRoomByID(ctx, room.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMixStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &model.Room{Name: "R", CreatedByID: 1}
	require.NoError(t, s.CreateRoom(ctx, room))

	blob := &model.MixStateBlob{
		Channels: map[string]model.ChannelMix{
			"p1": model.DefaultChannelMix("p1"),
		},
		Master:      model.DefaultMasterMix(),
		LastUpdated: 12345,
	}
	require.NoError(t, s.SaveMixState(ctx, room.ID, blob))

	restored, err := s.LoadMixState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, blob.Channels, restored.Channels)
	require.Equal(t, blob.Master, restored.Master)
	require.Equal(t, blob.LastUpdated, restored.LastUpdated)
}

func TestCountConnectedParticipants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &model.Room{Name: "R", CreatedByID: 1, Capacity: 2}
	require.NoError(t, s.CreateRoom(ctx, room))

	for i := 0; i < 3; i++ {
		p := &model.Participant{
			RoomID:      room.ID,
			DisplayName: "p",
			Role:        types.RoleParticipant,
			IsConnected: i < 2, // two connected, one not
		}
		require.NoError(t, s.CreateParticipant(ctx, p))
	}

	count, err := s.CountConnectedParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
