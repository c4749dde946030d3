package mixcoordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return store.New(db)
}

func TestRegisterPrimaryClientRejectsWhileAliveThenAllowsAfterTimeout(t *testing.T) {
	c := mixcoordinator.New(newTestStore(t), 50*time.Millisecond)

	require.True(t, c.RegisterPrimaryClient("room-1", "client-a"))
	require.False(t, c.RegisterPrimaryClient("room-1", "client-b"))

	time.Sleep(75 * time.Millisecond)
	require.True(t, c.RegisterPrimaryClient("room-1", "client-b"))
}

func TestApplyStateChangeRejectsNonPrimary(t *testing.T) {
	c := mixcoordinator.New(newTestStore(t), 5*time.Second)
	require.True(t, c.RegisterPrimaryClient("room-1", "client-a"))

	err := c.ApplyStateChange("room-1", "client-b", mixcoordinator.Change{
		Type:      "channel",
		ChannelID: "p1",
	})
	require.ErrorIs(t, err, mixcoordinator.ErrNotPrimary)
}

func TestApplyStateChangeChannelUpsertsDefaults(t *testing.T) {
	c := mixcoordinator.New(newTestStore(t), 5*time.Second)
	require.True(t, c.RegisterPrimaryClient("room-1", "client-a"))

	require.NoError(t, c.ApplyStateChange("room-1", "client-a", mixcoordinator.Change{
		Type:      "channel",
		ChannelID: "p1",
	}))

	channels, _, _, _ := c.Snapshot("room-1")
	require.Contains(t, channels, "p1")
	require.Equal(t, 1.0, channels["p1"].Gain)
}

func TestApplyStateChangeRoutingMerges(t *testing.T) {
	c := mixcoordinator.New(newTestStore(t), 5*time.Second)
	require.True(t, c.RegisterPrimaryClient("room-1", "client-a"))

	require.NoError(t, c.ApplyStateChange("room-1", "client-a", mixcoordinator.Change{
		Type:             "routing",
		RoutingChannelID: "p1",
		Routing:          map[string]float64{"aux1": 0.5},
	}))

	channels, _, _, _ := c.Snapshot("room-1")
	require.Equal(t, 1.0, channels["p1"].BusRouting["pgm"])
	require.Equal(t, 0.5, channels["p1"].BusRouting["aux1"])
}

func TestPersistAndRestoreRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &model.Room{Name: "R", CreatedByID: 1}
	require.NoError(t, s.CreateRoom(ctx, room))

	c := mixcoordinator.New(s, 5*time.Second)
	require.True(t, c.RegisterPrimaryClient("room-key", "client-a"))
	require.NoError(t, c.ApplyStateChange("room-key", "client-a", mixcoordinator.Change{
		Type:      "channel",
		ChannelID: "p1",
	}))

	require.NoError(t, c.PersistState(ctx, room.ID, "room-key"))

	c2 := mixcoordinator.New(s, 5*time.Second)
	require.NoError(t, c2.RestoreState(ctx, room.ID, "room-key"))

	wantChannels, wantMaster, wantSolo, wantUpdated := c.Snapshot("room-key")
	gotChannels, gotMaster, gotSolo, gotUpdated := c2.Snapshot("room-key")
	require.Equal(t, wantChannels, gotChannels)
	require.Equal(t, wantMaster, gotMaster)
	require.Equal(t, wantSolo, gotSolo)
	require.Equal(t, wantUpdated, gotUpdated)
}

func TestGetFailoverStatusNeedsFailoverWhenStaleWithChannels(t *testing.T) {
	c := mixcoordinator.New(newTestStore(t), 30*time.Millisecond)
	require.True(t, c.RegisterPrimaryClient("room-1", "client-a"))
	c.AddChannel("room-1", "p1")

	time.Sleep(50 * time.Millisecond)
	status := c.GetFailoverStatus("room-1")
	require.True(t, status.NeedsFailover)
}
