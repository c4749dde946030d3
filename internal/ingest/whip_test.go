package ingest_test

import (
	"context"
	"testing"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/ingest"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestWHIPSupervisor(t *testing.T, bc ingest.Broadcaster) (*ingest.Supervisor, store.Store) {
	t.Helper()
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)
	return ingest.New(orc, st, commons.NewNop(), ingest.Config{FFmpegPath: "/bin/true"}, bc, &fakeAlerter{}, nil, nil), st
}

func TestTransitionWHIPRejectsIllegalEdge(t *testing.T) {
	sup, st := newTestWHIPSupervisor(t, &fakeBroadcaster{})

	ctx := context.Background()
	w := &model.WHIPStream{RoomID: 1, SourceID: 1, State: types.WHIPPending}
	require.NoError(t, st.CreateWHIPStream(ctx, w))

	err := sup.TransitionWHIP(ctx, w.ID, types.WHIPConnected, "")
	require.Error(t, err)
}

func TestTransitionWHIPAllowsLegalEdgeAndBroadcasts(t *testing.T) {
	bc := &fakeBroadcaster{}
	sup, st := newTestWHIPSupervisor(t, bc)

	ctx := context.Background()
	w := &model.WHIPStream{RoomID: 1, SourceID: 1, State: types.WHIPPending}
	require.NoError(t, st.CreateWHIPStream(ctx, w))

	require.NoError(t, sup.TransitionWHIP(ctx, w.ID, types.WHIPConnecting, ""))
	require.Contains(t, bc.events, "whip:stream-updated")
}

func TestDeleteWHIPBroadcastsDeletion(t *testing.T) {
	bc := &fakeBroadcaster{}
	sup, st := newTestWHIPSupervisor(t, bc)

	ctx := context.Background()
	w := &model.WHIPStream{RoomID: 1, SourceID: 1, State: types.WHIPPending}
	require.NoError(t, st.CreateWHIPStream(ctx, w))

	require.NoError(t, sup.DeleteWHIP(ctx, w.ID))
	require.Contains(t, bc.events, "whip:stream-deleted")

	_, err := st.FindWHIPStreamByID(ctx, w.ID)
	require.Error(t, err)
}
