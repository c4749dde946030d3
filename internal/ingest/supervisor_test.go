package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/ingest"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) BroadcastToRoom(roomID uint64, event string, payload any) {
	f.events = append(f.events, event)
}

type fakeAlerter struct{}

func (f *fakeAlerter) Alert(ctx context.Context, subject, detail string) {}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return store.New(db)
}

func TestStopIngestOnUnknownSourceIsNoop(t *testing.T) {
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)

	sup := ingest.New(orc, st, commons.NewNop(), ingest.Config{
		FFmpegPath:        "/bin/true",
		ConnectionTimeout: 200 * time.Millisecond,
		ProgressTimeout:   200 * time.Millisecond,
		StopGrace:         50 * time.Millisecond,
	}, &fakeBroadcaster{}, &fakeAlerter{}, nil, nil)

	require.NoError(t, sup.StopIngest(context.Background(), 999))
}

func TestStartIngestFailsWithoutPortAllocatorForListenerSource(t *testing.T) {
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)
	orc.GetOrCreateRoom("1")

	src := &model.AudioSource{
		RoomID: 1,
		Name:   "booth-a",
		Type:   types.SourceSRTStream,
		Mode:   types.ModeListener,
	}
	require.NoError(t, st.CreateAudioSource(context.Background(), src))

	sup := ingest.New(orc, st, commons.NewNop(), ingest.Config{
		FFmpegPath: "/bin/true",
	}, &fakeBroadcaster{}, &fakeAlerter{}, nil, nil)

	err = sup.StartIngest(context.Background(), src.ID, 1)
	require.Error(t, err)
}

func TestStartIngestFailsForCallerSourceMissingRemoteTarget(t *testing.T) {
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)
	orc.GetOrCreateRoom("1")

	src := &model.AudioSource{
		RoomID: 1,
		Name:   "booth-b",
		Type:   types.SourceSRTStream,
		Mode:   types.ModeCaller,
	}
	require.NoError(t, st.CreateAudioSource(context.Background(), src))

	sup := ingest.New(orc, st, commons.NewNop(), ingest.Config{
		FFmpegPath: "/bin/true",
	}, &fakeBroadcaster{}, &fakeAlerter{}, nil, nil)

	err = sup.StartIngest(context.Background(), src.ID, 1)
	require.Error(t, err)
}
