package egress_test

import (
	"context"
	"testing"
	"time"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/egress"
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

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(ctx context.Context, subject, detail string) {
	f.alerts = append(f.alerts, subject)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return store.New(db)
}

func newTestSupervisor(t *testing.T, bc egress.Broadcaster, al egress.Alerter) (*egress.Supervisor, store.Store, *orchestrator.Orchestrator) {
	t.Helper()
	orc, err := orchestrator.New(1, 0, 0, 20000, commons.NewNop())
	require.NoError(t, err)
	st := newTestStore(t)
	sup := egress.New(orc, st, commons.NewNop(), egress.Config{
		FFmpegPath:         "/bin/true",
		StopGrace:          50 * time.Millisecond,
		Debounce:           30 * time.Millisecond,
		RetryDelays:        []time.Duration{10 * time.Millisecond},
		BusProducerMaxWait: 100 * time.Millisecond,
	}, bc, al)
	return sup, st, orc
}

func TestStopEncoderOnUnknownOutputIsNoop(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, &fakeBroadcaster{}, &fakeAlerter{})
	require.NoError(t, sup.StopEncoder(context.Background(), 999))
}

func TestUpdateBusLevelsPersistsRoutingWithoutRunningEncoder(t *testing.T) {
	bc := &fakeBroadcaster{}
	sup, st, _ := newTestSupervisor(t, bc, &fakeAlerter{})

	out := &model.AudioOutput{
		RoomID: 1,
		Name:   "main",
		Type:   types.OutputIcecast,
		Codec:  "libmp3lame",
	}
	require.NoError(t, st.CreateAudioOutput(context.Background(), out))

	err := sup.UpdateBusLevels(context.Background(), out.ID, 1, map[string]float64{"pgm": 1.0, "aux1": 0.3}, "host-1")
	require.NoError(t, err)
	require.Contains(t, bc.events, "output:busLevelsChanged")

	reloaded, err := st.FindAudioOutputByID(context.Background(), out.ID)
	require.NoError(t, err)
	routing, err := reloaded.BusRouting()
	require.NoError(t, err)
	require.Equal(t, 1.0, routing["pgm"])
	require.Equal(t, 0.3, routing["aux1"])
}

func TestStartEncoderFailsWhenProducerDoesNotExist(t *testing.T) {
	sup, st, orc := newTestSupervisor(t, &fakeBroadcaster{}, &fakeAlerter{})

	out := &model.AudioOutput{
		RoomID: 1,
		Name:   "rec",
		Type:   types.OutputFileRec,
		Codec:  "libmp3lame",
	}
	require.NoError(t, st.CreateAudioOutput(context.Background(), out))

	orc.GetOrCreateRoom("1")

	err := sup.StartEncoder(context.Background(), out.ID, 1, "source:does-not-exist")
	require.Error(t, err)
}
