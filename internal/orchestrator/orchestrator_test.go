package orchestrator_test

import (
	"testing"

	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/stretchr/testify/require"
)

func newOrch(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(1, 0, 0, 10000, commons.NewNop())
	require.NoError(t, err)
	return o
}

func TestAddParticipantIsIdempotent(t *testing.T) {
	o := newOrch(t)
	require.NoError(t, o.AddParticipant("room-1", "p1", "Alice"))
	require.NoError(t, o.AddParticipant("room-1", "p1", "Alice"))
}

func TestCreateWebRtcTransportBothDirections(t *testing.T) {
	o := newOrch(t)
	require.NoError(t, o.AddParticipant("room-1", "p1", "Alice"))

	send, err := o.CreateWebRtcTransport("room-1", "p1", orchestrator.DirectionSend)
	require.NoError(t, err)
	require.NotEmpty(t, send.ID)

	recv, err := o.CreateWebRtcTransport("room-1", "p1", orchestrator.DirectionRecv)
	require.NoError(t, err)
	require.NotEmpty(t, recv.ID)
	require.NotEqual(t, send.ID, recv.ID)
}

func TestCreateWebRtcTransportUnknownParticipant(t *testing.T) {
	o := newOrch(t)
	o.GetOrCreateRoom("room-1")
	_, err := o.CreateWebRtcTransport("room-1", "ghost", orchestrator.DirectionSend)
	require.ErrorIs(t, err, orchestrator.ErrParticipantNotFound)
}

func TestIngestProducerSurfacesAsSourceParticipant(t *testing.T) {
	o := newOrch(t)
	o.GetOrCreateRoom("room-1")

	_, err := o.CreatePlainTransportForProducer("room-1", "src-1", 0)
	require.NoError(t, err)

	producer, err := o.CreateProducerOnPlainTransport("room-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, "source:src-1", producer.ParticipantID)

	infos := o.GetProducersInRoom("room-1", "")
	require.Len(t, infos, 1)
	require.Equal(t, "source:src-1", infos[0].ParticipantID)

	require.NoError(t, o.ClosePlainProducerTransport("room-1", "src-1"))
	require.Empty(t, o.GetProducersInRoom("room-1", ""))
}

func TestGetBusProducerNoMatchWhenNoneRegistered(t *testing.T) {
	o := newOrch(t)
	o.GetOrCreateRoom("room-1")
	_, ok := o.GetBusProducer("room-1", "PGM")
	require.False(t, ok)
}

func TestCloseRoomCollectsNoErrorsOnCleanTeardown(t *testing.T) {
	o := newOrch(t)
	require.NoError(t, o.AddParticipant("room-1", "p1", "Alice"))
	_, err := o.CreateWebRtcTransport("room-1", "p1", orchestrator.DirectionSend)
	require.NoError(t, err)
	_, err = o.CreateWebRtcTransport("room-1", "p1", orchestrator.DirectionRecv)
	require.NoError(t, err)

	errs := o.CloseRoom("room-1")
	require.Empty(t, errs)
}

func TestCloseRoomOnUnknownRoomIsNoop(t *testing.T) {
	o := newOrch(t)
	require.Empty(t, o.CloseRoom("never-existed"))
}
