package bus

import (
	"testing"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func TestMixRegisterGrantsPrimaryToFirstClient(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	s, conn := newConnectedSession(t, b)
	defer s.Close()
	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Mixer"})
	_ = readEvent(t, conn)

	sendEvent(t, conn, "mix:register", "2", nil)
	reply := readEvent(t, conn)
	require.True(t, reply.Success)

	var data map[string]any
	remarshal(t, reply.Data, &data)
	require.Equal(t, true, data["isPrimary"])
}

func TestMixStateChangeRejectedForNonPrimary(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	primary, primaryConn := newConnectedSession(t, b)
	defer primary.Close()
	sendEvent(t, primaryConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Primary"})
	_ = readEvent(t, primaryConn)
	sendEvent(t, primaryConn, "mix:register", "2", nil)
	_ = readEvent(t, primaryConn)

	other, otherConn := newConnectedSession(t, b)
	defer other.Close()
	sendEvent(t, otherConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Other"})
	_ = readEvent(t, otherConn)

	sendEvent(t, otherConn, "mix:state-change", "2", mixStateChangeRequest{
		Type:      types.MixChangeChannel,
		ChannelID: "ch1",
	})
	reply := readEvent(t, otherConn)
	require.False(t, reply.Success)
}

func TestMixStateChangeBroadcastsToOtherSessionsNotSender(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	primary, primaryConn := newConnectedSession(t, b)
	defer primary.Close()
	sendEvent(t, primaryConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Primary"})
	_ = readEvent(t, primaryConn)
	sendEvent(t, primaryConn, "mix:register", "2", nil)
	_ = readEvent(t, primaryConn)

	listener, listenerConn := newConnectedSession(t, b)
	defer listener.Close()
	sendEvent(t, listenerConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Listener"})
	_ = readEvent(t, listenerConn)

	sendEvent(t, primaryConn, "mix:state-change", "3", mixStateChangeRequest{
		Type:      types.MixChangeChannel,
		ChannelID: "ch1",
		Channel:   &model.ChannelMix{ChannelID: "ch1", Gain: 0.5},
	})

	reply := readEvent(t, primaryConn)
	require.True(t, reply.Success)

	broadcast := readEvent(t, listenerConn)
	require.Equal(t, "mix:state-changed", broadcast.Event)
	require.Empty(t, broadcast.RequestID)
}
