package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownEventRepliesWithError(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	s, conn := newConnectedSession(t, b)
	defer s.Close()
	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Alice"})
	_ = readEvent(t, conn)

	sendEvent(t, conn, "no:such-event", "2", nil)
	reply := readEvent(t, conn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "unknown event")
}

func TestDispatchRejectsEventsBeforeJoin(t *testing.T) {
	b := newTestBus(t)
	_, conn := newConnectedSession(t, b)

	sendEvent(t, conn, "chat:history", "1", nil)
	reply := readEvent(t, conn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "has not joined")
}

func TestHubBroadcastExceptSkipsSender(t *testing.T) {
	b := newTestBus(t)
	s1, conn1 := newConnectedSession(t, b)
	defer s1.Close()
	s2, conn2 := newConnectedSession(t, b)
	defer s2.Close()

	b.hub.join("room:1", s1)
	b.hub.join("room:1", s2)

	b.hub.broadcastExcept("room:1", s1, outboundMessage{Event: "ping", Success: true})

	msg := readEvent(t, conn2)
	require.Equal(t, "ping", msg.Event)

	require.NoError(t, conn1.SetReadDeadline(shortDeadline()))
	_, _, err := conn1.ReadMessage()
	require.Error(t, err)
}

func TestHubPrivateDeliveryByParticipantID(t *testing.T) {
	b := newTestBus(t)
	s1, conn1 := newConnectedSession(t, b)
	defer s1.Close()
	s2, _ := newConnectedSession(t, b)
	defer s2.Close()

	b.hub.registerParticipant(42, s1)
	b.hub.registerParticipant(43, s2)

	target, ok := b.hub.sessionForParticipant(42)
	require.True(t, ok)
	target.send(outboundMessage{Event: "direct", Success: true})

	msg := readEvent(t, conn1)
	require.Equal(t, "direct", msg.Event)
}
