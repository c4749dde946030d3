package bus

import (
	"context"
	"testing"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func TestHostKickRequiresStaffRole(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	listener, listenerConn := newConnectedSession(t, b)
	defer listener.Close()
	sendEvent(t, listenerConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Listener"})
	_ = readEvent(t, listenerConn)

	sendEvent(t, listenerConn, "host:kick", "2", participantTargetRequest{ParticipantID: 999})
	reply := readEvent(t, listenerConn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "HOST or MODERATOR")
}

func TestHostKickDisconnectsTarget(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)
	token := makeToken(t, b.cfg.JWTSigningKey, room.CreatedByID)

	host, hostConn := newConnectedSession(t, b)
	defer host.Close()
	sendEvent(t, hostConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Host", Token: token})
	_ = readEvent(t, hostConn)

	guest, guestConn := newConnectedSession(t, b)
	defer guest.Close()
	sendEvent(t, guestConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Guest"})
	_ = readEvent(t, guestConn)
	guestParticipantID := guest.currentParticipantID()

	sendEvent(t, hostConn, "host:kick", "2", participantTargetRequest{ParticipantID: guestParticipantID})
	reply := readEvent(t, hostConn)
	require.True(t, reply.Success)

	kicked := readEvent(t, guestConn)
	require.Equal(t, "host:kick", kicked.Event)

	p, err := b.st.FindParticipantByID(context.Background(), guestParticipantID)
	require.NoError(t, err)
	require.False(t, p.IsConnected)
}

func TestHostAdmitPushesRoomAdmittedToWaitingParticipant(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, func(r *model.Room) { r.WaitingRoom = true })
	token := makeToken(t, b.cfg.JWTSigningKey, room.CreatedByID)

	host, hostConn := newConnectedSession(t, b)
	defer host.Close()
	sendEvent(t, hostConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Host", Token: token})
	_ = readEvent(t, hostConn)

	guest, guestConn := newConnectedSession(t, b)
	defer guest.Close()
	sendEvent(t, guestConn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Guest"})
	joinReply := readEvent(t, guestConn)
	require.True(t, joinReply.Success)
	guestParticipantID := guest.currentParticipantID()

	require.True(t, func() bool {
		guest.mu.Lock()
		defer guest.mu.Unlock()
		return guest.waiting
	}())

	sendEvent(t, hostConn, "host:admit", "2", participantTargetRequest{ParticipantID: guestParticipantID})
	admitReply := readEvent(t, hostConn)
	require.True(t, admitReply.Success)

	admitted := readEvent(t, guestConn)
	require.Equal(t, "room:admitted", admitted.Event)

	var data roomJoinReply
	remarshal(t, admitted.Data, &data)
	require.False(t, data.Waiting)
	require.Equal(t, types.RoleListener, data.Role)

	_, inWaiting := func() (struct{}, bool) {
		for _, sess := range b.hub.sessionsInChannel(waitingChannel(room.ID)) {
			if sess == guest {
				return struct{}{}, true
			}
		}
		return struct{}{}, false
	}()
	require.False(t, inWaiting)
}
