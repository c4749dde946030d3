package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
	"github.com/stretchr/testify/require"
)

func makeToken(t *testing.T, signingKey string, userID uint64) string {
	t.Helper()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return tok
}

func createRoom(t *testing.T, b *Bus, mutate func(*model.Room)) *model.Room {
	t.Helper()
	room := &model.Room{
		Name:        "test room",
		Visibility:  types.RoomPublic,
		IsActive:    true,
		Capacity:    50,
		Type:        types.RoomTypeLive,
		CreatedByID: 1,
	}
	if mutate != nil {
		mutate(room)
	}
	require.NoError(t, b.st.CreateRoom(context.Background(), room))
	return room
}

func TestRoomJoinAssignsHostRoleToCreator(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)
	token := makeToken(t, b.cfg.JWTSigningKey, room.CreatedByID)

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Host", Token: token})
	reply := readEvent(t, conn)
	require.True(t, reply.Success)

	var data roomJoinReply
	remarshal(t, reply.Data, &data)
	require.Equal(t, types.RoleHost, data.Role)
	require.Equal(t, room.ID, s.currentRoomID())
}

func TestRoomJoinCapacityRejected(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, func(r *model.Room) { r.Capacity = 1 })

	existing := &model.Participant{RoomID: room.ID, DisplayName: "Already here", IsConnected: true}
	require.NoError(t, b.st.CreateParticipant(context.Background(), existing))

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Latecomer"})
	reply := readEvent(t, conn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "capacity")
}

func TestRoomJoinPrivateRoomRequiresToken(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, func(r *model.Room) { r.Visibility = types.RoomPrivate })

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Nobody"})
	reply := readEvent(t, conn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "token required")
}

func TestRoomJoinPublicRoomWithAccessCode(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, func(r *model.Room) { r.AccessCode = "secret" })

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Guest", AccessCode: "wrong"})
	reply := readEvent(t, conn)
	require.False(t, reply.Success)
	require.Contains(t, reply.Error, "access code")
}

func TestRoomJoinWaitingRoomPlacement(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, func(r *model.Room) { r.WaitingRoom = true })

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Waiter"})
	reply := readEvent(t, conn)
	require.True(t, reply.Success)

	var data roomJoinReply
	remarshal(t, reply.Data, &data)
	require.True(t, data.Waiting)

	s.mu.Lock()
	waiting := s.waiting
	s.mu.Unlock()
	require.True(t, waiting)
}

func TestRoomJoinGreenRoomJoinsParentIFBChannel(t *testing.T) {
	b := newTestBus(t)
	parent := createRoom(t, b, nil)
	green := createRoom(t, b, func(r *model.Room) {
		r.Type = types.RoomTypeGreenRoom
		r.ParentID = &parent.ID
	})

	s, conn := newConnectedSession(t, b)
	defer s.Close()

	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: green.ID, DisplayName: "Guest"})
	reply := readEvent(t, conn)
	require.True(t, reply.Success)

	sessions := b.hub.sessionsInChannel(ifbChannel(parent.ID))
	require.Len(t, sessions, 1)
	require.Same(t, s, sessions[0])
}

func TestDisconnectTeardownIsIdempotent(t *testing.T) {
	b := newTestBus(t)
	room := createRoom(t, b, nil)

	s, conn := newConnectedSession(t, b)
	sendEvent(t, conn, "room:join", "1", roomJoinRequest{RoomID: room.ID, DisplayName: "Alice"})
	_ = readEvent(t, conn)

	pid := s.currentParticipantID()
	require.NotZero(t, pid)

	b.leaveRoom(context.Background(), s)
	b.leaveRoom(context.Background(), s)

	_, ok := b.hub.sessionForParticipant(pid)
	require.False(t, ok)

	p, err := b.st.FindParticipantByID(context.Background(), pid)
	require.NoError(t, err)
	require.False(t, p.IsConnected)
}

func remarshal(t *testing.T, in any, out any) {
	t.Helper()
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
