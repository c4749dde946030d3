package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onairhq/studio/internal/model"
	"github.com/onairhq/studio/internal/types"
)

// ifbHandlers implements §4.2's IFB/Talkback class: group management plus
// the live talkback sessions that ride the TB bus producer.
func ifbHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"talkback:create-group": handleTalkbackCreateGroup,
		"talkback:update-group": handleTalkbackUpdateGroup,
		"talkback:delete-group": handleTalkbackDeleteGroup,
		"talkback:add-member":   handleTalkbackAddMember,
		"talkback:remove-member": handleTalkbackRemoveMember,
		"talkback:list-groups":  handleTalkbackListGroups,
		"ifb:start":             handleIFBStart,
		"ifb:update":            handleIFBUpdate,
		"ifb:end":               handleIFBEnd,
		"ifb:list":              handleIFBList,
	}
}

type talkbackGroupRequest struct {
	GroupID uint64 `json:"groupId,omitempty"`
	Name    string `json:"name"`
}

func handleTalkbackCreateGroup(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req talkbackGroupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed talkback:create-group payload: %w", err)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("bus: talkback:create-group requires name")
	}
	g := &model.TalkbackGroup{RoomID: s.currentRoomID(), Name: req.Name}
	if err := b.st.CreateTalkbackGroup(ctx, g); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "talkback:group-created", Success: true, Data: map[string]any{"groupId": g.ID, "name": g.Name},
	})
	return map[string]any{"groupId": g.ID}, nil
}

func handleTalkbackUpdateGroup(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req talkbackGroupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed talkback:update-group payload: %w", err)
	}
	g := &model.TalkbackGroup{Name: req.Name}
	g.ID = req.GroupID
	g.RoomID = s.currentRoomID()
	if err := b.st.UpdateTalkbackGroup(ctx, g); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "talkback:group-updated", Success: true, Data: map[string]any{"groupId": g.ID, "name": g.Name},
	})
	return map[string]any{"ok": true}, nil
}

func handleTalkbackDeleteGroup(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req talkbackGroupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed talkback:delete-group payload: %w", err)
	}
	if err := b.st.DeleteTalkbackGroup(ctx, req.GroupID); err != nil {
		return nil, err
	}
	b.hub.broadcast(roomChannel(s.currentRoomID()), outboundMessage{
		Event: "talkback:group-deleted", Success: true, Data: map[string]any{"groupId": req.GroupID},
	})
	return map[string]any{"ok": true}, nil
}

type talkbackMemberRequest struct {
	GroupID       uint64 `json:"groupId"`
	ParticipantID uint64 `json:"participantId"`
}

func handleTalkbackAddMember(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req talkbackMemberRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed talkback:add-member payload: %w", err)
	}
	m := &model.TalkbackGroupMember{GroupID: req.GroupID, ParticipantID: req.ParticipantID}
	if err := b.st.AddTalkbackMember(ctx, m); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func handleTalkbackRemoveMember(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req talkbackMemberRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed talkback:remove-member payload: %w", err)
	}
	if err := b.st.RemoveTalkbackMember(ctx, req.GroupID, req.ParticipantID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func handleTalkbackListGroups(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	groups, err := b.st.FindTalkbackGroupsByRoom(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		members, err := b.st.FindTalkbackMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ParticipantID)
		}
		out = append(out, map[string]any{"groupId": g.ID, "name": g.Name, "participantIds": ids})
	}
	return map[string]any{"groups": out}, nil
}

type ifbStartRequest struct {
	TargetType    types.TargetType `json:"targetType"`
	TargetGroupID *uint64          `json:"targetGroupId,omitempty"`
	TargetParticipantID *uint64    `json:"targetParticipantId,omitempty"`
}

// handleIFBStart looks up the TB bus producer, polling briefly since mix
// output wiring can lag a beat behind the session that requests IFB
// (§4.2 IFB contract). Absence of the producer after the bounded wait is
// reported as a warning, not an error: the talkback session record is still
// created so state survives a later producer showing up.
func handleIFBStart(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req ifbStartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed ifb:start payload: %w", err)
	}
	if req.TargetType == "" {
		req.TargetType = types.TargetAll
	}

	roomID := s.currentRoomID()
	session := &model.IFBSession{
		RoomID:              roomID,
		StartedByID:         s.currentParticipantID(),
		TargetType:          req.TargetType,
		TargetGroupID:       req.TargetGroupID,
		TargetParticipantID: req.TargetParticipantID,
		Active:              true,
	}
	if err := b.st.CreateIFBSession(ctx, session); err != nil {
		return nil, err
	}

	_, found := b.orc.WaitForBusProducer(ctx, roomKeyString(roomID), string(types.BusTB), b.cfg.IFBPollMaxRetries, b.cfg.IFBPollInterval)

	payload := map[string]any{
		"sessionId":           session.ID,
		"targetType":          session.TargetType,
		"targetGroupId":       session.TargetGroupID,
		"targetParticipantId": session.TargetParticipantID,
	}
	if ids, err := b.resolveIFBTargetParticipantIDs(ctx, session); err == nil && len(ids) > 0 {
		payload["forParticipantIds"] = ids
	}

	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: "ifb:started", Success: true, Data: payload})
	b.hub.broadcast(ifbChannel(roomID), outboundMessage{Event: "ifb:started", Success: true, Data: payload})

	if !found {
		return map[string]any{"sessionId": session.ID, "warning": "talkback bus producer not yet available"}, nil
	}
	return map[string]any{"sessionId": session.ID}, nil
}

// resolveIFBTargetParticipantIDs expands a GROUP target into its member ids
// so clients can filter without a second round trip.
func (b *Bus) resolveIFBTargetParticipantIDs(ctx context.Context, session *model.IFBSession) ([]uint64, error) {
	switch session.TargetType {
	case types.TargetParticipant:
		if session.TargetParticipantID == nil {
			return nil, nil
		}
		return []uint64{*session.TargetParticipantID}, nil
	case types.TargetGroup:
		if session.TargetGroupID == nil {
			return nil, nil
		}
		members, err := b.st.FindTalkbackMembers(ctx, *session.TargetGroupID)
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ParticipantID)
		}
		return ids, nil
	default:
		return nil, nil
	}
}

type ifbSessionIDRequest struct {
	SessionID uint64 `json:"sessionId"`
}

func handleIFBUpdate(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req ifbStartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed ifb:update payload: %w", err)
	}
	payload := map[string]any{
		"targetType":          req.TargetType,
		"targetGroupId":       req.TargetGroupID,
		"targetParticipantId": req.TargetParticipantID,
	}
	roomID := s.currentRoomID()
	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: "ifb:updated", Success: true, Data: payload})
	b.hub.broadcast(ifbChannel(roomID), outboundMessage{Event: "ifb:updated", Success: true, Data: payload})
	return map[string]any{"ok": true}, nil
}

func handleIFBEnd(ctx context.Context, b *Bus, s *Session, data json.RawMessage) (any, error) {
	if _, err := requireStaff(ctx, b, s); err != nil {
		return nil, err
	}
	var req ifbSessionIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("bus: malformed ifb:end payload: %w", err)
	}
	if err := b.st.EndIFBSession(ctx, req.SessionID); err != nil {
		return nil, err
	}
	roomID := s.currentRoomID()
	payload := map[string]any{"sessionId": req.SessionID}
	b.hub.broadcast(roomChannel(roomID), outboundMessage{Event: "ifb:ended", Success: true, Data: payload})
	b.hub.broadcast(ifbChannel(roomID), outboundMessage{Event: "ifb:ended", Success: true, Data: payload})
	return map[string]any{"ok": true}, nil
}

func handleIFBList(ctx context.Context, b *Bus, s *Session, _ json.RawMessage) (any, error) {
	sessions, err := b.st.FindActiveIFBSessions(ctx, s.currentRoomID())
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"sessionId": sess.ID, "targetType": sess.TargetType,
			"targetGroupId": sess.TargetGroupID, "targetParticipantId": sess.TargetParticipantID,
		})
	}
	return map[string]any{"sessions": out}, nil
}
