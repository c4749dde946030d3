package model

import (
	"time"

	"github.com/onairhq/studio/internal/model/gormbase"
	"github.com/onairhq/studio/internal/types"
)

// Participant is the persisted half of a room member (§3). The in-memory
// half — SFU transports/producers/consumers — lives in
// internal/orchestrator as orchestrator.participantState and is never
// persisted; Store only ever sees this struct.
type Participant struct {
	gormbase.Audited

	RoomID          uint64                `json:"roomId" gorm:"column:room_id;type:bigint;not null;index"`
	UserID          *uint64               `json:"userId,omitempty" gorm:"column:user_id;type:bigint;index"`
	DisplayName     string                `json:"displayName" gorm:"column:display_name;type:varchar(100);not null"`
	Role            types.ParticipantRole `json:"role" gorm:"column:role;type:varchar(20);not null;default:LISTENER"`
	IsConnected     bool                  `json:"isConnected" gorm:"column:is_connected;not null;default:false"`
	IsSpeaking      bool                  `json:"isSpeaking" gorm:"column:is_speaking;not null;default:false"`
	IsMuted         bool                  `json:"isMuted" gorm:"column:is_muted;not null;default:false"`
	IsInWaitingRoom bool                  `json:"isInWaitingRoom" gorm:"column:is_in_waiting_room;not null;default:false"`
	JoinedAt        *time.Time            `json:"joinedAt,omitempty" gorm:"column:joined_at"`
	LeftAt          *time.Time            `json:"leftAt,omitempty" gorm:"column:left_at"`
}

func (Participant) TableName() string { return "participants" }

// ResolveRole applies the rule from spec §4.2: HOST if the joining user
// created the room, PARTICIPANT if authenticated, otherwise LISTENER.
func ResolveRole(userID *uint64, createdByID uint64, authenticated bool) types.ParticipantRole {
	if userID != nil && *userID == createdByID {
		return types.RoleHost
	}
	if authenticated {
		return types.RoleParticipant
	}
	return types.RoleListener
}
