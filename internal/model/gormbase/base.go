// Package gormbase provides the embeddable base structs every persisted
// entity in internal/model composes, the way the corpus's
// gorm_model.Audited / gorm_model.Organizational pair is embedded into every
// entity (see log.endpoint.go, callcontext/types.go in the teacher repo).
package gormbase

import (
	"time"

	"github.com/onairhq/studio/internal/types"
	"gorm.io/gorm"
)

// Audited carries the identity and soft lifecycle fields every entity needs:
// a pre-assigned snowflake id (so callers can reference a row before the
// insert commits), creation/update timestamps, and a RecordState.
type Audited struct {
	ID          uint64            `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	Status      types.RecordState `json:"status" gorm:"type:varchar(20);not null;default:ACTIVE"`
	CreatedDate time.Time         `json:"createdDate" gorm:"type:timestamp;not null;default:now();<-:create"`
	UpdatedDate time.Time         `json:"updatedDate" gorm:"type:timestamp"`
}

// BeforeCreate assigns an id and creation timestamp when the caller hasn't
// already set them, matching the corpus's CallContext.BeforeCreate hook.
func (a *Audited) BeforeCreate(_ *gorm.DB) error {
	if a.ID == 0 {
		a.ID = types.NewSnowflakeID()
	}
	if a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now()
	}
	if a.Status == "" {
		a.Status = types.RecordActive
	}
	return nil
}

// BeforeUpdate stamps UpdatedDate on every save.
func (a *Audited) BeforeUpdate(_ *gorm.DB) error {
	a.UpdatedDate = time.Now()
	return nil
}

// Organizational links an entity to the organization that owns it, for
// tenant-scoped queries. The core never interprets this value beyond
// filtering; auth/visibility decisions belong to the auth collaborator.
type Organizational struct {
	OrganizationID uint64 `json:"organizationId" gorm:"column:organization_id;type:bigint;not null;default:0;index"`
}
