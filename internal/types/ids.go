package types

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// idSeq gives NewSnowflakeID a per-process tiebreaker so two ids minted in
// the same millisecond still sort distinctly.
var idSeq uint32

// NewSnowflakeID mints a roughly time-sortable uint64 id: 42 bits of
// millisecond timestamp, 22 bits of sequence. Used for entities that want a
// bigint primary key assigned in Go rather than left to the database
// sequence, mirroring the corpus's gorm_generator.ID() BeforeCreate idiom.
func NewSnowflakeID() uint64 {
	ms := uint64(time.Now().UnixMilli()) & ((1 << 42) - 1)
	seq := uint64(atomic.AddUint32(&idSeq, 1)) & ((1 << 22) - 1)
	return ms<<22 | seq
}

// NewUUID mints a string id for entities that are referenced externally
// (session ids, client ids) where a opaque random string reads better than
// a sequential bigint.
func NewUUID() string {
	return uuid.New().String()
}
