// Package callcontext is the supplemental cross-process analogue of
// CallRegistry (spec.md §4.8): a Postgres-backed row per call that lets an
// inbound webhook create a pending claim before the media WebSocket ever
// connects, and lets exactly one MediaHandler.Run win the claim when it
// does. Adapted from the teacher's internal/callcontext/{types,store}.go,
// retargeted from the teacher's multi-tenant assistant/conversation model
// to this engine's call/provider domain.
package callcontext

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Call context status constants. Names match the teacher's exactly;
// inbound calls start Pending, outbound calls start Queued.
const (
	StatusPending   = "pending"   // inbound: created, waiting for media connection
	StatusQueued    = "queued"    // outbound: created, waiting for provider to connect media
	StatusClaimed   = "claimed"   // media connection established, MediaHandler owns the call
	StatusCompleted = "completed" // call ended normally
	StatusFailed    = "failed"    // call setup or handler execution failed
)

// CallContext bridges the HTTP call-setup step (inbound webhook or outbound
// dial request) and the WebSocket media connection that follows. The
// status field provides atomic claiming: only one MediaHandler.Run can
// transition pending/queued -> claimed.
type CallContext struct {
	ID             uint64    `json:"id" gorm:"type:bigint;primaryKey;<-:create"`
	ContextID      string    `json:"contextId" gorm:"column:context_id;type:varchar(36);not null;uniqueIndex"`
	Status         string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	Provider       string    `json:"provider" gorm:"column:provider;type:varchar(50);not null;default:''"`
	Direction      string    `json:"direction" gorm:"column:direction;type:varchar(20);not null;default:''"`
	CallerNumber   string    `json:"callerNumber" gorm:"column:caller_number;type:varchar(50);not null;default:''"`
	CalleeNumber   string    `json:"calleeNumber" gorm:"column:callee_number;type:varchar(50);not null;default:''"`
	ChannelUUID    string    `json:"channelUuid" gorm:"column:channel_uuid;type:varchar(200);not null;default:''"`
	ValidationMode string    `json:"validationMode" gorm:"column:validation_mode;type:varchar(20);not null;default:''"`
	CreatedDate    time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
	UpdatedDate    time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (CallContext) TableName() string {
	return "call_contexts"
}

func (cc *CallContext) BeforeCreate(tx *gorm.DB) error {
	if cc.ContextID == "" {
		cc.ContextID = uuid.New().String()
	}
	if cc.Status == "" {
		cc.Status = StatusPending
	}
	if cc.CreatedDate.IsZero() {
		cc.CreatedDate = time.Now()
	}
	return nil
}

// IsPending reports whether the context has not yet been claimed by a
// media connection.
func (cc *CallContext) IsPending() bool {
	return cc.Status == StatusPending || cc.Status == StatusQueued
}

// IsClaimed reports whether a MediaHandler currently owns this call.
func (cc *CallContext) IsClaimed() bool {
	return cc.Status == StatusClaimed
}
