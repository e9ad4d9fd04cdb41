package callcontext

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rapidaai/voicecore/internal/commons"
)

// Store saves and retrieves call contexts from Postgres.
//
// Telephony provider webhooks (CallConnected, DtmfToneReceived, and the
// rest of spec.md §6's provider-event table) arrive asynchronously and can
// land after the media WebSocket has already disconnected and the row has
// been marked Completed. The row is therefore never deleted during a
// call's lifetime; it only moves through Pending/Queued -> Claimed ->
// Completed/Failed.
type Store interface {
	// Save stores a call context, generating a ContextID if one isn't set.
	// Returns the ContextID.
	Save(ctx context.Context, cc *CallContext) (string, error)

	// Get retrieves a call context by ContextID regardless of status.
	// Deliberately unfiltered by status: a late webhook for an already
	// Completed call must still resolve.
	Get(ctx context.Context, contextID string) (*CallContext, error)

	// Claim atomically transitions a call context from Pending or Queued
	// to Claimed. Exactly one MediaHandler.Run call can win; this is the
	// cross-process analogue of CallRegistry's at-most-one guarantee.
	Claim(ctx context.Context, contextID string) (*CallContext, error)

	// Complete marks a call context Completed. The row remains readable
	// for late-arriving provider events.
	Complete(ctx context.Context, contextID string) error

	// Fail marks a call context Failed.
	Fail(ctx context.Context, contextID string) error

	// Delete removes a call context row. Intended for TTL-based cleanup
	// only, never during an active call.
	Delete(ctx context.Context, contextID string) error

	// UpdateField sets a single allowlisted column on an existing row.
	// Used to patch ChannelUUID once the provider returns it.
	UpdateField(ctx context.Context, contextID, field, value string) error
}

type postgresStore struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewStore builds a Store backed by an already-opened *gorm.DB.
func NewStore(db *gorm.DB, logger commons.Logger) Store {
	return &postgresStore{db: db, logger: logger}
}

func (s *postgresStore) Save(ctx context.Context, cc *CallContext) (string, error) {
	if err := s.db.WithContext(ctx).Create(cc).Error; err != nil {
		return "", fmt.Errorf("callcontext: save %s: %w", cc.ContextID, err)
	}
	s.logger.Infow("callcontext: saved", "contextId", cc.ContextID, "direction", cc.Direction, "status", cc.Status)
	return cc.ContextID, nil
}

func (s *postgresStore) Get(ctx context.Context, contextID string) (*CallContext, error) {
	var cc CallContext
	if err := s.db.WithContext(ctx).Where("context_id = ?", contextID).First(&cc).Error; err != nil {
		return nil, fmt.Errorf("callcontext: not found %s: %w", contextID, err)
	}
	return &cc, nil
}

// Claim performs an atomic UPDATE ... WHERE status IN (pending, queued)
// so exactly one caller transitions the row to Claimed; losers get
// RowsAffected == 0 and an error.
func (s *postgresStore) Claim(ctx context.Context, contextID string) (*CallContext, error) {
	db := s.db.WithContext(ctx)

	result := db.Model(&CallContext{}).
		Where("context_id = ? AND status IN ?", contextID, []string{StatusPending, StatusQueued}).
		Updates(map[string]interface{}{
			"status":       StatusClaimed,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("callcontext: claim %s: %w", contextID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("callcontext: %s not found or already claimed", contextID)
	}

	var cc CallContext
	if err := db.Where("context_id = ?", contextID).First(&cc).Error; err != nil {
		return nil, fmt.Errorf("callcontext: fetch claimed %s: %w", contextID, err)
	}
	s.logger.Infow("callcontext: claimed", "contextId", contextID)
	return &cc, nil
}

func (s *postgresStore) Complete(ctx context.Context, contextID string) error {
	return s.setStatus(ctx, contextID, StatusCompleted)
}

func (s *postgresStore) Fail(ctx context.Context, contextID string) error {
	return s.setStatus(ctx, contextID, StatusFailed)
}

func (s *postgresStore) setStatus(ctx context.Context, contextID, status string) error {
	result := s.db.WithContext(ctx).Model(&CallContext{}).
		Where("context_id = ?", contextID).
		Updates(map[string]interface{}{
			"status":       status,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("callcontext: set status %s on %s: %w", status, contextID, result.Error)
	}
	s.logger.Debugw("callcontext: status updated", "contextId", contextID, "status", status)
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, contextID string) error {
	if err := s.db.WithContext(ctx).Where("context_id = ?", contextID).Delete(&CallContext{}).Error; err != nil {
		return fmt.Errorf("callcontext: delete %s: %w", contextID, err)
	}
	return nil
}

var updatableFields = map[string]bool{
	"channel_uuid":    true,
	"status":          true,
	"provider":        true,
	"validation_mode": true,
}

func (s *postgresStore) UpdateField(ctx context.Context, contextID, field, value string) error {
	if !updatableFields[field] {
		return fmt.Errorf("callcontext: field %q is not updatable", field)
	}
	result := s.db.WithContext(ctx).Model(&CallContext{}).
		Where("context_id = ?", contextID).
		Update(field, value)
	if result.Error != nil {
		return fmt.Errorf("callcontext: update %s on %s: %w", field, contextID, result.Error)
	}
	return nil
}
