package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/samrith-ratana/e-commerce/internal/domain"
)

var (
	// ErrNotFound is returned when no live idempotency record matches.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrDuplicate indicates a record already exists for (user, scope, key).
	ErrDuplicate = errors.New("duplicate")
)

// IdempotencyStore persists idempotency records in SQLite.
type IdempotencyStore struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Get returns the non-expired record for (userID, scope, key) or ErrNotFound.
func (s *IdempotencyStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(scope) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND key = ? AND expires_at > ?", userID, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Lookup is Get shaped for the HTTP idempotency middleware: a missing record
// is reported as not found rather than as an error.
func (s *IdempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
	rec, err := s.Get(ctx, userID, scope, key, now)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Save records a completed request. A concurrent request that completed
// first yields ErrDuplicate.
func (s *IdempotencyStore) Save(ctx context.Context, userID, scope, key, resourceID string, status int) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TTL),
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite reports UNIQUE violations as plain text.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpired deletes records whose TTL has elapsed and reports how many went.
func (s *IdempotencyStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
