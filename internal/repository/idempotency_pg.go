package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pipelabs/pipegate/internal/middleware"
)

type idempotencyKey struct {
	Key          string `gorm:"primaryKey;size:160"`
	StatusCode   int
	ResponseBody []byte
	Processing   bool
	CreatedAt    time.Time
}

// PostgresIdempotencyStore claims keys with an insert-or-nothing, so only
// one in-flight request can hold a key even across gateway instances.
type PostgresIdempotencyStore struct {
	db *gorm.DB
}

func NewPostgresIdempotencyStore(db *gorm.DB) *PostgresIdempotencyStore {
	_ = db.AutoMigrate(&idempotencyKey{})
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&idempotencyKey{
		Key:        key,
		Processing: true,
		CreatedAt:  time.Now().UTC(),
	})
	if res.Error == nil && res.RowsAffected > 0 {
		// We won the insert; the caller proceeds and must Save or Unlock.
		return nil, false
	}

	var row idempotencyKey
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     row.StatusCode,
		Body:       row.ResponseBody,
		CreatedAt:  row.CreatedAt,
		Processing: row.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) Save(key string, status int, body []byte) {
	s.db.Model(&idempotencyKey{}).Where("key = ?", key).Updates(map[string]interface{}{
		"status_code":   status,
		"response_body": body,
		"processing":    false,
	})
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	s.db.Delete(&idempotencyKey{}, "key = ?", key)
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&idempotencyKey{}).Error
}
