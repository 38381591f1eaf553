package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pipelabs/pipegate/internal/model"
)

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, rec *model.AuditRecord) error {
	if rec == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *PostgresAuditRepo) List(ctx context.Context, targetClientID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Model(&model.AuditRecord{})
	if targetClientID != "" {
		q = q.Where("target_client_id = ?", targetClientID)
	}
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}

	records := make([]*model.AuditRecord, 0, limit)
	err := q.Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Cleanup removes records past the retention horizon. The trail is
// immutable inside the horizon; only whole-record expiry is allowed.
func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AuditRecord{}).Error
}
