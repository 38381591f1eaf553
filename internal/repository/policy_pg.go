package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pipelabs/pipegate/internal/model"
)

type PostgresPolicyRepo struct {
	db *gorm.DB
}

func NewPostgresPolicyRepo(db *gorm.DB) *PostgresPolicyRepo {
	return &PostgresPolicyRepo{db: db}
}

func (r *PostgresPolicyRepo) Get(ctx context.Context, clientID string) (*model.ClientPolicy, error) {
	var p model.ClientPolicy
	err := r.db.WithContext(ctx).First(&p, "client_id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save upserts on client_id; a policy edit replaces the row whole.
func (r *PostgresPolicyRepo) Save(ctx context.Context, p *model.ClientPolicy) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (r *PostgresPolicyRepo) Delete(ctx context.Context, clientID string) error {
	return r.db.WithContext(ctx).Delete(&model.ClientPolicy{}, "client_id = ?", clientID).Error
}
