package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pipelabs/pipegate/internal/model"
)

// PostgresClientRepo stores client and pair records. Duplicate detection
// is the insert itself: the unique indexes decide, so two concurrent
// creates for the same wallet can never both succeed.
type PostgresClientRepo struct {
	db *gorm.DB
}

func NewPostgresClientRepo(db *gorm.DB) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

func (r *PostgresClientRepo) CreateClient(ctx context.Context, rec *model.ClientRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateClient
	}
	return err
}

func (r *PostgresClientRepo) GetClient(ctx context.Context, id string) (*model.ClientRecord, error) {
	var rec model.ClientRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresClientRepo) ListClients(ctx context.Context) ([]*model.ClientRecord, error) {
	var recs []*model.ClientRecord
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

func (r *PostgresClientRepo) CreatePair(ctx context.Context, rec *model.PairRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePair
	}
	return err
}

func (r *PostgresClientRepo) DeletePair(ctx context.Context, clientID, exchange, pair string) error {
	res := r.db.WithContext(ctx).
		Where("client_id = ? AND exchange = ? AND trading_pair = ?", clientID, exchange, pair).
		Delete(&model.PairRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPairNotFound
	}
	return nil
}

func (r *PostgresClientRepo) ListPairs(ctx context.Context, clientID string) ([]*model.PairRecord, error) {
	var recs []*model.PairRecord
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

func (r *PostgresClientRepo) UpdatePairSpread(ctx context.Context, clientID, exchange, pair string, spread decimal.Decimal) error {
	return r.updatePairColumn(ctx, clientID, exchange, pair, "spread_target", spread)
}

func (r *PostgresClientRepo) UpdatePairVolumeTarget(ctx context.Context, clientID, exchange, pair string, target decimal.Decimal) error {
	return r.updatePairColumn(ctx, clientID, exchange, pair, "volume_target_daily", target)
}

func (r *PostgresClientRepo) updatePairColumn(ctx context.Context, clientID, exchange, pair, column string, value decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&model.PairRecord{}).
		Where("client_id = ? AND exchange = ? AND trading_pair = ?", clientID, exchange, pair).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPairNotFound
	}
	return nil
}
