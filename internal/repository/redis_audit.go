package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pipelabs/pipegate/internal/model"
)

// RedisAuditRepo keeps the audit trail in a capped Redis list. Used when
// Postgres is not configured; records still survive gateway restarts.
type RedisAuditRepo struct {
	client  *redis.Client
	listKey string
	listMax int64
}

func NewRedisAuditRepo(rc *RedisClient, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "pipegate:audit"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  rc.Client,
		listKey: listKey,
		listMax: int64(listMax),
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, rec *model.AuditRecord) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.listKey, payload).Err(); err != nil {
		return err
	}
	r.client.LTrim(ctx, r.listKey, 0, r.listMax-1)
	return nil
}

func (r *RedisAuditRepo) List(ctx context.Context, targetClientID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	// Overscan because filters apply after the fetch.
	fetch := int64(limit) * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}

	raw, err := r.client.LRange(ctx, r.listKey, 0, fetch-1).Result()
	if err != nil {
		return nil, err
	}

	results := make([]*model.AuditRecord, 0, limit)
	for _, item := range raw {
		var rec model.AuditRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		if targetClientID != "" && rec.TargetClientID != targetClientID {
			continue
		}
		if from != nil && rec.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && rec.CreatedAt.After(*to) {
			continue
		}
		results = append(results, &rec)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
