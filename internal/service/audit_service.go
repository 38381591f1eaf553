package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/logger"
	"github.com/pipelabs/pipegate/internal/pkg/metrics"
)

// AuditService is the append-only trail behind the gateway. Write puts
// the record in the in-memory ring and the repository before it returns,
// so the caller's response is never ahead of the trail; only the JSONL
// file mirror is written asynchronously.
type AuditService struct {
	logChan chan *model.AuditRecord
	logFile *os.File
	buffer  *auditBuffer
	repo    AuditRepo
}

type AuditRepo interface {
	Insert(ctx context.Context, rec *model.AuditRecord) error
	List(ctx context.Context, targetClientID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error)
}

func NewAuditService(logDir string, bufferSize int, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(logDir, "audit-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	svc := &AuditService{
		logChan: make(chan *model.AuditRecord, 1000),
		logFile: f,
		buffer:  newAuditBuffer(bufferSize),
		repo:    repo,
	}

	go svc.processRecords()

	return svc, nil
}

// Write appends one record. A repository failure is logged and counted
// but does not fail the evaluation; the ring and the file still hold
// the record.
func (s *AuditService) Write(ctx context.Context, rec *model.AuditRecord) error {
	if rec == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.buffer.Add(rec)
	if s.repo != nil {
		if err := s.repo.Insert(ctx, rec); err != nil {
			metrics.AuditWriteFailures.Inc()
			logger.LogError(ctx, err, "audit repository insert failed", "request_id", rec.RequestID)
		}
	}
	select {
	case s.logChan <- rec:
	default:
		metrics.AuditWriteFailures.Inc()
		logger.Warn("audit file queue full, dropping file mirror entry", "request_id", rec.RequestID)
	}
	return nil
}

// List returns records for a target client, newest first. The repository
// is authoritative; without one, or when it fails, the in-memory ring
// answers.
func (s *AuditService) List(ctx context.Context, targetClientID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, targetClientID, limit, from, to)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "audit repository list failed, serving ring buffer")
	}
	return s.buffer.List(targetClientID, limit), nil
}

func (s *AuditService) processRecords() {
	encoder := json.NewEncoder(s.logFile)
	for rec := range s.logChan {
		if err := encoder.Encode(rec); err != nil {
			logger.Error("audit file write failed", "error", err.Error())
		}
	}
}

func (s *AuditService) Close() {
	close(s.logChan)
	s.logFile.Close()
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditRecord
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditRecord, 0, maxSize),
	}
}

func (b *auditBuffer) Add(rec *model.AuditRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, rec)
		return
	}
	b.records[b.nextIndex] = rec
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *auditBuffer) List(targetClientID string, limit int) []*model.AuditRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditRecord, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		rec := b.records[idx]
		if rec == nil {
			continue
		}
		if targetClientID != "" && rec.TargetClientID != targetClientID {
			continue
		}
		results = append(results, rec)
		if len(results) >= limit {
			break
		}
	}
	return results
}
