package model

import (
	"time"
)

// Audit outcomes. Reason carries the taxonomy code when not allowed.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// AuditRecord is one immutable evaluation record. The gateway writes
// exactly one per evaluation, before the caller sees the result, whether
// the action was allowed, denied, or failed.
type AuditRecord struct {
	ID             uint                   `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID      string                 `json:"request_id" gorm:"size:64;index"`
	ActorID        string                 `json:"actor_id" gorm:"size:64;index"`
	TargetClientID string                 `json:"target_client_id" gorm:"size:64;index:idx_audit_target_time,priority:1"`
	Kind           ActionKind             `json:"kind" gorm:"size:32"`
	Outcome        string                 `json:"outcome" gorm:"size:16"`
	Reason         string                 `json:"reason,omitempty" gorm:"size:64"`
	Ambiguous      bool                   `json:"ambiguous,omitempty"`
	LatencyMs      int64                  `json:"latency_ms"`
	Params         map[string]interface{} `json:"params,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time              `json:"created_at" gorm:"index:idx_audit_target_time,priority:2"`
}
