package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pipelabs/pipegate/internal/backend"
	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
	"github.com/pipelabs/pipegate/internal/pkg/logger"
	"github.com/pipelabs/pipegate/internal/pkg/metrics"
	"github.com/pipelabs/pipegate/internal/pkg/ratelimit"
	"github.com/pipelabs/pipegate/internal/repository"
)

// TradingBackend executes balance and history reads, order placement
// and cancellation against the bot-orchestration API.
type TradingBackend interface {
	GetBalance(ctx context.Context, clientID string) (*backend.BalanceSnapshot, error)
	GetHistory(ctx context.Context, clientID string, limit int) ([]backend.Trade, error)
	PlaceOrder(ctx context.Context, sub backend.OrderSubmission) (*backend.OrderAck, error)
	CancelOrder(ctx context.Context, clientID, orderID string) error
}

// ClientStore executes client and pair record mutations.
type ClientStore interface {
	CreateClient(ctx context.Context, rec *model.ClientRecord) error
	GetClient(ctx context.Context, id string) (*model.ClientRecord, error)
	ListClients(ctx context.Context) ([]*model.ClientRecord, error)
	CreatePair(ctx context.Context, rec *model.PairRecord) error
	DeletePair(ctx context.Context, clientID, exchange, pair string) error
	ListPairs(ctx context.Context, clientID string) ([]*model.PairRecord, error)
	UpdatePairSpread(ctx context.Context, clientID, exchange, pair string, spread decimal.Decimal) error
	UpdatePairVolumeTarget(ctx context.Context, clientID, exchange, pair string, target decimal.Decimal) error
}

// AuditSink receives exactly one record per evaluation.
type AuditSink interface {
	Write(ctx context.Context, rec *model.AuditRecord) error
}

// ActionGateway is the chokepoint between callers and live trading
// actions. Every gated action goes through Evaluate, which runs a fixed
// fail-fast pipeline: identity, policy, rate limit, kind constraints,
// execution. Whatever happens, exactly one audit record is written
// before the caller sees the result, and a denied action never reaches
// an executor.
type ActionGateway struct {
	identity *TokenRegistry
	policies *PolicyStore
	limiter  ratelimit.Limiter
	usage    UsageTracker
	audit    AuditSink
	backend  TradingBackend
	clients  ClientStore
	limits   config.LimitsConfig

	execTimeout  time.Duration
	retryBackoff time.Duration
	now          func() time.Time
}

func NewActionGateway(
	cfg *config.Config,
	identity *TokenRegistry,
	policies *PolicyStore,
	limiter ratelimit.Limiter,
	usage UsageTracker,
	audit AuditSink,
	tradingBackend TradingBackend,
	clients ClientStore,
) *ActionGateway {
	return &ActionGateway{
		identity:     identity,
		policies:     policies,
		limiter:      limiter,
		usage:        usage,
		audit:        audit,
		backend:      tradingBackend,
		clients:      clients,
		limits:       cfg.Limits,
		execTimeout:  time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		retryBackoff: time.Duration(cfg.Backend.RetryBackoffMs) * time.Millisecond,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type evalOutcome struct {
	data      interface{}
	err       *apperrors.AppError
	ambiguous bool
}

func failf(t apperrors.ErrorType, format string, args ...interface{}) evalOutcome {
	return evalOutcome{err: apperrors.New(t, fmt.Sprintf(format, args...), nil)}
}

// Evaluate runs one action through the pipeline and returns either the
// executor's result or the typed refusal. The audit record is written
// on every path, including early denials.
func (g *ActionGateway) Evaluate(ctx context.Context, token string, req *model.ActionRequest) (*model.ActionResult, error) {
	start := g.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	res := g.evaluate(ctx, token, req)

	outcome := model.OutcomeAllowed
	reason := ""
	if res.err != nil {
		reason = string(res.err.Type)
		outcome = outcomeClass(res.err.Type)
	}

	rec := &model.AuditRecord{
		RequestID:      req.RequestID,
		ActorID:        req.ActorID,
		TargetClientID: req.TargetClientID,
		Kind:           req.Kind,
		Outcome:        outcome,
		Reason:         reason,
		Ambiguous:      res.ambiguous,
		LatencyMs:      g.now().Sub(start).Milliseconds(),
		Params:         summarizeParams(req),
		CreatedAt:      g.now(),
	}
	// The trail must outlive the request; a caller-canceled context is
	// not a reason to lose the record.
	if err := g.audit.Write(context.WithoutCancel(ctx), rec); err != nil {
		metrics.AuditWriteFailures.Inc()
		logger.LogError(ctx, err, "audit write failed", "request_id", req.RequestID)
	}

	metrics.EvaluationsTotal.WithLabelValues(string(req.Kind), outcome).Inc()
	if outcome != model.OutcomeAllowed {
		metrics.GateRejects.WithLabelValues(reason).Inc()
		return nil, res.err
	}

	return &model.ActionResult{
		RequestID: req.RequestID,
		Outcome:   outcome,
		Data:      res.data,
	}, nil
}

func (g *ActionGateway) evaluate(ctx context.Context, token string, req *model.ActionRequest) evalOutcome {
	now := g.now()

	// 1. Identity
	actor, ok := g.identity.Resolve(token, now)
	if !ok {
		return failf(apperrors.ErrUnauthenticated, "unknown or expired credential")
	}
	req.ActorID = actor.ID
	req.ActorRole = actor.Role
	if req.TargetClientID == "" {
		req.TargetClientID = actor.ID
	}
	if !req.Kind.Known() {
		return failf(apperrors.ErrInvalidRequest, "unknown action kind %q", req.Kind)
	}
	if actor.Role != model.RoleAdmin {
		if req.TargetClientID != actor.ID {
			return failf(apperrors.ErrForbidden, "clients may only act on their own account")
		}
		if req.Kind.AdminOnly() {
			return failf(apperrors.ErrForbidden, "%s requires the admin role", req.Kind)
		}
	}

	// 2. Policy
	pol, out := g.resolvePolicy(ctx, actor, req)
	if out.err != nil {
		return out
	}
	if pol != nil && pol.Status == model.StatusSuspended && req.Kind.Mutating() {
		return failf(apperrors.ErrSuspended, "client %s is suspended", req.TargetClientID)
	}

	// 3. Rate limit
	class, limit := g.limitFor(actor, req.Kind)
	dec := g.limiter.Allow(class+":"+actor.ID, limit)
	if !dec.Allowed {
		metrics.RateLimited.WithLabelValues(string(actor.Role)).Inc()
		return evalOutcome{err: apperrors.NewRateLimited(
			fmt.Sprintf("limit of %d requests per window reached", dec.Limit),
			dec.RetryAfter(now),
		)}
	}

	// 4. Kind constraints
	if out := g.checkConstraints(ctx, req, pol); out.err != nil {
		return out
	}

	// 5. Execute
	return g.execute(ctx, req)
}

// resolvePolicy fetches the policy governing this evaluation. For
// create_client the target does not exist yet, so the acting admin's own
// boundary applies when one is provisioned; admins without a policy row
// pass through. Store failures deny mutating kinds and let reads
// continue.
func (g *ActionGateway) resolvePolicy(ctx context.Context, actor *model.Actor, req *model.ActionRequest) (*model.ClientPolicy, evalOutcome) {
	policyID := req.TargetClientID
	if req.Kind == model.KindCreateClient {
		policyID = actor.ID
	}

	pol, err := g.policies.GetPolicy(ctx, policyID)
	if errors.Is(err, repository.ErrPolicyNotFound) {
		if req.Kind == model.KindCreateClient {
			return nil, evalOutcome{}
		}
		return nil, failf(apperrors.ErrPolicyMissing, "no policy for client %s", policyID)
	}
	if err != nil {
		if req.Kind.Mutating() {
			return nil, evalOutcome{err: apperrors.New(apperrors.ErrPolicyUnavailable, "policy store unavailable", err)}
		}
		logger.LogError(ctx, err, "policy store unavailable, read continues", "client_id", policyID)
		return nil, evalOutcome{}
	}
	return pol, evalOutcome{}
}

func (g *ActionGateway) limitFor(actor *model.Actor, kind model.ActionKind) (string, int) {
	if actor.Role == model.RoleAdmin {
		if kind.AdminOnly() {
			return "admin-privileged", g.limits.AdminPerMinute
		}
		return "admin-general", g.limits.AdminGeneralPerMinute
	}
	return "client", g.limits.PerMinute(actor.RateTier)
}

func (g *ActionGateway) checkConstraints(ctx context.Context, req *model.ActionRequest, pol *model.ClientPolicy) evalOutcome {
	p := &req.Params

	switch req.Kind {
	case model.KindPlaceOrder:
		normalizeVenueParams(p)
		if p.Exchange == "" || p.Pair == "" {
			return failf(apperrors.ErrInvalidRequest, "exchange and pair are required")
		}
		if p.Side != "buy" && p.Side != "sell" {
			return failf(apperrors.ErrInvalidRequest, "side must be buy or sell")
		}
		if !p.Quantity.IsPositive() {
			return failf(apperrors.ErrInvalidRequest, "quantity must be positive")
		}
		if !p.Price.IsPositive() {
			return failf(apperrors.ErrInvalidRequest, "price must be positive")
		}
		if !pol.AllowsExchange(p.Exchange) {
			return failf(apperrors.ErrExchangeNotAllowed, "exchange %s is outside the client's boundary", p.Exchange)
		}
		if !pol.AllowsPair(p.Pair) {
			return failf(apperrors.ErrPairNotAllowed, "pair %s is outside the client's boundary", p.Pair)
		}
		if pol.MaxDailyVolume.IsPositive() {
			used, err := g.usage.WindowTotal(ctx, req.TargetClientID)
			if err != nil {
				// Without the tracker the ceiling cannot be enforced;
				// the order is refused rather than waved through.
				return evalOutcome{err: apperrors.New(apperrors.ErrInternal, "usage tracker unavailable", err)}
			}
			notional := p.Price.Mul(p.Quantity)
			if used.Add(notional).GreaterThan(pol.MaxDailyVolume) {
				return failf(apperrors.ErrVolumeExceeded,
					"projected 24h volume %s exceeds limit %s", used.Add(notional), pol.MaxDailyVolume)
			}
		}

	case model.KindCancelOrder:
		normalizeVenueParams(p)
		if p.OrderID == "" {
			return failf(apperrors.ErrInvalidRequest, "order_id is required")
		}
		if p.Exchange != "" && pol != nil && !pol.AllowsExchange(p.Exchange) {
			return failf(apperrors.ErrExchangeNotAllowed, "exchange %s is outside the client's boundary", p.Exchange)
		}

	case model.KindSetSpread:
		normalizeVenueParams(p)
		if p.Exchange == "" || p.Pair == "" {
			return failf(apperrors.ErrInvalidRequest, "exchange and pair are required")
		}
		if p.Spread.IsNegative() {
			return failf(apperrors.ErrInvalidRequest, "spread must be non-negative")
		}
		if pol.MaxSpreadPercent.IsPositive() && p.Spread.GreaterThan(pol.MaxSpreadPercent) {
			return failf(apperrors.ErrSpreadExceeded,
				"spread %s exceeds the client's ceiling %s", p.Spread, pol.MaxSpreadPercent)
		}

	case model.KindSetVolumeTarget:
		normalizeVenueParams(p)
		if p.Exchange == "" || p.Pair == "" {
			return failf(apperrors.ErrInvalidRequest, "exchange and pair are required")
		}
		if p.VolumeTarget.IsNegative() {
			return failf(apperrors.ErrInvalidRequest, "volume target must be non-negative")
		}
		if pol.MaxDailyVolume.IsPositive() && p.VolumeTarget.GreaterThan(pol.MaxDailyVolume) {
			return failf(apperrors.ErrVolumeExceeded,
				"volume target %s exceeds the client's ceiling %s", p.VolumeTarget, pol.MaxDailyVolume)
		}

	case model.KindCreateClient:
		nc := p.NewClient
		if nc == nil || strings.TrimSpace(nc.Name) == "" || strings.TrimSpace(nc.WalletAddress) == "" {
			return failf(apperrors.ErrInvalidRequest, "name and wallet_address are required")
		}
		if !common.IsHexAddress(nc.WalletAddress) {
			return failf(apperrors.ErrInvalidRequest, "wallet_address is not a valid address")
		}
		nc.WalletAddress = common.HexToAddress(nc.WalletAddress).Hex()
		nc.Email = strings.ToLower(strings.TrimSpace(nc.Email))

	case model.KindCreatePair:
		normalizeVenueParams(p)
		if p.Exchange == "" || p.Pair == "" {
			return failf(apperrors.ErrInvalidRequest, "exchange and pair are required")
		}
		if !ValidPairSymbol(p.Pair) {
			return failf(apperrors.ErrInvalidRequest, "pair %q is not BASE-QUOTE", p.Pair)
		}
		if p.Spread.IsNegative() || p.VolumeTarget.IsNegative() {
			return failf(apperrors.ErrInvalidRequest, "spread and volume targets must be non-negative")
		}

	case model.KindDeletePair:
		normalizeVenueParams(p)
		if p.Exchange == "" || p.Pair == "" {
			return failf(apperrors.ErrInvalidRequest, "exchange and pair are required")
		}
	}

	return evalOutcome{}
}

func (g *ActionGateway) execute(ctx context.Context, req *model.ActionRequest) evalOutcome {
	execCtx := ctx
	if g.execTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, g.execTimeout)
		defer cancel()
	}
	defer func(t0 time.Time) {
		metrics.ExecutorLatency.WithLabelValues(string(req.Kind)).Observe(time.Since(t0).Seconds())
	}(time.Now())

	p := &req.Params
	target := req.TargetClientID

	switch req.Kind {
	case model.KindReadBalance:
		snap, err := g.backend.GetBalance(execCtx, target)
		if err != nil && g.retryWait(execCtx) {
			snap, err = g.backend.GetBalance(execCtx, target)
		}
		if err != nil {
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: snap}

	case model.KindReadHistory:
		trades, err := g.backend.GetHistory(execCtx, target, p.HistoryLimit)
		if err != nil && g.retryWait(execCtx) {
			trades, err = g.backend.GetHistory(execCtx, target, p.HistoryLimit)
		}
		if err != nil {
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: trades}

	case model.KindPlaceOrder:
		ack, err := g.backend.PlaceOrder(execCtx, backend.OrderSubmission{
			ClientID: target,
			Exchange: p.Exchange,
			Pair:     p.Pair,
			Side:     p.Side,
			Quantity: p.Quantity,
			Price:    p.Price,
		})
		if err != nil {
			return executorFailure(req.Kind, err)
		}
		// Accrual must survive request cancellation or the next
		// projection under-counts.
		if err := g.usage.Add(context.WithoutCancel(ctx), target, p.Price.Mul(p.Quantity)); err != nil {
			logger.LogError(ctx, err, "usage accrual failed", "client_id", target)
		}
		return evalOutcome{data: ack}

	case model.KindCancelOrder:
		if err := g.backend.CancelOrder(execCtx, target, p.OrderID); err != nil {
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: map[string]string{"order_id": p.OrderID, "status": "cancelled"}}

	case model.KindSetSpread:
		if err := g.clients.UpdatePairSpread(execCtx, target, p.Exchange, p.Pair, p.Spread); err != nil {
			if errors.Is(err, repository.ErrPairNotFound) {
				return failf(apperrors.ErrNotFound, "pair %s on %s is not configured for client %s", p.Pair, p.Exchange, target)
			}
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: map[string]string{"exchange": p.Exchange, "pair": p.Pair, "spread": p.Spread.String()}}

	case model.KindSetVolumeTarget:
		if err := g.clients.UpdatePairVolumeTarget(execCtx, target, p.Exchange, p.Pair, p.VolumeTarget); err != nil {
			if errors.Is(err, repository.ErrPairNotFound) {
				return failf(apperrors.ErrNotFound, "pair %s on %s is not configured for client %s", p.Pair, p.Exchange, target)
			}
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: map[string]string{"exchange": p.Exchange, "pair": p.Pair, "volume_target": p.VolumeTarget.String()}}

	case model.KindCreateClient:
		rec := &model.ClientRecord{
			ID:            uuid.NewString(),
			Name:          strings.TrimSpace(p.NewClient.Name),
			WalletAddress: p.NewClient.WalletAddress,
			Email:         p.NewClient.Email,
			Status:        model.StatusActive,
			CreatedAt:     g.now(),
		}
		if err := g.clients.CreateClient(execCtx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicateClient) {
				return failf(apperrors.ErrDuplicateClient, "wallet address or email already registered")
			}
			return executorFailure(req.Kind, err)
		}
		if err := g.policies.SetPolicy(execCtx, g.policies.DefaultPolicy(rec.ID)); err != nil {
			// The client exists but starts without a boundary; every
			// gated action will deny with POLICY_MISSING until an admin
			// writes one.
			logger.LogError(ctx, err, "default policy provisioning failed", "client_id", rec.ID)
		}
		return evalOutcome{data: rec}

	case model.KindCreatePair:
		rec := &model.PairRecord{
			ClientID:          target,
			Exchange:          p.Exchange,
			TradingPair:       p.Pair,
			SpreadTarget:      p.Spread,
			VolumeTargetDaily: p.VolumeTarget,
			Status:            "active",
			CreatedAt:         g.now(),
		}
		if err := g.clients.CreatePair(execCtx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicatePair) {
				return failf(apperrors.ErrDuplicatePair, "pair %s on %s already configured for client %s", p.Pair, p.Exchange, target)
			}
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: rec}

	case model.KindDeletePair:
		if err := g.clients.DeletePair(execCtx, target, p.Exchange, p.Pair); err != nil {
			if errors.Is(err, repository.ErrPairNotFound) {
				return failf(apperrors.ErrNotFound, "pair %s on %s is not configured for client %s", p.Pair, p.Exchange, target)
			}
			return executorFailure(req.Kind, err)
		}
		return evalOutcome{data: map[string]string{"exchange": p.Exchange, "pair": p.Pair, "status": "deleted"}}
	}

	return failf(apperrors.ErrInvalidRequest, "unknown action kind %q", req.Kind)
}

// retryWait sleeps the configured backoff before the single retry
// idempotent reads get. Mutating kinds never come through here.
func (g *ActionGateway) retryWait(ctx context.Context) bool {
	if g.retryBackoff <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(g.retryBackoff):
		return true
	}
}

func executorFailure(kind model.ActionKind, err error) evalOutcome {
	return evalOutcome{
		err: apperrors.New(apperrors.ErrExecutor, fmt.Sprintf("%s failed", kind), err),
		// A timed-out mutating call may or may not have taken effect;
		// the record says so instead of guessing.
		ambiguous: kind.Mutating() && errors.Is(err, context.DeadlineExceeded),
	}
}

func outcomeClass(t apperrors.ErrorType) string {
	switch t {
	case apperrors.ErrExecutor, apperrors.ErrInternal, apperrors.ErrNotFound:
		return model.OutcomeError
	default:
		return model.OutcomeDenied
	}
}

func normalizeVenueParams(p *model.ActionParams) {
	p.Exchange = strings.ToLower(strings.TrimSpace(p.Exchange))
	p.Pair = strings.ToUpper(strings.TrimSpace(p.Pair))
	p.Side = strings.ToLower(strings.TrimSpace(p.Side))
}

func summarizeParams(req *model.ActionRequest) map[string]interface{} {
	p := req.Params
	out := make(map[string]interface{})
	if p.Exchange != "" {
		out["exchange"] = p.Exchange
	}
	if p.Pair != "" {
		out["pair"] = p.Pair
	}
	if p.Side != "" {
		out["side"] = p.Side
	}
	if p.OrderID != "" {
		out["order_id"] = p.OrderID
	}
	if !p.Quantity.IsZero() {
		out["quantity"] = p.Quantity.String()
	}
	if !p.Price.IsZero() {
		out["price"] = p.Price.String()
	}
	if !p.Spread.IsZero() {
		out["spread"] = p.Spread.String()
	}
	if !p.VolumeTarget.IsZero() {
		out["volume_target"] = p.VolumeTarget.String()
	}
	if p.NewClient != nil {
		out["new_client"] = map[string]string{
			"name":           p.NewClient.Name,
			"wallet_address": p.NewClient.WalletAddress,
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
