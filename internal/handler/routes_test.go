package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/pipelabs/pipegate/internal/backend"
	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/middleware"
	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/ratelimit"
	"github.com/pipelabs/pipegate/internal/repository"
	"github.com/pipelabs/pipegate/internal/service"
)

const (
	adminTok  = "route-admin-token"
	clientTok = "route-client-token"
)

type stubBackend struct {
	mu     sync.Mutex
	orders int
}

func (s *stubBackend) GetBalance(ctx context.Context, clientID string) (*backend.BalanceSnapshot, error) {
	return &backend.BalanceSnapshot{
		ClientID:  clientID,
		Balances:  []backend.AssetBalance{{Exchange: "binance", Asset: "USDT", Free: decimal.NewFromInt(1000)}},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (s *stubBackend) GetHistory(ctx context.Context, clientID string, limit int) ([]backend.Trade, error) {
	return []backend.Trade{}, nil
}

func (s *stubBackend) PlaceOrder(ctx context.Context, sub backend.OrderSubmission) (*backend.OrderAck, error) {
	s.mu.Lock()
	s.orders++
	s.mu.Unlock()
	return &backend.OrderAck{OrderID: "ord-1", Status: "accepted", SubmittedAt: time.Now().UTC()}, nil
}

func (s *stubBackend) CancelOrder(ctx context.Context, clientID, orderID string) error {
	return nil
}

func (s *stubBackend) placed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders
}

type testServer struct {
	router  *gin.Engine
	backend *stubBackend
	audit   *service.AuditService
}

// newTestServer assembles the same route map the production binary
// mounts: gated action routes with no auth middleware, console routes
// behind Auth plus RequireAdmin.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Limits: config.LimitsConfig{
			WindowSeconds:         60,
			AdminPerMinute:        20,
			AdminGeneralPerMinute: 100,
			DefaultPerMinute:      60,
		},
		Backend: config.BackendConfig{TimeoutSeconds: 5, RetryBackoffMs: 1},
		Policy:  config.PolicyDefaults{MaxSpreadPercent: 0.5, MaxDailyVolume: 50000},
	}

	registry := service.NewTokenRegistry(cfg)
	registry.Register(adminTok, &model.Actor{ID: "ops-1", Role: model.RoleAdmin})
	registry.Register(clientTok, &model.Actor{ID: "client-1", Role: model.RoleClient})

	policies := service.NewPolicyStore(cfg.Policy, nil)
	err := policies.SetPolicy(context.Background(), &model.ClientPolicy{
		ClientID:         "client-1",
		AllowedExchanges: []string{"binance"},
		AllowedPairs:     []string{"BTC-USDT"},
		MaxSpreadPercent: decimal.NewFromFloat(0.5),
		MaxDailyVolume:   decimal.NewFromInt(100000),
		Status:           model.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	store := repository.NewMemoryClientStore()
	err = store.CreatePair(context.Background(), &model.PairRecord{
		ClientID: "client-1", Exchange: "binance", TradingPair: "BTC-USDT", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed pair: %v", err)
	}

	auditSvc, err := service.NewAuditService(t.TempDir(), 256, nil)
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	t.Cleanup(auditSvc.Close)

	stub := &stubBackend{}
	gw := service.NewActionGateway(cfg, registry, policies,
		ratelimit.NewInMemory(time.Minute), service.NewMemoryUsageTracker(), auditSvc, stub, store)

	agentHandler := NewAgentHandler(gw)
	adminHandler := NewAdminHandler(gw, policies, store)
	auditHandler := NewAuditHandler(auditSvc)
	idemStore := middleware.NewInMemIdempotencyStore()

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestID())

	v1 := router.Group("/v1")
	agent := v1.Group("/agent")
	{
		agent.GET("/balance", agentHandler.GetBalance)
		agent.GET("/history", agentHandler.GetHistory)
		agent.POST("/orders", middleware.Idempotency(idemStore, registry), agentHandler.PlaceOrder)
		agent.DELETE("/orders/:id", agentHandler.CancelOrder)
	}
	admin := v1.Group("/admin")
	{
		admin.POST("/clients", adminHandler.CreateClient)
		admin.POST("/clients/:id/pairs", adminHandler.CreatePair)
		admin.DELETE("/clients/:id/pairs", adminHandler.DeletePair)
		admin.PUT("/clients/:id/spread", adminHandler.SetSpread)
		admin.PUT("/clients/:id/volume-target", adminHandler.SetVolumeTarget)

		console := admin.Group("", middleware.Auth(registry), middleware.RequireAdmin())
		console.GET("/clients", adminHandler.ListClients)
		console.GET("/clients/:id/pairs", adminHandler.ListPairs)
		console.GET("/policies/:id", adminHandler.GetPolicy)
		console.PUT("/policies/:id", adminHandler.PutPolicy)
		console.GET("/audit", auditHandler.List)
	}

	return &testServer{router: router, backend: stub, audit: auditSvc}
}

func (ts *testServer) do(method, path, token string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func respCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, w.Body.String())
	}
	return resp.Code
}

func TestAgentBalance(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/v1/agent/balance", clientTok, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res model.ActionResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Outcome != model.OutcomeAllowed || res.RequestID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RequestID != w.Header().Get(middleware.HeaderRequestID) {
		t.Fatalf("result request id should match the response header")
	}
}

func TestAgentBalanceUnknownToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/v1/agent/balance", "never-issued", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if code := respCode(t, w); code != "UNAUTHENTICATED" {
		t.Fatalf("expected UNAUTHENTICATED, got %s", code)
	}

	// The refused attempt still reached the trail.
	recs, err := ts.audit.List(context.Background(), "", 10, nil, nil)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d (%v)", len(recs), err)
	}
	if recs[0].Outcome != model.OutcomeDenied {
		t.Fatalf("expected denied outcome, got %s", recs[0].Outcome)
	}
}

func TestAgentOrderOutsideBoundary(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/v1/agent/orders", clientTok, model.OrderRequest{
		Exchange: "okx", Pair: "BTC-USDT", Side: "buy",
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if code := respCode(t, w); code != "EXCHANGE_NOT_ALLOWED" {
		t.Fatalf("expected EXCHANGE_NOT_ALLOWED, got %s", code)
	}
	if ts.backend.placed() != 0 {
		t.Fatalf("denied order must not reach the backend")
	}
}

func TestAgentOrderMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/v1/agent/orders", clientTok, map[string]string{"exchange": "binance"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := respCode(t, w); code != "INVALID_REQUEST" {
		t.Fatalf("expected INVALID_REQUEST, got %s", code)
	}
}

func TestAgentOrderIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)

	body := model.OrderRequest{
		Exchange: "binance", Pair: "BTC-USDT", Side: "buy",
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	}
	headers := map[string]string{middleware.HeaderIdempotencyKey: "order-abc"}

	first := ts.do(http.MethodPost, "/v1/agent/orders", clientTok, body, headers)
	second := ts.do(http.MethodPost, "/v1/agent/orders", clientTok, body, headers)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay must return the stored response")
	}
	if ts.backend.placed() != 1 {
		t.Fatalf("order must execute once, executed %d times", ts.backend.placed())
	}

	// A replay never re-enters the pipeline, so the trail holds one record.
	recs, _ := ts.audit.List(context.Background(), "client-1", 10, nil, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
}

func TestAdminSpreadRateLimitSurfaces429(t *testing.T) {
	ts := newTestServer(t)

	body := model.SetSpreadRequest{Exchange: "binance", Pair: "BTC-USDT", Spread: decimal.NewFromFloat(0.1)}
	var w *httptest.ResponseRecorder
	for i := 0; i < 21; i++ {
		w = ts.do(http.MethodPut, "/v1/admin/clients/client-1/spread", adminTok, body, nil)
	}

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the 21st call, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry a Retry-After header")
	}
	var resp struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retry_after_seconds"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "RATE_LIMITED" || resp.RetryAfter < 1 {
		t.Fatalf("unexpected rate limit body: %s", w.Body.String())
	}
}

func TestConsoleRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(http.MethodGet, "/v1/admin/clients", "", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a credential, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/v1/admin/clients", clientTok, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a client credential, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/v1/admin/clients", adminTok, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an admin, got %d", w.Code)
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	put := ts.do(http.MethodPut, "/v1/admin/policies/client-7", adminTok, model.PolicyRequest{
		AllowedExchanges: []string{"Kraken"},
		AllowedPairs:     []string{"eth-usd"},
		MaxSpreadPercent: decimal.NewFromFloat(0.3),
		MaxDailyVolume:   decimal.NewFromInt(500),
	}, nil)
	if put.Code != http.StatusOK {
		t.Fatalf("put policy: %d %s", put.Code, put.Body.String())
	}

	get := ts.do(http.MethodGet, "/v1/admin/policies/client-7", adminTok, nil, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get policy: %d", get.Code)
	}
	var pol model.ClientPolicy
	if err := json.Unmarshal(get.Body.Bytes(), &pol); err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	if len(pol.AllowedExchanges) != 1 || pol.AllowedExchanges[0] != "kraken" {
		t.Fatalf("exchange not normalized: %+v", pol.AllowedExchanges)
	}
	if len(pol.AllowedPairs) != 1 || pol.AllowedPairs[0] != "ETH-USD" {
		t.Fatalf("pair not normalized: %+v", pol.AllowedPairs)
	}
}

func TestPolicyRejectsNegativeCeiling(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPut, "/v1/admin/policies/client-7", adminTok, model.PolicyRequest{
		MaxSpreadPercent: decimal.NewFromFloat(-0.1),
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := respCode(t, w); code != "INVALID_POLICY" {
		t.Fatalf("expected INVALID_POLICY, got %s", code)
	}
}

func TestMissingPolicyIs404(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/v1/admin/policies/ghost", adminTok, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuditConsoleQuery(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodGet, "/v1/agent/balance", clientTok, nil, nil)
	ts.do(http.MethodGet, "/v1/agent/balance", "bad-token", nil, nil)

	w := ts.do(http.MethodGet, "/v1/admin/audit?client_id=client-1", adminTok, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []*model.AuditRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].TargetClientID != "client-1" {
		t.Fatalf("expected the client-1 record only, got %+v", recs)
	}

	if w := ts.do(http.MethodGet, "/v1/admin/audit?from=not-a-time", adminTok, nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad time filter, got %d", w.Code)
	}
}

func TestAgentHistoryRejectsNegativeLimit(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/v1/agent/history?limit=-5", clientTok, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAgentCancelOrder(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodDelete, "/v1/agent/orders/ord-9", clientTok, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
