package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// countingRouter wires the idempotency middleware in front of a handler
// that counts executions and can be told to fail.
type countingRouter struct {
	engine *gin.Engine
	store  *InMemIdempotencyStore
	calls  atomic.Int64
	status atomic.Int64
}

func newCountingRouter(reg ActorResolver) *countingRouter {
	gin.SetMode(gin.TestMode)
	cr := &countingRouter{engine: gin.New(), store: NewInMemIdempotencyStore()}
	cr.status.Store(http.StatusOK)
	cr.engine.POST("/orders", Idempotency(cr.store, reg), func(c *gin.Context) {
		n := cr.calls.Add(1)
		status := int(cr.status.Load())
		if status >= 500 {
			c.JSON(status, gin.H{"error": "backend down"})
			return
		}
		c.JSON(status, gin.H{"execution": strconv.FormatInt(n, 10)})
	})
	return cr
}

func (cr *countingRouter) post(token, idemKey string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	cr.engine.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	cr := newCountingRouter(testResolver())

	first := cr.post("client-tok", "key-1")
	second := cr.post("client-tok", "key-1")

	if cr.calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", cr.calls.Load())
	}
	if second.Code != first.Code || second.Body.String() != first.Body.String() {
		t.Fatalf("replay must be byte-identical: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyDistinctKeysExecute(t *testing.T) {
	cr := newCountingRouter(testResolver())

	cr.post("client-tok", "key-1")
	cr.post("client-tok", "key-2")

	if cr.calls.Load() != 2 {
		t.Fatalf("distinct keys should both execute, ran %d times", cr.calls.Load())
	}
}

func TestIdempotencyKeysScopedPerActor(t *testing.T) {
	cr := newCountingRouter(testResolver())

	cr.post("client-tok", "shared-key")
	cr.post("admin-tok", "shared-key")

	if cr.calls.Load() != 2 {
		t.Fatalf("actors must not replay each other, ran %d times", cr.calls.Load())
	}
}

func TestIdempotencyNoKeyAlwaysExecutes(t *testing.T) {
	cr := newCountingRouter(testResolver())

	cr.post("client-tok", "")
	cr.post("client-tok", "")

	if cr.calls.Load() != 2 {
		t.Fatalf("missing key disables caching, ran %d times", cr.calls.Load())
	}
}

func TestIdempotencyUnknownCredentialBypasses(t *testing.T) {
	cr := newCountingRouter(testResolver())

	// The pipeline will deny these; the denial must never be cached
	// against a key the real owner might use later.
	cr.post("never-issued", "key-1")
	cr.post("never-issued", "key-1")

	if cr.calls.Load() != 2 {
		t.Fatalf("unresolvable credentials must bypass the cache, ran %d times", cr.calls.Load())
	}
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	cr := newCountingRouter(testResolver())

	// Claim the key as if a first attempt were still running.
	if rec, hit := cr.store.GetOrLock("client-1:key-1"); hit {
		t.Fatalf("expected fresh lock, got %+v", rec)
	}

	w := cr.post("client-tok", "key-1")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while in flight, got %d", w.Code)
	}
	if cr.calls.Load() != 0 {
		t.Fatalf("conflicting retry must not execute")
	}
}

func TestIdempotencyServerErrorsStayRetryable(t *testing.T) {
	cr := newCountingRouter(testResolver())

	cr.status.Store(http.StatusBadGateway)
	if w := cr.post("client-tok", "key-1"); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	// The failure was not cached, so the retry executes and succeeds.
	cr.status.Store(http.StatusOK)
	if w := cr.post("client-tok", "key-1"); w.Code != http.StatusOK {
		t.Fatalf("retry after 5xx should execute, got %d", w.Code)
	}
	if cr.calls.Load() != 2 {
		t.Fatalf("expected 2 executions, got %d", cr.calls.Load())
	}

	// And the success now replays.
	cr.post("client-tok", "key-1")
	if cr.calls.Load() != 2 {
		t.Fatalf("success must replay, ran %d times", cr.calls.Load())
	}
}

func TestIdempotencyCachesDenials(t *testing.T) {
	cr := newCountingRouter(testResolver())

	// 4xx outcomes are deterministic and replay like successes.
	cr.status.Store(http.StatusForbidden)
	first := cr.post("client-tok", "key-1")
	second := cr.post("client-tok", "key-1")

	if cr.calls.Load() != 1 {
		t.Fatalf("denial should be cached, ran %d times", cr.calls.Load())
	}
	if first.Code != http.StatusForbidden || second.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on both, got %d and %d", first.Code, second.Code)
	}
}
