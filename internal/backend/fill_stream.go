package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/pipelabs/pipegate/internal/pkg/logger"
)

// FillSink receives executed notional per client. The usage tracker
// satisfies this, which is the point: fills from bots the backend runs
// count against the same rolling ceiling as gateway-placed orders.
type FillSink interface {
	Add(ctx context.Context, clientID string, notional decimal.Decimal) error
}

type fillEvent struct {
	Type     string          `json:"type"`
	FillID   string          `json:"fill_id"`
	ClientID string          `json:"client_id"`
	Exchange string          `json:"exchange"`
	Pair     string          `json:"pair"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// FillStream subscribes to the backend's fill feed and forwards notional
// to the sink. The feed is at-least-once, so fills are deduplicated by
// fill_id before they touch the tracker.
type FillStream struct {
	url    string
	apiKey string
	sink   FillSink

	mu   sync.Mutex
	seen map[string]struct{}
	done chan struct{}
}

func NewFillStream(url, apiKey string, sink FillSink) *FillStream {
	return &FillStream{
		url:    url,
		apiKey: apiKey,
		sink:   sink,
		seen:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

func (s *FillStream) Start() {
	go s.run()
}

func (s *FillStream) Stop() {
	close(s.done)
}

func (s *FillStream) run() {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := s.connectAndRead(); err != nil {
			logger.Warn("fill stream disconnected, retrying", "error", err.Error())
		}
		select {
		case <-s.done:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *FillStream) connectAndRead() error {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("X-API-Key", s.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	subMsg := map[string]interface{}{
		"type":    "subscribe",
		"channel": "fills",
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return err
	}

	for {
		select {
		case <-s.done:
			return nil
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(msg)
	}
}

func (s *FillStream) handleMessage(raw []byte) {
	var ev fillEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Debug("fill stream: skipping unparseable message")
		return
	}
	if ev.Type != "fill" || ev.ClientID == "" || ev.FillID == "" {
		return
	}
	if s.duplicate(ev.FillID) {
		return
	}
	notional := ev.Price.Mul(ev.Quantity)
	if notional.IsZero() {
		return
	}
	if err := s.sink.Add(context.Background(), ev.ClientID, notional); err != nil {
		logger.Error("fill stream: usage add failed", "client_id", ev.ClientID, "error", err.Error())
	}
}

func (s *FillStream) duplicate(fillID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[fillID]; ok {
		return true
	}
	// Cap the dedupe set; a stream replaying further back than this is
	// rebuilding the world anyway.
	if len(s.seen) > 100000 {
		s.seen = make(map[string]struct{})
	}
	s.seen[fillID] = struct{}{}
	return false
}
