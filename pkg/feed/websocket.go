package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/util"
)

// wireTick is the upstream message: {"symbol":"BTC-USDT","price":"50000.5","ts":1714554000000}
type wireTick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	TS     int64           `json:"ts"` // unix millis
}

// WebsocketSource reads ticks from a websocket endpoint and reconnects with
// capped backoff when the connection drops.
type WebsocketSource struct {
	URL string
	// Symbols, when set, filters out other markets.
	Symbols []string

	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxRetries stops reconnecting after this many consecutive failures.
	// Zero retries forever.
	MaxRetries int

	Dialer *websocket.Dialer
	Log    *zap.SugaredLogger
}

func (s *WebsocketSource) Run(ctx context.Context, out chan<- market.Tick) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	base, max := s.BaseDelay, s.MaxDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	allowed := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		allowed[sym] = true
	}

	failures := 0
	for {
		received, err := s.session(ctx, dialer, allowed, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received > 0 {
			failures = 0
		}
		failures++
		if s.MaxRetries > 0 && failures > s.MaxRetries {
			return fmt.Errorf("feed %s: giving up after %d attempts: %w", s.URL, failures, err)
		}
		delay := util.Backoff(base, max, failures-1)
		log.Warnw("feed_disconnected", "url", s.URL, "error", err, "retry_in", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session reads from one connection until it fails. It returns the number of
// ticks delivered.
func (s *WebsocketSource) session(ctx context.Context, dialer *websocket.Dialer, allowed map[string]bool, out chan<- market.Tick) (int, error) {
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Unblock ReadJSON on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	n := 0
	for {
		var msg wireTick
		if err := conn.ReadJSON(&msg); err != nil {
			return n, err
		}
		if len(allowed) > 0 && !allowed[msg.Symbol] {
			continue
		}
		t := market.Tick{Symbol: msg.Symbol, Price: msg.Price, Timestamp: time.UnixMilli(msg.TS).UTC()}
		if err := t.Validate(); err != nil {
			if s.Log != nil {
				s.Log.Debugw("feed_bad_message", "error", err)
			}
			continue
		}
		select {
		case out <- t:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

// EncodeTick renders t in the upstream wire format.
func EncodeTick(t market.Tick) ([]byte, error) {
	return json.Marshal(wireTick{Symbol: t.Symbol, Price: t.Price, TS: t.Timestamp.UnixMilli()})
}
