package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// API request and response types. Orders, positions and portfolio snapshots
// are served in their domain JSON form; the types below cover the rest.

// ==============================
// REST Types
// ==============================

// MarketInfo describes a tradable symbol
type MarketInfo struct {
	Symbol     string `json:"symbol"`     // e.g., "BTC-USDT"
	BaseAsset  string `json:"baseAsset"`  // e.g., "BTC"
	QuoteAsset string `json:"quoteAsset"` // e.g., "USDT"
	Status     string `json:"status"`     // "Active", "Paused"
}

// PriceInfo is the latest observed tick for a symbol
type PriceInfo struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// DepositRequest is the payload for POST /api/v1/accounts/{address}/deposit
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FingerprintResponse carries the Keccak-256 digest of an account's state
type FingerprintResponse struct {
	Address     string `json:"address"`
	Fingerprint string `json:"fingerprint"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"` // risk rejection code
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage wraps every pushed update
type WSMessage struct {
	Type    string      `json:"type"`    // "order_filled", "position_closed", "tick", ...
	Channel string      `json:"channel"` // "fills:0x...", "positions:0x...", "ticks:BTC-USDT"
	Data    interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["ticks:BTC-USDT", "fills:0x..."]
}
