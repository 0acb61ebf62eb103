package account

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

// Account represents a paper-trading account identified by an EVM address.
// Balance tracking is in quote currency (USDT).
type Account struct {
	ID common.Address `json:"id"`

	InitialBalance decimal.Decimal `json:"initialBalance"`
	Deposits       decimal.Decimal `json:"deposits"`    // external top-ups, may be negative for withdrawals
	RealizedPnL    decimal.Decimal `json:"realizedPnl"` // cumulative over closed quantity

	// Daily circuit breaker state. TradingDay is a UTC date.
	TradingDay       string          `json:"tradingDay"`
	DayStartEquity   decimal.Decimal `json:"dayStartEquity"`
	BreakerTripped   bool            `json:"breakerTripped"`
	BreakerTrippedAt time.Time       `json:"breakerTrippedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAccount creates an account funded with the initial balance
func NewAccount(id common.Address, initial decimal.Decimal, at time.Time) *Account {
	at = at.UTC()
	return &Account{
		ID:             id,
		InitialBalance: initial,
		RealizedPnL:    decimal.Zero,
		Deposits:       decimal.Zero,
		TradingDay:     at.Format(dayLayout),
		DayStartEquity: initial,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// Balance returns total balance: initial + deposits + realized PnL
func (a *Account) Balance() decimal.Decimal {
	return a.InitialBalance.Add(a.Deposits).Add(a.RealizedPnL)
}

// RollDay starts a new trading day when at falls on a later UTC date.
// The breaker resets and equity becomes the new day-start reference.
func (a *Account) RollDay(at time.Time, equity decimal.Decimal) bool {
	day := at.UTC().Format(dayLayout)
	if day <= a.TradingDay {
		return false
	}
	a.TradingDay = day
	a.DayStartEquity = equity
	a.BreakerTripped = false
	a.BreakerTrippedAt = time.Time{}
	a.UpdatedAt = at
	return true
}

// TripBreaker latches the daily drawdown breaker until the next day.
func (a *Account) TripBreaker(at time.Time) bool {
	if a.BreakerTripped {
		return false
	}
	a.BreakerTripped = true
	a.BreakerTrippedAt = at
	a.UpdatedAt = at
	return true
}

// Validate checks account invariants
func (a *Account) Validate() error {
	if a.ID == (common.Address{}) {
		return fmt.Errorf("account without id")
	}
	if a.InitialBalance.IsNegative() {
		return fmt.Errorf("negative initial balance: %s", a.InitialBalance)
	}
	return nil
}

func (a *Account) clone() *Account {
	c := *a
	return &c
}
