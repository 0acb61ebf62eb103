package paper

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is a point-in-time view of an account's portfolio.
type Snapshot struct {
	Account common.Address `json:"account"`

	InitialBalance   decimal.Decimal `json:"initialBalance"`
	Deposits         decimal.Decimal `json:"deposits"`
	TotalBalance     decimal.Decimal `json:"totalBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	UsedMargin       decimal.Decimal `json:"usedMargin"`
	RealizedPnL      decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealizedPnl"`
	Equity           decimal.Decimal `json:"equity"`
	ROIPercent       decimal.Decimal `json:"roiPercent"`

	OpenPositions int `json:"openPositions"`
	ActiveOrders  int `json:"activeOrders"`

	TradingDay     string          `json:"tradingDay"`
	DayStartEquity decimal.Decimal `json:"dayStartEquity"`
	DailyDrawdown  decimal.Decimal `json:"dailyDrawdown"`
	BreakerTripped bool            `json:"breakerTripped"`

	AsOf time.Time `json:"asOf"`
}

// usedMargin is position margin plus collateral reserved by active orders.
func (w *worker) usedMargin() decimal.Decimal {
	used := w.ledger.UsedMargin()
	for _, o := range w.orders {
		if o.IsActive() {
			used = used.Add(o.ReservedMargin)
		}
	}
	return used
}

func (w *worker) activeOrders() int {
	n := 0
	for _, o := range w.orders {
		if o.IsActive() {
			n++
		}
	}
	return n
}

// riskState is the validator's view of the account for an order on symbol.
func (w *worker) riskState(symbol string) risk.AccountState {
	acct := w.ledger.Account()
	_, has := w.ledger.Position(symbol)
	return risk.AccountState{
		Available:      acct.Balance().Sub(w.usedMargin()),
		Equity:         w.ledger.Equity(),
		DayStartEquity: acct.DayStartEquity,
		OpenPositions:  w.ledger.OpenCount(),
		HasPosition:    has,
		BreakerTripped: acct.BreakerTripped,
	}
}

// portfolio returns the cached snapshot, computing it after any mutation.
func (w *worker) portfolio() Snapshot {
	if w.snapshot != nil {
		return *w.snapshot
	}

	acct := w.ledger.Account()
	total := acct.Balance()
	used := w.usedMargin()
	equity := w.ledger.Equity()
	invested := acct.InitialBalance.Add(acct.Deposits)

	roi := decimal.Zero
	if invested.IsPositive() {
		roi = equity.Sub(invested).Div(invested).Mul(hundred).Round(4)
	}

	s := Snapshot{
		Account:          acct.ID,
		InitialBalance:   acct.InitialBalance,
		Deposits:         acct.Deposits,
		TotalBalance:     total,
		AvailableBalance: total.Sub(used),
		UsedMargin:       used,
		RealizedPnL:      acct.RealizedPnL,
		UnrealizedPnL:    w.ledger.UnrealizedPnL(),
		Equity:           equity,
		ROIPercent:       roi,
		OpenPositions:    w.ledger.OpenCount(),
		ActiveOrders:     w.activeOrders(),
		TradingDay:       acct.TradingDay,
		DayStartEquity:   acct.DayStartEquity,
		DailyDrawdown:    risk.Drawdown(w.riskState("")),
		BreakerTripped:   acct.BreakerTripped,
		AsOf:             w.eng.clock.Now(),
	}
	w.snapshot = &s
	return s
}
