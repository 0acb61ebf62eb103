package paper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/params"
	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/fill"
	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
)

// RetryPolicy bounds write-through retries.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

type Config struct {
	InitialBalance decimal.Decimal
	Risk           risk.Limits
	Fill           fill.Config
	Ledger         account.LedgerConfig
	InboxSize      int
	Persist        RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(10000),
		Risk: risk.Limits{
			MinQty:           decimal.RequireFromString("0.0001"),
			MaxPositionSize:  decimal.NewFromInt(100),
			MaxLeverage:      decimal.NewFromInt(10),
			MaxOpenPositions: 3,
			MaxDailyDrawdown: decimal.RequireFromString("0.05"),
		},
		Fill: fill.Config{
			SlippageBps:    decimal.NewFromInt(5),
			MaxSlippageBps: decimal.NewFromInt(50),
			MaxFillRatio:   decimal.NewFromInt(1),
		},
		Ledger: account.LedgerConfig{
			MaintenanceMarginRate: decimal.RequireFromString("0.005"),
		},
		InboxSize: 256,
		Persist: RetryPolicy{
			MaxAttempts:    4,
			BaseDelay:      20 * time.Millisecond,
			MaxDelay:       500 * time.Millisecond,
			AttemptTimeout: 2 * time.Second,
		},
	}
}

// FromParams builds the engine configuration from process settings.
func FromParams(p params.Config) Config {
	return Config{
		InitialBalance: p.Engine.InitialBalance,
		Risk: risk.Limits{
			MinQty:           p.Risk.MinOrderQty,
			MaxPositionSize:  p.Risk.MaxPositionSize,
			MaxLeverage:      p.Risk.MaxLeverage,
			MaxOpenPositions: p.Risk.MaxOpenPositions,
			MaxDailyDrawdown: p.Risk.MaxDailyDrawdown,
		},
		Fill: fill.Config{
			SlippageBps:    p.Fill.SlippageBps,
			MaxSlippageBps: p.Fill.MaxSlippageBps,
			MaxFillRatio:   p.Fill.MaxFillRatio,
		},
		Ledger: account.LedgerConfig{
			MaintenanceMarginRate: p.Engine.MaintenanceMarginRate,
			DefaultStopLossPct:    p.Engine.DefaultStopLossPct,
			DefaultTakeProfitPct:  p.Engine.DefaultTakeProfitPct,
		},
		InboxSize: p.Engine.InboxSize,
		Persist: RetryPolicy{
			MaxAttempts:    p.Engine.Persist.MaxAttempts,
			BaseDelay:      p.Engine.Persist.BaseDelay,
			MaxDelay:       p.Engine.Persist.MaxDelay,
			AttemptTimeout: p.Engine.Persist.AttemptTimeout,
		},
	}
}
