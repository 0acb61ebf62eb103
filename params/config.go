package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Trading modes understood by the orchestrator.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Feed modes.
const (
	FeedSimulated = "sim"
	FeedWebsocket = "ws"
)

type Risk struct {
	MinOrderQty      decimal.Decimal
	MaxPositionSize  decimal.Decimal // in base-asset units
	MaxLeverage      decimal.Decimal
	MaxOpenPositions int
	MaxDailyDrawdown decimal.Decimal // fraction of day-start equity, e.g. 0.05
}

type Fill struct {
	SlippageBps    decimal.Decimal
	MaxSlippageBps decimal.Decimal
	// MaxFillRatio caps how much of a resting limit order can fill on a
	// single tick. 1 disables partial fills.
	MaxFillRatio decimal.Decimal
}

type Persist struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

type Engine struct {
	InitialBalance        decimal.Decimal
	MaintenanceMarginRate decimal.Decimal
	// Applied to new positions when the opening order carries no SL/TP.
	// Zero disables.
	DefaultStopLossPct   decimal.Decimal
	DefaultTakeProfitPct decimal.Decimal
	InboxSize            int
	Persist              Persist
}

type Feed struct {
	Mode     string
	URL      string
	Symbols  []string
	Interval time.Duration
	Seed     int64
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Log struct {
	File  string
	Level string
	// Journal receives one JSON line per engine event. Empty disables it.
	Journal string
}

type Config struct {
	Mode    string
	Markets []string
	DBPath  string
	Risk    Risk
	Fill    Fill
	Engine  Engine
	Feed    Feed
	API     API
	Log     Log
}

func Default() Config {
	return Config{
		Mode:    ModePaper,
		Markets: []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"},
		DBPath:  "data/papertrade",
		Risk: Risk{
			MinOrderQty:      decimal.RequireFromString("0.0001"),
			MaxPositionSize:  decimal.NewFromInt(100),
			MaxLeverage:      decimal.NewFromInt(10),
			MaxOpenPositions: 3,
			MaxDailyDrawdown: decimal.RequireFromString("0.05"),
		},
		Fill: Fill{
			SlippageBps:    decimal.NewFromInt(5),
			MaxSlippageBps: decimal.NewFromInt(50),
			MaxFillRatio:   decimal.NewFromInt(1),
		},
		Engine: Engine{
			InitialBalance:        decimal.NewFromInt(10000),
			MaintenanceMarginRate: decimal.RequireFromString("0.005"),
			DefaultStopLossPct:    decimal.Zero,
			DefaultTakeProfitPct:  decimal.Zero,
			InboxSize:             256,
			Persist: Persist{
				MaxAttempts:    4,
				BaseDelay:      20 * time.Millisecond,
				MaxDelay:       500 * time.Millisecond,
				AttemptTimeout: 2 * time.Second,
			},
		},
		Feed: Feed{
			Mode:     FeedSimulated,
			Symbols:  []string{"BTC-USDT", "ETH-USDT"},
			Interval: time.Second,
			Seed:     1,
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Log: Log{
			File:    "data/paperd.log",
			Level:   "info",
			Journal: "data/events.jsonl",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if mode := os.Getenv("TRADING_MODE"); mode != "" {
		cfg.Mode = strings.ToLower(mode)
	}
	if markets := getList("MARKETS"); len(markets) > 0 {
		cfg.Markets = markets
	}
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)

	// Risk limits
	setDecimal(&cfg.Risk.MinOrderQty, "MIN_ORDER_QTY")
	setDecimal(&cfg.Risk.MaxPositionSize, "MAX_POSITION_SIZE")
	setDecimal(&cfg.Risk.MaxLeverage, "MAX_LEVERAGE")
	setInt(&cfg.Risk.MaxOpenPositions, "MAX_OPEN_POSITIONS")
	setDecimal(&cfg.Risk.MaxDailyDrawdown, "MAX_DAILY_DRAWDOWN")

	// Fill model
	setDecimal(&cfg.Fill.SlippageBps, "SLIPPAGE_BPS")
	setDecimal(&cfg.Fill.MaxSlippageBps, "MAX_SLIPPAGE_BPS")
	setDecimal(&cfg.Fill.MaxFillRatio, "MAX_FILL_RATIO")

	// Engine
	setDecimal(&cfg.Engine.InitialBalance, "INITIAL_BALANCE")
	setDecimal(&cfg.Engine.MaintenanceMarginRate, "MAINTENANCE_MARGIN_RATE")
	setDecimal(&cfg.Engine.DefaultStopLossPct, "DEFAULT_STOP_LOSS_PCT")
	setDecimal(&cfg.Engine.DefaultTakeProfitPct, "DEFAULT_TAKE_PROFIT_PCT")
	setInt(&cfg.Engine.InboxSize, "WORKER_INBOX_SIZE")
	setInt(&cfg.Engine.Persist.MaxAttempts, "PERSIST_MAX_ATTEMPTS")
	setMillis(&cfg.Engine.Persist.BaseDelay, "PERSIST_BASE_DELAY_MS")
	setMillis(&cfg.Engine.Persist.MaxDelay, "PERSIST_MAX_DELAY_MS")
	setMillis(&cfg.Engine.Persist.AttemptTimeout, "PERSIST_TIMEOUT_MS")

	// Price feed
	if mode := os.Getenv("FEED_MODE"); mode != "" {
		cfg.Feed.Mode = strings.ToLower(mode)
	}
	cfg.Feed.URL = getEnv("FEED_URL", cfg.Feed.URL)
	if symbols := getList("FEED_SYMBOLS"); len(symbols) > 0 {
		cfg.Feed.Symbols = symbols
	}
	setMillis(&cfg.Feed.Interval, "FEED_INTERVAL_MS")
	if seed := os.Getenv("FEED_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Feed.Seed = v
		}
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := getList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.API.CORSOrigins = origins
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if journal, ok := os.LookupEnv("JOURNAL_FILE"); ok {
		cfg.Log.Journal = journal
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping empty entries.
func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Malformed values are ignored and the default is kept.
func setDecimal(dst *decimal.Decimal, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil {
			*dst = v
		}
	}
}

func setInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if raw := os.Getenv(key); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}
