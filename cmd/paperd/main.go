package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/papertrade/params"
	"github.com/uhyunpark/papertrade/pkg/api"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/paper"
	"github.com/uhyunpark/papertrade/pkg/app/trading"
	"github.com/uhyunpark/papertrade/pkg/feed"
	"github.com/uhyunpark/papertrade/pkg/storage"
	"github.com/uhyunpark/papertrade/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("paperd_failed", "err", err)
	}
	sugar.Info("paperd_stopped")
}

func run(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) error {
	// ---- Markets ----
	markets, err := market.NewRegistryFromSymbols(cfg.Markets)
	if err != nil {
		return err
	}

	// ---- Storage ----
	store, err := storage.NewPebbleStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Log.Journal != "" {
		fj, err := storage.NewFileJournal(cfg.Log.Journal)
		if err != nil {
			return err
		}
		journal = fj
	}
	defer journal.Close()

	// ---- Engine ----
	engine := paper.NewEngine(paper.FromParams(cfg), store, markets, util.RealClock{}, log.Named("engine"))
	defer engine.Close()

	orch, err := trading.NewOrchestrator(cfg.Mode, engine, nil, log.Named("trading"))
	if err != nil {
		return err
	}

	// ---- API Server ----
	apiServer := api.NewServer(orch, markets, cfg.API, log.Named("api"))

	// Hook engine events into the journal and websocket channels
	engine.OnEvent = func(ev paper.Event) {
		if err := journal.Append(string(ev.Type), ev); err != nil {
			log.Warnw("journal_append_failed", "event", ev.Type, "err", err)
		}
		apiServer.PublishEvent(ev)
	}

	log.Infow("paperd_starting",
		"mode", cfg.Mode,
		"markets", cfg.Markets,
		"db_path", cfg.DBPath,
		"feed", cfg.Feed.Mode,
		"max_leverage", cfg.Risk.MaxLeverage.String(),
		"slippage_bps", cfg.Fill.SlippageBps.String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(ctx) })

	// ---- Price Feed ----
	src, err := newSource(cfg.Feed, log.Named("feed"))
	if err != nil {
		return err
	}
	g.Go(func() error {
		return feed.Pump(ctx, src, log.Named("feed"), engine, feed.SinkFunc(func(_ context.Context, t market.Tick) error {
			apiServer.PublishTick(t)
			return nil
		}))
	})

	return g.Wait()
}

func newSource(cfg params.Feed, log *zap.SugaredLogger) (feed.Source, error) {
	switch cfg.Mode {
	case params.FeedWebsocket:
		return &feed.WebsocketSource{URL: cfg.URL, Symbols: cfg.Symbols, Log: log}, nil
	case params.FeedSimulated, "":
		return feed.NewSimulatedSource(feed.SimulatedConfig{
			Symbols:  cfg.Symbols,
			Interval: cfg.Interval,
			Seed:     cfg.Seed,
		}, util.RealClock{}), nil
	}
	return nil, errUnknownFeed(cfg.Mode)
}

type errUnknownFeed string

func (e errUnknownFeed) Error() string { return "unknown feed mode " + string(e) }
