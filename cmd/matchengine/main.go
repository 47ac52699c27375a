// Command matchengine runs the matching core as a standalone daemon:
// it loads config and the asset/market bootstrap file, recovers state
// from the latest slice plus operation-log tail, then serves the RPC
// surface until a signal requests shutdown. Grounded on the teacher's
// cmd/node/main.go wiring shape (config load -> component construction
// -> background goroutines -> signal-based shutdown).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fluidex-clob/matchcore/params"
	"github.com/fluidex-clob/matchcore/pkg/api"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/controller"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/persist"
	"github.com/fluidex-clob/matchcore/pkg/core/sequencer"
	"github.com/fluidex-clob/matchcore/pkg/core/user"
	"github.com/fluidex-clob/matchcore/pkg/storage"
	"github.com/fluidex-clob/matchcore/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv(os.Getenv("MATCHENGINE_CONFIG"))

	logFile := os.Getenv("MATCHENGINE_LOG_FILE")
	if logFile == "" {
		logFile = "data/matchengine.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	boot, err := params.LoadBootstrap(os.Getenv("MATCHENGINE_MARKETS_CONFIG"))
	if err != nil {
		sugar.Fatalw("bootstrap_config_failed", "err", err)
	}
	marketConfigs, err := boot.MarketConfigs()
	if err != nil {
		sugar.Fatalw("bootstrap_market_config_invalid", "err", err)
	}

	assets, err := asset.New(boot.AssetConfigs(), sugar)
	if err != nil {
		sugar.Fatalw("asset_manager_init_failed", "err", err)
	}
	balances := balance.New(assets)
	updateCtl := balance.NewUpdateController(balances, cfg.Idempotency.CacheCapacity, cfg.Idempotency.CacheTTL)
	seq := sequencer.New()
	users := user.New()
	markets := market.NewRegistry()
	for _, mc := range marketConfigs {
		m, err := market.New(mc, assets, balances, seq, !cfg.Matching.DisableMarketOrder, cfg.Matching.SelfTradePrevention, cfg.Matching.StrictFeePrecision)
		if err != nil {
			sugar.Fatalw("market_init_failed", "market", mc.Name, "err", err)
		}
		if err := markets.Register(m); err != nil {
			sugar.Fatalw("market_register_failed", "market", mc.Name, "err", err)
		}
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		sugar.Fatalw("data_dir_create_failed", "dir", cfg.Storage.DataDir, "err", err)
	}
	store, err := storage.Open(filepath.Join(cfg.Storage.DataDir, "oplog"))
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	fileSink, err := persist.NewFileSink(cfg.Storage.FileSinkPath, sugar)
	if err != nil {
		sugar.Fatalw("file_sink_open_failed", "err", err)
	}
	dbSink, err := persist.NewDBSink(filepath.Join(cfg.Storage.DataDir, "history"), cfg.Storage.DBQueueCap, cfg.Storage.DBBatchSize, cfg.Storage.DBFlushInterval, sugar)
	if err != nil {
		sugar.Fatalw("db_sink_open_failed", "err", err)
	}
	go dbSink.Run()
	busSink := persist.NewBusSink(cfg.Storage.BusQueueCap, sugar)

	persistor := persist.New(sugar, fileSink, dbSink, busSink)

	opLog := storage.NewOpLogWriter(store, cfg.OperationLog.QueueCap, cfg.OperationLog.BatchSize, cfg.OperationLog.FlushInterval, sugar)
	go opLog.Run()

	ctl := controller.New(sugar, seq, assets, balances, updateCtl, users, markets, persistor, store, opLog,
		cfg.Matching.SelfTradePrevention, !cfg.Matching.DisableMarketOrder, cfg.Matching.StrictFeePrecision,
		cfg.Matching.OrderQueryMaxLimit, cfg.OperationLog.SliceRetention)

	sugar.Infow("recovering state")
	if err := ctl.Recover(); err != nil {
		sugar.Fatalw("recovery_failed", "err", err)
	}
	sugar.Infow("recovery complete")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sliceStop := make(chan struct{})
	go ctl.RunSlicer(cfg.OperationLog.SliceInterval, sliceStop)

	server := api.NewServer(ctl, busSink, cfg.Transport.CORSOrigins, sugar)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Transport.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		sugar.Info("shutdown signal received")
	case err := <-serverErr:
		sugar.Errorw("api_server_failed", "err", err)
		close(sliceStop)
		os.Exit(1)
	}

	close(sliceStop)
	if err := ctl.PerformSlice(float64(time.Now().UnixNano()) / 1e9); err != nil {
		sugar.Errorw("final_slice_failed", "err", err)
	}
	opLog.Close()
	sugar.Info("shutdown complete")
}
