package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/broker"
	"goldwatch/internal/combiner"
	"goldwatch/internal/config"
	cronrunner "goldwatch/internal/cron"
	"goldwatch/internal/db"
	"goldwatch/internal/execqueue"
	"goldwatch/internal/feed"
	"goldwatch/internal/handler"
	"goldwatch/internal/ledger"
	"goldwatch/internal/logger"
	"goldwatch/internal/pipeline"
	"goldwatch/internal/publisher"
	gormrepository "goldwatch/internal/repository/gorm"
	"goldwatch/internal/scorer"
	"goldwatch/internal/service"
)

func main() {
	cfgPath := os.Getenv("GW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("GW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := service.NewSettingsService(store, logger)
	if err := settingsSvc.EnsureDefaultSwitches(context.Background(), map[string]string{
		pipeline.SwitchPipeline:         "generate and publish signals on each pipeline pass",
		execqueue.SwitchQueueProcessing: "let queue workers claim and execute pending items",
		service.SwitchQueueReaper:       "fail queue items stuck in processing past the budget",
		service.SwitchPositionMonitor:   "close open positions automatically on stop/target",
	}); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	symbol := cfg.Feed.Symbol
	positionValue := decimal.NewFromFloat(cfg.Ledger.DefaultPositionValue)
	startingBalance := decimal.NewFromFloat(cfg.Ledger.StartingBalance)

	ledgerSvc := ledger.New(store, logger, symbol, startingBalance)
	brokerHTTP := &http.Client{Timeout: cfg.Broker.Timeout}
	brokerClient := broker.NewClient(brokerHTTP, cfg.Broker.BaseURL)

	bank := scorer.NewBank(logger, cfg.Pipeline.ScorerTimeout)
	comb := combiner.New(cfg.Combiner)
	pub := publisher.New(store, logger, cfg.Publisher)
	pipe := pipeline.New(store, bank, comb, pub, settingsSvc, logger, cfg.Pipeline, symbol)

	workers := execqueue.NewWorkers(store, ledgerSvc, brokerClient, settingsSvc, logger, cfg.Queue, positionValue)
	reaper := service.NewQueueReaper(store, settingsSvc, logger, cfg.Queue)
	monitor := service.NewPositionMonitor(store, ledgerSvc, settingsSvc, logger, cfg.Ledger, symbol)
	poller := feed.NewPoller(store, logger, cfg.Feed.Poller, symbol)
	stream := feed.NewStream(store, logger, cfg.Feed.Stream, symbol)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(engine)
	queueHandler := &handler.QueueHandler{Repo: store}
	queueHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store, Ledger: ledgerSvc, Symbol: symbol}
	positionHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	_, err = cronRunner.Add(cfg.Ticks.PruneSchedule, func(ctx context.Context) {
		cutoff := time.Now().UTC().Add(-cfg.Ticks.Retention)
		deleted, err := store.DeleteTicksBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("tick prune failed", zap.Error(err))
			return
		}
		if deleted > 0 {
			logger.Info("pruned old ticks", zap.Int64("deleted", deleted))
		}
	})
	if err != nil {
		logger.Warn("cron register tick prune failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go poller.Run(ctx)
	go stream.Run(ctx)
	go pipe.Run(ctx)
	go workers.Run(ctx)
	go reaper.Run(ctx)
	go monitor.Run(ctx)

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
