package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/configs"
	"github.com/chessanalytics/core/internal/cache"
	"github.com/chessanalytics/core/internal/engine"
	"github.com/chessanalytics/core/internal/handlers"
	"github.com/chessanalytics/core/internal/importer"
	"github.com/chessanalytics/core/internal/middleware"
	"github.com/chessanalytics/core/internal/models"
	"github.com/chessanalytics/core/internal/opening"
	"github.com/chessanalytics/core/internal/orchestrator"
	"github.com/chessanalytics/core/internal/persistence"
	"github.com/chessanalytics/core/internal/ratelimit"
	"github.com/chessanalytics/core/internal/scheduler"
)

func main() {
	cfg := configs.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	ctx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := persistence.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	cancelStartup()
	if err != nil {
		logrus.Fatalf("failed to open persistence store: %v", err)
	}
	defer store.Pool.Close()

	enginePool := engine.NewPool(models.EnginePoolConfig{
		ExecutablePath:       cfg.Engine.BinaryPath,
		HashMB:               cfg.Engine.HashSizeMB,
		ThreadsPerEngine:     cfg.Engine.Threads,
		MaxConcurrentEngines: cfg.Engine.MaxConcurrentEngines,
		DefaultDepth:         cfg.Engine.DefaultDepth,
		DefaultTimeSeconds:   cfg.Engine.DefaultTimeSeconds,
		SkillLevel:           cfg.Engine.SkillLevel,
		Tier:                 cfg.App.Tier,
	})
	if err := enginePool.Start(); err != nil {
		logrus.Fatalf("failed to start engine pool: %v", err)
	}
	defer enginePool.Shutdown()

	tuner := engine.NewTuner(enginePool)

	analyticsCache, err := cache.NewAnalyticsCache(cfg.Cache.AnalyticsTTL, cfg.Cache.CacheVersion)
	if err != nil {
		logrus.Fatalf("failed to build analytics cache: %v", err)
	}
	if _, err := cache.NewEvaluationCache(cfg.Cache.EvaluationCacheSize); err != nil {
		logrus.Fatalf("failed to build evaluation cache: %v", err)
	}

	openings := opening.NewTable()

	lichessClient := importer.NewLichessClient(cfg.Importer.LichessBaseURL, cfg.Importer.LichessToken, cfg.Importer.ExternalAPITimeout)
	chesscomClient := importer.NewChessComClient(cfg.Importer.ChessComBaseURL, cfg.Importer.ChessComUserAgent, cfg.Importer.ExternalAPITimeout)
	imp := importer.New(store, lichessClient, chesscomClient, cfg.Importer.MaxConcurrentImports, cfg.Importer.SessionImportCap, cfg.Importer.StuckAfter)

	limiter := ratelimit.New(store.UsageTracking, cfg.RateLimit.AnonymousDailyCap, cfg.RateLimit.FreeTierMonthlyCap, cfg.RateLimit.AnonymousWindow, cfg.RateLimit.MonthlyWindow)

	defaultTimePerMove := time.Duration(cfg.Engine.DefaultTimeSeconds * float64(time.Second))
	sched := scheduler.New(store, enginePool, analyticsCache, limiter, openings, imp, cfg.Engine.MaxConcurrentEngines, cfg.Engine.DefaultDepth, defaultTimePerMove, cfg.Engine.SkillLevel)

	limits := models.EngineLimits{MaxDepth: cfg.Engine.MaxDepth, MaxTimeMs: cfg.Engine.MaxTimeMs, MaxMultiPV: 5}
	orch := orchestrator.New(sched, enginePool, tuner, limits, cfg.Engine.DefaultDepth, defaultTimePerMove, cfg.Engine.SkillLevel)

	if cfg.App.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:3001"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	analysisHandler := handlers.NewAnalysisHandler(orch, store, analyticsCache, openings)
	importHandler := handlers.NewImportHandler(imp)
	openingHandler := handlers.NewOpeningHandler(openings)
	healthHandler := handlers.NewHealthHandler(orch)

	router.GET("/health", healthHandler.Health)

	api := router.Group("")
	{
		// Only the analysis-submission endpoint consumes the anonymous/
		// free-tier quota (spec §4.3); progress polling, result reads, and
		// every other route stay ungated.
		api.POST("/analyze", middleware.RateLimit(limiter), analysisHandler.Analyze)
		api.POST("/analyze/:job_id/cancel", analysisHandler.CancelAnalysis)
		api.GET("/results/:user_id/:platform", analysisHandler.GetResults)
		api.GET("/stats/:user_id/:platform", analysisHandler.GetStats)
		api.GET("/progress/:user_id/:platform", analysisHandler.GetProgress)
		api.POST("/analyses/:user_id/:platform/check", analysisHandler.CheckAnalyses)
		api.GET("/deep-analysis/:user_id/:platform", analysisHandler.GetDeepAnalysis)

		api.POST("/import-games-smart", importHandler.ImportGamesSmart)
		api.POST("/import-more-games", importHandler.ImportMoreGames)

		api.GET("/openings", openingHandler.GetAll)
		api.GET("/openings/:eco", openingHandler.GetByECO)

		api.GET("/engine/performance/metrics", healthHandler.EngineMetrics)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("starting server on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("server forced to shutdown: %v", err)
	}

	logrus.Info("server exited")
}
