// Package main is the entry point for the portfolio optimizer service.
// It exposes mean-variance and Monte Carlo resampled frontier optimization
// over a price history stored in SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portfolio-optimizer/internal/config"
	"portfolio-optimizer/internal/database"
	"portfolio-optimizer/internal/modules/allocation"
	"portfolio-optimizer/internal/modules/calculations"
	"portfolio-optimizer/internal/modules/history"
	"portfolio-optimizer/internal/modules/optimization"
	"portfolio-optimizer/internal/modules/performance"
	"portfolio-optimizer/internal/scheduler"
	"portfolio-optimizer/internal/server"
	"portfolio-optimizer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting portfolio optimizer")

	historyDatabase, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDatabase.Close()

	cacheDatabase, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDatabase.Close()

	historyDB := history.NewHistoryDB(historyDatabase.Conn(), log)
	if err := historyDB.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history schema")
	}

	calcCache := calculations.NewCache(cacheDatabase.Conn(), log)
	if err := calcCache.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	optimizationService := optimization.NewService(historyDB, log)
	optimizationService.SetCache(calcCache)
	optimizationService.SetRiskFreeRate(cfg.RiskFreeRate)
	optimizationService.SetDefaultLookback(cfg.DefaultLookbackDays)
	optimizationService.SetResampleDefaults(cfg.ResampleSimulations, cfg.ResampleWorkers)

	evaluator := performance.NewEvaluator(cfg.RiskFreeRate, log)
	allocator := allocation.NewAllocator(log)

	sched := scheduler.New(log)
	refreshJob := scheduler.NewRefreshStatisticsJob(optimizationService, calcCache, log)
	if err := sched.AddJob("0 0 3 * * *", refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register statistics refresh job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:                 log,
		Config:              cfg,
		HistoryDB:           historyDB,
		OptimizationService: optimizationService,
		Evaluator:           evaluator,
		Allocator:           allocator,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
