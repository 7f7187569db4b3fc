// Command palvalidator is the process entry point: it loads
// configuration, prepares a pattern catalog into baseline strategies,
// runs the configured validator algorithm across Executor, and
// optionally mounts the results server while it does. Narrowed from
// the base repository's cmd/server/main.go, which wired up a live
// trading stack (market data, blockchain clients, signal aggregation,
// an autonomous agent) behind the same server/websocket/graceful-
// shutdown shape this binary keeps for a single batch validator run
// instead.
package main

import (
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkc-quant/palvalidator/internal/api"
	"github.com/mkc-quant/palvalidator/internal/backtester"
	"github.com/mkc-quant/palvalidator/internal/config"
	"github.com/mkc-quant/palvalidator/internal/executor"
	"github.com/mkc-quant/palvalidator/internal/permtest"
	"github.com/mkc-quant/palvalidator/internal/prep"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/validator"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const algorithmName = "romano_wolf"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting palvalidator",
		zap.String("run_id", cfg.RunID.String()),
		zap.Int("permutations", cfg.NumPermutations),
		zap.Bool("partition_by_family", cfg.PartitionByFamily),
		zap.Bool("api", cfg.EnableAPI),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	tickSize := decimal.NewFromFloat(0.01)
	security, demoSeries := "DEMO", buildDemoSeries()
	patterns := buildDemoPatterns()
	statPolicy := &permtest.ProfitFactorPolicy{MinTrades: 5}

	exec := executor.NewFixedPool(cfg.ExecutorWorkers, logger)
	defer exec.Close()

	securities := map[string]*series.Series{security: demoSeries}

	firstBar, err := demoSeries.First()
	if err != nil {
		logger.Fatal("demo series has no bars", zap.Error(err))
	}
	lastBar, err := demoSeries.Last()
	if err != nil {
		logger.Fatal("demo series has no bars", zap.Error(err))
	}

	template := backtester.NewDaily(logger)
	if err := template.Configure(firstBar.Timestamp, lastBar.Timestamp); err != nil {
		logger.Fatal("configuring template engine", zap.Error(err))
	}

	var apiServer *api.Server
	var store *api.Store
	if cfg.EnableAPI {
		store = api.NewStore()
		apiServer = api.NewServer(logger, cfg.Host, cfg.Port, store)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Info("results server stopped", zap.Error(err))
			}
		}()
		store.Start(cfg.RunID.String(), algorithmName, cfg.NumPermutations)
	}

	preparer := &prep.Preparer{
		Template:   template,
		Stat:       statPolicy,
		TickSize:   tickSize,
		UnitVolume: decimal.NewFromInt(1),
		Executor:   exec,
		Logger:     logger,
	}

	baseline, err := preparer.Prepare(ctx, security, demoSeries, patterns)
	if err != nil {
		logger.Fatal("preparing baseline strategies", zap.Error(err))
	}
	logger.Info("prepared baseline strategies", zap.Int("count", len(baseline)))

	newRunner := func() *validator.Runner {
		return validator.NewRunner(template, securities, tickSize, statPolicy)
	}
	newAlgorithm := func(r *validator.Runner) validator.Algorithm {
		return &validator.RomanoWolf{Runner: r, Executor: exec}
	}
	family := &validator.FamilyPartitioned{
		NewAlgorithm: newAlgorithm,
		NewRunner:    newRunner,
		Partition:    cfg.PartitionByFamily,
		Executor:     exec,
	}

	runSeed := binary.BigEndian.Uint64(cfg.RunID[:8])
	survivors, err := family.Run(ctx, baseline, cfg.NumPermutations, cfg.SignificanceLevel, runSeed)
	if err != nil {
		if store != nil {
			store.Fail(cfg.RunID.String(), err)
			apiServer.PublishTerminal(cfg.RunID.String(), api.StatusFailed)
		}
		logger.Fatal("validator run failed", zap.Error(err))
	}

	logger.Info("validator run complete", zap.Int("survivors", len(survivors)))
	for name, pValue := range survivors {
		logger.Info("strategy adjusted p-value", zap.String("strategy", name), zap.String("p_value", pValue.String()))
	}

	if store != nil {
		store.Complete(cfg.RunID.String(), survivors)
		apiServer.PublishTerminal(cfg.RunID.String(), api.StatusCompleted)
	}

	if apiServer != nil {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("error during results server shutdown", zap.Error(err))
		}
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
