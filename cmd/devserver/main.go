package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lukemadsen/sketchwire/internal/config"
	"github.com/lukemadsen/sketchwire/internal/devserver"
)

func main() {
	cfg := config.Load()

	zapCfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	log, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	h := devserver.NewHub(ctx, log)
	handler := devserver.SetupRoutes(h, log)

	log.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
