package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peer-chat/internal/config"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger().Fatal(err)
		return
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := tracker.NewServer(tracker.Config{Addr: cfg.ListenAddr, Logger: log})
	if err != nil {
		log.Fatal(err)
		return
	}

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err)
	}
	_ = srv.Shutdown()
}
