package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AntonStoeckl/eventlog-batch-reader/config"
	"github.com/AntonStoeckl/eventlog-batch-reader/internal/cmd/replay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "eventlog-replay:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := replay.NewCommand(cfg, replay.OpenPostgres).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
