package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/voxrelay"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (optional)")
	flag.Parse()

	cfg, err := voxrelay.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		os.Exit(1)
	}
	log := logging.InitLogger(logging.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	app, err := voxrelay.NewEngine(voxrelay.EngineOptions{
		Config: cfg,
		Logger: log,
		Banner: os.Stdout,
	})
	if err != nil {
		log.Error("voxrelay_init_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Error("voxrelay_exit", "error", err)
		os.Exit(1)
	}
}
