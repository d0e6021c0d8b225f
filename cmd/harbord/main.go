package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"harbor/internal/app"
	"harbor/pkg/banner"
	"harbor/pkg/config"
)

// set via ldflags at release time
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	cfgVal, dataVal, sockVal, setFlags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// Explicit flags win over config and env.
	if setFlags["data"] {
		cfg.DataDir = dataVal
	}
	if setFlags["socket"] {
		cfg.Daemon.Socket = sockVal
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	banner.Print(cfg, version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Printf("daemon exited: %v", err)
		os.Exit(1)
	}
}
