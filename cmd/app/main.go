package main

import (
	"flag"
	"log"
	"os"

	"AnimaRex/internal/di"
	"AnimaRex/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s broker=%s state=%s markets=%v strategies=%v",
		cfg.Environment, cfg.Broker.Mode, cfg.State.Backend, cfg.Markets, cfg.StrategyNames())

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
