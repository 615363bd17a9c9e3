package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Conductor/internal/di"
	"Conductor/pkg/config"
	xutil "Conductor/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	once := flag.Bool("once", false, "run a single decision cycle, print the intent and exit")
	asOfFlag := flag.String("as-of", "", "evaluation timestamp override for -once (RFC3339 or YYYY-MM-DD)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	asOf, err := xutil.ParseAsOf(*asOfFlag)
	if err != nil {
		log.Fatalf("bad -as-of: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		intent, err := app.RunOnce(ctx, asOf)
		if err != nil {
			log.Printf("cycle failed: %v", err)
			cleanup()
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(intent); err != nil {
			log.Printf("encode intent: %v", err)
		}
		return
	}

	log.Printf("env=%s universe=%d strategies=%d", cfg.Environment, len(cfg.Universe), len(cfg.Strategies))
	if err := app.Run(ctx); err != nil {
		log.Printf("app error: %v", err)
		cleanup()
		os.Exit(1)
	}
}
