package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/internal/app"
	"github.com/acme/dialplan-sync/internal/extract"
	"github.com/acme/dialplan-sync/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "config.yaml"), "path to configuration file")
	outPath := flag.String("out", "raw_patterns.csv", "path of the raw pattern CSV to write")
	withNumbers := flag.Bool("with-numbers", false, "also extract individually learned numbers")
	insecure := flag.Bool("insecure", false, "skip TLS verification for the AXL endpoint")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close()

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry,
		container.Config.App.Name+"-extract", container.Config.App.Version)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	lg := container.Logger.WithStage("extract")

	if *insecure {
		container.Config.UCM.InsecureSkipVerify = true
	}

	axl, err := container.UCM()
	if err != nil {
		lg.Error("extract: bootstrap", zap.Error(err))
		return 1
	}

	patterns, err := extract.New(axl, lg).LearnedPatterns(ctx, *withNumbers)
	if err != nil {
		lg.Error("extract: learned patterns", zap.Error(err))
		return 1
	}

	f, err := os.Create(*outPath)
	if err != nil {
		lg.Error("extract: create output", zap.Error(err))
		return 1
	}
	if err := extract.WriteRaw(f, patterns); err != nil {
		f.Close()
		lg.Error("extract: write output", zap.Error(err))
		return 1
	}
	if err := f.Close(); err != nil {
		lg.Error("extract: close output", zap.Error(err))
		return 1
	}

	lg.Info("patterns extracted",
		zap.Int("count", len(patterns)),
		zap.String("out", *outPath))
	fmt.Printf("extracted %d patterns to %s\n", len(patterns), *outPath)
	return 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
