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
	"github.com/acme/dialplan-sync/internal/normalizer"
	"github.com/acme/dialplan-sync/internal/provisioner"
	"github.com/acme/dialplan-sync/internal/report"
	"github.com/acme/dialplan-sync/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "config.yaml"), "path to configuration file")
	inPath := flag.String("in", "normalized.csv", "path of the normalized pattern CSV to read")
	prune := flag.Bool("prune", false, "delete remote patterns absent from the input")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close()

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry,
		container.Config.App.Name+"-provision", container.Config.App.Version)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	lg := container.Logger.WithStage("provision")

	f, err := os.Open(*inPath)
	if err != nil {
		lg.Error("provision: open input", zap.Error(err))
		return 1
	}
	patterns, skipped, err := normalizer.ReadCSV(f)
	f.Close()
	if err != nil {
		lg.Error("provision: read input", zap.Error(err))
		return 1
	}

	client, err := container.Webex(ctx)
	if err != nil {
		lg.Error("provision: bootstrap", zap.Error(err))
		return 1
	}

	rep, err := provisioner.New(client, container.Config, lg).
		Run(ctx, patterns, provisioner.Options{Prune: *prune})
	lg = lg.WithRun(rep.RunID)
	for _, s := range skipped {
		rep.Add(fmt.Sprintf("%s:%d", *inPath, s.Line), report.OpDrop, s.Err)
	}
	if err != nil {
		lg.Error("provision: run", zap.Error(err))
		rep.Log(lg)
		_ = rep.Write(os.Stdout)
		return 1
	}

	rep.Log(lg)
	_ = rep.Write(os.Stdout)
	return rep.ExitCode()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
