package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acme/dialplan-sync/internal/app"
	"github.com/acme/dialplan-sync/internal/provisioner"
	"github.com/acme/dialplan-sync/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close()

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry,
		container.Config.App.Name+"-deleteplans", container.Config.App.Version)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	lg := container.Logger.WithStage("deleteplans")

	client, err := container.Webex(ctx)
	if err != nil {
		lg.Error("deleteplans: bootstrap", zap.Error(err))
		return 1
	}

	rep, err := provisioner.New(client, container.Config, lg).DeletePlans(ctx)
	lg = lg.WithRun(rep.RunID)
	if err != nil {
		lg.Error("deleteplans: run", zap.Error(err))
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
