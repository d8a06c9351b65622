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
	"github.com/acme/dialplan-sync/internal/normalizer"
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
	inPath := flag.String("in", "raw_patterns.csv", "path of the raw pattern CSV to read")
	outPath := flag.String("out", "normalized.csv", "path of the normalized pattern CSV to write, - for stdout")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close()

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry,
		container.Config.App.Name+"-normalize", container.Config.App.Version)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	rep := report.New("normalize")
	lg := container.Logger.WithStage("normalize").WithRun(rep.RunID)

	f, err := os.Open(*inPath)
	if err != nil {
		lg.Error("normalize: open input", zap.Error(err))
		return 1
	}
	raw, skipped, err := extract.ReadRaw(f)
	f.Close()
	if err != nil {
		lg.Error("normalize: read input", zap.Error(err))
		return 1
	}
	for _, s := range skipped {
		rep.Add(fmt.Sprintf("%s:%d", *inPath, s.Line), report.OpDrop, s.Err)
	}

	n := normalizer.New(container.Config.PlanByCatalog(),
		container.Config.Normalize.DefaultRegion, lg)
	result := n.Run(raw)

	for _, d := range result.Dropped {
		rep.Add(d.Raw.RouteString+"/"+d.Raw.Pattern, report.OpDrop, d.Reason)
	}
	for _, p := range result.Patterns {
		rep.Add(p.DialPlan+"/"+p.Pattern, report.OpAdd, nil)
	}

	// With the patterns on stdout the report moves to stderr.
	out, reportDst := os.Stdout, os.Stdout
	if *outPath == "-" {
		reportDst = os.Stderr
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			lg.Error("normalize: create output", zap.Error(err))
			return 1
		}
	}
	if err := normalizer.WriteCSV(out, result.Patterns); err != nil {
		if out != os.Stdout {
			out.Close()
		}
		lg.Error("normalize: write output", zap.Error(err))
		return 1
	}
	if out != os.Stdout {
		if err := out.Close(); err != nil {
			lg.Error("normalize: close output", zap.Error(err))
			return 1
		}
	}

	rep.Log(lg)
	_ = rep.Write(reportDst)
	return rep.ExitCode()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
