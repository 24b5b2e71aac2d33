// Command prebuild acquires components ahead of time, so a server starts
// with its kernel and root filesystem already staged.
//
// Usage:
//
//	prebuild                     # every component in the manifest
//	prebuild kernel initramfs    # only the named components
//	prebuild -manifest components.toml -native
//
// The exit status is non-zero when a required component fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/component"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/server"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/fetch"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/stage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}

	manifest := flag.String("manifest", cfg.Storage.Manifest, "Component manifest (YAML, TOML or JSON); empty uses the built-in catalog")
	downloads := flag.String("downloads", cfg.Storage.DownloadsDir, "Downloads directory")
	native := flag.Bool("native", cfg.Stage.Mode == stage.ModeNative, "Extract in-process instead of with tar")
	dev := flag.Bool("dev", cfg.Logging.Development, "Console logs at debug level")
	flag.Parse()

	level := cfg.Logging.Level
	if *dev {
		level = "debug"
	}
	logger := logging.FromLevel(level, *dev)
	defer logger.Sync()

	mode := cfg.Stage.Mode
	if *native {
		mode = stage.ModeNative
	}

	catalog, err := component.LoadCatalog(*downloads, *manifest)
	if err != nil {
		logger.Error("failed to load component catalog", zap.Error(err))
		return 2
	}
	if err := os.MkdirAll(*downloads, 0o755); err != nil {
		logger.Error("failed to create downloads directory", zap.Error(err))
		return 2
	}

	metrics := monitoring.NewMetrics()
	fetcher := fetch.New(server.FetchConfig(cfg), logger.Named("fetch").Logger, metrics)
	stager := stage.New(stage.Config{
		Mode:    mode,
		Timeout: cfg.Stage.Timeout,
		TarBin:  cfg.Stage.TarBin,
	}, logger.Named("stage").Logger, metrics)
	pipeline := component.NewPipeline(catalog, fetcher, stager, nil, logger.Named("pipeline").Logger, metrics)
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.Run(ctx, flag.Args())
	if report != nil {
		for _, out := range report.Outcomes {
			fields := []zap.Field{zap.String("component", out.ID), zap.String("result", string(out.Result))}
			if out.Path != "" {
				fields = append(fields, zap.String("path", out.Path))
			}
			if out.Error != "" {
				fields = append(fields, zap.String("error", out.Error))
			}
			logger.Info("component", fields...)
		}
	}
	if err != nil {
		logger.Error("prebuild failed", zap.Error(err))
		return 1
	}
	return 0
}
