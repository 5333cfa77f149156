// Osprey Risk - real-time transaction fraud scoring.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/osprey-risk/internal/alerts"
	"github.com/opensource-finance/osprey-risk/internal/api"
	"github.com/opensource-finance/osprey-risk/internal/baseline"
	"github.com/opensource-finance/osprey-risk/internal/bus"
	"github.com/opensource-finance/osprey-risk/internal/cache"
	"github.com/opensource-finance/osprey-risk/internal/config"
	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/ensemble"
	"github.com/opensource-finance/osprey-risk/internal/explain"
	"github.com/opensource-finance/osprey-risk/internal/features"
	"github.com/opensource-finance/osprey-risk/internal/geoip"
	"github.com/opensource-finance/osprey-risk/internal/logging"
	"github.com/opensource-finance/osprey-risk/internal/repository"
	"github.com/opensource-finance/osprey-risk/internal/scoring"
	"github.com/opensource-finance/osprey-risk/internal/tracing"
	"github.com/opensource-finance/osprey-risk/internal/velocity"
	"github.com/opensource-finance/osprey-risk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("OSPREY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("starting osprey-risk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		slog.Error("osprey-risk stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("osprey-risk shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config, configPath string, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	// Backing stores
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Features
	history := velocity.NewService(cfg.Features, repo, logger)
	if _, err := history.Warm(ctx, cfg.Worker.TenantIDs, time.Now().UTC()); err != nil {
		slog.Warn("velocity warm-up incomplete", "error", err)
	}
	baselines := baseline.NewService(repo, cacheImpl, cfg.Cache.BaselineTTL, cfg.Features.BaselineWindow, logger)

	var assemblerOpts []features.Option
	if cfg.GeoIP.CityDBPath != "" {
		resolver, err := geoip.Open(cfg.GeoIP.CityDBPath)
		if err != nil {
			return fmt.Errorf("failed to open geoip database: %w", err)
		}
		defer resolver.Close()
		assemblerOpts = append(assemblerOpts, features.WithLocator(resolver))
		slog.Info("geoip resolver initialized", "path", cfg.GeoIP.CityDBPath)
	}
	assembler := features.NewAssembler(cfg.Features, history, baselines, logger, assemblerOpts...)

	// Models
	unsupervised, err := loadModel(cfg.Ensemble.UnsupervisedArtifact)
	if err != nil {
		return err
	}
	supervised, err := loadModel(cfg.Ensemble.SupervisedArtifact)
	if err != nil {
		return err
	}
	ens, err := ensemble.New(unsupervised, supervised, cfg.Ensemble.Weights, cfg.Ensemble.InferenceTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize ensemble: %w", err)
	}
	slog.Info("ensemble initialized", "model_version", ens.Snapshot().Version())

	// Decisions
	costs, err := decision.NewCostStore(cfg.Decision.Costs)
	if err != nil {
		return fmt.Errorf("failed to initialize cost matrix: %w", err)
	}
	thresholds, err := decision.NewThresholdStore(cfg.Decision.ApproveThreshold, cfg.Decision.BlockThreshold, cfg.Decision.Costs.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize thresholds: %w", err)
	}
	classifier := decision.NewClassifier(cfg.Decision)
	calibrator := decision.NewCalibrator(thresholds, costs, logger)
	explainer := explain.NewGenerator(cfg.Explain, logger)
	alertSvc := alerts.NewService(repo, logger)

	processor := scoring.NewProcessor(assembler, ens, classifier, thresholds, explainer, logger,
		scoring.WithStore(repo),
		scoring.WithAlerts(alertSvc),
		scoring.WithBus(busImpl),
	)

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg, config.Targets{
			Thresholds: thresholds,
			Costs:      costs,
			Weights:    ens,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		watcher.Start()
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, processor, logger)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		slog.Info("async worker started", "tenant_count", len(cfg.Worker.TenantIDs))
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Scorer:     processor,
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Alerts:     alertSvc,
		Baselines:  baselines,
		Ensemble:   ens,
		Thresholds: thresholds,
		Costs:      costs,
		Calibrator: calibrator,
		Version:    Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		slog.Info("osprey-risk is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		// Stop async worker first
		if asyncWorker != nil {
			if err := asyncWorker.Stop(); err != nil {
				slog.Error("failed to stop async worker", "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadModel reads an artifact file, or returns nil so the ensemble uses its heuristics.
func loadModel(path string) (*ensemble.Model, error) {
	if path == "" {
		return nil, nil
	}
	m, err := ensemble.LoadArtifactFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}
	slog.Info("model artifact loaded", "path", path, "kind", m.Kind, "version", m.Version)
	return m, nil
}
