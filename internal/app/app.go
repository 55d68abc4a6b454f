package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/semmidev/sqlkeep/internal/adapter/cache"
	"github.com/semmidev/sqlkeep/internal/adapter/compressor"
	"github.com/semmidev/sqlkeep/internal/adapter/storage"
	"github.com/semmidev/sqlkeep/internal/config"
	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/infrastructure/logger"
	"github.com/semmidev/sqlkeep/internal/infrastructure/metrics"
	"github.com/semmidev/sqlkeep/internal/infrastructure/scheduler"
	"github.com/semmidev/sqlkeep/internal/usecase"
	"github.com/zeebo/errs"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler *scheduler.Scheduler
	cache     domain.ListingCache
	targets   []usecase.UploadTarget
	services  []*Service
	metrics   *http.Server
}

// New builds one Service per database. With no names every enabled database
// is used and a database that cannot be reached is skipped. Named databases
// are used even when disabled and any failure is returned.
func New(ctx context.Context, cfg *config.Config, names ...string) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newApp(ctx, cfg, log, names...)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, names ...string) (*App, error) {
	listingCache, err := newCache(ctx, cfg.Backup.Cache)
	if err != nil {
		return nil, err
	}

	gz, err := compressor.NewGzipLevel(cfg.Backup.CompressionLevel)
	if err != nil {
		return nil, domain.ErrConfig.Wrap(err)
	}

	a := &App{
		config:    cfg,
		logger:    log,
		scheduler: scheduler.New(log.Named("scheduler")),
		cache:     listingCache,
		targets:   initializeUploadTargets(ctx, cfg, log),
	}

	deps := Dependencies{
		Cache:      listingCache,
		Compressor: gz,
		Targets:    a.targets,
		Logger:     log,
	}

	if len(names) > 0 {
		for _, name := range names {
			dbCfg, ok := cfg.GetDatabase(name)
			if !ok {
				a.Shutdown()
				return nil, domain.ErrConfig.New("unknown database %q", name)
			}
			svc, err := NewService(ctx, dbCfg, cfg.Backup, deps)
			if err != nil {
				a.Shutdown()
				return nil, err
			}
			a.services = append(a.services, svc)
		}
		return a, nil
	}

	for _, dbCfg := range cfg.GetEnabledDatabases() {
		svc, err := NewService(ctx, dbCfg, cfg.Backup, deps)
		if err != nil {
			log.Errorf("[%s] Skipping database: %v", dbCfg.Name, err)
			continue
		}
		log.Infof("[%s] Connected to %s:%d/%s", dbCfg.Name, dbCfg.Host, dbCfg.Port, dbCfg.Database)
		a.services = append(a.services, svc)
	}

	if len(a.services) == 0 {
		a.Shutdown()
		return nil, errors.New("no enabled databases could be connected")
	}
	return a, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (domain.ListingCache, error) {
	switch cfg.Type {
	case "redis":
		c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		return c, nil
	default:
		return cache.NewMemory(), nil
	}
}

func initializeUploadTargets(ctx context.Context, cfg *config.Config, log *logger.Logger) []usecase.UploadTarget {
	var targets []usecase.UploadTarget

	if cfg.Backup.FTP.Enabled {
		if !cfg.Backup.FTP.PassiveMode {
			log.Warnf("FTP active mode is not supported, transfers use passive mode")
		}
		targets = append(targets, usecase.UploadTarget{Name: "ftp", Storage: storage.NewFTP(cfg.Backup.FTP)})
		log.Infof("FTP upload enabled (%s)", cfg.Backup.FTP.Host)
	}

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		var stor domain.Storage
		var err error

		switch targetCfg.Type {
		case "gdrive":
			stor, err = storage.NewGDrive(ctx, &targetCfg)
		case "s3":
			stor, err = storage.NewS3(ctx, &targetCfg)
		case "telegram":
			stor, err = storage.NewTelegram(&targetCfg)
		case "local":
			stor, err = storage.NewLocal(targetCfg.Path)
		default:
			log.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}
		if err != nil {
			log.Errorf("Failed to initialize %s upload: %v", targetCfg.Type, err)
			continue
		}

		log.Infof("%s upload enabled", targetCfg.Type)
		targets = append(targets, usecase.UploadTarget{
			Name:    targetCfg.Type,
			Storage: stor,
		})
	}

	return targets
}

// Service returns the service for a configured database name.
func (a *App) Service(name string) (*Service, bool) {
	for _, svc := range a.services {
		if svc.Name == name {
			return svc, true
		}
	}
	return nil, false
}

func (a *App) Services() []*Service {
	return a.services
}

// Run schedules a backup job per service and a cleanup job covering all of
// them, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	for _, svc := range a.services {
		job := svc.Job()
		if err := a.scheduler.AddJob("backup "+job.DatabaseName, job.Schedule, job.BackupUC.Execute); err != nil {
			return err
		}
		a.logger.Infof("[%s] Scheduled backup: %s", job.DatabaseName, job.Schedule)
	}

	if err := a.scheduler.AddJob("cleanup", a.config.Backup.CleanupSchedule, a.cleanupAll); err != nil {
		return err
	}
	a.logger.Infof("Scheduled cleanup: %s", a.config.Backup.CleanupSchedule)

	if addr := a.config.App.MetricsAddr; addr != "" {
		a.metrics = metrics.NewServer(addr)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Errorf("Metrics server stopped: %v", err)
			}
		}()
		a.logger.Infof("Metrics listening on %s", addr)
	}

	a.scheduler.Start(ctx)
	a.logger.Infof("%s started with %d database(s), local + %d remote target(s)",
		a.config.App.Name, len(a.services), len(a.targets))

	<-ctx.Done()
	return nil
}

func (a *App) cleanupAll(ctx context.Context) error {
	var failed []error
	for _, svc := range a.services {
		if _, err := svc.Cleanup(ctx); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", svc.Name, err))
		}
	}
	return errs.Combine(failed...)
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down...")
	a.scheduler.Stop()

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}

	for _, svc := range a.services {
		if err := svc.Close(); err != nil {
			a.logger.Warnf("[%s] Close failed: %v", svc.Name, err)
		}
	}
	if c, ok := a.cache.(io.Closer); ok {
		_ = c.Close()
	}
	a.logger.Close()
}
