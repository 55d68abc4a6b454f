package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/semmidev/sqlkeep/internal/adapter/database"
	"github.com/semmidev/sqlkeep/internal/adapter/storage"
	"github.com/semmidev/sqlkeep/internal/config"
	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/infrastructure/logger"
	"github.com/semmidev/sqlkeep/internal/usecase"
)

var connectDatabase = func(ctx context.Context, cfg database.ConnectionConfig, log database.Logger) (domain.Database, error) {
	db, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Dependencies are shared by every Service of an App.
type Dependencies struct {
	Cache      domain.ListingCache
	Compressor domain.Compressor
	Targets    []usecase.UploadTarget
	Logger     *logger.Logger
}

// Service exposes the backup operations of one configured database.
type Service struct {
	Name     string
	Schedule string

	db        domain.Database
	store     domain.ArtifactStore
	backup    *usecase.Backup
	retention *usecase.Retention
	publisher *usecase.Publisher
	verifier  *usecase.Verifier
}

// NewService prepares the backup directory and connects to the database.
// Either failure is returned as is: ErrDirectory, ErrConnection or
// ErrDatabaseNotFound.
func NewService(ctx context.Context, dbCfg config.DatabaseConfig, backupCfg config.BackupConfig, deps Dependencies) (*Service, error) {
	modes, err := dbCfg.Modes()
	if err != nil {
		return nil, domain.ErrConfig.Wrap(err)
	}

	store, err := storage.NewLocal(filepath.Join(backupCfg.LocalPath, dbCfg.Name))
	if err != nil {
		return nil, err
	}

	db, err := connectDatabase(ctx, database.ConnectionConfig{
		Host:     dbCfg.Host,
		Port:     dbCfg.Port,
		Username: dbCfg.Username,
		Password: dbCfg.Password,
		Database: dbCfg.Database,
		Charset:  dbCfg.Charset,
	}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dbCfg.Name, err)
	}

	log := deps.Logger.Named(dbCfg.Name)

	retention := usecase.NewRetention(dbCfg.Name, store, deps.Cache, log, usecase.RetentionOptions{
		MaxCount:   backupCfg.MaxBackupCount,
		MaxAgeDays: backupCfg.MaxBackupAgeDays,
		CacheTime:  backupCfg.CacheTTL(),
	})
	publisher := usecase.NewPublisher(dbCfg.Name, store, deps.Targets, log)

	backup := usecase.NewBackup(db, store, deps.Compressor, retention, publisher, log, usecase.BackupOptions{
		Charset:        dbCfg.Charset,
		Compress:       backupCfg.Compress,
		RemoveDefiners: backupCfg.RemoveDefiners,
		ExcludedTables: dbCfg.ExcludedTables,
		TableModes:     modes,
	})

	return &Service{
		Name:      dbCfg.Name,
		Schedule:  dbCfg.Schedule,
		db:        db,
		store:     store,
		backup:    backup,
		retention: retention,
		publisher: publisher,
		verifier:  usecase.NewVerifier(dbCfg.Name, store, deps.Compressor, log),
	}, nil
}

func (s *Service) CreateBackup(ctx context.Context, observer domain.ProgressObserver) domain.CreateResult {
	return s.backup.Create(ctx, observer)
}

func (s *Service) ListBackups(ctx context.Context) ([]domain.BackupEntry, error) {
	return s.retention.List(ctx)
}

func (s *Service) DeleteBackup(ctx context.Context, name string) domain.DeleteResult {
	return s.retention.Delete(ctx, name)
}

func (s *Service) PrepareDownload(ctx context.Context, name string) domain.DownloadResult {
	return s.retention.PrepareDownload(ctx, name)
}

func (s *Service) UploadBackup(ctx context.Context, name string) domain.UploadResult {
	return s.publisher.Upload(ctx, name)
}

func (s *Service) Cleanup(ctx context.Context) (domain.CleanupReport, error) {
	return s.retention.Cleanup(ctx)
}

func (s *Service) Verify(ctx context.Context, name string) domain.VerifyResult {
	return s.verifier.Verify(ctx, name)
}

// Job returns the scheduler entry for this service.
func (s *Service) Job() domain.BackupJob {
	return domain.BackupJob{
		DatabaseName: s.Name,
		Schedule:     s.Schedule,
		BackupUC:     s.backup,
	}
}

func (s *Service) Close() error {
	return s.db.Close()
}
