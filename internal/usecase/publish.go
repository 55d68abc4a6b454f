package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zeebo/errs"

	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/infrastructure/metrics"
)

type UploadTarget struct {
	Name    string
	Storage domain.Storage
}

// Publisher copies finished artifacts to the configured remote targets.
type Publisher struct {
	dbName  string
	store   domain.ArtifactStore
	targets []UploadTarget
	logger  Logger
}

func NewPublisher(dbName string, store domain.ArtifactStore, targets []UploadTarget, logger Logger) *Publisher {
	return &Publisher{
		dbName:  dbName,
		store:   store,
		targets: targets,
		logger:  logger,
	}
}

func (uc *Publisher) Enabled() bool {
	return len(uc.targets) > 0
}

// Publish uploads name to every target concurrently and waits for all of
// them. The returned error combines every failed target.
func (uc *Publisher) Publish(ctx context.Context, name string) error {
	localPath := uc.store.GetPath(name)
	failures := make([]error, len(uc.targets))

	var wg sync.WaitGroup
	for i, target := range uc.targets {
		wg.Add(1)
		go func(i int, t UploadTarget) {
			defer wg.Done()

			uc.logger.Infof("[%s] Uploading %s to %s...", uc.dbName, name, t.Name)
			if err := t.Storage.Upload(ctx, localPath, name); err != nil {
				uc.logger.Errorf("[%s] Failed to upload to %s: %v", uc.dbName, t.Name, err)
				metrics.UploadCount.WithLabelValues(uc.dbName, t.Name, "failure").Inc()
				failures[i] = fmt.Errorf("%s: %w", t.Name, err)
				return
			}
			uc.logger.Infof("[%s] Successfully uploaded to %s", uc.dbName, t.Name)
			metrics.UploadCount.WithLabelValues(uc.dbName, t.Name, "success").Inc()
		}(i, target)
	}
	wg.Wait()

	if err := errs.Combine(failures...); err != nil {
		return domain.ErrUpload.Wrap(err)
	}
	return nil
}

// Upload re-sends an existing artifact on demand.
func (uc *Publisher) Upload(ctx context.Context, name string) domain.UploadResult {
	name, ok := sanitizeName(name)
	if !ok {
		return domain.UploadResult{Message: "Invalid backup file name"}
	}
	if !uc.Enabled() {
		return domain.UploadResult{Message: "No upload target is configured"}
	}
	if _, err := uc.store.Stat(ctx, name); err != nil {
		return domain.UploadResult{Message: fmt.Sprintf("Backup not found: %s", name)}
	}

	if err := uc.Publish(ctx, name); err != nil {
		return domain.UploadResult{Message: fmt.Sprintf("Upload failed: %v", err)}
	}

	names := make([]string, len(uc.targets))
	for i, t := range uc.targets {
		names[i] = t.Name
	}
	return domain.UploadResult{
		Success: true,
		Message: fmt.Sprintf("Backup uploaded to %s", strings.Join(names, ", ")),
	}
}
