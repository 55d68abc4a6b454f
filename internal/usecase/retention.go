package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/infrastructure/metrics"
)

type RetentionOptions struct {
	MaxCount   int
	MaxAgeDays int
	CacheTime  time.Duration
}

// Retention owns the lifecycle of the artifacts of one backup directory:
// pruning, the cached listing, deletion and download preparation.
type Retention struct {
	dbName string
	store  domain.ArtifactStore
	cache  domain.ListingCache
	logger Logger
	opts   RetentionOptions
	now    func() time.Time
}

func NewRetention(
	dbName string,
	store domain.ArtifactStore,
	cache domain.ListingCache,
	logger Logger,
	opts RetentionOptions,
) *Retention {
	return &Retention{
		dbName: dbName,
		store:  store,
		cache:  cache,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Execute runs a cleanup pass so a Retention can be scheduled directly.
func (uc *Retention) Execute(ctx context.Context) error {
	_, err := uc.Cleanup(ctx)
	return err
}

// Cleanup removes the artifacts beyond MaxCount (newest kept) and then
// anything older than MaxAgeDays. A file that cannot be removed is logged,
// recorded in the report and skipped.
func (uc *Retention) Cleanup(ctx context.Context) (domain.CleanupReport, error) {
	report := domain.CleanupReport{Failed: make(map[string]string)}

	artifacts, err := uc.artifacts(ctx)
	if err != nil {
		return report, err
	}

	remaining := artifacts
	if uc.opts.MaxCount > 0 && len(artifacts) > uc.opts.MaxCount {
		remaining = artifacts[:uc.opts.MaxCount]
		for _, a := range artifacts[uc.opts.MaxCount:] {
			uc.remove(ctx, a.Name, "count", &report)
		}
	}

	if uc.opts.MaxAgeDays > 0 {
		cutoff := uc.now().AddDate(0, 0, -uc.opts.MaxAgeDays)
		for _, a := range remaining {
			if a.ModTime.Before(cutoff) {
				uc.remove(ctx, a.Name, "age", &report)
			}
		}
	}

	if len(report.Deleted) > 0 {
		uc.Invalidate(ctx)
	}
	uc.logger.Infof("[%s] Cleanup completed: %d deleted, %d failed",
		uc.dbName, len(report.Deleted), len(report.Failed))

	return report, nil
}

func (uc *Retention) remove(ctx context.Context, name, reason string, report *domain.CleanupReport) {
	uc.logger.Infof("[%s] Deleting old backup (%s): %s", uc.dbName, reason, name)
	if err := uc.store.Delete(ctx, name); err != nil {
		uc.logger.Errorf("[%s] Failed to delete %s: %v", uc.dbName, name, err)
		report.Failed[name] = err.Error()
		return
	}
	report.Deleted = append(report.Deleted, name)
	metrics.RetentionDeletes.WithLabelValues(uc.dbName, reason).Inc()
}

// List returns the backups newest first, served from the cache while it
// is fresh.
func (uc *Retention) List(ctx context.Context) ([]domain.BackupEntry, error) {
	key := listingKey(uc.store.GetPath(""))
	if entries, ok := uc.cache.Get(ctx, key); ok {
		return entries, nil
	}

	artifacts, err := uc.artifacts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.BackupEntry, 0, len(artifacts))
	for _, a := range artifacts {
		entries = append(entries, domain.BackupEntry{
			FileName:   a.Name,
			Size:       formatSize(a.Size),
			Date:       a.ModTime.Format(dateLayout),
			SizeBytes:  a.Size,
			ModTime:    a.ModTime,
			Compressed: a.Compressed,
		})
	}

	if err := uc.cache.Set(ctx, key, entries, uc.opts.CacheTime); err != nil {
		uc.logger.Warnf("[%s] Failed to cache backup listing: %v", uc.dbName, err)
	}
	return entries, nil
}

func (uc *Retention) Delete(ctx context.Context, name string) domain.DeleteResult {
	name, ok := sanitizeName(name)
	if !ok {
		return domain.DeleteResult{Message: "Invalid backup file name"}
	}

	if err := uc.store.Delete(ctx, name); err != nil {
		uc.logger.Errorf("[%s] Failed to delete %s: %v", uc.dbName, name, err)
		return domain.DeleteResult{Message: fmt.Sprintf("Failed to delete backup: %v", err)}
	}
	uc.Invalidate(ctx)

	uc.logger.Infof("[%s] Deleted backup %s", uc.dbName, name)
	return domain.DeleteResult{Success: true, Message: "Backup deleted successfully"}
}

func (uc *Retention) PrepareDownload(ctx context.Context, name string) domain.DownloadResult {
	name, ok := sanitizeName(name)
	if !ok {
		return domain.DownloadResult{Message: "Invalid backup file name"}
	}

	if _, err := uc.store.Stat(ctx, name); err != nil {
		return domain.DownloadResult{Message: fmt.Sprintf("Backup not found: %s", name)}
	}

	return domain.DownloadResult{
		Success:  true,
		FilePath: uc.store.GetPath(name),
		FileName: name,
		MimeType: mimeType(name),
		Message:  "Backup ready for download",
	}
}

// Invalidate drops the cached listing.
func (uc *Retention) Invalidate(ctx context.Context) {
	if err := uc.cache.Invalidate(ctx, listingKey(uc.store.GetPath(""))); err != nil {
		uc.logger.Warnf("[%s] Failed to invalidate backup listing: %v", uc.dbName, err)
	}
}

// artifacts lists backup files newest first. Equal timestamps are ordered by
// name, descending, so the result is stable.
func (uc *Retention) artifacts(ctx context.Context) ([]domain.Artifact, error) {
	all, err := uc.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	artifacts := make([]domain.Artifact, 0, len(all))
	for _, a := range all {
		if !domain.IsBackupFile(a.Name) {
			continue
		}
		if a.ModTime.IsZero() {
			if ts, err := extractTimestamp(a.Name); err == nil {
				a.ModTime = ts
			}
		}
		artifacts = append(artifacts, a)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].ModTime.Equal(artifacts[j].ModTime) {
			return artifacts[i].ModTime.After(artifacts[j].ModTime)
		}
		return artifacts[i].Name > artifacts[j].Name
	})
	return artifacts, nil
}

// sanitizeName keeps only the base name and accepts recognized suffixes.
func sanitizeName(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || !domain.IsBackupFile(base) {
		return "", false
	}
	return base, true
}
