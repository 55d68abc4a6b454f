package domain

import (
	"context"
	"strings"
	"time"
)

const (
	SQLExt  = ".sql"
	GzipExt = ".sql.gz"
)

// Artifact is one backup file as reported by an ArtifactStore.
type Artifact struct {
	Name       string
	Size       int64
	ModTime    time.Time
	Compressed bool
}

// BackupEntry is the listing shape returned to callers.
type BackupEntry struct {
	FileName   string    `json:"file_name"`
	Size       string    `json:"size"`
	Date       string    `json:"date"`
	SizeBytes  int64     `json:"size_bytes"`
	ModTime    time.Time `json:"mod_time"`
	Compressed bool      `json:"compressed"`
}

type BackupJob struct {
	DatabaseName string
	Schedule     string
	BackupUC     BackupExecutor
}

type BackupExecutor interface {
	Execute(ctx context.Context) error
}

// IsBackupFile reports whether name carries one of the recognized artifact suffixes.
func IsBackupFile(name string) bool {
	return strings.HasSuffix(name, GzipExt) || strings.HasSuffix(name, SQLExt)
}

func IsCompressed(name string) bool {
	return strings.HasSuffix(name, GzipExt)
}
