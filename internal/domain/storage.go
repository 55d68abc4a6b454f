package domain

import (
	"context"
	"io"
	"time"
)

// Storage is a remote upload target.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
}

// ArtifactStore is the local, name-addressed home of backup files.
type ArtifactStore interface {
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	List(ctx context.Context) ([]Artifact, error)
	Stat(ctx context.Context, name string) (Artifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	GetPath(name string) string
}

type ListingCache interface {
	Get(ctx context.Context, key string) ([]BackupEntry, bool)
	Set(ctx context.Context, key string, entries []BackupEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
