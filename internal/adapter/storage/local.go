package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/sqlkeep/internal/domain"
)

const tempPrefix = ".tmp-"

// LocalStorage keeps artifacts as files in one directory. It is both the
// artifact store of a database and, pointed at another directory, a mirror
// upload target.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, domain.ErrDirectory.New("failed to create backup directory %s: %v", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes r to a temporary file and renames it into place, so readers
// never see a partial artifact.
func (l *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(l.basePath, tempPrefix+name+"-*")
	if err != nil {
		return 0, domain.ErrIO.New("failed to create temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, domain.ErrIO.New("failed to write %s: %v", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, domain.ErrIO.New("failed to sync %s: %v", name, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, domain.ErrIO.New("failed to close %s: %v", name, err)
	}

	if err := os.Rename(tmpPath, l.GetPath(name)); err != nil {
		return 0, domain.ErrIO.New("failed to move %s into place: %v", name, err)
	}
	return n, nil
}

// Upload copies a local file into this directory.
func (l *LocalStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if _, err := l.Save(ctx, remoteName, source); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	return nil
}

func (l *LocalStorage) List(ctx context.Context) ([]domain.Artifact, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, domain.ErrIO.New("failed to read directory: %v", err)
	}

	var files []domain.Artifact
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, artifactOf(info))
	}

	return files, nil
}

func (l *LocalStorage) Stat(ctx context.Context, name string) (domain.Artifact, error) {
	info, err := os.Stat(l.GetPath(name))
	if err != nil {
		return domain.Artifact{}, domain.ErrIO.Wrap(err)
	}
	if info.IsDir() {
		return domain.Artifact{}, domain.ErrIO.New("%s is a directory", name)
	}
	return artifactOf(info), nil
}

func (l *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(l.GetPath(name))
	if err != nil {
		return nil, domain.ErrIO.Wrap(err)
	}
	return f, nil
}

func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := os.Remove(l.GetPath(name)); err != nil {
		return domain.ErrIO.New("failed to delete file: %v", err)
	}
	return nil
}

func (l *LocalStorage) GetPath(filename string) string {
	return filepath.Join(l.basePath, filename)
}

func artifactOf(info os.FileInfo) domain.Artifact {
	return domain.Artifact{
		Name:       info.Name(),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Compressed: domain.IsCompressed(info.Name()),
	}
}
