package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/sqlkeep/internal/config"
	"github.com/semmidev/sqlkeep/internal/domain"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

// NewGDrive authenticates with a service account key limited to files the
// account creates.
func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, key, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	service, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.ErrUpload.New("failed to open file: %v", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{
		Name:        remoteName,
		Description: "sqlkeep backup",
	}
	if g.folderID != "" {
		fileMetadata.Parents = []string{g.folderID}
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return domain.ErrUpload.New("failed to upload to gdrive: %v", err)
	}

	return nil
}
