package storage

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/semmidev/sqlkeep/internal/config"
	"github.com/semmidev/sqlkeep/internal/domain"
)

type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// FTPStorage uploads artifacts to an FTP server, optionally over explicit
// TLS. The client always transfers in passive mode.
type FTPStorage struct {
	cfg  config.FTPConfig
	dial func(ctx context.Context) (ftpConn, error)
}

func NewFTP(cfg config.FTPConfig) *FTPStorage {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	f := &FTPStorage{cfg: cfg}
	f.dial = f.dialServer
	return f
}

func (f *FTPStorage) dialServer(ctx context.Context) (ftpConn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.cfg.DialTimeout()),
	}
	if f.cfg.UseTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: f.cfg.Host}))
	}

	conn, err := ftp.Dial(net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port)), opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (f *FTPStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.ErrUpload.New("failed to open file: %v", err)
	}
	defer file.Close()

	conn, err := f.dial(ctx)
	if err != nil {
		return domain.ErrUpload.New("failed to connect to %s: %v", f.cfg.Host, err)
	}
	defer conn.Quit()

	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return domain.ErrUpload.New("failed to log in to %s: %v", f.cfg.Host, err)
	}

	if err := f.enterBaseDir(conn); err != nil {
		return err
	}

	if err := conn.Stor(remoteName, file); err != nil {
		return domain.ErrUpload.New("failed to store %s: %v", remoteName, err)
	}
	return nil
}

// enterBaseDir walks to remote_base_path one segment at a time, creating
// the segments that do not exist yet.
func (f *FTPStorage) enterBaseDir(conn ftpConn) error {
	base := strings.TrimSpace(f.cfg.RemoteBasePath)
	if strings.HasPrefix(base, "/") {
		if err := conn.ChangeDir("/"); err != nil {
			return domain.ErrUpload.New("failed to enter /: %v", err)
		}
	}

	for _, segment := range strings.Split(base, "/") {
		if segment == "" || segment == "." {
			continue
		}
		if err := conn.ChangeDir(segment); err == nil {
			continue
		}
		if err := conn.MakeDir(segment); err != nil {
			return domain.ErrUpload.New("failed to create remote directory %s: %v", segment, err)
		}
		if err := conn.ChangeDir(segment); err != nil {
			return domain.ErrUpload.New("failed to enter remote directory %s: %v", segment, err)
		}
	}
	return nil
}
