package usecase

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/sqldump"
)

var errVerifyStopped = errors.New("verification stopped")

// Verifier re-reads an artifact and checks that it is a complete script.
type Verifier struct {
	dbName     string
	store      domain.ArtifactStore
	compressor domain.Compressor
	logger     Logger
}

func NewVerifier(dbName string, store domain.ArtifactStore, compressor domain.Compressor, logger Logger) *Verifier {
	return &Verifier{
		dbName:     dbName,
		store:      store,
		compressor: compressor,
		logger:     logger,
	}
}

func (uc *Verifier) Verify(ctx context.Context, name string) domain.VerifyResult {
	name, ok := sanitizeName(name)
	if !ok {
		return domain.VerifyResult{Message: "Invalid backup file name"}
	}

	f, err := uc.store.Open(ctx, name)
	if err != nil {
		return domain.VerifyResult{Message: fmt.Sprintf("Backup not found: %s", name)}
	}
	defer f.Close()

	hash := sha256.New()
	tee := io.TeeReader(f, hash)
	src := tee
	if domain.IsCompressed(name) {
		pr, pw := io.Pipe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			pw.CloseWithError(uc.compressor.Decompress(pw, tee))
		}()
		// the decompressor reads f, so it has to stop before f is closed
		defer func() {
			_ = pr.CloseWithError(errVerifyStopped)
			<-done
		}()
		src = pr
	}

	inserts, last, err := scanScript(src)
	if err != nil {
		uc.logger.Errorf("[%s] Verification of %s failed: %v", uc.dbName, name, err)
		return domain.VerifyResult{Message: fmt.Sprintf("Failed to read backup: %v", err)}
	}
	if !strings.HasPrefix(last, sqldump.FooterMarker) {
		uc.logger.Warnf("[%s] %s is truncated", uc.dbName, name)
		return domain.VerifyResult{Statements: inserts, Message: "Backup is incomplete: completion marker missing"}
	}

	// the hash covers the stored bytes, so drain what the scanner left
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return domain.VerifyResult{Message: fmt.Sprintf("Failed to read backup: %v", err)}
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	uc.logger.Infof("[%s] Verified %s: %d INSERT statements, sha256 %s", uc.dbName, name, inserts, sum)
	return domain.VerifyResult{
		Success:    true,
		Statements: inserts,
		Checksum:   sum,
		Message:    fmt.Sprintf("Backup is complete (%d INSERT statements)", inserts),
	}
}

// scanScript counts INSERT statements and returns the last non-empty line.
func scanScript(r io.Reader) (int, string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		inserts int
		last    string
	)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if strings.HasPrefix(trimmed, "INSERT INTO ") {
				inserts++
			}
			last = trimmed
		}
		if errors.Is(err, io.EOF) {
			return inserts, last, nil
		}
		if err != nil {
			return inserts, last, err
		}
	}
}
