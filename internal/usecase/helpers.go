package usecase

import (
	"fmt"
	"regexp"
	"time"

	"github.com/semmidev/sqlkeep/internal/domain"
)

const (
	fileTimeLayout = "2006-01-02_15-04-05"
	dateLayout     = "2006-01-02 15:04:05"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// formatSize renders bytes with 1024-based units and two decimals.
func formatSize(bytes int64) string {
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", size, sizeUnits[unit])
}

func backupFilename(dbName string, at time.Time, compressed bool) string {
	ext := domain.SQLExt
	if compressed {
		ext = domain.GzipExt
	}
	return fmt.Sprintf("backup_%s_%s%s", dbName, at.Format(fileTimeLayout), ext)
}

var timestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})_(\d{2}-\d{2}-\d{2})\.sql(\.gz)?$`)

// extractTimestamp reads the creation time encoded in a backup file name.
func extractTimestamp(filename string) (time.Time, error) {
	matches := timestampPattern.FindStringSubmatch(filename)
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}
	return time.ParseInLocation(fileTimeLayout, matches[1]+"_"+matches[2], time.Local)
}

func mimeType(filename string) string {
	if domain.IsCompressed(filename) {
		return "application/gzip"
	}
	return "application/sql"
}

func listingKey(dir string) string {
	return "backup_list:" + dir
}
