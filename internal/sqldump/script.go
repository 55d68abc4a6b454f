package sqldump

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Script is an append-only, ordered list of SQL segments. It is built by
// one goroutine and read once when the artifact is written.
type Script struct {
	segments []string
	size     int
}

func (s *Script) Append(segment string) {
	if segment == "" {
		return
	}
	s.segments = append(s.segments, segment)
	s.size += len(segment)
}

// Write lets the data renderer stream straight into the script.
func (s *Script) Write(p []byte) (int, error) {
	s.Append(string(p))
	return len(p), nil
}

// Len is the script size in bytes.
func (s *Script) Len() int {
	return s.size
}

func (s *Script) String() string {
	var b strings.Builder
	b.Grow(s.size)
	for _, seg := range s.segments {
		b.WriteString(seg)
	}
	return b.String()
}

func (s *Script) Reader() io.Reader {
	readers := make([]io.Reader, len(s.segments))
	for i, seg := range s.segments {
		readers[i] = strings.NewReader(seg)
	}
	return io.MultiReader(readers...)
}

const (
	timestampLayout = "2006-01-02 15:04:05"

	// FooterMarker closes every complete script.
	FooterMarker = "-- Dump completed on"
)

type HeaderInfo struct {
	Database      string
	ServerVersion string
	Charset       string
	GeneratedAt   time.Time
}

func Header(h HeaderInfo) string {
	var b strings.Builder
	b.WriteString("-- sqlkeep SQL dump\n")
	b.WriteString("--\n")
	fmt.Fprintf(&b, "-- Database: %s\n", QuoteIdent(h.Database))
	fmt.Fprintf(&b, "-- Server version: %s\n", h.ServerVersion)
	fmt.Fprintf(&b, "-- Generation time: %s\n", h.GeneratedAt.Format(timestampLayout))
	b.WriteString("\n")
	b.WriteString("/*!40101 SET @OLD_CHARACTER_SET_CLIENT=@@CHARACTER_SET_CLIENT */;\n")
	b.WriteString("/*!40101 SET @OLD_CHARACTER_SET_RESULTS=@@CHARACTER_SET_RESULTS */;\n")
	b.WriteString("/*!40101 SET @OLD_COLLATION_CONNECTION=@@COLLATION_CONNECTION */;\n")
	b.WriteString("SET SQL_MODE = \"NO_AUTO_VALUE_ON_ZERO\";\n")
	b.WriteString("SET AUTOCOMMIT = 0;\n")
	b.WriteString("START TRANSACTION;\n")
	b.WriteString("SET time_zone = \"+00:00\";\n")
	fmt.Fprintf(&b, "SET NAMES %s;\n", SanitizeCharset(h.Charset))
	b.WriteString("SET FOREIGN_KEY_CHECKS = 0;\n\n")
	return b.String()
}

func Footer(completedAt time.Time) string {
	var b strings.Builder
	b.WriteString("SET FOREIGN_KEY_CHECKS = 1;\n")
	b.WriteString("COMMIT;\n\n")
	b.WriteString("/*!40101 SET CHARACTER_SET_CLIENT=@OLD_CHARACTER_SET_CLIENT */;\n")
	b.WriteString("/*!40101 SET CHARACTER_SET_RESULTS=@OLD_CHARACTER_SET_RESULTS */;\n")
	b.WriteString("/*!40101 SET COLLATION_CONNECTION=@OLD_COLLATION_CONNECTION */;\n\n")
	fmt.Fprintf(&b, "%s %s\n", FooterMarker, completedAt.Format(timestampLayout))
	return b.String()
}

// SanitizeCharset keeps only [A-Za-z0-9_] so the value is safe to splice
// into SET NAMES. An empty result falls back to utf8mb4.
func SanitizeCharset(charset string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, charset)
	if clean == "" {
		return "utf8mb4"
	}
	return clean
}
