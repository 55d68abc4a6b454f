package compressor

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

// NewGzipLevel accepts the klauspost levels from HuffmanOnly to
// BestCompression. Zero selects BestCompression.
func NewGzipLevel(level int) (*GzipCompressor, error) {
	if level == 0 {
		return NewGzip(), nil
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", level)
	}
	return &GzipCompressor{level: level}, nil
}

func (g *GzipCompressor) Compress(dst io.Writer, src io.Reader) error {
	gzipWriter, err := gzip.NewWriterLevel(dst, g.level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := io.Copy(gzipWriter, src); err != nil {
		_ = gzipWriter.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func (g *GzipCompressor) Decompress(dst io.Writer, src io.Reader) error {
	gzipReader, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	if _, err := io.Copy(dst, gzipReader); err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return nil
}
