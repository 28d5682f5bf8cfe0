// Package content reads text file content for block generation.
package content

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ctxpack/ctxpack/internal/domain"
	"github.com/ctxpack/ctxpack/internal/domain/ports"
)

// Reader loads text files from the local filesystem. Files over the
// size cap or containing binary data are rejected with sentinel errors
// so callers can report them inline instead of aborting a whole run.
type Reader struct {
	maxSizeKB int
}

// NewReader builds a reader with a per-file size cap in kilobytes.
// A cap of zero or less disables the limit.
func NewReader(maxSizeKB int) *Reader {
	return &Reader{maxSizeKB: maxSizeKB}
}

var _ ports.ContentReader = (*Reader)(nil)

// ReadText returns the file content at a filesystem location.
func (r *Reader) ReadText(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := domain.FilePath(location)
	if err != nil {
		return "", err
	}

	if r.maxSizeKB > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat file: %w", err)
		}
		if info.Size() > int64(r.maxSizeKB)*1024 {
			return "", domain.ErrFileTooLarge
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if isBinaryContent(data) {
		return "", domain.ErrBinaryContent
	}

	return string(data), nil
}

// isBinaryContent checks the first 8KB for null bytes.
func isBinaryContent(content []byte) bool {
	checkLen := len(content)
	if checkLen > 8192 {
		checkLen = 8192
	}
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}
