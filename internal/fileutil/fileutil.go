package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// partialSuffix marks a file that is still being written.
const partialSuffix = ".partial"

// WriteStream copies r into dst through a sibling .partial file that is
// renamed into place once the stream ends. It returns the byte count and the
// hex SHA256 of what was written. The partial file is removed on failure.
func WriteStream(dst string, r io.Reader, mode os.FileMode) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, "", fmt.Errorf("create parent dir: %w", err)
	}
	tmp := dst + partialSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, "", err
	}

	hasher := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(out, hasher), r)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return written, "", copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return written, "", closeErr
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return written, "", fmt.Errorf("finalize %s: %w", dst, err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DiscardStream drains r and reports its size and SHA256 without storing it.
func DiscardStream(r io.Reader) (int64, string, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileSHA256 returns the hex SHA256 of the file at path.
func FileSHA256(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	_, sum, err := DiscardStream(in)
	return sum, err
}
