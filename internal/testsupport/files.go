package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTrack creates an untagged audio fixture of size bytes and returns its
// path. The content is zero bytes, so tag extraction yields empty metadata.
func WriteTrack(t testing.TB, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteTracks creates one fixture per name in a fresh temp dir. Sizes grow
// in 4 KiB steps so uploads can be told apart.
func WriteTracks(t testing.TB, names ...string) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for i, name := range names {
		paths = append(paths, WriteTrack(t, dir, name, 4096*(i+1)))
	}
	return paths
}
