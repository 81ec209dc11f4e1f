package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-host/helix/internal/archive"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPackExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "manifest.json", `{"name":"widget"}`)
	writeFile(t, src, "widget.so", "binary-bytes")

	archivePath := filepath.Join(t.TempDir(), "widget"+archive.Extension)
	require.NoError(t, archive.Pack(src, archivePath))

	dest := t.TempDir()
	require.NoError(t, archive.Extract(archivePath, dest))

	data, err := os.ReadFile(filepath.Join(dest, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"widget"}`, string(data))

	data, err = os.ReadFile(filepath.Join(dest, "widget.so"))
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(data))
}

func TestPromoteFirstInstall(t *testing.T) {
	staging := t.TempDir()
	writeFile(t, staging, "manifest.json", `{"name":"widget","version":"1.0.0","binary_path":"widget.so"}`)

	modulesDir := t.TempDir()
	dest, err := archive.Promote(staging, modulesDir, "widget")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(modulesDir, "widget"), dest)

	_, err = os.Stat(filepath.Join(dest, "manifest.json"))
	require.NoError(t, err)
}

func TestPromoteRefusesOnNameMismatch(t *testing.T) {
	modulesDir := t.TempDir()
	existing := filepath.Join(modulesDir, "widget")
	writeFile(t, existing, "manifest.json", `{"name":"other","version":"1.0.0","binary_path":"other.so"}`)

	staging := t.TempDir()
	writeFile(t, staging, "manifest.json", `{"name":"widget","version":"2.0.0","binary_path":"widget.so"}`)

	_, err := archive.Promote(staging, modulesDir, "widget")
	var perr *archive.PromoteError
	require.ErrorAs(t, err, &perr)
}

func TestPromoteRefusesOnUnreadableExistingManifest(t *testing.T) {
	modulesDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(modulesDir, "widget"), 0o755))
	// No manifest.json at all under the existing install directory.

	staging := t.TempDir()
	writeFile(t, staging, "manifest.json", `{"name":"widget","version":"2.0.0","binary_path":"widget.so"}`)

	_, err := archive.Promote(staging, modulesDir, "widget")
	var perr *archive.PromoteError
	require.ErrorAs(t, err, &perr)
}

func TestPromoteOverwritesSameModule(t *testing.T) {
	modulesDir := t.TempDir()
	existing := filepath.Join(modulesDir, "widget")
	writeFile(t, existing, "manifest.json", `{"name":"widget","version":"1.0.0","binary_path":"widget.so"}`)

	staging := t.TempDir()
	writeFile(t, staging, "manifest.json", `{"name":"widget","version":"2.0.0","binary_path":"widget.so"}`)

	dest, err := archive.Promote(staging, modulesDir, "widget")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2.0.0")
}

func TestExtractKeepsNestedPathsInsideDest(t *testing.T) {
	// A legitimately nested path must extract fine: the traversal guard
	// in within() must not reject it. Archives with escaping paths are
	// not built here.
	src := t.TempDir()
	writeFile(t, src, "nested/dir/file.txt", "ok")

	archivePath := filepath.Join(t.TempDir(), "nested"+archive.Extension)
	require.NoError(t, archive.Pack(src, archivePath))

	dest := t.TempDir()
	require.NoError(t, archive.Extract(archivePath, dest))
	_, err := os.Stat(filepath.Join(dest, "nested", "dir", "file.txt"))
	require.NoError(t, err)
}
