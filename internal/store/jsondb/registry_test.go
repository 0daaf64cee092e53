package jsondb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/storage"
)

func newTestRegistry(t *testing.T, classes ...string) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range classes {
		dir := filepath.Join(root, "class_data", name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+ClassDataExt), []byte(`{"name":"`+name+`","students":[]}`), 0o644))
	}
	s, err := storage.NewLocalStorage(root)
	require.NoError(t, err)
	return NewRegistry(s, nil), filepath.Join(root, registryIndexFile)
}

func TestGenerateRegistryFromFilesystem(t *testing.T) {
	r, _ := newTestRegistry(t, "b", "a", "c")
	// Non-class files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(r.storage.BaseDir(), "class_data", "a", "notes.txt"), []byte("x"), 0o644))

	names, err := r.GenerateRegistryFromFilesystem()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestGenerateRegistryReadsStoredNames(t *testing.T) {
	r, _ := newTestRegistry(t, "plain")
	dir := filepath.Join(r.storage.BaseDir(), "class_data", "7B")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7B"+ClassDataExt), []byte(`{"name":"7/B","students":[]}`), 0o644))
	broken := filepath.Join(r.storage.BaseDir(), "class_data", "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "broken"+ClassDataExt), []byte("{"), 0o644))

	names, err := r.GenerateRegistryFromFilesystem()
	require.NoError(t, err)
	assert.Equal(t, []string{"7/B", "broken", "plain"}, names)
}

func TestCacheClassRegistryIsIdempotent(t *testing.T) {
	r, index := newTestRegistry(t, "x", "y")

	first, err := r.CacheClassRegistry()
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(index)
	require.NoError(t, err)

	second, err := r.CacheClassRegistry()
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(index)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstBytes, secondBytes)
	assert.Equal(t, "x\ny\n", string(secondBytes))
}

func TestCacheClassRegistryDropsStaleIndexEntries(t *testing.T) {
	r, index := newTestRegistry(t, "kept", "new")
	require.NoError(t, os.WriteFile(index, []byte("gone\nkept\n"), 0o644))

	names, err := r.CacheClassRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept", "new"}, names)
}

func TestRegisterClassAppends(t *testing.T) {
	r, index := newTestRegistry(t, "first")
	_, err := r.CacheClassRegistry()
	require.NoError(t, err)

	require.NoError(t, r.RegisterClass("second"))

	exists, err := r.ClassListExists("second")
	require.NoError(t, err)
	assert.True(t, exists)
	data, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestCheckRegistryOnExitReconciles(t *testing.T) {
	r, index := newTestRegistry(t, "a", "b")
	_, err := r.CacheClassRegistry()
	require.NoError(t, err)

	rewritten, err := r.CheckRegistryOnExit()
	require.NoError(t, err)
	assert.False(t, rewritten, "matching file must not be rewritten")

	require.NoError(t, os.WriteFile(index, []byte("a\nb\nextra\n"), 0o644))
	rewritten, err = r.CheckRegistryOnExit()
	require.NoError(t, err)
	assert.True(t, rewritten)
	data, _ := os.ReadFile(index)
	assert.Equal(t, "a\nb\n", string(data))

	require.NoError(t, os.WriteFile(index, []byte("a\n"), 0o644))
	rewritten, err = r.CheckRegistryOnExit()
	require.NoError(t, err)
	assert.True(t, rewritten)
	data, _ = os.ReadFile(index)
	assert.Equal(t, "a\nb\n", string(data))

	require.NoError(t, os.Remove(index))
	rewritten, err = r.CheckRegistryOnExit()
	require.NoError(t, err)
	assert.True(t, rewritten)
	assert.FileExists(t, index)
}

func TestUninitializedRegistryIsConfigurationError(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.RegisterClass("x")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	_, err = r.ClassListExists("x")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	_, err = r.CheckRegistryOnExit()
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	assert.NoError(t, r.Close())
}

func TestCloseFlushesAndReleases(t *testing.T) {
	r, index := newTestRegistry(t, "a")
	_, err := r.CacheClassRegistry()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(index, []byte(""), 0o644))

	require.NoError(t, r.Close())
	data, _ := os.ReadFile(index)
	assert.Equal(t, "a\n", string(data))

	_, err = r.ClassListExists("a")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
}

func TestEmptyRegistry(t *testing.T) {
	r, index := newTestRegistry(t)
	names, err := r.CacheClassRegistry()
	require.NoError(t, err)
	assert.Empty(t, names)

	exists, err := r.ClassListExists("anything")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.FileExists(t, index)
}
