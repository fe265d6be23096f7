package snapshots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManifest(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"b.txt":       "bb",
		"a-b":         "1",
		"a/b":         "22",
		"a/deep/c.db": "333",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	got, err := BuildManifest(root)
	require.NoError(t, err)
	assert.Equal(t, []FileRecord{
		{RelPath: "a-b", Size: 1},
		{RelPath: "a/b", Size: 2},
		{RelPath: "a/deep/c.db", Size: 3},
		{RelPath: "b.txt", Size: 2},
	}, got)
}

func TestManifestsEqual(t *testing.T) {
	a := []FileRecord{{"x", 1}, {"y", 2}}

	assert.True(t, ManifestsEqual(a, []FileRecord{{"x", 1}, {"y", 2}}))
	assert.False(t, ManifestsEqual(a, []FileRecord{{"x", 1}}))
	assert.False(t, ManifestsEqual(a, []FileRecord{{"x", 1}, {"y", 3}}))
	assert.False(t, ManifestsEqual(a, []FileRecord{{"x", 1}, {"z", 2}}))
	assert.True(t, ManifestsEqual(nil, []FileRecord{}))
}

func TestCompareTrees_MissingTree(t *testing.T) {
	_, err := CompareTrees(t.TempDir(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "link")))
	require.NoError(t, os.Chmod(filepath.Join(src, "a.txt"), 0600))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))

	same, err := CompareTrees(src, dst)
	require.NoError(t, err)
	assert.True(t, same)

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	fi, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	assert.Error(t, CopyTree(src, dst), "existing destination")
}
