package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaffold_CreatesPair(t *testing.T) {
	dir := t.TempDir()

	pair, err := Scaffold(dir, "add loyalty table")
	require.NoError(t, err)

	assert.Len(t, pair.Version, 14)
	assert.Equal(t, filepath.Join(dir, pair.Version+"_add_loyalty_table.up.sql"), pair.UpPath)
	assert.Equal(t, filepath.Join(dir, pair.Version+"_add_loyalty_table.down.sql"), pair.DownPath)

	up, err := os.ReadFile(pair.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add_loyalty_table")
	assert.Contains(t, string(up), "version BIGINT")

	down, err := os.ReadFile(pair.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "revert add_loyalty_table")
}

func TestScaffold_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	_, err := Scaffold(dir, "initial")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestScaffold_RejectsUnusableName(t *testing.T) {
	_, err := Scaffold(t.TempDir(), "!!!")
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"add products", "add_products"},
		{"Add-Products", "add_products"},
		{"  spaced   out  ", "spaced_out"},
		{"v2 schema (draft)", "v2_schema_draft"},
		{"___", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}

func TestVersions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"20250102000000_second.up.sql",
		"20250102000000_second.down.sql",
		"20250101000000_first.up.sql",
		"20250101000000_first.down.sql",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}

	versions, err := Versions(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250101000000_first", "20250102000000_second"}, versions)
}

func TestVersions_MissingDirectory(t *testing.T) {
	versions, err := Versions(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, versions)
}
