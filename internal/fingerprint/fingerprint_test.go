package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileMissingReturnsNotOK(t *testing.T) {
	digest, ok, err := File(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, digest)
}

func TestFileMatchesBytesDigestAcrossChunks(t *testing.T) {
	content := []byte(strings.Repeat("roster-row\n", 1000))
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	digest, ok, err := File(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Bytes(content), digest)
}

func TestFileChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	first, _, err := File(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	second, _, err := File(path)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDatasetIsStableAndSensitive(t *testing.T) {
	table := [][]string{
		{"Timestamp", "Email", "Location"},
		{"1/2/2024 10:00:00", "a@x.com", "siteA"},
	}
	first, err := Dataset(table)
	require.NoError(t, err)
	again, err := Dataset(table)
	require.NoError(t, err)
	require.Equal(t, first, again)

	table[1][2] = "siteB"
	changed, err := Dataset(table)
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
}

func TestDatasetSortsMapKeys(t *testing.T) {
	a, err := Dataset(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := Dataset(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, a, b)
}
