package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Write("acme", FileRawSchema, payload{Name: "incidents", Count: 3}))
	assert.True(t, store.Exists("acme", FileRawSchema))

	var got payload
	require.NoError(t, store.Read("acme", FileRawSchema, &got))
	assert.Equal(t, "incidents", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, zap.NewNop())

	require.NoError(t, store.Write("acme", FileDataProfile, map[string]int{"a": 1}))

	entries, err := os.ReadDir(filepath.Join(root, "acme"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileDataProfile, entries[0].Name())
}

func TestStore_ReadMissingArtifact(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	var v map[string]any
	err := store.Read("acme", FileSemanticLayer, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_OverwriteReplacesContent(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, store.Write("acme", FileFingerprints, map[string]string{"v": "one"}))
	require.NoError(t, store.Write("acme", FileFingerprints, map[string]string{"v": "two"}))

	var got map[string]string
	require.NoError(t, store.Read("acme", FileFingerprints, &got))
	assert.Equal(t, "two", got["v"])
}
