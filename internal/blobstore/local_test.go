package blobstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

func TestSaveWritesFileUnderSanitizedSourceDir(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)

	att := fetch.Attachment{Name: "edital.pdf", Hash: "abcd1234", Kind: "pdf", Body: []byte("%PDF-1.4 fake")}
	path, err := store.Save("EXT/1 2", att, map[string]any{"url": "https://example.com/edital.pdf"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "EXT_1_2", "abcd1234_edital.pdf"), path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(body))
}

func TestSaveAccumulatesMetadataAcrossMultipleAttachments(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)

	att1 := fetch.Attachment{Name: "edital.pdf", Hash: "hash1", Kind: "pdf", Body: []byte("a")}
	att2 := fetch.Attachment{Name: "anexo.xlsx", Hash: "hash2", Kind: "xlsx", Body: []byte("b")}

	_, err := store.Save("EXT-1", att1, map[string]any{"seq": 1})
	require.NoError(t, err)
	_, err = store.Save("EXT-1", att2, map[string]any{"seq": 2})
	require.NoError(t, err)

	metaPath := filepath.Join(root, "EXT-1", "metadados.json")
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	var meta map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.Contains(t, meta, "hash1_edital.pdf")
	require.Contains(t, meta, "hash2_anexo.xlsx")
	assert.Equal(t, "pdf", meta["hash1_edital.pdf"]["kind"])
	assert.Equal(t, "xlsx", meta["hash2_anexo.xlsx"]["kind"])
}

func TestSanitizeReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "ID_123-abc.txt", sanitize("ID_123-abc.txt"))
	assert.Equal(t, "a_b_c", sanitize("a/b\\c"))
	assert.Equal(t, "__etc_passwd", sanitize("../etc/passwd"))
}
