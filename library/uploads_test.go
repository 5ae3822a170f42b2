package library

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadKind(t *testing.T) {
	tests := []struct {
		name     string
		allowPDF bool
		want     string
		wantErr  bool
	}{
		{"cover.JPG", false, "image", false},
		{"cover.png", true, "image", false},
		{"book.pdf", true, "pdf", false},
		{"book.pdf", false, "", true},
		{"notes.txt", true, "", true},
		{"noext", false, "", true},
	}
	for _, tt := range tests {
		got, err := UploadKind(tt.name, tt.allowPDF)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrValidation, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestDiskStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDiskStore(dir, "/uploads")
	require.NoError(t, err)

	url, err := store.Save("Cover.PNG", strings.NewReader("png bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	require.NoError(t, store.Remove(url))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(url)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Remove(url), "removing twice is fine")
	assert.NoError(t, store.Remove("https://elsewhere/x.png"), "foreign urls are ignored")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDiskStoreFailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/uploads")
	require.NoError(t, err)

	url, err := store.Save("cover.png", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)
	assert.Empty(t, url)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial files are removed")
}
