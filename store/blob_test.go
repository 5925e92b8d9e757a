package store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlobs(t *testing.T) (*FileBlobStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewFileBlobStore(root, "images")
	require.NoError(t, err)
	return s, root
}

func TestBlobPutOpen(t *testing.T) {
	s, root := newTestBlobs(t)
	ctx := context.Background()

	n, err := s.Put(ctx, "public/abc-cat.png", bytes.NewReader([]byte("png-bytes")), PutOptions{ContentType: "image/png", CacheControl: "3600"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.FileExists(t, filepath.Join(root, "images", "public", "abc-cat.png"))

	rc, info, err := s.Open(ctx, "public/abc-cat.png")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, "3600", info.CacheControl)
	assert.Equal(t, int64(9), info.Size)
}

func TestBlobPutNoOverwrite(t *testing.T) {
	s, _ := newTestBlobs(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "public/a.png", bytes.NewReader([]byte("one")), PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "public/a.png", bytes.NewReader([]byte("two")), PutOptions{})
	assert.ErrorIs(t, err, ErrObjectExists)

	_, err = s.Put(ctx, "public/a.png", bytes.NewReader([]byte("three")), PutOptions{Upsert: true})
	require.NoError(t, err)
	rc, _, err := s.Open(ctx, "public/a.png")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "three", string(body))
}

func TestBlobInvalidPaths(t *testing.T) {
	s, _ := newTestBlobs(t)
	ctx := context.Background()
	for _, p := range []string{"", "/etc/passwd", "../escape", "public/../../escape", "..", ".", `public\x`} {
		_, err := s.Put(ctx, p, bytes.NewReader(nil), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidObjectPath, p)
	}
}

func TestBlobOpenMissing(t *testing.T) {
	s, _ := newTestBlobs(t)
	_, _, err := s.Open(context.Background(), "public/missing.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestBlobDelete(t *testing.T) {
	s, root := newTestBlobs(t)
	ctx := context.Background()
	_, err := s.Put(ctx, "public/a.png", bytes.NewReader([]byte("x")), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "public/a.png"))
	_, err = os.Stat(filepath.Join(root, "images", "public", "a.png"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(ctx, "public/a.png"))
}

func TestBlobCanceledContext(t *testing.T) {
	s, _ := newTestBlobs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(ctx, "public/a.png", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.Open(context.Background(), "public/a.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewFileBlobStoreValidation(t *testing.T) {
	_, err := NewFileBlobStore("", "images")
	assert.Error(t, err)
	_, err = NewFileBlobStore(t.TempDir(), "a/b")
	assert.Error(t, err)
	_, err = NewFileBlobStore(t.TempDir(), ".meta")
	assert.Error(t, err)
}
