package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStorageRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "partitions/u_c/index.json", strings.NewReader("payload")))

	ok, err := s.Exists(ctx, "partitions/u_c/index.json")
	require.NoError(t, err)
	assert.True(t, ok)

	reader, err := s.Get(ctx, "partitions/u_c/index.json")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalStorageGetMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(context.Background(), "nope/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(context.Background(), "nope/missing.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoragePutOverwrites(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "key", strings.NewReader("old")))
	require.NoError(t, s.Put(ctx, "key", bytes.NewReader([]byte("new"))))

	reader, err := s.Get(ctx, "key")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestLocalStorageDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "key", strings.NewReader("data")))
	require.NoError(t, s.Delete(ctx, "key"))

	_, err := s.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error
	require.NoError(t, s.Delete(ctx, "key"))
}
