package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "/files/")
	require.NoError(t, err)

	ref, err := s.Put(ctx, "alice", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "images/alice/"))

	data, err := os.ReadFile(filepath.Join(s.Dir(), ref))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	url, err := s.URL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "/files/"+ref, url)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = os.Stat(filepath.Join(s.Dir(), ref))
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	require.NoError(t, s.Delete(ctx, ref))
}

func TestLocalStoreRejectsEscapes(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	p, err := s.path("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, s.Dir()))

	_, err = s.path("")
	assert.Error(t, err)
}
