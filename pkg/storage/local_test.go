package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "leases/C123.yaml")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Read(ctx, "leases/C123.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Write(ctx, "leases/C123.yaml", []byte("holder: a\n")))
	data, err := s.Read(ctx, "leases/C123.yaml")
	require.NoError(t, err)
	assert.Equal(t, "holder: a\n", string(data))

	require.NoError(t, s.Delete(ctx, "leases/C123.yaml"))
	assert.ErrorIs(t, s.Delete(ctx, "leases/C123.yaml"), ErrNotFound)
}

func TestLocalStorageStaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../../escape.yaml", []byte("x")))
	exists, err := s.Exists(ctx, "escape.yaml")
	require.NoError(t, err)
	assert.True(t, exists)
}
