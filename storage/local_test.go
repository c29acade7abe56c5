package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Save(ctx, "professionals/p1/license.pdf", strings.NewReader("licence-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("licence-bytes")), n)

	rc, err := store.Open(ctx, "professionals/p1/license.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "licence-bytes", string(data))

	require.NoError(t, store.Delete(ctx, "professionals/p1/license.pdf"))
	_, err = store.Open(ctx, "professionals/p1/license.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, store.Delete(ctx, "professionals/p1/license.pdf"))
}

func TestLocalStore_KeysStayUnderRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	full, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, root))

	_, err = store.Save(context.Background(), "/", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = store.Open(context.Background(), `a\..\b`)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
