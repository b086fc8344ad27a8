package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ebsalem/portal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, storage.KeyUser, []byte(`{"id":"u1"}`), 0))
	got, err := s.Get(ctx, storage.KeyUser)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"u1"}`, string(got))

	got[0] = 'X'
	again, _ := s.Get(ctx, storage.KeyUser)
	assert.Equal(t, `{"id":"u1"}`, string(again), "returned slices must not alias storage")

	require.NoError(t, s.Delete(ctx, storage.KeyUser, "never-set"))
	_, err = s.Get(ctx, storage.KeyUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
