package workdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeStore_GetOrCreateIsIdempotent(t *testing.T) {
	s := NewFakeStore()
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "job-1", "a.wav", "/d")
	require.NoError(t, err)
	assert.Equal(t, "", first.ExternalID)

	require.NoError(t, s.SetExternalID(ctx, "job-1", "X1"))

	second, err := s.GetOrCreate(ctx, "job-1", "a.wav", "/d")
	require.NoError(t, err)
	assert.Equal(t, "X1", second.ExternalID)
	assert.Equal(t, 1, s.Inserts)
}

func TestFakeStore_GetMissingIsError(t *testing.T) {
	s := NewFakeStore()
	_, err := s.Get(context.Background(), "nope")
	assert.Error(t, err)
}
