package pgqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeQueue_ReadThenInvisible(t *testing.T) {
	q := NewFakeQueue[string]()
	ctx := context.Background()

	id, err := q.Send(ctx, "hello")
	require.NoError(t, err)

	msg, ok, err := q.Read(ctx, 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, 1, msg.ReadCt)
	assert.Equal(t, "hello", msg.Payload)

	_, ok, err = q.Read(ctx, 30)
	require.NoError(t, err)
	assert.False(t, ok, "message should be invisible until its timeout elapses")
}

func TestFakeQueue_RedeliveredAfterTimeoutElapses(t *testing.T) {
	q := NewFakeQueue[string]()
	ctx := context.Background()

	_, err := q.Send(ctx, "hello")
	require.NoError(t, err)

	_, ok, err := q.Read(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)

	q.Advance(11 * time.Second)

	msg, ok, err := q.Read(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, msg.ReadCt, "redelivery should bump read count")
}

func TestFakeQueue_ExtendVisibilityDelaysRedelivery(t *testing.T) {
	q := NewFakeQueue[string]()
	ctx := context.Background()

	id, err := q.Send(ctx, "hello")
	require.NoError(t, err)

	_, ok, err := q.Read(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)

	q.Advance(5 * time.Second)
	require.NoError(t, q.ExtendVisibility(ctx, id, 10))
	q.Advance(6 * time.Second)

	_, ok, err = q.Read(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok, "extended visibility should still be in effect")
}

func TestFakeQueue_DeleteIsIdempotent(t *testing.T) {
	q := NewFakeQueue[string]()
	ctx := context.Background()

	id, err := q.Send(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, q.Delete(ctx, id))
	require.NoError(t, q.Delete(ctx, id))
	assert.Equal(t, 0, q.Len())
}

func TestFakeQueue_ReadOrdersByID(t *testing.T) {
	q := NewFakeQueue[int]()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := q.Send(ctx, i)
		require.NoError(t, err)
	}

	for want := 1; want <= 3; want++ {
		msg, ok, err := q.Read(ctx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, msg.Payload)
		require.NoError(t, q.Delete(ctx, msg.ID))
	}
}
