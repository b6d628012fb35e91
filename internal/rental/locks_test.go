package rental

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemLockerExcludesSameItem(t *testing.T) {
	l := NewItemLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(ctx, 1)
		if err == nil {
			close(acquired)
			unlock2()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestItemLockerIndependentItems(t *testing.T) {
	l := NewItemLocker()
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	unlock2, err := l.Lock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, l.held())

	unlock1()
	unlock2()
	assert.Equal(t, 0, l.held())
}

func TestItemLockerHonoursContext(t *testing.T) {
	l := NewItemLocker()

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.held())
}

func TestItemLockerUnlockIsIdempotent(t *testing.T) {
	l := NewItemLocker()

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()
	unlock()
	assert.Equal(t, 0, l.held())
}
