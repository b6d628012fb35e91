package rental

import (
	"context"
	"sync"
)

// ItemLocker is an in-process Locker holding one mutex per item while it is
// in use.
type ItemLocker struct {
	mu    sync.Mutex
	locks map[int64]*itemLock
}

type itemLock struct {
	ch   chan struct{}
	refs int
}

func NewItemLocker() *ItemLocker {
	return &ItemLocker{locks: make(map[int64]*itemLock)}
}

// Lock blocks until the item is free or ctx is done.
func (l *ItemLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[itemID]
	if !ok {
		lk = &itemLock{ch: make(chan struct{}, 1)}
		l.locks[itemID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(itemID, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(itemID, lk)
		})
	}, nil
}

func (l *ItemLocker) release(itemID int64, lk *itemLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, itemID)
	}
}

// held returns the number of items with a live lock entry.
func (l *ItemLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
