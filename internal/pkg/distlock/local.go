package distlock

import (
	"context"
	"sync"
)

var (
	localMu   sync.Mutex
	localHeld = map[string]*LocalLock{}
)

// LocalLock is a process-wide named lock for deployments without Redis or
// Postgres (SQLite, memory).
type LocalLock struct {
	key string
}

func NewLocalLock(key string) *LocalLock { return &LocalLock{key: key} }

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	localMu.Lock()
	defer localMu.Unlock()
	if _, held := localHeld[l.key]; held {
		return false, nil
	}
	localHeld[l.key] = l
	return true, nil
}

func (l *LocalLock) Release(context.Context) error {
	localMu.Lock()
	defer localMu.Unlock()
	if localHeld[l.key] != l {
		return ErrNotHeld
	}
	delete(localHeld, l.key)
	return nil
}
