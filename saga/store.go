package saga

import (
	"context"
	"sync"
)

// Store persists saga state. Implementations return *Error with
// SAGA_DOES_NOT_EXIST, SAGA_ALREADY_EXISTS, STALE_STATE or TRANSIENT_ERROR.
type Store interface {
	CreateSaga(ctx context.Context, state State) error
	GetSaga(ctx context.Context, correlationID string) (State, error)
	// UpdateSaga only succeeds if the stored version is state.Version-1.
	UpdateSaga(ctx context.Context, state State) error
}

// Locker gives one caller at a time exclusive use of a correlation id. A
// held lock is reported as ALREADY_IN_PROGRESS, never waited on.
type Locker interface {
	Lock(ctx context.Context, correlationID string) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

var _ Locker = &LocalLocker{}

// LocalLocker only excludes callers within the same process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, correlationID string) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[correlationID]; ok {
		return nil, NewAlreadyInProgressError(correlationID)
	}
	l.held[correlationID] = struct{}{}

	return &localLock{locker: l, correlationID: correlationID}, nil
}

type localLock struct {
	locker        *LocalLocker
	correlationID string
	once          sync.Once
}

func (l *localLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		delete(l.locker.held, l.correlationID)
	})
	return nil
}
