package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
)

// MemoryRunLocker guards definitions against concurrent runs within one process.
type MemoryRunLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryRunLocker creates an empty MemoryRunLocker.
func NewMemoryRunLocker() *MemoryRunLocker {
	return &MemoryRunLocker{held: make(map[string]struct{})}
}

var _ gateways.RunLocker = (*MemoryRunLocker)(nil)

// TryAcquire implements gateways.RunLocker.
func (l *MemoryRunLocker) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunInProgress, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
