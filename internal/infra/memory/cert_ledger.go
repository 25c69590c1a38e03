package memory

import (
	"context"
	"sync"
)

// CertLedger is an in-memory implementation of app.CertificateLedger.
type CertLedger struct {
	mu        sync.RWMutex
	confirmed map[string]struct{}
}

func NewCertLedger() *CertLedger {
	return &CertLedger{confirmed: make(map[string]struct{})}
}

func (l *CertLedger) Confirmed(_ context.Context, userAddress, courseID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.confirmed[userAddress+"|"+courseID]
	return ok, nil
}

func (l *CertLedger) MarkConfirmed(_ context.Context, userAddress, courseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed[userAddress+"|"+courseID] = struct{}{}
	return nil
}
