package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// CertLedger backs the at-most-one-certificate invariant with Redis.
// Confirmation is recorded with SETNX so a concurrent double-confirm
// cannot overwrite an existing entry.
type CertLedger struct {
	client *redis.Client
}

func NewCertLedger(client *redis.Client) *CertLedger {
	return &CertLedger{client: client}
}

func (l *CertLedger) Confirmed(ctx context.Context, userAddress, courseID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(userAddress, courseID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *CertLedger) MarkConfirmed(ctx context.Context, userAddress, courseID string) error {
	return l.client.SetNX(ctx, l.key(userAddress, courseID), "1", 0).Err()
}

func (l *CertLedger) key(userAddress, courseID string) string {
	return "cert:confirmed:" + userAddress + ":" + courseID
}
