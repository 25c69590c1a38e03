package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCertLedgerConfirmOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewCertLedger(client)
	ctx := context.Background()

	confirmed, err := ledger.Confirmed(ctx, "0xabc", "course-1")
	if err != nil || confirmed {
		t.Fatalf("expected unconfirmed, got %v err=%v", confirmed, err)
	}

	if err := ledger.MarkConfirmed(ctx, "0xabc", "course-1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}
	confirmed, err = ledger.Confirmed(ctx, "0xabc", "course-1")
	if err != nil || !confirmed {
		t.Fatalf("expected confirmed, got %v err=%v", confirmed, err)
	}

	// Marking again is a no-op, not an overwrite.
	if err := ledger.MarkConfirmed(ctx, "0xabc", "course-1"); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	confirmed, _ = ledger.Confirmed(ctx, "0xabc", "course-1")
	if !confirmed {
		t.Fatalf("confirmation lost after duplicate mark")
	}
}
