package activeworkers

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) (*Registry, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb), func() { mr.Close() }
}

func TestTryRegisterIsIdempotent(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := r.TryRegister(ctx, &Handle{GameID: "G1", Cancel: func() {}})
	if err != nil || !ok {
		t.Fatalf("first register: ok=%v err=%v", ok, err)
	}
	ok, err = r.TryRegister(ctx, &Handle{GameID: "G1", Cancel: func() {}})
	if err != nil || ok {
		t.Fatalf("duplicate register should be rejected: ok=%v err=%v", ok, err)
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

func TestUnregisterReleasesSlot(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	_, _ = r.TryRegister(ctx, &Handle{GameID: "G1", Cancel: func() {}})
	r.Unregister(ctx, "G1")
	if r.Has("G1") {
		t.Fatalf("expected G1 to be released")
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d, want 0", r.Count())
	}
}

func TestCancelAllSignalsEveryWorker(t *testing.T) {
	r, cleanup := newTestRegistry(t)
	defer cleanup()
	ctx := context.Background()

	canceled := make(map[string]bool)
	_, _ = r.TryRegister(ctx, &Handle{GameID: "G1", Cancel: func() { canceled["G1"] = true }})
	_, _ = r.TryRegister(ctx, &Handle{GameID: "G2", Cancel: func() { canceled["G2"] = true }})

	r.CancelAll()

	if !canceled["G1"] || !canceled["G2"] {
		t.Fatalf("expected both workers canceled, got %+v", canceled)
	}
}

func TestRecoveredGameIDsNilWithoutRedis(t *testing.T) {
	r := New(nil)
	ids, err := r.RecoveredGameIDs(context.Background())
	if err != nil || ids != nil {
		t.Fatalf("ids=%v err=%v, want nil,nil", ids, err)
	}
}
