// Package activeworkers backs the active-workers bookkeeping the Control
// Loop (C5) owns exclusively (§5: "the active-workers map ... is owned by
// C5. Other components query it via message passing; direct mutation is
// forbidden"). Grounded on the reference bot's internal/pvpchan Store:
// SetNX-style unique registration and a Redis set for membership, replacing
// pvpchan's join-code allocation with game-id registration. This is
// deliberately NOT a durability layer (SPEC_FULL §4.10 Non-goals exclude
// persistence beyond archives): on process restart the set is treated as a
// cache the Control Loop rebuilds from fresh gameStart redelivery, never as
// the source of truth for in-flight game state.
package activeworkers

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const membersKey = "lichess-bot:active-workers"

// Handle is the in-process record C5 keeps per spawned worker: enough to
// cancel it and to avoid double-spawning. The live goroutine/channel state
// behind Cancel belongs to the worker package; activeworkers only tracks the
// handle, never dereferences into worker internals (§5: "direct mutation is
// forbidden" applies both ways).
type Handle struct {
	GameID string
	Cancel context.CancelFunc
}

// Registry is the in-memory half of the active-workers map: the fast path
// every lookup and spawn decision uses. Redis membership (below) exists only
// to let a restarted process recognise which games the service still
// considers open before the first fresh gameStart frame arrives.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Handle
	redis   *redis.Client // nil when no active-workers.redis-url is configured
}

// New builds a Registry. redisClient may be nil; in that case idempotent
// spawn-tracking is purely in-memory and does not survive a restart, which
// is acceptable since reconnection redelivers gameStart events (§4.5).
func New(redisClient *redis.Client) *Registry {
	return &Registry{workers: make(map[string]*Handle), redis: redisClient}
}

// TryRegister implements idempotent, game-id-keyed worker spawning (§4.5,
// §8: "duplicate gameStart frames yield exactly one worker"). Returns false
// without mutating anything if gameID is already registered.
func (r *Registry) TryRegister(ctx context.Context, h *Handle) (bool, error) {
	r.mu.Lock()
	if _, exists := r.workers[h.GameID]; exists {
		r.mu.Unlock()
		return false, nil
	}
	r.workers[h.GameID] = h
	r.mu.Unlock()

	if r.redis != nil {
		added, err := r.redis.SAdd(ctx, membersKey, h.GameID).Result()
		if err != nil {
			return true, fmt.Errorf("activeworkers: record %s: %w", h.GameID, err)
		}
		_ = added // best-effort mirror; in-memory map above is authoritative for this process
	}
	return true, nil
}

// Unregister releases gameID's slot, e.g. on gameFinish (§4.5) or Closing
// (§4.4).
func (r *Registry) Unregister(ctx context.Context, gameID string) {
	r.mu.Lock()
	delete(r.workers, gameID)
	r.mu.Unlock()

	if r.redis != nil {
		_ = r.redis.SRem(ctx, membersKey, gameID).Err()
	}
}

// Count reports worker concurrency, checked against max-games before
// accepting a gameStart (§4.5, §8: "Worker concurrency never exceeds
// max-games").
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Has reports whether gameID already has a live worker, for the idempotent
// gameStart dispatch path.
func (r *Registry) Has(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[gameID]
	return ok
}

// CancelAll signals every registered worker to stop, used by graceful
// shutdown's drain phase (§5).
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.workers {
		h.Cancel()
	}
}

// RecoveredGameIDs returns the game ids the Redis set still lists from a
// prior process lifetime, letting the Control Loop log a recovery note; it
// is advisory only; gameStart redelivery is the actual recovery mechanism.
func (r *Registry) RecoveredGameIDs(ctx context.Context) ([]string, error) {
	if r.redis == nil {
		return nil, nil
	}
	ids, err := r.redis.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("activeworkers: list recovered: %w", err)
	}
	return ids, nil
}
