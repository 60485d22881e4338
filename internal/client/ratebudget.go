package client

import (
	"sync"
	"time"
)

// EndpointClass groups HTTP endpoints that share one rate budget (§3, §4.1).
type EndpointClass string

const (
	ClassProfile          EndpointClass = "profile"
	ClassEventsStream     EndpointClass = "events-stream"
	ClassGameStream       EndpointClass = "game-stream"
	ClassAcceptChallenge  EndpointClass = "accept-challenge"
	ClassDeclineChallenge EndpointClass = "decline-challenge"
	ClassAbortGame        EndpointClass = "abort-game"
	ClassResignGame       EndpointClass = "resign-game"
	ClassMakeMove         EndpointClass = "make-move"
	ClassChat             EndpointClass = "chat"
	ClassCreateChallenge  EndpointClass = "create-challenge"
)

const rateLimitPenalty = 60 * time.Second

// rateBudget mirrors domain.RateBudget; kept unexported here since §5 states
// RateBudget records are owned by C1 and mutated only through it.
type rateBudget struct {
	nextPermittedTime   time.Time
	consecutiveFailures int
}

// rateLimiter is the mutex-protected map of per-class budgets §3/§5 describe.
type rateLimiter struct {
	mu      sync.Mutex
	budgets map[EndpointClass]*rateBudget
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{budgets: make(map[EndpointClass]*rateBudget)}
}

// waitDuration returns the duration the caller must sleep before this
// class may issue its next request, and 0 if it may proceed immediately.
func (r *rateLimiter) waitDuration(class EndpointClass) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.budgets[class]
	if !ok {
		return 0
	}
	if d := time.Until(b.nextPermittedTime); d > 0 {
		return d
	}
	return 0
}

// penalize applies a 429 backoff to class, honoring a server-supplied
// retry-after duration when present (§4.1).
func (r *rateLimiter) penalize(class EndpointClass, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.budgets[class]
	if !ok {
		b = &rateBudget{}
		r.budgets[class] = b
	}
	penalty := rateLimitPenalty
	if retryAfter > 0 {
		penalty = retryAfter
	}
	next := time.Now().Add(penalty)
	if next.After(b.nextPermittedTime) {
		b.nextPermittedTime = next
	}
	b.consecutiveFailures++
}

func (r *rateLimiter) recordSuccess(class EndpointClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.budgets[class]; ok {
		b.consecutiveFailures = 0
	}
}
