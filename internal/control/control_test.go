package control

import (
	"context"
	"testing"
	"time"

	"github.com/park285/lichess-bot-go/internal/activeworkers"
	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
)

func newTestLoop() *Loop {
	cfg := &config.Config{MaxGames: 4}
	registry := activeworkers.New(nil)
	return New(nil, cfg, registry, nil, "bot1")
}

func TestEnqueuePendingDropsFromHead(t *testing.T) {
	l := newTestLoop()
	for i := 0; i < pendingCap+5; i++ {
		l.enqueuePending(domain.Challenge{ID: string(rune('a' + i%26))})
	}
	if len(l.pending) != pendingCap {
		t.Fatalf("expected pending capped at %d, got %d", pendingCap, len(l.pending))
	}
}

func TestNextDelayDoublesAndCaps(t *testing.T) {
	d := reconnectBaseDelay
	for i := 0; i < 10; i++ {
		d = nextDelay(d)
	}
	if d != reconnectMaxDelay {
		t.Fatalf("expected delay capped at %v, got %v", reconnectMaxDelay, d)
	}
}

func TestShutdownReturnsImmediatelyWithNoWorkers(t *testing.T) {
	l := newTestLoop()
	done := make(chan struct{})
	go func() {
		l.Shutdown(context.Background(), 5*time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown did not return promptly with zero active workers")
	}
	if !l.isShuttingDown() {
		t.Fatal("expected shuttingDown to be set")
	}
}

func TestShutdownForcesClosureAfterDrainTimeout(t *testing.T) {
	l := newTestLoop()
	canceled := false
	_, _ = l.registry.TryRegister(context.Background(), &activeworkers.Handle{
		GameID: "g1",
		Cancel: func() { canceled = true },
	})

	l.Shutdown(context.Background(), 50*time.Millisecond)
	if !canceled {
		t.Fatal("expected worker to be cancelled once the drain deadline passed")
	}
}

func TestCurrentlyChallengingTracksIssuedChallenge(t *testing.T) {
	l := newTestLoop()
	l.mu.Lock()
	l.challengingUser = "alice"
	l.mu.Unlock()
	if got := l.currentlyChallenging(); got != "alice" {
		t.Fatalf("got %q", got)
	}
}

// TestDrainPendingReevaluatesStoredChallengeFields guards against
// reconstructing a near-empty wire frame when re-evaluating a deferred
// challenge: a zeroed TimeControl categorises as ultraBullet and would be
// declined against a blitz-only surface, so the challenge would vanish from
// pending instead of coming back around as Defer.
func TestDrainPendingReevaluatesStoredChallengeFields(t *testing.T) {
	cfg := &config.Config{
		MaxGames: 1,
		Challenge: config.ChallengeConfig{
			Variants:     []string{"standard"},
			TimeControls: []string{"blitz"},
			MinInitial:   60,
			MaxInitial:   1800,
			MaxIncrement: 30,
			Modes:        []string{"rated"},
			StandardOnly: true,
			AcceptBot:    true,
		},
	}
	registry := activeworkers.New(nil)
	l := New(nil, cfg, registry, nil, "bot1")
	_, _ = registry.TryRegister(context.Background(), &activeworkers.Handle{GameID: "g1", Cancel: func() {}})

	original := domain.Challenge{
		ID:                      "c1",
		Challenger:              domain.ChallengerIdentity{Name: "alice"},
		Variant:                 domain.VariantStandard,
		TimeControl:             domain.TimeControl{InitialSeconds: 300, IncrementSeconds: 3},
		Rated:                   true,
		StandardInitialPosition: true,
	}
	l.enqueuePending(original)

	l.drainPending()

	if len(l.pending) != 1 {
		t.Fatalf("expected the challenge to come back around as Defer (registry still full), got pending=%v", l.pending)
	}
	got := l.pending[0]
	if got.Challenger.Name != "alice" || got.TimeControl.InitialSeconds != 300 || !got.Rated || !got.StandardInitialPosition {
		t.Fatalf("re-evaluated challenge lost its original fields: %+v", got)
	}
}
