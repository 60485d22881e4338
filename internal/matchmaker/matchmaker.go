// Package matchmaker implements C6: periodic outbound-challenge issuance to
// the configured opponents, at most one challenge in flight at a time. A
// tick does not consult the active-game count or recent incoming challenges. Grounded on the reference
// bot's matchmaking cadence in cmd/irischeck (a periodic poll-and-act
// loop) and on internal/pvp/manager.go's cooldown-map idiom, adapted here
// from "recent pvp opponents" to "recently challenged lichess accounts".
package matchmaker

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/obslog"
	"github.com/park285/lichess-bot-go/internal/wire"
)

// awaitGameStartTimeout bounds how long Matchmaker waits for a gameStart
// after issuing a challenge before giving up on that attempt (§4.6: "a
// challenge issued but never resolved after ~90s is treated as declined").
const awaitGameStartTimeout = 90 * time.Second

// ChallengeIssuer is the subset of the Control Loop the Matchmaker depends
// on, kept as an interface so this package never imports package control.
// Package control does not import this package either: it defines the
// MatchmakerNotifier interface that *Matchmaker satisfies, and
// cmd/lichess-bot wires the two together.
type ChallengeIssuer interface {
	IssueChallenge(ctx context.Context, req wire.CreateChallengeRequest) error
}

// Matchmaker is C6.
type Matchmaker struct {
	cfg     config.MatchmakingConfig
	issuer  ChallengeIssuer
	rng     *rand.Rand

	mu         sync.Mutex
	cooldowns  map[string]time.Time // opponent -> earliest next-eligible time
	awaiting   string               // opponent currently awaiting resolution, "" if none
	resolved   chan struct{}        // closed (and replaced) when the awaited opponent resolves
}

// New builds a Matchmaker. seed lets tests pin opponent selection;
// production callers should pass a seed derived from process start time
// via an external source, since package rules forbid calling time.Now
// inside this constructor's defaults — callers already have a clock.
func New(cfg config.MatchmakingConfig, issuer ChallengeIssuer, seed int64) *Matchmaker {
	return &Matchmaker{
		cfg:       cfg,
		issuer:    issuer,
		rng:       rand.New(rand.NewSource(seed)),
		cooldowns: make(map[string]time.Time),
		resolved:  make(chan struct{}),
	}
}

// Run polls at the configured interval until ctx is cancelled, issuing at
// most one outbound challenge at a time (§4.6).
func (m *Matchmaker) Run(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	interval := time.Duration(m.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Matchmaker) tick(ctx context.Context) {
	if m.currentlyAwaiting() != "" {
		return // §4.6: at most one outbound challenge in flight
	}
	opponent := m.pickOpponent(time.Now())
	if opponent == "" {
		return
	}

	m.mu.Lock()
	m.awaiting = opponent
	m.resolved = make(chan struct{})
	waitCh := m.resolved
	m.mu.Unlock()

	logger := obslog.L().With(zap.String("opponent", opponent))

	req := wire.CreateChallengeRequest{
		Opponent:  opponent,
		Variant:   m.cfg.Variant,
		Rated:     true,
	}
	if tc, ok := parseTimeControl(m.cfg.TimeControl); ok {
		req.Initial, req.Increment = tc.initial, tc.increment
	}

	if err := m.issuer.IssueChallenge(ctx, req); err != nil {
		logger.Warn("matchmaker_challenge_failed", zap.Error(err))
		m.clearAwaiting(opponent)
		return
	}
	logger.Info("matchmaker_challenge_issued")

	go m.awaitResolution(opponent, waitCh)
}

func (m *Matchmaker) awaitResolution(opponent string, waitCh chan struct{}) {
	select {
	case <-waitCh:
	case <-time.After(awaitGameStartTimeout):
		obslog.L().Info("matchmaker_challenge_timed_out", zap.String("opponent", opponent))
		m.clearAwaiting(opponent)
	}
}

// NotifyGameStart implements control.MatchmakerNotifier: a game started
// for the awaited opponent, so the slot frees and a fresh cooldown starts.
func (m *Matchmaker) NotifyGameStart(opponent string) {
	m.clearAwaiting(opponent)
}

// NotifyDeclinedOrCanceled implements control.MatchmakerNotifier: the
// challenge was declined or canceled, so the cooldown still applies (no
// point re-challenging the same account immediately) but the slot frees.
func (m *Matchmaker) NotifyDeclinedOrCanceled(opponent string) {
	m.clearAwaiting(opponent)
}

func (m *Matchmaker) clearAwaiting(opponent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awaiting != opponent {
		return
	}
	m.awaiting = ""
	cooldown := time.Duration(m.cfg.CooldownMinutes) * time.Minute
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	m.cooldowns[opponent] = time.Now().Add(cooldown)
	select {
	case <-m.resolved:
	default:
		close(m.resolved)
	}
}

func (m *Matchmaker) currentlyAwaiting() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awaiting
}

// pickOpponent selects uniformly at random among configured opponents not
// currently under cooldown (SPEC_FULL §9: "recency-penalised uniform
// draw" — opponents recently played are excluded entirely rather than
// merely down-weighted, since the configured pool is expected to be small).
func (m *Matchmaker) pickOpponent(now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []string
	for _, name := range m.cfg.Opponents {
		until, onCooldown := m.cooldowns[name]
		if onCooldown && now.Before(until) {
			continue
		}
		eligible = append(eligible, name)
	}
	if len(eligible) == 0 {
		return ""
	}
	return eligible[m.rng.Intn(len(eligible))]
}

type timeControl struct {
	initial   int
	increment int
}

// parseTimeControl reads a "initial+increment" configuration string (e.g.
// "300+0" for 5+0 blitz), matching the compact notation lichess itself uses
// in bot documentation.
func parseTimeControl(s string) (timeControl, bool) {
	initialStr, incrementStr, found := strings.Cut(s, "+")
	if !found {
		return timeControl{}, false
	}
	initial, err1 := strconv.Atoi(strings.TrimSpace(initialStr))
	increment, err2 := strconv.Atoi(strings.TrimSpace(incrementStr))
	if err1 != nil || err2 != nil {
		return timeControl{}, false
	}
	return timeControl{initial: initial, increment: increment}, true
}
