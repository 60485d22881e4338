// Package control implements C5, the Control Loop: owns the account-wide
// event stream, evaluates challenges via C3, spawns Game Workers for
// gameStart frames, and releases worker slots on gameFinish. Grounded on
// the reference bot's ws_nhooyr.go reconnect-with-backoff idiom (adapted
// here from WebSocket callbacks to NDJSON frame dispatch) and
// internal/pvp/manager.go's challenge lifecycle bookkeeping.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/activeworkers"
	"github.com/park285/lichess-bot-go/internal/archive"
	"github.com/park285/lichess-bot-go/internal/client"
	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/errs"
	"github.com/park285/lichess-bot-go/internal/obslog"
	"github.com/park285/lichess-bot-go/internal/policy"
	"github.com/park285/lichess-bot-go/internal/wire"
	"github.com/park285/lichess-bot-go/internal/worker"
)

// pendingCap bounds the deferred-challenge list; the oldest entry is
// dropped when full (§4.5: "enqueue to a bounded pending list (dropped
// from head when full)").
const pendingCap = 32

// reconnectBaseDelay/reconnectMaxDelay bound the events-stream reconnect
// backoff (§4.5 Reconnection), mirroring the reference bot's WebSocket
// reconnect schedule.
const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// MatchmakerNotifier is the callback surface the Matchmaker (C6) registers
// so the Control Loop can tell it about challenge resolution without C5
// importing C6 (§4.6: "await resolution via C5 callbacks").
type MatchmakerNotifier interface {
	NotifyGameStart(opponent string)
	NotifyDeclinedOrCanceled(opponent string)
}

// Loop is C5.
type Loop struct {
	client   *client.Client
	cfg      *config.Config
	registry *activeworkers.Registry
	archiver *archive.Archiver
	ourID    string

	matchmaker MatchmakerNotifier

	mu               sync.Mutex
	challengingUser  string
	pending          []domain.Challenge
	shuttingDown     bool
}

// New builds a Control Loop; SetMatchmaker is optional and may be called
// once before Run.
func New(c *client.Client, cfg *config.Config, registry *activeworkers.Registry, archiver *archive.Archiver, ourID string) *Loop {
	return &Loop{client: c, cfg: cfg, registry: registry, archiver: archiver, ourID: ourID}
}

func (l *Loop) SetMatchmaker(m MatchmakerNotifier) { l.matchmaker = m }

// IssueChallenge lets the Matchmaker (C6) route an outbound challenge
// through C1 while C5 tracks who we are currently challenging, satisfying
// §4.3's "currently-challenging-user" state input.
func (l *Loop) IssueChallenge(ctx context.Context, req wire.CreateChallengeRequest) error {
	l.mu.Lock()
	l.challengingUser = req.Opponent
	l.mu.Unlock()
	return l.client.CreateChallenge(ctx, req)
}

// Run consumes the account-wide event stream until ctx is cancelled,
// reconnecting with backoff on stream failure (§4.5 Reconnection).
func (l *Loop) Run(ctx context.Context) error {
	logger := obslog.L()
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stream, err := l.client.EventsStream(ctx)
		if err != nil {
			logger.Error("events_stream_open_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
			if !sleepOrDone(ctx, delay) {
				return ctx.Err()
			}
			delay = nextDelay(delay)
			continue
		}
		delay = reconnectBaseDelay

		err = l.consume(ctx, stream)
		stream.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("events_stream_dropped", obslog.KindField(errs.Kind(err)), zap.Error(err))
		}
		if l.isShuttingDown() {
			return nil
		}
		if !sleepOrDone(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay)
	}
}

func (l *Loop) consume(ctx context.Context, stream *client.Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-stream.Frames:
			if !ok || frame.Err != nil {
				if frame.Err != nil {
					return frame.Err
				}
				return fmt.Errorf("%w: events stream closed", errs.ErrProtocol)
			}
			l.dispatch(ctx, frame.Data)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, raw []byte) {
	var head struct {
		Type      string               `json:"type"`
		Challenge *wire.ChallengeFrame `json:"challenge"`
		Game      *wire.GameRef        `json:"game"`
	}
	if err := decodeJSON(raw, &head); err != nil {
		obslog.L().Warn("event_frame_decode_failed", zap.Error(err))
		return
	}

	switch head.Type {
	case "challenge":
		if head.Challenge != nil {
			l.evaluateAndRespond(ctx, wire.ToDomainChallenge(*head.Challenge))
		}
	case "gameStart":
		if head.Game != nil {
			l.handleGameStart(ctx, head.Game.ID)
		}
	case "gameFinish":
		if head.Game != nil {
			l.handleGameFinish(head.Game.ID)
		}
	case "challengeCanceled", "challengeDeclined":
		if head.Challenge != nil && l.matchmaker != nil {
			opponent := head.Challenge.Challenger.Name
			if strings.EqualFold(opponent, l.ourID) {
				// our own outbound challenge: the opponent is whoever we challenged
				opponent = l.currentlyChallenging()
			}
			l.matchmaker.NotifyDeclinedOrCanceled(opponent)
		}
	}
}

// evaluateAndRespond runs C3's policy against a challenge already in domain
// form, whether freshly decoded off the events stream or pulled back out of
// the pending list (§4.5), and carries out whatever C3 decided.
func (l *Loop) evaluateAndRespond(ctx context.Context, ch domain.Challenge) {
	state := policy.State{ActiveGameCount: l.registry.Count(), CurrentlyChallenging: l.currentlyChallenging()}
	decision := policy.Evaluate(l.cfg.Challenge, l.cfg.MaxGames, state, ch)

	logger := obslog.L().With(zap.String("challenge_id", ch.ID), zap.String("challenger", ch.Challenger.Name))

	switch decision.Kind {
	case domain.Accept:
		if err := l.client.AcceptChallenge(ctx, ch.ID); err != nil {
			logger.Warn("challenge_accept_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
		} else {
			logger.Info("challenge_accepted")
		}
	case domain.Decline:
		if err := l.client.DeclineChallenge(ctx, ch.ID, string(decision.Reason)); err != nil {
			logger.Warn("challenge_decline_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
		} else {
			logger.Info("challenge_declined", zap.String("reason", string(decision.Reason)))
		}
	case domain.Defer:
		l.enqueuePending(ch)
		logger.Info("challenge_deferred")
	}
}

func (l *Loop) handleGameStart(ctx context.Context, gameID string) {
	logger := obslog.L().With(zap.String("game_id", gameID))

	if l.isShuttingDown() {
		if err := l.client.AbortGame(ctx, gameID); err != nil {
			logger.Warn("shutdown_abort_failed", zap.Error(err))
		}
		return
	}
	if l.registry.Has(gameID) {
		return // idempotent: duplicate gameStart for an already-running worker (§8)
	}
	if l.cfg.MaxGames > 0 && l.registry.Count() >= l.cfg.MaxGames {
		if err := l.client.AbortGame(ctx, gameID); err != nil {
			logger.Warn("no_slot_abort_failed", zap.Error(err))
		}
		return
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	registered, err := l.registry.TryRegister(ctx, &activeworkers.Handle{GameID: gameID, Cancel: cancel})
	if err != nil {
		logger.Warn("register_worker_failed", zap.Error(err))
	}
	if !registered {
		cancel()
		return
	}

	deps := worker.Deps{
		Client:           l.client,
		Engine:           l.cfg.Engine,
		Draw:             l.cfg.Draw,
		Takeback:         l.cfg.TakebackEnabled,
		Archiver:         l.archiver,
		OurAccountID:     l.ourID,
		PendingOpponents: l.PendingOpponentNames,
	}
	w := worker.New(deps, gameID)

	go func() {
		defer l.registry.Unregister(context.Background(), gameID)
		if err := w.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("worker_exited_with_error", obslog.KindField(errs.Kind(err)), zap.Error(err))
		}
	}()

	if l.matchmaker != nil {
		l.matchmaker.NotifyGameStart(l.currentlyChallenging())
	}
	logger.Info("worker_spawned")
}

func (l *Loop) handleGameFinish(gameID string) {
	l.registry.Unregister(context.Background(), gameID)
	obslog.L().Info("game_finished", zap.String("game_id", gameID))
	l.drainPending()
}

// drainPending re-evaluates deferred challenges now that a slot may have
// freed up (§4.5: "the Control Loop will re-evaluate later").
func (l *Loop) drainPending() {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	next := l.pending[0]
	l.pending = l.pending[1:]
	l.mu.Unlock()

	l.evaluateAndRespond(context.Background(), next)
}

// PendingOpponentNames lists the challengers currently deferred, for the
// "queue" chat command (SPEC_FULL §6).
func (l *Loop) PendingOpponentNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.pending))
	for i, ch := range l.pending {
		names[i] = ch.Challenger.Name
	}
	return names
}

func (l *Loop) enqueuePending(ch domain.Challenge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, ch)
	if len(l.pending) > pendingCap {
		l.pending = l.pending[len(l.pending)-pendingCap:]
	}
}

func (l *Loop) currentlyChallenging() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.challengingUser
}

// Shutdown implements §5's graceful-shutdown contract: stop accepting new
// games, wait up to drain for workers to reach terminal states, then force
// closure by canceling every remaining worker.
func (l *Loop) Shutdown(ctx context.Context, drain time.Duration) {
	l.mu.Lock()
	l.shuttingDown = true
	l.mu.Unlock()

	deadline := time.NewTimer(drain)
	defer deadline.Stop()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.registry.Count() == 0 {
			return
		}
		select {
		case <-deadline.C:
			l.registry.CancelAll()
			return
		case <-ctx.Done():
			l.registry.CancelAll()
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) isShuttingDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shuttingDown
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func decodeJSON(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func nextDelay(d time.Duration) time.Duration {
	next := d * 2
	if next > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return next
}
