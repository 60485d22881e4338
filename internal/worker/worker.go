// Package worker implements C4, the Game Worker: one instance per game,
// running the Opening -> Running -> Recovering -> Closing state machine of
// §4.4. Grounded on the reference bot's internal/service/chess Service for
// the session-replay-after-restart and error-taxonomy handling patterns,
// and internal/pvpchess/manager.go for the "recompute from move list, act,
// persist" loop shape — generalised from a Redis-backed shared game record
// to a per-worker goroutine driving a private EngineSession.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/archive"
	"github.com/park285/lichess-bot-go/internal/chatcmd"
	"github.com/park285/lichess-bot-go/internal/client"
	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/engine"
	"github.com/park285/lichess-bot-go/internal/errs"
	"github.com/park285/lichess-bot-go/internal/obslog"
	"github.com/park285/lichess-bot-go/internal/wire"
)

// phase names the state machine's node (§4.4).
type phase int

const (
	phaseOpening phase = iota
	phaseRunning
	phaseRecovering
	phaseClosing
)

// watchdogInterval bounds how long the worker waits for a stream frame;
// when it elapses the worker moves to Closing with a stalled error. The
// stream is not re-opened and the game is not resigned on this path.
const watchdogInterval = 60 * time.Second

// maxConsecutiveBadMoves is §7's "engine-bad-move after two consecutive
// occurrences in one game becomes resign + Closing".
const maxConsecutiveBadMoves = 2

// Deps are the shared collaborators a Worker needs, supplied by the Control
// Loop at spawn time.
type Deps struct {
	Client          *client.Client
	Engine          config.EngineConfig
	Draw            config.DrawConfig
	Takeback        bool
	Archiver        *archive.Archiver
	OurAccountID    string
	PendingOpponents func() []string
}

// Worker drives one game end to end.
type Worker struct {
	deps    Deps
	gameID  string
	sessionID string
	adapter engine.Adapter

	descriptor domain.GameDescriptor
	state      domain.GameState

	consecutiveBadMoves int
	restarted           bool
	resignReason        string
	lastStats           domain.EngineStats
	haveStats           bool
	clockHistory        []time.Duration

	moveOverhead   time.Duration
	safetyFraction float64
}

// New constructs a Worker for gameID; Run performs all I/O. sessionID
// correlates every log line this worker emits across engine restarts,
// mirroring the reference bot's per-session uuid.NewString() tagging.
func New(deps Deps, gameID string) *Worker {
	return &Worker{
		deps:           deps,
		gameID:         gameID,
		sessionID:      uuid.NewString(),
		moveOverhead:   time.Duration(deps.Engine.MoveOverheadMs) * time.Millisecond,
		safetyFraction: orDefaultFraction(deps.Engine.SafetyFraction),
	}
}

func orDefaultFraction(f float64) float64 {
	if f <= 0 {
		return 0.05
	}
	return f
}

// Run blocks until the game reaches a terminal state or ctx is cancelled.
// Once the game stream is open it always attempts a Closing pass before
// returning, per §5's cancellation contract (close stream, engine quit,
// flush archive); if the stream cannot be opened it returns that error
// without a Closing pass or archive record.
func (w *Worker) Run(ctx context.Context) error {
	logger := obslog.L().With(zap.String("game_id", w.gameID), zap.String("session_uuid", w.sessionID))

	stream, err := w.deps.Client.GameStream(ctx, w.gameID)
	if err != nil {
		logger.Error("game_stream_open_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
		return err
	}
	defer stream.Close()

	ph := phaseOpening

	for ph != phaseClosing {
		switch ph {
		case phaseOpening:
			ph, err = w.runOpening(ctx, stream, logger)
		case phaseRunning:
			ph, err = w.runRunning(ctx, stream, logger)
		case phaseRecovering:
			ph, err = w.runRecovering(ctx, logger)
		}
		if err != nil {
			logger.Warn("worker_phase_error", obslog.KindField(errs.Kind(err)), zap.Error(err))
			ph = phaseClosing
		}
	}

	record := w.buildArchiveRecord()
	w.runClosing(ctx, logger)
	w.deps.Archiver.Enqueue(record)
	return nil
}

func (w *Worker) runOpening(ctx context.Context, stream *client.Stream, logger *zap.Logger) (phase, error) {
	select {
	case <-ctx.Done():
		return phaseClosing, ctx.Err()
	case frame, ok := <-stream.Frames:
		if !ok || frame.Err != nil {
			if frame.Err != nil {
				return phaseClosing, frame.Err
			}
			return phaseClosing, fmt.Errorf("%w: stream closed before gameFull", errs.ErrProtocol)
		}
		kind, full, _, _, _, err := wire.DecodeGameStreamFrame(frame.Data)
		if err != nil {
			return phaseClosing, fmt.Errorf("%w: decode gameFull: %w", errs.ErrProtocol, err)
		}
		if kind != "gameFull" || full == nil {
			return phaseClosing, fmt.Errorf("%w: expected gameFull, got %s", errs.ErrProtocol, kind)
		}

		w.descriptor = wire.ToDomainDescriptor(*full, w.deps.OurAccountID)
		w.state = wire.ToDomainGameState(full.State)

		adapter, err := engine.Spawn(ctx, w.deps.Engine.Path, w.deps.Engine.Args, w.deps.Engine.Protocol, w.deps.Engine.Options)
		if err != nil {
			return phaseClosing, fmt.Errorf("%w: %w", errs.ErrEngineSpawn, err)
		}
		w.adapter = adapter

		if err := w.adapter.SetPosition(ctx, w.descriptor.InitialFEN, w.state.Moves); err != nil {
			return phaseClosing, err
		}

		logger.Info("worker_opened",
			zap.String("our_color", string(w.descriptor.OurColor)),
			zap.String("opponent", w.descriptor.Opponent.Name),
			zap.String("variant", string(w.descriptor.Variant)),
		)
		return phaseRunning, nil
	}
}

func (w *Worker) runRunning(ctx context.Context, stream *client.Stream, logger *zap.Logger) (phase, error) {
	if w.state.Status.Terminal() {
		return phaseClosing, nil
	}

	if w.state.Turn() == w.descriptor.OurColor {
		if next, err := w.takeTurn(ctx, logger); err != nil {
			if errors.Is(err, errs.ErrEngineDead) {
				return phaseRecovering, nil
			}
			return next, err
		}
	}

	watchdog := time.NewTimer(watchdogInterval)
	defer watchdog.Stop()

	select {
	case <-ctx.Done():
		return phaseClosing, ctx.Err()

	case <-watchdog.C:
		logger.Warn("worker_stream_watchdog_fired")
		return phaseClosing, fmt.Errorf("%w: stream idle past watchdog", errs.ErrStalled)

	case frame, ok := <-stream.Frames:
		if !ok || frame.Err != nil {
			if frame.Err != nil {
				return phaseClosing, frame.Err
			}
			return phaseClosing, fmt.Errorf("%w: stream closed", errs.ErrProtocol)
		}
		return w.handleFrame(ctx, frame, logger)
	}
}

func (w *Worker) handleFrame(ctx context.Context, frame client.Frame, logger *zap.Logger) (phase, error) {
	kind, _, state, chat, gone, err := wire.DecodeGameStreamFrame(frame.Data)
	if err != nil {
		return phaseRunning, fmt.Errorf("%w: decode frame: %w", errs.ErrProtocol, err)
	}

	switch kind {
	case "gameState":
		if state == nil {
			return phaseRunning, nil
		}
		next := wire.ToDomainGameState(*state)
		if err := w.applyStateTransition(ctx, next, logger); err != nil {
			return phaseRunning, err
		}
		if w.state.Status.Terminal() {
			return phaseClosing, nil
		}
		return phaseRunning, nil

	case "chatLine":
		if chat != nil {
			w.handleChat(ctx, wire.ToDomainChatLine(w.gameID, *chat), logger)
		}
		return phaseRunning, nil

	case "opponentGone":
		if gone != nil {
			logger.Info("opponent_gone", zap.Bool("gone", gone.Gone))
		}
		return phaseRunning, nil

	default:
		return phaseRunning, nil
	}
}

// applyStateTransition checks §5's monotonicity guarantee: move-list
// length is non-decreasing except across a takeback. A shrink with no
// takeback flag set is logged as a warning and the new state is adopted as
// it is; the worker does not re-request full state.
func (w *Worker) applyStateTransition(ctx context.Context, next domain.GameState, logger *zap.Logger) error {
	prevLen := len(w.state.Moves)
	nextLen := len(next.Moves)

	takeback := next.WhiteRequestsTakeback || next.BlackRequestsTakeback
	if nextLen < prevLen && !takeback && !w.deps.Takeback {
		logger.Warn("worker_movelist_shrink_without_takeback",
			zap.Int("prev_len", prevLen), zap.Int("next_len", nextLen))
	}
	if nextLen < prevLen && w.deps.Takeback {
		if err := w.adapter.SetPosition(ctx, w.descriptor.InitialFEN, next.Moves); err != nil {
			return err
		}
		if nextLen < len(w.clockHistory) {
			w.clockHistory = w.clockHistory[:nextLen]
		}
	}
	for i := prevLen; i < nextLen; i++ {
		mover := domain.White
		if i%2 == 1 {
			mover = domain.Black
		}
		remaining := next.WhiteTimeLeft
		if mover == domain.Black {
			remaining = next.BlackTimeLeft
		}
		w.clockHistory = append(w.clockHistory, remaining)
	}

	w.state = next
	return nil
}

func (w *Worker) handleChat(ctx context.Context, line domain.ChatLine, logger *zap.Logger) {
	var queued []string
	if w.deps.PendingOpponents != nil {
		queued = w.deps.PendingOpponents()
	}
	reply, handled := chatcmd.Handle(line, chatcmd.Context{EngineName: "the engine", LastEval: w.formatEval(), QueuedOpponents: queued})
	if !handled {
		return
	}
	if err := w.deps.Client.Chat(ctx, w.gameID, string(line.Room), reply); err != nil {
		logger.Warn("chat_reply_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
	}
}

// takeTurn runs setPosition+search and submits the resulting move, offering
// the draw back on this same submission when the opponent offered one and
// policy accepts (§4.4 Auxiliary behaviours): make-move's offeringDraw flag
// is the only draw-related verb the upstream HTTP surface exposes (§6), so a
// reciprocal offer on our own move is how acceptance is communicated.
func (w *Worker) takeTurn(ctx context.Context, logger *zap.Logger) (phase, error) {
	opponentOffersDraw := (w.descriptor.OurColor == domain.White && w.state.BlackOffersDraw) ||
		(w.descriptor.OurColor == domain.Black && w.state.WhiteOffersDraw)
	acceptDraw := opponentOffersDraw && w.shouldAcceptDraw()

	if err := w.adapter.SetPosition(ctx, w.descriptor.InitialFEN, w.state.Moves); err != nil {
		if w.adapter.Dead() {
			return phaseRecovering, fmt.Errorf("%w: %w", errs.ErrEngineDead, err)
		}
		return phaseRunning, err
	}

	limits := engine.Limits{
		WhiteTimeLeft:  w.state.WhiteTimeLeft,
		BlackTimeLeft:  w.state.BlackTimeLeft,
		WhiteIncrement: w.state.Increment,
		BlackIncrement: w.state.Increment,
		FixedMoveTime:  time.Duration(w.deps.Engine.MoveTimeMillis) * time.Millisecond,
		FixedDepth:     w.deps.Engine.Depth,
		FixedNodes:     w.deps.Engine.Nodes,
		Ponder:         w.deps.Engine.Pondering,
		SearchCap:      time.Duration(w.deps.Engine.SearchCapMs) * time.Millisecond,
	}

	mv, stats, err := w.adapter.Search(ctx, w.descriptor.OurColor, w.state.Turn(), w.moveOverhead, w.safetyFraction, limits)
	if err != nil {
		if w.adapter.Dead() {
			return phaseRecovering, fmt.Errorf("%w: %w", errs.ErrEngineDead, err)
		}
		return phaseRunning, err
	}
	w.lastStats = stats
	w.haveStats = true

	err = w.deps.Client.MakeMove(ctx, w.gameID, mv, acceptDraw)
	if err == nil {
		w.consecutiveBadMoves = 0
		return phaseRunning, nil
	}

	if errors.Is(err, errs.ErrConflict) {
		// Move already applied or illegal per service: a fresh stream read
		// will bring state current (§4.4 Running).
		return phaseRunning, nil
	}

	w.consecutiveBadMoves++
	logger.Warn("engine_bad_move", zap.String("move", mv), zap.Int("consecutive", w.consecutiveBadMoves), zap.Error(err))
	if w.consecutiveBadMoves >= maxConsecutiveBadMoves {
		w.resignReason = "engine-bad-move"
		_ = w.deps.Client.ResignGame(ctx, w.gameID)
		return phaseClosing, fmt.Errorf("%w: after %d consecutive bad moves", errs.ErrEngineBadMove, w.consecutiveBadMoves)
	}
	return phaseRunning, nil
}

func (w *Worker) formatEval() string {
	if !w.haveStats {
		return ""
	}
	if w.lastStats.MateIn != 0 {
		return fmt.Sprintf("mate in %d", w.lastStats.MateIn)
	}
	return fmt.Sprintf("%.2f", float64(w.lastStats.ScoreCP)/100.0)
}

// shouldAcceptDraw implements §4.4's draw-offer policy: accept iff enabled,
// the game has reached the configured minimum move count, and the last
// reported engine score (when available) sits within the configured window
// of zero. Absent a score, the policy declines rather than gambling blind.
func (w *Worker) shouldAcceptDraw() bool {
	if !w.deps.Draw.Enabled {
		return false
	}
	if len(w.state.Moves) < w.deps.Draw.MinMoves {
		return false
	}
	if !w.haveStats {
		return false
	}
	score := w.lastStats.ScoreCP
	if score < 0 {
		score = -score
	}
	return score <= w.deps.Draw.ScoreWindowCP
}

// runRecovering implements §4.4 Recovering: one restart attempt with the
// same configured binary; success re-applies position and resumes Running,
// failure resigns and moves to Closing.
func (w *Worker) runRecovering(ctx context.Context, logger *zap.Logger) (phase, error) {
	if w.restarted {
		w.resignReason = "engine-dead"
		_ = w.deps.Client.ResignGame(ctx, w.gameID)
		return phaseClosing, fmt.Errorf("%w: restart already attempted once", errs.ErrEngineDead)
	}
	w.restarted = true

	logger.Warn("worker_engine_restart_attempt")
	adapter, err := engine.Spawn(ctx, w.deps.Engine.Path, w.deps.Engine.Args, w.deps.Engine.Protocol, w.deps.Engine.Options)
	if err != nil {
		w.resignReason = "engine-dead"
		_ = w.deps.Client.ResignGame(ctx, w.gameID)
		return phaseClosing, fmt.Errorf("%w: restart failed: %w", errs.ErrEngineDead, err)
	}
	w.adapter = adapter

	if err := w.adapter.SetPosition(ctx, w.descriptor.InitialFEN, w.state.Moves); err != nil {
		w.resignReason = "engine-dead"
		_ = w.deps.Client.ResignGame(ctx, w.gameID)
		return phaseClosing, fmt.Errorf("%w: replay after restart failed: %w", errs.ErrEngineDead, err)
	}

	logger.Info("worker_engine_restart_succeeded")
	return phaseRunning, nil
}

// runClosing implements §4.4 Closing: quit engine, close stream (deferred by
// caller), terminate worker.
func (w *Worker) runClosing(ctx context.Context, logger *zap.Logger) {
	if w.adapter != nil {
		quitCtx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		if err := w.adapter.Quit(quitCtx); err != nil {
			logger.Warn("worker_engine_quit_failed", zap.Error(err))
		}
	}
	logger.Info("worker_closed", zap.String("reason", w.resignReason))
}

func (w *Worker) buildArchiveRecord() domain.ArchiveRecord {
	white, black := w.descriptor.Opponent.Name, w.deps.OurAccountID
	if w.descriptor.OurColor == domain.White {
		white, black = w.deps.OurAccountID, w.descriptor.Opponent.Name
	}
	return domain.ArchiveRecord{
		GameID:           w.gameID,
		Event:            "Bot game",
		White:            white,
		Black:            black,
		Result:           resultString(w.state.Status, w.state.Winner),
		TimeControl:      fmt.Sprintf("%d+%d", w.descriptor.TimeControl.InitialSeconds, w.descriptor.TimeControl.IncrementSeconds),
		Variant:          w.descriptor.Variant,
		Moves:            w.state.Moves,
		ClockAnnotations: w.clockHistory,
		Method:           w.state.Status,
		Date:             time.Now(),
	}
}

func resultString(status domain.GameStatus, winner domain.Color) string {
	switch status {
	case domain.StatusDraw, domain.StatusStalemate:
		return "1/2-1/2"
	case domain.StatusMate, domain.StatusResign, domain.StatusTimeout, domain.StatusOutOfTime, domain.StatusCheat:
		switch winner {
		case domain.White:
			return "1-0"
		case domain.Black:
			return "0-1"
		default:
			return "*"
		}
	default:
		return "*"
	}
}
