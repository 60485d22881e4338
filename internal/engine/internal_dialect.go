package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/errs"
)

// internalAdapter is the in-process dialect §4.2 permits ("an
// internal-engine dialect ... conforming to the same setPosition/search
// contract without a subprocess"). It never performs a chess search
// (§1 Non-goals); it uniformly samples a legal move, which makes it useful
// for integration tests and for configurations that want the worker's
// state machine exercised without spawning a binary.
type internalAdapter struct {
	mu    sync.Mutex
	game  *chesslib.Game
	rng   *rand.Rand
	dead  bool
}

func newInternalAdapter() *internalAdapter {
	return &internalAdapter{game: chesslib.NewGame(), rng: rand.New(rand.NewSource(1))}
}

func (a *internalAdapter) Dialect() domain.Dialect { return domain.DialectInternal }
func (a *internalAdapter) Dead() bool              { return a.dead }

// SetPosition always reconstructs from the start position and replays the
// supplied coordinate-notation moves, mirroring the reference bot's
// reconstruct() helper: the initial FEN is accepted for interface symmetry
// with the other dialects but is not separately parsed here, since replaying
// the full move list from game start is the only reconstruction path the
// reference corpus exercises (parsing a FEN and then replaying moves on top
// of it risks double-applying state that the FEN already encodes).
func (a *internalAdapter) SetPosition(ctx context.Context, initialFEN string, moves []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	g := chesslib.NewGame()
	notation := chesslib.UCINotation{}
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, notation, nil); err != nil {
			return fmt.Errorf("%w: replay move %s: %w", errs.ErrEngineProtocol, mv, err)
		}
	}
	a.game = g
	return nil
}

func (a *internalAdapter) Search(ctx context.Context, ourColor, mover domain.Color, moveOverhead time.Duration, safetyFraction float64, l Limits) (string, domain.EngineStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	moves := a.game.ValidMoves()
	if len(moves) == 0 {
		a.dead = true
		return "", domain.EngineStats{}, fmt.Errorf("%w: no legal moves available", errs.ErrEngineDead)
	}
	choice := moves[a.rng.Intn(len(moves))]
	return choice.String(), domain.EngineStats{}, nil
}

func (a *internalAdapter) PonderHit(ctx context.Context) error  { return nil }
func (a *internalAdapter) StopPonder(ctx context.Context) error { return nil }
func (a *internalAdapter) Quit(ctx context.Context) error       { return nil }
