// Package engine implements C2, the Engine Adapter: it spawns and
// supervises an engine subprocess, translates abstract move-request
// operations into the engine's line protocol, and enforces a deadline on
// each search. Grounded on the reference bot's chess/uci package (subprocess
// lifecycle, handshake, cancellable readLine) generalised to the capability
// interface §9's Design Notes call for, with the reference's difficulty
// preset / opening-book / candidate-weighting machinery deliberately not
// carried over: that belonged to a "human-like opponent" behaviour outside
// this system's scope (§1 Non-goals: "no in-process chess search").
package engine

import (
	"context"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
)

// Limits is the enumerated search-limit record of §4.2. Exactly one mode is
// populated per call; configuration chooses it.
type Limits struct {
	WhiteTimeLeft   time.Duration
	BlackTimeLeft   time.Duration
	WhiteIncrement  time.Duration
	BlackIncrement  time.Duration
	MovesToGo       int
	FixedDepth      int
	FixedNodes      int
	FixedMoveTime   time.Duration
	Ponder          bool

	// SearchCap is the configured hard ceiling on search wall-clock time
	// (§4.2's "configured-cap"), independent of the time-control clock.
	SearchCap time.Duration
}

// Adapter is the capability interface §9 calls for: `{setPosition, search,
// stop, quit}`, implemented identically by UCI, XBoard, and any internal
// dialect selected at spawn time from configuration.
type Adapter interface {
	// SetPosition updates the engine's notion of the current position from
	// the initial position plus the applied move list (coordinate notation).
	SetPosition(ctx context.Context, initialFEN string, moves []string) error

	// Search blocks until the engine emits its best move or the derived
	// deadline elapses, in which case Search sends stop and returns whatever
	// best-move line follows. Returns domain.EngineStats alongside the move
	// for the !eval command and draw-offer window check.
	Search(ctx context.Context, ourColor domain.Color, mover domain.Color, moveOverhead time.Duration, safetyFraction float64, l Limits) (move string, stats domain.EngineStats, err error)

	// PonderHit / StopPonder are meaningful only in UCI mode with pondering
	// enabled; a no-op elsewhere.
	PonderHit(ctx context.Context) error
	StopPonder(ctx context.Context) error

	// Quit sends the dialect's graceful-quit command, waits up to 5s for
	// exit, then terminates forcibly (§4.2).
	Quit(ctx context.Context) error

	// Dead reports whether a prior read/write failure flipped the adapter
	// into the failed state (§4.2 crash semantics).
	Dead() bool

	Dialect() domain.Dialect
}

// Spawn detects the dialect via handshake (§4.2): send the UCI probe; if a
// UCI identification line appears within a bounded interval, mode is UCI;
// else send the XBoard probe; else raise engine-unsupported. protocol, when
// non-empty, forces the dialect instead of probing (matches
// engine.protocol in the configuration surface, §6).
func Spawn(ctx context.Context, binaryPath string, args []string, protocol string, options map[string]string) (Adapter, error) {
	switch protocol {
	case "uci":
		return newUCIAdapter(ctx, binaryPath, args, options)
	case "xboard":
		return newXBoardAdapter(ctx, binaryPath, args, options)
	case "internal":
		return newInternalAdapter(), nil
	default:
		return detectAndSpawn(ctx, binaryPath, args, options)
	}
}
