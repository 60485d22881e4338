// Package errs defines the error-kind taxonomy shared across the bot's
// components. Each sentinel identifies a kind, not a concrete failure; call
// sites wrap it with fmt.Errorf("...: %w", ErrX) so errors.Is still resolves
// the kind after context is attached.
package errs

import "errors"

var (
	ErrConfig         = errors.New("config")
	ErrAuth           = errors.New("auth")
	ErrTransport      = errors.New("transport")
	ErrRateLimit      = errors.New("rate-limit")
	ErrProtocol       = errors.New("protocol")
	ErrEngineSpawn    = errors.New("engine-spawn")
	ErrEngineProtocol = errors.New("engine-protocol")
	ErrEngineBadMove  = errors.New("engine-bad-move")
	ErrEngineDead     = errors.New("engine-dead")
	ErrGameTerminated = errors.New("game-terminated")
	ErrCancelled      = errors.New("cancelled")
	ErrInternal       = errors.New("internal")

	// Remote client errors additional to the kinds above (§4.1).
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not-found")
	ErrConflict     = errors.New("conflict")
	ErrServer       = errors.New("server")
	ErrStalled      = errors.New("stalled")

	// Engine-adapter startup error (§6 exit code 3).
	ErrEngineUnsupported = errors.New("engine-unsupported")
)

// Kind returns the taxonomy tag for logging, matching one of the sentinels
// above by errors.Is; falls back to "internal" for anything unrecognised.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrRateLimit):
		return "rate-limit"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrEngineSpawn):
		return "engine-spawn"
	case errors.Is(err, ErrEngineUnsupported):
		return "engine-unsupported"
	case errors.Is(err, ErrEngineProtocol):
		return "engine-protocol"
	case errors.Is(err, ErrEngineBadMove):
		return "engine-bad-move"
	case errors.Is(err, ErrEngineDead):
		return "engine-dead"
	case errors.Is(err, ErrGameTerminated):
		return "game-terminated"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrStalled):
		return "stalled"
	default:
		return "internal"
	}
}
