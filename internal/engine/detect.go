package engine

import (
	"context"
	"fmt"

	"github.com/park285/lichess-bot-go/internal/errs"
)

// detectAndSpawn implements the handshake probe order of §4.2 when
// engine.protocol is left unconfigured: try UCI, then XBoard, else
// engine-unsupported.
func detectAndSpawn(ctx context.Context, binaryPath string, args []string, options map[string]string) (Adapter, error) {
	if a, ok := probeUCI(ctx, binaryPath, args); ok {
		if err := a.applyOptions(options); err != nil {
			_ = a.Quit(ctx)
			return nil, err
		}
		if err := a.send("isready\n"); err != nil {
			_ = a.Quit(ctx)
			return nil, fmt.Errorf("%w: send isready: %w", errs.ErrEngineProtocol, err)
		}
		readyCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
		if err := a.awaitToken(readyCtx, "readyok"); err != nil {
			_ = a.Quit(ctx)
			return nil, fmt.Errorf("%w: wait readyok: %w", errs.ErrEngineProtocol, err)
		}
		return a, nil
	}

	if a, ok := probeXBoard(ctx, binaryPath, args); ok {
		return a, nil
	}

	return nil, fmt.Errorf("%w: neither UCI nor XBoard handshake succeeded for %s", errs.ErrEngineUnsupported, binaryPath)
}
