package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/errs"
)

// xboardAdapter is the alternative dialect named in §6: handshake `xboard`,
// position via `force`+replayed moves (XBoard has no FEN-and-moves command
// analogous to UCI's `position`), search via `go`, stop via the `?` move-now
// token, terminate via `quit`. Structurally mirrors uciAdapter; XBoard has no
// MultiPV/ponder-hit analogue so those operations are no-ops here.
type xboardAdapter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex
	search sync.Mutex
	dead   atomic.Bool

	moves []string

	pending chan lineResult // stdout read left in flight by a readLine whose ctx ended
}

func newXBoardAdapter(ctx context.Context, binaryPath string, args []string, options map[string]string) (*xboardAdapter, error) {
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %w", errs.ErrEngineSpawn, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: create stdout pipe: %w", errs.ErrEngineSpawn, err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("%w: start engine: %w", errs.ErrEngineSpawn, err)
	}

	a := &xboardAdapter{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdoutPipe)}
	initCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := a.send("xboard\nprotover 2\n"); err != nil {
		_ = a.terminate()
		return nil, fmt.Errorf("%w: send xboard probe: %w", errs.ErrEngineSpawn, err)
	}
	if err := a.awaitToken(initCtx, "feature"); err != nil {
		_ = a.terminate()
		return nil, fmt.Errorf("%w: wait feature: %w", errs.ErrEngineUnsupported, err)
	}
	for k, v := range options {
		_ = a.send(fmt.Sprintf("option %s=%s\n", k, v))
	}
	return a, nil
}

// probeXBoard mirrors probeUCI's shape for the fallback path in detectAndSpawn.
func probeXBoard(ctx context.Context, binaryPath string, args []string) (*xboardAdapter, bool) {
	a, err := newXBoardAdapter(ctx, binaryPath, args, nil)
	if err != nil {
		return nil, false
	}
	return a, true
}

func (a *xboardAdapter) Dialect() domain.Dialect { return domain.DialectXBoard }
func (a *xboardAdapter) Dead() bool              { return a.dead.Load() }

func (a *xboardAdapter) SetPosition(ctx context.Context, initialFEN string, moves []string) error {
	cmds := strings.Builder{}
	cmds.WriteString("force\n")
	cmds.WriteString("new\n")
	if strings.TrimSpace(initialFEN) != "" {
		cmds.WriteString("setboard " + initialFEN + "\n")
	}
	for _, m := range moves {
		cmds.WriteString(m + "\n")
	}
	a.moves = append([]string(nil), moves...)
	if err := a.send(cmds.String()); err != nil {
		a.dead.Store(true)
		return fmt.Errorf("%w: set position: %w", errs.ErrEngineDead, err)
	}
	return nil
}

func (a *xboardAdapter) Search(ctx context.Context, ourColor, mover domain.Color, moveOverhead time.Duration, safetyFraction float64, l Limits) (string, domain.EngineStats, error) {
	a.search.Lock()
	defer a.search.Unlock()

	mode := TimeModeClock
	switch {
	case l.FixedMoveTime > 0:
		mode = TimeModeMoveTime
	case l.FixedDepth > 0:
		mode = TimeModeDepth
	case l.FixedNodes > 0:
		mode = TimeModeNodes
	}

	var cmd string
	switch mode {
	case TimeModeMoveTime:
		cmd = fmt.Sprintf("st %d\ngo\n", int(l.FixedMoveTime.Seconds()))
	case TimeModeDepth:
		cmd = fmt.Sprintf("sd %d\ngo\n", l.FixedDepth)
	default:
		wtMs := int(l.WhiteTimeLeft.Milliseconds() / 10) // XBoard "time" is centiseconds
		btMs := int(l.BlackTimeLeft.Milliseconds() / 10)
		cmd = fmt.Sprintf("time %d\notim %d\ngo\n", wtMs, btMs)
	}
	if err := a.send(cmd); err != nil {
		a.dead.Store(true)
		return "", domain.EngineStats{}, fmt.Errorf("%w: send go: %w", errs.ErrEngineDead, err)
	}

	remaining := l.WhiteTimeLeft
	if mover == domain.Black {
		remaining = l.BlackTimeLeft
	}
	deadline := searchTimeout(mode, remaining, moveOverhead, safetyFraction, l, l.SearchCap)
	searchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var stopSent bool
	readCtx := searchCtx
	for {
		line, err := a.readLine(readCtx)
		if err != nil {
			if searchCtx.Err() != nil && !stopSent {
				stopSent = true
				_ = a.send("?\n")
				stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
				defer stopCancel()
				readCtx = stopCtx
				line, err = a.readLine(readCtx)
				if err != nil {
					a.dead.Store(true)
					return "", domain.EngineStats{}, fmt.Errorf("%w: read after move-now: %w", errs.ErrEngineDead, err)
				}
			} else {
				a.dead.Store(true)
				return "", domain.EngineStats{}, fmt.Errorf("%w: read line: %w", errs.ErrEngineDead, err)
			}
		}
		if strings.HasPrefix(line, "move ") {
			mv := strings.TrimSpace(strings.TrimPrefix(line, "move "))
			return mv, domain.EngineStats{}, nil
		}
	}
}

func (a *xboardAdapter) PonderHit(ctx context.Context) error  { return nil }
func (a *xboardAdapter) StopPonder(ctx context.Context) error { return nil }

func (a *xboardAdapter) Quit(ctx context.Context) error {
	_ = a.send("quit\n")
	done := make(chan error, 1)
	go func() { done <- a.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(quitGrace):
		_ = a.terminate()
		<-done
	}
	a.mu.Lock()
	a.stdin.Close()
	a.mu.Unlock()
	return nil
}

func (a *xboardAdapter) terminate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stdin != nil {
		_ = a.stdin.Close()
	}
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
		return a.cmd.Wait()
	}
	return nil
}

func (a *xboardAdapter) send(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := io.WriteString(a.stdin, msg)
	return err
}

func (a *xboardAdapter) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := a.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (a *xboardAdapter) readLine(ctx context.Context) (string, error) {
	ch := a.pending
	a.pending = nil
	if ch == nil {
		ch = make(chan lineResult, 1)
		go func() {
			line, err := a.stdout.ReadString('\n')
			ch <- lineResult{line: strings.TrimSpace(line), err: err}
		}()
	}
	select {
	case <-ctx.Done():
		a.pending = ch
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
