package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/errs"
)

const (
	handshakeTimeout = 4 * time.Second
	quitGrace        = 5 * time.Second
)

// uciAdapter drives a UCI engine subprocess. Grounded on the reference
// bot's chess/uci.Session: two mutexes (I/O vs. exclusive search), a
// goroutine+channel readLine to make blocking stdout reads cancellable, and
// the same handshake/applyOptions/parseInfo shape — generalised to the
// options map and Limits record this specification's wider surface needs.
type uciAdapter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex // guards stdin writes and process teardown
	search sync.Mutex // one search in flight at a time

	dead atomic.Bool

	posMu sync.Mutex
	fen   string
	moves []string

	statsMu sync.Mutex
	stats   domain.EngineStats

	pending chan lineResult // stdout read left in flight by a readLine whose ctx ended
}

func newUCIAdapter(ctx context.Context, binaryPath string, args []string, options map[string]string) (*uciAdapter, error) {
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

	a := &uciAdapter{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdoutPipe), fen: "startpos"}

	if err := a.handshake(ctx, options); err != nil {
		_ = a.Quit(ctx)
		return nil, err
	}
	return a, nil
}

// probeUCI sends the UCI identification probe and reports whether a uciok
// line arrives within handshakeTimeout, without committing to the dialect
// if not (§4.2: "send the UCI probe; if ... a UCI identification line
// appears, mode is UCI; else send the XBoard probe").
func probeUCI(ctx context.Context, binaryPath string, args []string) (*uciAdapter, bool) {
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, false
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, false
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, false
	}

	a := &uciAdapter{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdoutPipe), fen: "startpos"}
	probeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := a.send("uci\n"); err != nil {
		_ = a.terminate()
		return nil, false
	}
	if err := a.awaitToken(probeCtx, "uciok"); err != nil {
		_ = a.terminate()
		return nil, false
	}
	return a, true
}

func (a *uciAdapter) handshake(ctx context.Context, options map[string]string) error {
	initCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := a.send("uci\n"); err != nil {
		return fmt.Errorf("%w: send uci: %w", errs.ErrEngineSpawn, err)
	}
	if err := a.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("%w: wait uciok: %w", errs.ErrEngineUnsupported, err)
	}
	if err := a.applyOptions(options); err != nil {
		return err
	}
	if err := a.send("isready\n"); err != nil {
		return fmt.Errorf("%w: send isready: %w", errs.ErrEngineProtocol, err)
	}
	if err := a.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("%w: wait readyok: %w", errs.ErrEngineProtocol, err)
	}
	return nil
}

func (a *uciAdapter) applyOptions(options map[string]string) error {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic order for logs and tests
	for _, k := range keys {
		cmd := fmt.Sprintf("setoption name %s value %s\n", k, options[k])
		if err := a.send(cmd); err != nil {
			return fmt.Errorf("%w: apply option %s: %w", errs.ErrEngineProtocol, k, err)
		}
	}
	return nil
}

func (a *uciAdapter) Dialect() domain.Dialect { return domain.DialectUCI }
func (a *uciAdapter) Dead() bool              { return a.dead.Load() }

func (a *uciAdapter) SetPosition(ctx context.Context, initialFEN string, moves []string) error {
	a.posMu.Lock()
	if strings.TrimSpace(initialFEN) == "" {
		a.fen = "startpos"
	} else {
		a.fen = initialFEN
	}
	a.moves = append([]string(nil), moves...)
	cmd := buildPositionCommand(a.fen, a.moves)
	a.posMu.Unlock()

	if err := a.send(cmd); err != nil {
		a.dead.Store(true)
		return fmt.Errorf("%w: send position: %w", errs.ErrEngineDead, err)
	}
	return nil
}

func (a *uciAdapter) Search(ctx context.Context, ourColor, mover domain.Color, moveOverhead time.Duration, safetyFraction float64, l Limits) (string, domain.EngineStats, error) {
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

	goTokens, err := buildGoTokens(l)
	if err != nil {
		return "", domain.EngineStats{}, fmt.Errorf("%w: %w", errs.ErrEngineProtocol, err)
	}
	if err := a.send(strings.Join(goTokens, " ") + "\n"); err != nil {
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

	var best string
	var stopSent bool
	var lastStats domain.EngineStats
	readCtx := searchCtx

	for {
		line, err := a.readLine(readCtx)
		if err != nil {
			if searchCtx.Err() != nil && !stopSent {
				// deadline elapsed: stop and read the resulting bestmove (§4.2).
				stopSent = true
				_ = a.send("stop\n")
				stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
				defer stopCancel()
				readCtx = stopCtx
				line, err = a.readLine(readCtx)
				if err != nil {
					a.dead.Store(true)
					return "", lastStats, fmt.Errorf("%w: read after stop: %w", errs.ErrEngineDead, err)
				}
			} else {
				a.dead.Store(true)
				return "", lastStats, fmt.Errorf("%w: read line: %w", errs.ErrEngineDead, err)
			}
		}
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if cand, ok := parseInfo(line); ok {
				lastStats = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				best = parts[1]
			}
			a.statsMu.Lock()
			a.stats = lastStats
			a.statsMu.Unlock()
			return best, lastStats, nil
		}
	}
}

func (a *uciAdapter) PonderHit(ctx context.Context) error {
	return a.send("ponderhit\n")
}

func (a *uciAdapter) StopPonder(ctx context.Context) error {
	return a.send("stop\n")
}

func (a *uciAdapter) Quit(ctx context.Context) error {
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

func (a *uciAdapter) terminate() error {
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

func (a *uciAdapter) send(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := io.WriteString(a.stdin, msg)
	return err
}

func (a *uciAdapter) awaitToken(ctx context.Context, token string) error {
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

type lineResult struct {
	line string
	err  error
}

func (a *uciAdapter) readLine(ctx context.Context) (string, error) {
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

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	switch {
	case l.FixedMoveTime > 0:
		args = append(args, "movetime", strconv.Itoa(int(l.FixedMoveTime.Milliseconds())))
	case l.FixedDepth > 0:
		args = append(args, "depth", strconv.Itoa(l.FixedDepth))
	case l.FixedNodes > 0:
		args = append(args, "nodes", strconv.Itoa(l.FixedNodes))
	default:
		args = append(args, "wtime", strconv.Itoa(int(l.WhiteTimeLeft.Milliseconds())))
		args = append(args, "btime", strconv.Itoa(int(l.BlackTimeLeft.Milliseconds())))
		if l.WhiteIncrement > 0 {
			args = append(args, "winc", strconv.Itoa(int(l.WhiteIncrement.Milliseconds())))
		}
		if l.BlackIncrement > 0 {
			args = append(args, "binc", strconv.Itoa(int(l.BlackIncrement.Milliseconds())))
		}
		if l.MovesToGo > 0 {
			args = append(args, "movestogo", strconv.Itoa(l.MovesToGo))
		}
	}
	if l.Ponder {
		args = append(args, "ponder")
	}
	return args, nil
}

func parseInfo(line string) (domain.EngineStats, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return domain.EngineStats{}, false
	}
	var (
		scoreCP int
		mateIn  int
		scoreSet bool
		pvIdx   = -1
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "score":
			if i+2 < len(parts) {
				kind, val := parts[i+1], parts[i+2]
				switch kind {
				case "cp":
					if v, err := strconv.Atoi(val); err == nil {
						scoreCP = v
						scoreSet = true
					}
				case "mate":
					if v, err := strconv.Atoi(val); err == nil {
						mateIn = v
						scoreSet = true
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}
	if !scoreSet {
		return domain.EngineStats{}, false
	}
	var pv []string
	if pvIdx != -1 && pvIdx < len(parts) {
		pv = append([]string(nil), parts[pvIdx:]...)
	}
	return domain.EngineStats{ScoreCP: scoreCP, MateIn: mateIn, PrincipalVariation: pv}, true
}
