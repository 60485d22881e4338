package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/engine"
)

func newTestWorker(draw config.DrawConfig) *Worker {
	return New(Deps{Draw: draw, OurAccountID: "bot1"}, "G1")
}

func TestShouldAcceptDrawRequiresEnabled(t *testing.T) {
	w := newTestWorker(config.DrawConfig{Enabled: false})
	w.haveStats = true
	if w.shouldAcceptDraw() {
		t.Fatal("expected false when draw disabled")
	}
}

func TestShouldAcceptDrawRequiresMinMoves(t *testing.T) {
	w := newTestWorker(config.DrawConfig{Enabled: true, MinMoves: 20, ScoreWindowCP: 50})
	w.haveStats = true
	w.state.Moves = make([]string, 5)
	if w.shouldAcceptDraw() {
		t.Fatal("expected false below min-moves")
	}
}

func TestShouldAcceptDrawRequiresScoreWindow(t *testing.T) {
	w := newTestWorker(config.DrawConfig{Enabled: true, MinMoves: 0, ScoreWindowCP: 30})
	w.haveStats = true
	w.state.Moves = make([]string, 20)
	w.lastStats = domain.EngineStats{ScoreCP: 100}
	if w.shouldAcceptDraw() {
		t.Fatal("expected false outside score window")
	}
	w.lastStats = domain.EngineStats{ScoreCP: -10}
	if !w.shouldAcceptDraw() {
		t.Fatal("expected true inside score window")
	}
}

func TestShouldAcceptDrawDeclinesWithoutStats(t *testing.T) {
	w := newTestWorker(config.DrawConfig{Enabled: true, ScoreWindowCP: 50})
	if w.shouldAcceptDraw() {
		t.Fatal("expected false without any reported score")
	}
}

func TestFormatEvalReportsMate(t *testing.T) {
	w := newTestWorker(config.DrawConfig{})
	w.haveStats = true
	w.lastStats = domain.EngineStats{MateIn: 3}
	if got := w.formatEval(); got != "mate in 3" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatEvalReportsCentipawns(t *testing.T) {
	w := newTestWorker(config.DrawConfig{})
	w.haveStats = true
	w.lastStats = domain.EngineStats{ScoreCP: 42}
	if got := w.formatEval(); got != "0.42" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyStateTransitionReplaysOnTakeback(t *testing.T) {
	w := newTestWorker(config.DrawConfig{})
	w.deps.Takeback = true
	fa := &fakeAdapter{}
	w.adapter = fa
	w.state.Moves = []string{"e2e4", "e7e5", "g1f3"}

	next := domain.GameState{Moves: []string{"e2e4", "e7e5"}, WhiteRequestsTakeback: true}
	if err := w.applyStateTransition(context.Background(), next, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fa.setPositionMoves) != 2 {
		t.Fatalf("expected engine replayed with 2 moves, got %d", len(fa.setPositionMoves))
	}
}

func TestResultStringForDraw(t *testing.T) {
	if got := resultString(domain.StatusDraw, ""); got != "1/2-1/2" {
		t.Fatalf("got %q", got)
	}
}

func TestResultStringForDecisiveStatuses(t *testing.T) {
	cases := []struct {
		status domain.GameStatus
		winner domain.Color
		want   string
	}{
		{domain.StatusMate, domain.White, "1-0"},
		{domain.StatusMate, domain.Black, "0-1"},
		{domain.StatusResign, domain.Black, "0-1"},
		{domain.StatusTimeout, domain.White, "1-0"},
		{domain.StatusOutOfTime, domain.Black, "0-1"},
		{domain.StatusCheat, domain.White, "1-0"},
		{domain.StatusMate, "", "*"},
		{domain.StatusStarted, "", "*"},
	}
	for _, c := range cases {
		if got := resultString(c.status, c.winner); got != c.want {
			t.Errorf("resultString(%v, %v) = %q, want %q", c.status, c.winner, got, c.want)
		}
	}
}

func TestApplyStateTransitionRecordsClockHistoryPerPly(t *testing.T) {
	w := newTestWorker(config.DrawConfig{})
	fa := &fakeAdapter{}
	w.adapter = fa

	next := domain.GameState{
		Moves:         []string{"e2e4"},
		WhiteTimeLeft: 58 * time.Second,
		BlackTimeLeft: 60 * time.Second,
	}
	if err := w.applyStateTransition(context.Background(), next, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.clockHistory) != 1 || w.clockHistory[0] != 58*time.Second {
		t.Fatalf("got clock history %v, want [58s] (white's remaining after move 0)", w.clockHistory)
	}

	next2 := domain.GameState{
		Moves:         []string{"e2e4", "e7e5"},
		WhiteTimeLeft: 58 * time.Second,
		BlackTimeLeft: 55 * time.Second,
	}
	if err := w.applyStateTransition(context.Background(), next2, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.clockHistory) != 2 || w.clockHistory[1] != 55*time.Second {
		t.Fatalf("got clock history %v, want second entry 55s (black's remaining after move 1)", w.clockHistory)
	}
}

// fakeAdapter satisfies engine.Adapter without a subprocess, used to test
// worker logic in isolation from a real engine binary.
type fakeAdapter struct {
	setPositionMoves []string
}

func (f *fakeAdapter) SetPosition(ctx context.Context, initialFEN string, moves []string) error {
	f.setPositionMoves = moves
	return nil
}

func (f *fakeAdapter) Search(ctx context.Context, ourColor, mover domain.Color, moveOverhead time.Duration, safetyFraction float64, l engine.Limits) (string, domain.EngineStats, error) {
	return "e2e4", domain.EngineStats{}, nil
}

func (f *fakeAdapter) PonderHit(ctx context.Context) error  { return nil }
func (f *fakeAdapter) StopPonder(ctx context.Context) error { return nil }
func (f *fakeAdapter) Quit(ctx context.Context) error       { return nil }
func (f *fakeAdapter) Dead() bool                           { return false }
func (f *fakeAdapter) Dialect() domain.Dialect              { return domain.DialectInternal }
