package engine

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
)

// fakeUCIEngine drives the engine side of a pair of io.Pipes, standing in
// for a real subprocess so uciAdapter's line protocol can be exercised
// without spawning anything. respond maps an exact received line to the
// lines sent back in reply.
type fakeUCIEngine struct {
	received chan string
	in       *bufio.Reader
	out      io.Writer
	respond  map[string][]string
}

func newFakeUCIEngine(cmdR io.Reader, outW io.Writer) *fakeUCIEngine {
	return &fakeUCIEngine{
		received: make(chan string, 32),
		in:       bufio.NewReader(cmdR),
		out:      outW,
		respond:  map[string][]string{},
	}
}

func (f *fakeUCIEngine) run() {
	for {
		line, err := f.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			f.received <- line
			for _, reply := range f.respond[line] {
				io.WriteString(f.out, reply+"\n")
			}
		}
		if err != nil {
			close(f.received)
			return
		}
	}
}

func (f *fakeUCIEngine) awaitReceived(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-f.received:
		if !ok {
			t.Fatalf("engine input closed before %q arrived", want)
		}
		if got != want {
			t.Fatalf("got line %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func newPipedAdapter() (*uciAdapter, *fakeUCIEngine) {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	fake := newFakeUCIEngine(cmdR, outW)
	go fake.run()
	a := &uciAdapter{stdin: cmdW, stdout: bufio.NewReader(outR), fen: "startpos"}
	return a, fake
}

func TestHandshakeSendsProbeAppliesOptionsAndWaitsReady(t *testing.T) {
	a, fake := newPipedAdapter()
	fake.respond["uci"] = []string{"id name Fake", "uciok"}
	fake.respond["isready"] = []string{"readyok"}

	errc := make(chan error, 1)
	go func() { errc <- a.handshake(context.Background(), map[string]string{"Hash": "64", "Threads": "2"}) }()

	fake.awaitReceived(t, "uci")
	fake.awaitReceived(t, "setoption name Hash value 64")
	fake.awaitReceived(t, "setoption name Threads value 2")
	fake.awaitReceived(t, "isready")

	if err := <-errc; err != nil {
		t.Fatalf("handshake: %v", err)
	}
}

func TestHandshakeFailsWhenNoUciokArrives(t *testing.T) {
	a, fake := newPipedAdapter()
	_ = fake

	err := a.handshake(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error when the engine never replies uciok")
	}
}

func TestSetPositionSendsPositionCommand(t *testing.T) {
	a, fake := newPipedAdapter()

	if err := a.SetPosition(context.Background(), "", []string{"e2e4", "e7e5"}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	fake.awaitReceived(t, "position startpos moves e2e4 e7e5")
}

func TestSearchReturnsBestMoveAndStats(t *testing.T) {
	a, fake := newPipedAdapter()
	fake.respond["go wtime 60000 btime 60000"] = []string{
		"info depth 10 score cp 34 pv e2e4 e7e5",
		"bestmove e2e4",
	}

	move, stats, err := a.Search(context.Background(), domain.White, domain.White, 0, 0.05, Limits{
		WhiteTimeLeft: 60 * time.Second,
		BlackTimeLeft: 60 * time.Second,
		SearchCap:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if move != "e2e4" {
		t.Fatalf("got move %q, want e2e4", move)
	}
	if stats.ScoreCP != 34 {
		t.Fatalf("got ScoreCP %d, want 34", stats.ScoreCP)
	}
	if len(stats.PrincipalVariation) != 2 || stats.PrincipalVariation[0] != "e2e4" {
		t.Fatalf("got pv %v", stats.PrincipalVariation)
	}
}

func TestSearchStopsAndReadsBestmoveOnDeadline(t *testing.T) {
	a, fake := newPipedAdapter()
	fake.respond["stop"] = []string{"bestmove d2d4"}

	move, _, err := a.Search(context.Background(), domain.White, domain.White, 0, 0.05, Limits{
		FixedMoveTime: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if move != "d2d4" {
		t.Fatalf("got move %q, want d2d4", move)
	}
}

func TestBuildPositionCommand(t *testing.T) {
	cases := []struct {
		fen   string
		moves []string
		want  string
	}{
		{"", nil, "position startpos\n"},
		{"startpos", []string{"e2e4"}, "position startpos moves e2e4\n"},
		{"8/8/8/8/8/8/8/K7 w - - 0 1", nil, "position fen 8/8/8/8/8/8/8/K7 w - - 0 1\n"},
	}
	for _, c := range cases {
		if got := buildPositionCommand(c.fen, c.moves); got != c.want {
			t.Errorf("buildPositionCommand(%q, %v) = %q, want %q", c.fen, c.moves, got, c.want)
		}
	}
}

func TestBuildGoTokensClockMode(t *testing.T) {
	toks, err := buildGoTokens(Limits{WhiteTimeLeft: 5 * time.Second, BlackTimeLeft: 3 * time.Second, WhiteIncrement: 1 * time.Second})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	got := strings.Join(toks, " ")
	if got != "go wtime 5000 btime 3000 winc 1000" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildGoTokensFixedDepth(t *testing.T) {
	toks, err := buildGoTokens(Limits{FixedDepth: 12})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if strings.Join(toks, " ") != "go depth 12" {
		t.Fatalf("got %v", toks)
	}
}

func TestParseInfoExtractsScoreAndPV(t *testing.T) {
	stats, ok := parseInfo("info depth 8 seldepth 10 score cp 12 nodes 5000 pv e2e4 e7e5 g1f3")
	if !ok {
		t.Fatal("expected parseInfo to succeed")
	}
	if stats.ScoreCP != 12 {
		t.Fatalf("got ScoreCP %d, want 12", stats.ScoreCP)
	}
	if len(stats.PrincipalVariation) != 3 {
		t.Fatalf("got pv %v", stats.PrincipalVariation)
	}
}

func TestParseInfoIgnoresLinesWithoutScore(t *testing.T) {
	if _, ok := parseInfo("info string some diagnostic text"); ok {
		t.Fatal("expected parseInfo to report no score")
	}
}
