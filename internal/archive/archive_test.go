package archive

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
)

func TestFormatPGNIncludesTagsAndMoves(t *testing.T) {
	rec := domain.ArchiveRecord{
		GameID:      "G1",
		Event:       "Rated blitz game",
		White:       "bot",
		Black:       "opponent",
		Result:      "1-0",
		TimeControl: "180+2",
		Variant:     domain.VariantStandard,
		Moves:       []string{"e4", "e5", "Nf3"},
		Method:      domain.StatusMate,
	}
	out := FormatPGN(rec)

	for _, want := range []string{
		`[White "bot"]`, `[Black "opponent"]`, `[Result "1-0"]`,
		"1. e4", "e5", "2. Nf3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPGNClockAnnotation(t *testing.T) {
	rec := domain.ArchiveRecord{
		Moves:            []string{"e4"},
		ClockAnnotations: []time.Duration{90 * time.Second},
		Result:           "*",
	}
	out := FormatPGN(rec)
	if !strings.Contains(out, "%clk 0:01:30") {
		t.Fatalf("expected clock annotation, got:\n%s", out)
	}
}

func TestFormatPGNDefaultsWhenFieldsEmpty(t *testing.T) {
	out := FormatPGN(domain.ArchiveRecord{})
	if !strings.Contains(out, `[White "?"]`) || !strings.Contains(out, `[Result "*"]`) {
		t.Fatalf("expected defaulted tags, got:\n%s", out)
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	a := &Archiver{queue: make(chan domain.ArchiveRecord)} // unbuffered, no consumer
	a.Enqueue(domain.ArchiveRecord{GameID: "dropped"})      // must not block
}
