package chatcmd

import (
	"strings"
	"testing"

	"github.com/park285/lichess-bot-go/internal/domain"
)

func TestHandleKnownCommands(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"!ping", "pong"},
		{"!help", "Commands"},
		{"!commands", "Commands"},
		{"!name", "engine-backed bot"},
		{"!queue", "No challenges waiting"},
	}
	for _, c := range cases {
		reply, handled := Handle(domain.ChatLine{Text: c.text}, Context{})
		if !handled {
			t.Fatalf("%q: expected handled", c.text)
		}
		if !strings.Contains(reply, c.want) {
			t.Fatalf("%q: reply %q missing %q", c.text, reply, c.want)
		}
	}
}

func TestHandleUnknownCommandSilent(t *testing.T) {
	_, handled := Handle(domain.ChatLine{Text: "gg"}, Context{})
	if handled {
		t.Fatalf("expected unhandled for non-command text")
	}
}

func TestHandleQueueWithPendingOpponents(t *testing.T) {
	reply, handled := Handle(domain.ChatLine{Text: "!queue"}, Context{QueuedOpponents: []string{"alice", "bob"}})
	if !handled {
		t.Fatal("expected handled")
	}
	if !strings.Contains(reply, "alice") || !strings.Contains(reply, "bob") {
		t.Fatalf("reply %q missing queued opponents", reply)
	}
}

func TestHandleEvalWithScore(t *testing.T) {
	reply, handled := Handle(domain.ChatLine{Text: "!eval"}, Context{LastEval: "+0.42"})
	if !handled || !strings.Contains(reply, "+0.42") {
		t.Fatalf("reply=%q handled=%v", reply, handled)
	}
}

func TestClampTruncatesOnWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 40)
	out := clamp(long)
	if len(out) > maxReplyLen+3 {
		t.Fatalf("clamp produced %d chars, want <= %d", len(out), maxReplyLen+3)
	}
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", out)
	}
}
