// Package chatcmd implements the chat-command vocabulary of §4.4 ("respond
// to well-known command words ... in the player-chat and spectator-chat
// rooms; silence everywhere else"), extended per SPEC_FULL §6 with "queue"
// and "commands" as documented in original_source/lib/conversation.py's
// Conversation.command handling. Outbound replies are clamped the way
// _lichess_safe_message clamps them: 140 characters, truncated on a word
// boundary with an ellipsis.
package chatcmd

import (
	"fmt"
	"strings"

	"github.com/park285/lichess-bot-go/internal/domain"
)

const maxReplyLen = 140

// Context carries the state a reply may need beyond the command word
// itself. QueuedOpponents lists challengers currently deferred (§4.3
// Defer), for the "queue" command.
type Context struct {
	EngineName       string
	LastEval         string // formatted score/mate string, "" if none available
	QueuedOpponents  []string
}

// Handle returns the reply text and whether the line was a recognised
// command; unrecognised lines produce no reply (§4.4: "silence
// everywhere else").
func Handle(line domain.ChatLine, ctx Context) (reply string, handled bool) {
	fields := strings.Fields(strings.TrimSpace(line.Text))
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "!"))

	switch cmd {
	case "help", "commands":
		return clamp("Commands: help, name, eval, ping, queue"), true
	case "name":
		return clamp(fmt.Sprintf("This is %s.", orDefault(ctx.EngineName, "an engine-backed bot"))), true
	case "eval":
		if ctx.LastEval == "" {
			return clamp("No evaluation available yet."), true
		}
		return clamp(fmt.Sprintf("Last eval: %s", ctx.LastEval)), true
	case "ping":
		return clamp("pong"), true
	case "queue":
		if len(ctx.QueuedOpponents) == 0 {
			return clamp("No challenges waiting."), true
		}
		return clamp(fmt.Sprintf("Waiting: %s", strings.Join(ctx.QueuedOpponents, ", "))), true
	default:
		return "", false
	}
}

// clamp mirrors _lichess_safe_message: truncate to maxReplyLen on a word
// boundary and append an ellipsis when truncated.
func clamp(s string) string {
	if len(s) <= maxReplyLen {
		return s
	}
	cut := s[:maxReplyLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
