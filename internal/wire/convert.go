package wire

import (
	"strings"
	"time"

	"github.com/park285/lichess-bot-go/internal/domain"
)

// ToDomainChallenge converts a wire ChallengeFrame into domain.Challenge.
func ToDomainChallenge(f ChallengeFrame) domain.Challenge {
	return domain.Challenge{
		ID: f.ID,
		Challenger: domain.ChallengerIdentity{
			Name:   f.Challenger.Name,
			Rating: f.Challenger.Rating,
			Title:  f.Challenger.Title,
			IsBot:  strings.EqualFold(f.Challenger.Title, "BOT"),
		},
		Variant:                 domain.Variant(f.Variant.Key),
		TimeControl:             toDomainTimeControl(f.TimeControl),
		Rated:                   f.Rated,
		RequestedColor:          domain.Color(f.Color),
		Source:                  domain.ChallengeSource(f.Source),
		StandardInitialPosition: f.StandardInitialPosition,
	}
}

func toDomainTimeControl(f TimeControlFrame) domain.TimeControl {
	if f.Type == "correspondence" {
		return domain.TimeControl{CorrespondenceDays: f.DaysPerTurn}
	}
	if f.Type == "unlimited" {
		return domain.TimeControl{Unlimited: true}
	}
	return domain.TimeControl{InitialSeconds: f.Initial, IncrementSeconds: f.Increment}
}

// ToDomainDescriptor derives a GameDescriptor from a gameFull frame and our
// account id, used to compute OurColor (§4.4 Opening).
func ToDomainDescriptor(f GameFullFrame, ourAccountID string) domain.GameDescriptor {
	our := domain.White
	opponent := domain.ChallengerIdentity{Name: f.Black.Name, Rating: f.Black.Rating, Title: f.Black.Title, IsBot: strings.EqualFold(f.Black.Title, "BOT")}
	if !strings.EqualFold(f.White.Name, ourAccountID) && strings.EqualFold(f.Black.Name, ourAccountID) {
		our = domain.Black
		opponent = domain.ChallengerIdentity{Name: f.White.Name, Rating: f.White.Rating, Title: f.White.Title, IsBot: strings.EqualFold(f.White.Title, "BOT")}
	}
	return domain.GameDescriptor{
		ID:          f.ID,
		OurColor:    our,
		Opponent:    opponent,
		Variant:     domain.Variant(f.Variant.Key),
		TimeControl: toDomainTimeControl(f.TimeControl),
		InitialFEN:  f.InitialFen,
		Rated:       f.Rated,
	}
}

// ToDomainGameState converts a wire GameStateFrame into domain.GameState.
func ToDomainGameState(f GameStateFrame) domain.GameState {
	var moves []string
	if trimmed := strings.TrimSpace(f.Moves); trimmed != "" {
		moves = strings.Fields(trimmed)
	}
	return domain.GameState{
		Moves:                 moves,
		WhiteTimeLeft:         time.Duration(f.WhiteTimeMs) * time.Millisecond,
		BlackTimeLeft:         time.Duration(f.BlackTimeMs) * time.Millisecond,
		Increment:             time.Duration(f.WhiteIncMs) * time.Millisecond,
		WhiteOffersDraw:       f.WhiteDraw,
		BlackOffersDraw:       f.BlackDraw,
		WhiteRequestsTakeback: f.WhiteTakeback,
		BlackRequestsTakeback: f.BlackTakeback,
		Status:                mapStatus(f.Status),
		Winner:                toDomainWinner(f.Winner),
	}
}

func toDomainWinner(s string) domain.Color {
	switch strings.ToLower(s) {
	case "white":
		return domain.White
	case "black":
		return domain.Black
	default:
		return ""
	}
}

func mapStatus(s string) domain.GameStatus {
	switch strings.ToLower(s) {
	case "created":
		return domain.StatusCreated
	case "started":
		return domain.StatusStarted
	case "aborted":
		return domain.StatusAborted
	case "mate":
		return domain.StatusMate
	case "resign":
		return domain.StatusResign
	case "stalemate":
		return domain.StatusStalemate
	case "timeout":
		return domain.StatusTimeout
	case "draw":
		return domain.StatusDraw
	case "outoftime":
		return domain.StatusOutOfTime
	case "cheat":
		return domain.StatusCheat
	case "nostart":
		return domain.StatusNoStart
	case "variantend":
		return domain.StatusVariantEnd
	case "":
		return domain.StatusStarted
	default:
		return domain.StatusUnknownFinish
	}
}

// ToDomainChatLine converts a wire ChatLineFrame into domain.ChatLine.
func ToDomainChatLine(gameID string, f ChatLineFrame) domain.ChatLine {
	room := domain.RoomPlayer
	if strings.EqualFold(f.Room, "spectator") {
		room = domain.RoomSpectator
	}
	return domain.ChatLine{GameID: gameID, Room: room, Username: f.Username, Text: f.Text}
}
