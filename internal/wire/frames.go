// Package wire defines the JSON shapes exchanged over the upstream
// NDJSON streams (§6 External Interfaces). These are plain data-transfer
// structs with no behaviour; C4 and C5 decode frames into them and then
// work exclusively in terms of package domain's types.
package wire

import "encoding/json"

// EventFrame is one line of the account-wide events stream (§4.5).
type EventFrame struct {
	Type string `json:"type"`

	Challenge *ChallengeFrame `json:"challenge,omitempty"`
	Game      *GameRef        `json:"game,omitempty"`
}

// GameRef identifies a game in gameStart/gameFinish frames.
type GameRef struct {
	ID string `json:"id"`
}

// ChallengerFrame mirrors domain.ChallengerIdentity on the wire.
type ChallengerFrame struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Rating int   `json:"rating"`
}

// TimeControlFrame mirrors domain.TimeControl on the wire.
type TimeControlFrame struct {
	Type      string `json:"type"` // "clock", "correspondence", "unlimited"
	Initial   int    `json:"limit"`
	Increment int    `json:"increment"`
	DaysPerTurn int  `json:"daysPerTurn"`
}

// ChallengeFrame is the challenge object nested in a "challenge" event.
type ChallengeFrame struct {
	ID                      string           `json:"id"`
	Challenger              ChallengerFrame  `json:"challenger"`
	Variant                 VariantFrame     `json:"variant"`
	TimeControl             TimeControlFrame `json:"timeControl"`
	Rated                   bool             `json:"rated"`
	Color                   string           `json:"color"`
	Source                  string           `json:"source"`
	StandardInitialPosition bool             `json:"standardInitialPosition"`
}

// VariantFrame mirrors domain.Variant on the wire.
type VariantFrame struct {
	Key string `json:"key"`
}

// GameFullFrame is the first frame of a per-game stream (§4.4 Opening).
type GameFullFrame struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	Rated       bool             `json:"rated"`
	Variant     VariantFrame     `json:"variant"`
	TimeControl TimeControlFrame `json:"clock"`
	White       ChallengerFrame  `json:"white"`
	Black       ChallengerFrame  `json:"black"`
	InitialFen  string           `json:"initialFen"`
	State       GameStateFrame   `json:"state"`
}

// GameStateFrame carries the mutable per-game state (§3, §4.4 Running).
type GameStateFrame struct {
	Type           string `json:"type"`
	Moves          string `json:"moves"` // space-separated coordinate notation
	WhiteTimeMs    int64  `json:"wtime"`
	BlackTimeMs    int64  `json:"btime"`
	WhiteIncMs     int64  `json:"winc"`
	BlackIncMs     int64  `json:"binc"`
	Status         string `json:"status"`
	WhiteDraw      bool   `json:"wdraw"`
	BlackDraw      bool   `json:"bdraw"`
	WhiteTakeback  bool   `json:"wtakeback"`
	BlackTakeback  bool   `json:"btakeback"`
	Winner         string `json:"winner,omitempty"` // "white" or "black"; absent on draws/non-terminal states
}

// ChatLineFrame is an inbound chat message (§4.4).
type ChatLineFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Room     string `json:"room"`
}

// OpponentGoneFrame reports the opponent disconnecting (§4.4: "record, keep
// playing").
type OpponentGoneFrame struct {
	Type   string `json:"type"`
	Gone   bool   `json:"gone"`
	ClaimWinInSeconds int `json:"claimWinInSeconds"`
}

// GameStreamFrame is decoded first to discover its Type, then re-decoded
// into the concrete shape that Type selects.
type GameStreamFrame struct {
	Type string `json:"type"`
}

// DecodeGameStreamFrame dispatches a raw NDJSON line to the frame it names.
func DecodeGameStreamFrame(raw []byte) (kind string, full *GameFullFrame, state *GameStateFrame, chat *ChatLineFrame, gone *OpponentGoneFrame, err error) {
	var head GameStreamFrame
	if err = json.Unmarshal(raw, &head); err != nil {
		return "", nil, nil, nil, nil, err
	}
	kind = head.Type
	switch kind {
	case "gameFull":
		full = &GameFullFrame{}
		err = json.Unmarshal(raw, full)
	case "gameState":
		state = &GameStateFrame{}
		err = json.Unmarshal(raw, state)
	case "chatLine":
		chat = &ChatLineFrame{}
		err = json.Unmarshal(raw, chat)
	case "opponentGone":
		gone = &OpponentGoneFrame{}
		err = json.Unmarshal(raw, gone)
	}
	return kind, full, state, chat, gone, err
}

// ProfileFrame is the response shape of GET profile (§6).
type ProfileFrame struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MakeMoveRequest is the body of POST make-move (§6).
type MakeMoveRequest struct {
	OfferingDraw bool `json:"offeringDraw,omitempty"`
}

// DeclineRequest is the body of POST decline-challenge (§6).
type DeclineRequest struct {
	Reason string `json:"reason"`
}

// CreateChallengeRequest is the body of POST create-challenge (§4.6, §6).
type CreateChallengeRequest struct {
	Opponent    string `json:"opponent"`
	Variant     string `json:"variant"`
	Initial     int    `json:"clock.limit"`
	Increment   int    `json:"clock.increment"`
	Rated       bool   `json:"rated"`
}

// ChatRequest is the body of POST chat (§6).
type ChatRequest struct {
	Room string `json:"room"`
	Text string `json:"text"`
}
