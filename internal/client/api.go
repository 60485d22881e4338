package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/park285/lichess-bot-go/internal/wire"
)

// The methods below give C1 the concrete upstream HTTP surface named in §6,
// on top of the generic Request/OpenStream primitives above. Paths are
// literal here because §6 states "endpoints are referenced by role, not URL
// literal; the actual paths come from the configured base URL" — the base
// URL is what Client already carries; these are the well-known relative
// routes that role implies.

// Profile implements `GET profile` (§6).
func (c *Client) Profile(ctx context.Context) (wire.ProfileFrame, error) {
	resp, err := c.Request(ctx, "GET", "/api/account", nil, true, ClassProfile)
	if err != nil {
		return wire.ProfileFrame{}, err
	}
	var out wire.ProfileFrame
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return wire.ProfileFrame{}, fmt.Errorf("decode profile: %w", err)
	}
	return out, nil
}

// EventsStream implements `GET events-stream` (§6, §4.5).
func (c *Client) EventsStream(ctx context.Context) (*Stream, error) {
	return c.OpenStream(ctx, "/api/stream/event", ClassEventsStream)
}

// GameStream implements `GET game-stream(gameId)` (§6, §4.4).
func (c *Client) GameStream(ctx context.Context, gameID string) (*Stream, error) {
	return c.OpenStream(ctx, "/api/bot/game/stream/"+url.PathEscape(gameID), ClassGameStream)
}

// AcceptChallenge implements `POST accept-challenge(id)` (§6).
func (c *Client) AcceptChallenge(ctx context.Context, id string) error {
	_, err := c.Request(ctx, "POST", "/api/challenge/"+url.PathEscape(id)+"/accept", nil, false, ClassAcceptChallenge)
	return err
}

// DeclineChallenge implements `POST decline-challenge(id, reason)` (§6).
func (c *Client) DeclineChallenge(ctx context.Context, id, reason string) error {
	body, _ := json.Marshal(wire.DeclineRequest{Reason: reason})
	_, err := c.Request(ctx, "POST", "/api/challenge/"+url.PathEscape(id)+"/decline", body, false, ClassDeclineChallenge)
	return err
}

// AbortGame implements `POST abort-game(id)` (§6).
func (c *Client) AbortGame(ctx context.Context, gameID string) error {
	_, err := c.Request(ctx, "POST", "/api/bot/game/"+url.PathEscape(gameID)+"/abort", nil, false, ClassAbortGame)
	return err
}

// ResignGame implements `POST resign-game(id)` (§6).
func (c *Client) ResignGame(ctx context.Context, gameID string) error {
	_, err := c.Request(ctx, "POST", "/api/bot/game/"+url.PathEscape(gameID)+"/resign", nil, false, ClassResignGame)
	return err
}

// MakeMove implements `POST make-move(gameId, uci, offeringDraw?)` (§6).
// idempotent=false: Request retries a submission only after a transport
// failure, never after a status response; a resubmission the service has
// already applied comes back as a conflict, which the worker treats as
// "already applied".
func (c *Client) MakeMove(ctx context.Context, gameID, uciMove string, offeringDraw bool) error {
	path := "/api/bot/game/" + url.PathEscape(gameID) + "/move/" + url.PathEscape(uciMove)
	if offeringDraw {
		path += "?offeringDraw=true"
	}
	_, err := c.Request(ctx, "POST", path, nil, false, ClassMakeMove)
	return err
}

// Chat implements `POST chat(gameId, room, text)` (§6).
func (c *Client) Chat(ctx context.Context, gameID string, room string, text string) error {
	body, _ := json.Marshal(wire.ChatRequest{Room: room, Text: text})
	_, err := c.Request(ctx, "POST", "/api/bot/game/"+url.PathEscape(gameID)+"/chat", body, false, ClassChat)
	return err
}

// CreateChallenge implements `POST create-challenge(opponent, params)`
// (§6, §4.6).
func (c *Client) CreateChallenge(ctx context.Context, req wire.CreateChallengeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode create-challenge: %w", err)
	}
	_, err = c.Request(ctx, "POST", "/api/challenge/"+url.PathEscape(req.Opponent), body, false, ClassCreateChallenge)
	return err
}
