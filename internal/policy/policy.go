// Package policy implements C3, the Challenge Policy: a pure function from a
// configured challenge surface plus a snapshot of current state to an
// accept/decline/defer decision. Grounded on the reference bot's manager
// packages for the Challenge shape (internal/domain mirrors pvp's
// Challenge/Game fields), but the predicate chain itself is new: the
// reference auto-accepts every PvP challenge a user issues, where this
// system must filter inbound challenges against a configured surface before
// ever touching a board.
package policy

import (
	"strings"

	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
)

// State is the snapshot of mutable facts the policy needs alongside static
// configuration (SPEC_FULL §4.3: "a snapshot of current state").
type State struct {
	ActiveGameCount       int
	CurrentlyChallenging  string // username outstanding on an issued challenge, "" if none
}

// Evaluate runs the eight ordered predicates of §4.3 and returns the first
// decision that fires. Pure and deterministic: the same (cfg, state,
// challenge) triple always yields the same decision.
func Evaluate(cfg config.ChallengeConfig, maxGames int, state State, ch domain.Challenge) domain.PolicyDecision {
	if inBlockList(cfg.BlockList, ch.Challenger.Name) {
		return decline(domain.DeclineGeneric)
	}

	if !containsFold(cfg.Variants, string(ch.Variant)) {
		return decline(domain.DeclineVariant)
	}

	if !containsFold(cfg.TimeControls, string(ch.TimeControl.Category())) {
		return decline(domain.DeclineTimeControl)
	}

	if ch.TimeControl.InitialSeconds < cfg.MinInitial {
		return decline(domain.DeclineTooFast)
	}
	if cfg.MaxInitial > 0 && ch.TimeControl.InitialSeconds > cfg.MaxInitial {
		return decline(domain.DeclineTooSlow)
	}

	if ch.TimeControl.IncrementSeconds < cfg.MinIncrement {
		return decline(domain.DeclineTooFast)
	}
	if cfg.MaxIncrement > 0 && ch.TimeControl.IncrementSeconds > cfg.MaxIncrement {
		return decline(domain.DeclineTooSlow)
	}

	wantMode := "casual"
	if ch.Rated {
		wantMode = "rated"
	}
	if !containsFold(cfg.Modes, wantMode) {
		if ch.Rated {
			return decline(domain.DeclineRated)
		}
		return decline(domain.DeclineCasual)
	}

	if cfg.StandardOnly && !ch.StandardInitialPosition {
		return decline(domain.DeclineStandard)
	}

	if cfg.OnlyBot && !ch.Challenger.IsBot {
		return decline(domain.DeclineOnlyBot)
	}
	if !cfg.AcceptBot && ch.Challenger.IsBot {
		return decline(domain.DeclineNoBot)
	}

	if maxGames > 0 && state.ActiveGameCount >= maxGames {
		return domain.PolicyDecision{Kind: domain.Defer}
	}

	return domain.PolicyDecision{Kind: domain.Accept}
}

func decline(code domain.DeclineCode) domain.PolicyDecision {
	return domain.PolicyDecision{Kind: domain.Decline, Reason: domain.NormalizeDeclineCode(code)}
}

func inBlockList(blockList []string, name string) bool {
	return containsFold(blockList, name)
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
