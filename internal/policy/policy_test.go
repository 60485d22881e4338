package policy

import (
	"testing"

	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/domain"
)

func baseConfig() config.ChallengeConfig {
	return config.ChallengeConfig{
		Variants:     []string{"standard"},
		TimeControls: []string{"blitz", "rapid"},
		MinInitial:   60,
		MaxInitial:   1800,
		MaxIncrement: 30,
		Modes:        []string{"rated", "casual"},
		AcceptBot:    true,
	}
}

func baseChallenge() domain.Challenge {
	return domain.Challenge{
		ID:                      "c1",
		Challenger:              domain.ChallengerIdentity{Name: "tester"},
		Variant:                 domain.VariantStandard,
		TimeControl:             domain.TimeControl{InitialSeconds: 300, IncrementSeconds: 3},
		Rated:                   true,
		StandardInitialPosition: true,
	}
}

func TestEvaluateAccepts(t *testing.T) {
	d := Evaluate(baseConfig(), 4, State{ActiveGameCount: 0}, baseChallenge())
	if d.Kind != domain.Accept {
		t.Fatalf("got %+v, want accept", d)
	}
}

func TestEvaluateBlockList(t *testing.T) {
	cfg := baseConfig()
	cfg.BlockList = []string{"Tester"}
	d := Evaluate(cfg, 4, State{}, baseChallenge())
	if d.Kind != domain.Decline || d.Reason != domain.DeclineGeneric {
		t.Fatalf("got %+v, want decline/generic", d)
	}
}

func TestEvaluateVariantRejected(t *testing.T) {
	ch := baseChallenge()
	ch.Variant = domain.VariantCrazyhouse
	d := Evaluate(baseConfig(), 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineVariant {
		t.Fatalf("got %+v, want decline/variant", d)
	}
}

func TestEvaluateTimeControlCategoryRejected(t *testing.T) {
	ch := baseChallenge()
	ch.TimeControl = domain.TimeControl{InitialSeconds: 15, IncrementSeconds: 0} // bullet/ultraBullet
	d := Evaluate(baseConfig(), 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineTimeControl {
		t.Fatalf("got %+v, want decline/timeControl", d)
	}
}

func TestEvaluateTooFastInitial(t *testing.T) {
	cfg := baseConfig()
	cfg.TimeControls = []string{"bullet", "blitz", "rapid"} // 60+0 is bullet; the category check runs first
	cfg.MinInitial = 120
	ch := baseChallenge()
	ch.TimeControl = domain.TimeControl{InitialSeconds: 60, IncrementSeconds: 0}
	d := Evaluate(cfg, 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineTooFast {
		t.Fatalf("got %+v, want decline/tooFast", d)
	}
}

func TestEvaluateRatedModeMismatch(t *testing.T) {
	cfg := baseConfig()
	cfg.Modes = []string{"casual"}
	ch := baseChallenge()
	ch.Rated = true
	d := Evaluate(cfg, 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineRated {
		t.Fatalf("got %+v, want decline/rated", d)
	}
}

func TestEvaluateStandardOnly(t *testing.T) {
	cfg := baseConfig()
	cfg.StandardOnly = true
	ch := baseChallenge()
	ch.StandardInitialPosition = false
	d := Evaluate(cfg, 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineStandard {
		t.Fatalf("got %+v, want decline/standard", d)
	}
}

func TestEvaluateOnlyBot(t *testing.T) {
	cfg := baseConfig()
	cfg.OnlyBot = true
	ch := baseChallenge()
	ch.Challenger.IsBot = false
	d := Evaluate(cfg, 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineOnlyBot {
		t.Fatalf("got %+v, want decline/onlyBot", d)
	}
}

func TestEvaluateNoBot(t *testing.T) {
	cfg := baseConfig()
	cfg.AcceptBot = false
	ch := baseChallenge()
	ch.Challenger.IsBot = true
	d := Evaluate(cfg, 4, State{}, ch)
	if d.Kind != domain.Decline || d.Reason != domain.DeclineNoBot {
		t.Fatalf("got %+v, want decline/noBot", d)
	}
}

func TestEvaluateDefersAtCap(t *testing.T) {
	d := Evaluate(baseConfig(), 2, State{ActiveGameCount: 2}, baseChallenge())
	if d.Kind != domain.Defer {
		t.Fatalf("got %+v, want defer", d)
	}
}

func TestEvaluateUnknownDeclineCodeDegradesToGeneric(t *testing.T) {
	if got := domain.NormalizeDeclineCode("somethingWeird"); got != domain.DeclineGeneric {
		t.Fatalf("got %q, want generic", got)
	}
}
