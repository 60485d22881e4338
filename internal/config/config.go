// Package config loads the configuration surface (SPEC_FULL §6) from a YAML
// file and applies environment-variable overrides on top, once, at startup.
// The result is treated as immutable thereafter (§5).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/park285/lichess-bot-go/internal/errs"
)

type EngineConfig struct {
	Path            string            `yaml:"path"`
	Args            []string          `yaml:"args"`
	Protocol        string            `yaml:"protocol"` // "uci", "xboard", "internal", or "" (auto-detect)
	Options         map[string]string `yaml:"options"`
	TimeMode        string            `yaml:"time-mode"` // clock | movetime | depth | nodes
	MoveTimeMillis  int               `yaml:"movetime-ms"`
	Depth           int               `yaml:"depth"`
	Nodes           int               `yaml:"nodes"`
	MoveOverheadMs  int               `yaml:"move-overhead-ms"`
	SafetyFraction  float64           `yaml:"safety-fraction"`
	SearchCapMs     int               `yaml:"search-cap-ms"`
	Pondering       bool              `yaml:"pondering"`
}

type ChallengeConfig struct {
	Variants      []string `yaml:"variants"`
	TimeControls  []string `yaml:"time-controls"`
	MinInitial    int      `yaml:"min-initial"`
	MaxInitial    int      `yaml:"max-initial"`
	MinIncrement  int      `yaml:"min-increment"`
	MaxIncrement  int      `yaml:"max-increment"`
	Modes         []string `yaml:"modes"` // rated, casual
	AcceptBot     bool     `yaml:"accept-bot"`
	OnlyBot       bool     `yaml:"only-bot"`
	BlockList     []string `yaml:"block-list"`
	StandardOnly  bool     `yaml:"standard-only"`
}

type MatchmakingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Variant     string   `yaml:"variant"`
	TimeControl string   `yaml:"time-control"`
	Opponents   []string `yaml:"opponents"`
	PollIntervalSec int  `yaml:"poll-interval-sec"`
	CooldownMinutes int  `yaml:"cooldown-minutes"`
}

type DrawConfig struct {
	Enabled       bool `yaml:"enabled"`
	ScoreWindowCP int  `yaml:"score-window-cp"`
	MinMoves      int  `yaml:"min-moves"`
}

type ServiceConfig struct {
	BaseURL string `yaml:"base-url"`
}

type ActiveWorkersConfig struct {
	RedisURL string `yaml:"redis-url"`
}

type Config struct {
	Token         string              `yaml:"token"`
	Service       ServiceConfig       `yaml:"service"`
	Engine        EngineConfig        `yaml:"engine"`
	Challenge     ChallengeConfig     `yaml:"challenge"`
	Matchmaking   MatchmakingConfig   `yaml:"matchmaking"`
	Draw          DrawConfig          `yaml:"draw"`
	TakebackEnabled bool              `yaml:"takeback-enabled"`
	MaxGames      int                 `yaml:"max-games"`
	ArchivePath   string              `yaml:"archive-path"`
	ActiveWorkers ActiveWorkersConfig `yaml:"active-workers"`
	LogLevel      string              `yaml:"log-level"`
	LogFormat     string              `yaml:"log-format"`
}

func defaults() *Config {
	return &Config{
		Service:     ServiceConfig{},
		Engine: EngineConfig{
			Protocol:       "",
			TimeMode:       "clock",
			MoveOverheadMs: 100,
			SafetyFraction: 0.05,
			SearchCapMs:    15000,
			Options:        map[string]string{},
		},
		Challenge: ChallengeConfig{
			Variants:     []string{"standard"},
			TimeControls: []string{"bullet", "blitz", "rapid", "classical"},
			MaxInitial:   10800,
			MaxIncrement: 180,
			Modes:        []string{"rated", "casual"},
			AcceptBot:    true,
		},
		Matchmaking: MatchmakingConfig{
			PollIntervalSec: 60,
			CooldownMinutes: 60,
		},
		Draw:     DrawConfig{ScoreWindowCP: 50, MinMoves: 20},
		MaxGames: 4,
		LogLevel: "info",
		LogFormat: "console",
	}
}

// Load reads path (if non-empty and present) as YAML, then overlays
// environment variables of the form LICHESSBOT_<SECTION>_<KEY>, then
// validates. A config-kind error lists every violated field, not just the
// first (SPEC_FULL §4.8).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := getenv("LICHESSBOT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := getenv("LICHESSBOT_SERVICE_BASE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := getenv("LICHESSBOT_ENGINE_PATH"); v != "" {
		cfg.Engine.Path = v
	}
	if v := getenv("LICHESSBOT_ENGINE_PROTOCOL"); v != "" {
		cfg.Engine.Protocol = v
	}
	if v := getenv("LICHESSBOT_ENGINE_TIME_MODE"); v != "" {
		cfg.Engine.TimeMode = v
	}
	if v := getenvInt("LICHESSBOT_ENGINE_MOVE_OVERHEAD_MS"); v != nil {
		cfg.Engine.MoveOverheadMs = *v
	}
	if v := getenvCSV("LICHESSBOT_CHALLENGE_VARIANTS"); v != nil {
		cfg.Challenge.Variants = v
	}
	if v := getenvCSV("LICHESSBOT_CHALLENGE_BLOCK_LIST"); v != nil {
		cfg.Challenge.BlockList = v
	}
	if v := getenvInt("LICHESSBOT_MAX_GAMES"); v != nil {
		cfg.MaxGames = *v
	}
	if v := getenv("LICHESSBOT_ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := getenv("LICHESSBOT_ACTIVE_WORKERS_REDIS_URL"); v != "" {
		cfg.ActiveWorkers.RedisURL = v
	}
	if v := getenv("LICHESSBOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LICHESSBOT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenvBool("LICHESSBOT_MATCHMAKING_ENABLED"); v != nil {
		cfg.Matchmaking.Enabled = *v
	}
}

func validate(cfg *Config) error {
	var validationErrs []error
	if strings.TrimSpace(cfg.Token) == "" {
		validationErrs = append(validationErrs, errors.New("token is required"))
	}
	if strings.TrimSpace(cfg.Service.BaseURL) == "" {
		validationErrs = append(validationErrs, errors.New("service.base-url is required"))
	}
	if strings.TrimSpace(cfg.Engine.Path) == "" {
		validationErrs = append(validationErrs, errors.New("engine.path is required"))
	}
	switch cfg.Engine.TimeMode {
	case "clock", "movetime", "depth", "nodes":
	default:
		validationErrs = append(validationErrs, fmt.Errorf("engine.time-mode %q must be one of clock, movetime, depth, nodes", cfg.Engine.TimeMode))
	}
	if cfg.MaxGames <= 0 {
		validationErrs = append(validationErrs, errors.New("max-games must be > 0"))
	}
	if cfg.Challenge.MinInitial < 0 || cfg.Challenge.MaxInitial < cfg.Challenge.MinInitial {
		validationErrs = append(validationErrs, errors.New("challenge.min-initial/max-initial out of order"))
	}
	if cfg.Challenge.MinIncrement < 0 || cfg.Challenge.MaxIncrement < cfg.Challenge.MinIncrement {
		validationErrs = append(validationErrs, errors.New("challenge.min-increment/max-increment out of order"))
	}
	if !cfg.Challenge.AcceptBot && cfg.Challenge.OnlyBot {
		// only-bot implies bots are welcome; accept-bot=false + only-bot=true is
		// nonsensical (would refuse everyone) but is a policy matter, not a load error.
	}
	if strings.TrimSpace(cfg.ArchivePath) == "" {
		validationErrs = append(validationErrs, errors.New("archive-path is required"))
	}
	if len(validationErrs) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrConfig, errors.Join(validationErrs...))
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvInt(key string) *int {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func getenvBool(key string) *bool {
	v := getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func getenvCSV(key string) []string {
	v := getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
