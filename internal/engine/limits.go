package engine

import "time"

// deadlineFloor is the boundary case §8 names explicitly: "search deadline
// floor is 100 ms" even at zero increment and minimum initial time.
const deadlineFloor = 100 * time.Millisecond

// TimeMode selects which field of Limits governs the search (§6:
// engine.time-mode ∈ {clock, movetime, depth, nodes}).
type TimeMode string

const (
	TimeModeClock    TimeMode = "clock"
	TimeModeMoveTime TimeMode = "movetime"
	TimeModeDepth    TimeMode = "depth"
	TimeModeNodes    TimeMode = "nodes"
)

// searchTimeout derives the wall-clock deadline for one Search call (§4.2):
// `min(configured-cap, remaining-clock × safety-fraction − move-overhead)` in clock mode;
// the fixed move time in movetime mode; a generous cap for depth/nodes modes
// since the engine, not the clock, decides when to stop there.
func searchTimeout(mode TimeMode, remaining time.Duration, moveOverhead time.Duration, safetyFraction float64, l Limits, configuredCap time.Duration) time.Duration {
	var d time.Duration
	switch mode {
	case TimeModeClock:
		d = time.Duration(float64(remaining)*safetyFraction) - moveOverhead
	case TimeModeMoveTime:
		d = l.FixedMoveTime
	case TimeModeDepth, TimeModeNodes:
		d = configuredCap
		if d <= 0 {
			d = 20 * time.Second
		}
	default:
		d = configuredCap
	}
	if configuredCap > 0 && d > configuredCap {
		d = configuredCap
	}
	if d < deadlineFloor {
		d = deadlineFloor
	}
	return d
}
