// Package scoring converts answer timing into points. The functions here are
// pure so the state machine can be tested against them independently.
package scoring

import (
	"math"
	"time"
)

// DefaultAlpha is the minimum fraction of base points guaranteed for a
// correct answer submitted within the time limit.
const DefaultAlpha = 0.3

// Score computes the points awarded for a correct answer submitted timeTaken
// after the scoring clock started. The award decays linearly from basePoints
// at t=0 to alpha*basePoints at t=timeLimit, and is zero at or past the
// limit. A negative timeTaken counts as an instant answer.
func Score(basePoints int, timeLimit, timeTaken time.Duration, alpha float64) int {
	if basePoints <= 0 {
		return 0
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeLimit <= 0 {
		// Degenerate limit: the window expires immediately, only an
		// instant answer earns anything.
		if timeTaken == 0 {
			return basePoints
		}
		return 0
	}
	if timeTaken >= timeLimit {
		return 0
	}

	remaining := float64(timeLimit-timeTaken) / float64(timeLimit)
	points := int(math.Round(float64(basePoints) * (alpha + (1-alpha)*remaining)))

	floor := int(math.Round(alpha * float64(basePoints)))
	if points < floor {
		points = floor
	}
	if points > basePoints {
		points = basePoints
	}
	return points
}
