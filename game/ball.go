package game

import "strings"

// Ball is the capture tool chosen by the participant. The modifier mapping is
// fixed and total: anything unrecognized behaves like a plain ball.
type Ball string

const (
	BallPoke   Ball = "pokeball"
	BallGreat  Ball = "greatball"
	BallUltra  Ball = "ultraball"
	BallMaster Ball = "masterball"
)

// ParseBall normalizes a chat argument to a Ball.
func ParseBall(s string) Ball {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "great", "greatball":
		return BallGreat
	case "ultra", "ultraball":
		return BallUltra
	case "master", "masterball":
		return BallMaster
	default:
		return BallPoke
	}
}

// Modifier returns the catch-chance multiplier. The final chance is capped at
// 0.99, so the master ball's large multiplier means "always the cap".
func (b Ball) Modifier() float64 {
	switch b {
	case BallGreat:
		return 1.5
	case BallUltra:
		return 2.0
	case BallMaster:
		return 100.0
	default:
		return 1.0
	}
}
