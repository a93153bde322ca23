package commentary

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
)

// Summarize renders the salient numbers of a game snapshot as a compact prompt.
func Summarize(state battlesnake.GameState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d. %d snakes alive. ", state.Turn, len(state.Board.Snakes))
	fmt.Fprintf(&b, "Our snake %q has health %d and length %d. ", state.You.Name, state.You.Health, state.You.Length)
	fmt.Fprintf(&b, "%d food on the board.", len(state.Board.Food))
	if n := len(state.Board.Hazards); n > 0 {
		fmt.Fprintf(&b, " %d hazard cells.", n)
	}
	return b.String()
}

// summarizeFinal renders the end-of-game prompt.
func summarizeFinal(state battlesnake.GameState, outcome battlesnake.Outcome) string {
	return fmt.Sprintf("The game is over after %d turns. Result for our snake: %s. Final length %d.",
		state.Turn, outcome, state.You.Length)
}
