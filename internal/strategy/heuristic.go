// Package strategy chooses Battlesnake moves: a built-in flood-fill heuristic
// and an optional sandboxed Lua override.
package strategy

import (
	"github.com/cory-johannsen/snakecast/internal/battlesnake"
)

// DefaultHungerThreshold is the health below which food is favored.
const DefaultHungerThreshold = 40

// Heuristic scores each safe move by reachable area, with a food pull when
// hungry and a penalty for contested head-to-head cells.
type Heuristic struct {
	HungerThreshold int
}

// NewHeuristic returns a Heuristic; a non-positive threshold uses the default.
func NewHeuristic(hungerThreshold int) Heuristic {
	if hungerThreshold <= 0 {
		hungerThreshold = DefaultHungerThreshold
	}
	return Heuristic{HungerThreshold: hungerThreshold}
}

// Choose returns the best-scoring safe move, or Up when every move is lethal.
//
// Postcondition: When any safe move exists the result is one of SafeMoves(state).
func (h Heuristic) Choose(state battlesnake.GameState) battlesnake.Direction {
	safe := h.SafeMoves(state)
	if len(safe) == 0 {
		return battlesnake.Up
	}

	blocked := blockedCells(state)
	best := safe[0]
	bestScore := h.score(state, blocked, best)
	for _, d := range safe[1:] {
		if s := h.score(state, blocked, d); s > bestScore {
			best, bestScore = d, s
		}
	}
	return best
}

// SafeMoves returns the moves that stay on the board and do not enter a body
// segment that will still be occupied next turn, in tie-break order.
func (h Heuristic) SafeMoves(state battlesnake.GameState) []battlesnake.Direction {
	blocked := blockedCells(state)
	head := state.You.Head
	var safe []battlesnake.Direction
	for _, d := range battlesnake.AllDirections {
		next := head.Step(d)
		if !state.Board.InBounds(next) || blocked[next] {
			continue
		}
		safe = append(safe, d)
	}
	return safe
}

func (h Heuristic) score(state battlesnake.GameState, blocked map[battlesnake.Coord]bool, d battlesnake.Direction) int {
	next := state.You.Head.Step(d)
	limit := state.Board.Width * state.Board.Height
	area := floodFill(state.Board, blocked, next, limit)

	score := area * 10
	if area < len(state.You.Body) {
		// Entering a pocket smaller than ourselves is a slow death.
		score -= 1000
	}
	if contested(state, next) {
		score -= 500
	}
	if state.You.Health < h.HungerThreshold {
		if dist, ok := nearestFood(state.Board, next); ok {
			score += (state.Board.Width + state.Board.Height - dist) * 5
		}
	}
	for _, hz := range state.Board.Hazards {
		if hz == next {
			score -= 50
			break
		}
	}
	return score
}

// blockedCells marks every body segment except tails that move away next turn.
// A tail stays put when the snake just ate (its last two segments coincide).
func blockedCells(state battlesnake.GameState) map[battlesnake.Coord]bool {
	blocked := make(map[battlesnake.Coord]bool)
	for _, s := range state.Board.Snakes {
		n := len(s.Body)
		for i, c := range s.Body {
			if i == n-1 && n >= 2 && s.Body[n-2] != c {
				continue
			}
			blocked[c] = true
		}
	}
	// Solo and test states may omit us from the snake list.
	for i, c := range state.You.Body {
		n := len(state.You.Body)
		if i == n-1 && n >= 2 && state.You.Body[n-2] != c {
			continue
		}
		blocked[c] = true
	}
	return blocked
}

// contested reports whether an opponent at least as long as us could move into c.
func contested(state battlesnake.GameState, c battlesnake.Coord) bool {
	for _, s := range state.Board.Snakes {
		if s.ID == state.You.ID || s.Length < state.You.Length {
			continue
		}
		if s.Head.Distance(c) == 1 {
			return true
		}
	}
	return false
}

func nearestFood(board battlesnake.Board, from battlesnake.Coord) (int, bool) {
	best, found := 0, false
	for _, f := range board.Food {
		if d := from.Distance(f); !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// floodFill counts cells reachable from start without crossing blocked cells,
// stopping at limit.
func floodFill(board battlesnake.Board, blocked map[battlesnake.Coord]bool, start battlesnake.Coord, limit int) int {
	seen := map[battlesnake.Coord]bool{start: true}
	queue := []battlesnake.Coord{start}
	count := 0
	for len(queue) > 0 && count < limit {
		c := queue[0]
		queue = queue[1:]
		count++
		for _, d := range battlesnake.AllDirections {
			n := c.Step(d)
			if seen[n] || blocked[n] || !board.InBounds(n) {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	return count
}
