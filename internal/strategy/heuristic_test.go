package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
)

func soloState(health int, body ...battlesnake.Coord) battlesnake.GameState {
	you := battlesnake.Snake{
		ID:     "me",
		Health: health,
		Body:   body,
		Head:   body[0],
		Length: len(body),
	}
	return battlesnake.GameState{
		Game:  battlesnake.Game{ID: "g1"},
		Board: battlesnake.Board{Width: 11, Height: 11, Snakes: []battlesnake.Snake{you}},
		You:   you,
	}
}

func c(x, y int) battlesnake.Coord { return battlesnake.Coord{X: x, Y: y} }

func TestHeuristic_CornerLeavesOneMove(t *testing.T) {
	state := soloState(100, c(0, 0), c(1, 0), c(2, 0))
	h := NewHeuristic(0)

	assert.Equal(t, []battlesnake.Direction{battlesnake.Up}, h.SafeMoves(state))
	assert.Equal(t, battlesnake.Up, h.Choose(state))
}

func TestHeuristic_TieBreakOrder(t *testing.T) {
	state := soloState(100, c(5, 5))
	assert.Equal(t, battlesnake.Up, NewHeuristic(0).Choose(state))
}

func TestHeuristic_HungryMovesTowardFood(t *testing.T) {
	state := soloState(10, c(5, 5))
	state.Board.Food = []battlesnake.Coord{c(8, 5)}

	assert.Equal(t, battlesnake.Right, NewHeuristic(40).Choose(state))
}

func TestHeuristic_NotHungryIgnoresFood(t *testing.T) {
	state := soloState(100, c(5, 5))
	state.Board.Food = []battlesnake.Coord{c(8, 5)}

	assert.Equal(t, battlesnake.Up, NewHeuristic(40).Choose(state))
}

func TestHeuristic_TrappedReturnsUp(t *testing.T) {
	state := soloState(100, c(0, 0), c(0, 1), c(1, 1), c(1, 0), c(2, 0))
	h := NewHeuristic(0)

	assert.Empty(t, h.SafeMoves(state))
	assert.Equal(t, battlesnake.Up, h.Choose(state))
}

func TestHeuristic_TailIsSafeUnlessStacked(t *testing.T) {
	h := NewHeuristic(0)

	moving := soloState(100, c(0, 0), c(0, 1), c(1, 1), c(1, 0))
	assert.Equal(t, []battlesnake.Direction{battlesnake.Right}, h.SafeMoves(moving))

	stacked := soloState(100, c(0, 0), c(0, 1), c(1, 1), c(1, 0), c(1, 0))
	assert.Empty(t, h.SafeMoves(stacked))
}

func TestHeuristic_AvoidsContestedCell(t *testing.T) {
	state := soloState(100, c(5, 5), c(5, 4), c(5, 3))
	rival := battlesnake.Snake{
		ID:     "rival",
		Health: 100,
		Body:   []battlesnake.Coord{c(5, 7), c(5, 8), c(5, 9), c(5, 10)},
		Head:   c(5, 7),
		Length: 4,
	}
	state.Board.Snakes = append(state.Board.Snakes, rival)

	// Up lands next to the longer rival's head.
	assert.NotEqual(t, battlesnake.Up, NewHeuristic(0).Choose(state))
}

func TestHeuristic_AvoidsSmallPocket(t *testing.T) {
	state := soloState(100, c(5, 2), c(5, 3), c(5, 4))
	state.Board.Width, state.Board.Height = 6, 6
	// A rival lying along y=1 seals off the bottom row; its tail is stacked.
	wall := battlesnake.Snake{
		ID:     "wall",
		Health: 100,
		Body:   []battlesnake.Coord{c(0, 1), c(1, 1), c(2, 1), c(3, 1), c(4, 1), c(4, 1)},
		Head:   c(0, 1),
		Length: 6,
	}
	state.Board.Snakes = append(state.Board.Snakes, wall)
	h := NewHeuristic(0)

	assert.Equal(t, []battlesnake.Direction{battlesnake.Down, battlesnake.Left}, h.SafeMoves(state))
	assert.Equal(t, battlesnake.Left, h.Choose(state))
}

// Property-based tests

func TestProperty_ChooseIsSafeWhenPossible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(3, 11).Draw(t, "width")
		hgt := rapid.IntRange(3, 11).Draw(t, "height")
		coord := func(label string) battlesnake.Coord {
			return c(rapid.IntRange(0, w-1).Draw(t, label+"_x"), rapid.IntRange(0, hgt-1).Draw(t, label+"_y"))
		}

		head := coord("head")
		you := battlesnake.Snake{ID: "me", Health: rapid.IntRange(1, 100).Draw(t, "health"), Head: head, Body: []battlesnake.Coord{head}, Length: 1}
		state := battlesnake.GameState{
			Board: battlesnake.Board{Width: w, Height: hgt, Snakes: []battlesnake.Snake{you}},
			You:   you,
		}
		obstacles := rapid.IntRange(0, 8).Draw(t, "obstacles")
		for i := 0; i < obstacles; i++ {
			o := coord("obstacle")
			if o == head {
				continue
			}
			state.Board.Snakes = append(state.Board.Snakes, battlesnake.Snake{
				ID: "rock", Head: o, Body: []battlesnake.Coord{o}, Length: 1,
			})
		}
		foods := rapid.IntRange(0, 3).Draw(t, "food")
		for i := 0; i < foods; i++ {
			state.Board.Food = append(state.Board.Food, coord("food"))
		}

		h := NewHeuristic(0)
		safe := h.SafeMoves(state)
		move := h.Choose(state)
		if len(safe) == 0 {
			if move != battlesnake.Up {
				t.Fatalf("trapped snake answered %q, want up", move)
			}
			return
		}
		for _, d := range safe {
			if d == move {
				return
			}
		}
		t.Fatalf("move %q not in safe moves %v", move, safe)
	})
}

func TestProperty_SafeMovesStayInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 11).Draw(t, "width")
		hgt := rapid.IntRange(1, 11).Draw(t, "height")
		head := c(rapid.IntRange(0, w-1).Draw(t, "x"), rapid.IntRange(0, hgt-1).Draw(t, "y"))
		state := soloState(100, head)
		state.Board.Width, state.Board.Height = w, hgt

		for _, d := range NewHeuristic(0).SafeMoves(state) {
			if !state.Board.InBounds(head.Step(d)) {
				t.Fatalf("safe move %q leaves the %dx%d board from %v", d, w, hgt, head)
			}
		}
	})
}
