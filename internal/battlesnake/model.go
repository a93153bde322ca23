// Package battlesnake implements the Battlesnake webhook API: the game state
// model and the info/start/move/end HTTP handlers.
package battlesnake

// Direction is a move answer.
type Direction string

// Directions in deterministic tie-break order.
const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// AllDirections lists every direction in tie-break order.
var AllDirections = []Direction{Up, Down, Left, Right}

// Coord is a board cell. (0,0) is the bottom-left corner.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Step returns the neighbouring cell in direction d.
func (c Coord) Step(d Direction) Coord {
	switch d {
	case Up:
		return Coord{X: c.X, Y: c.Y + 1}
	case Down:
		return Coord{X: c.X, Y: c.Y - 1}
	case Left:
		return Coord{X: c.X - 1, Y: c.Y}
	default:
		return Coord{X: c.X + 1, Y: c.Y}
	}
}

// Distance returns the Manhattan distance between c and o.
func (c Coord) Distance(o Coord) int {
	return abs(c.X-o.X) + abs(c.Y-o.Y)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Ruleset identifies the game mode.
type Ruleset struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Game carries game-wide metadata.
type Game struct {
	ID      string  `json:"id"`
	Ruleset Ruleset `json:"ruleset"`
	Map     string  `json:"map,omitempty"`
	// Timeout is the move deadline in milliseconds.
	Timeout int    `json:"timeout"`
	Source  string `json:"source,omitempty"`
}

// Snake is one participant.
type Snake struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Health  int     `json:"health"`
	Body    []Coord `json:"body"`
	Head    Coord   `json:"head"`
	Length  int     `json:"length"`
	Latency string  `json:"latency,omitempty"`
	Shout   string  `json:"shout,omitempty"`
}

// Board is the arena snapshot for one turn.
type Board struct {
	Height  int     `json:"height"`
	Width   int     `json:"width"`
	Food    []Coord `json:"food"`
	Hazards []Coord `json:"hazards"`
	Snakes  []Snake `json:"snakes"`
}

// InBounds reports whether c lies on the board.
func (b Board) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < b.Width && c.Y < b.Height
}

// GameState is the request body of start, move and end.
type GameState struct {
	Game  Game  `json:"game"`
	Turn  int   `json:"turn"`
	Board Board `json:"board"`
	You   Snake `json:"you"`
}

// MoveResponse is the move answer.
type MoveResponse struct {
	Move  Direction `json:"move"`
	Shout string    `json:"shout,omitempty"`
}

// InfoResponse describes the snake's appearance.
type InfoResponse struct {
	APIVersion string `json:"apiversion"`
	Author     string `json:"author,omitempty"`
	Color      string `json:"color,omitempty"`
	Head       string `json:"head,omitempty"`
	Tail       string `json:"tail,omitempty"`
	Version    string `json:"version,omitempty"`
}

// Outcome is the result of a finished game from our snake's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// OutcomeOf derives the result from the final game state.
//
// Postcondition: win when our snake is the only one left (or alone in a solo
// game), draw when no snake is left, loss otherwise.
func OutcomeOf(state GameState) Outcome {
	switch len(state.Board.Snakes) {
	case 0:
		return OutcomeDraw
	case 1:
		if state.Board.Snakes[0].ID == state.You.ID {
			return OutcomeWin
		}
	}
	return OutcomeLoss
}
