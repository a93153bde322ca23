package strategy

import (
	"fmt"
	"os"
	"slices"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
)

// hookName is the Lua global a strategy script must define:
//
//	function choose_move(state, safe_moves) return "up" end
const hookName = "choose_move"

// LuaChooser delegates move choice to a sandboxed Lua script and falls back to
// the heuristic whenever the script errors, exceeds its instruction budget or
// answers a move that is not safe.
//
// A single LState is not safe for concurrent use; Choose serializes calls.
type LuaChooser struct {
	mu       sync.Mutex
	L        *lua.LState
	limit    int
	fallback Heuristic
	logger   *zap.Logger
}

// NewLuaChooserFromFile loads the script at path.
//
// Precondition: path must name a readable Lua file.
// Postcondition: Returns a chooser or an error when the script cannot be read,
// fails to load, or does not define choose_move.
func NewLuaChooserFromFile(path string, limit int, fallback Heuristic, logger *zap.Logger) (*LuaChooser, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: reading script %q: %w", path, err)
	}
	return NewLuaChooser(string(src), limit, fallback, logger)
}

// NewLuaChooser loads script source into a fresh sandbox.
//
// Precondition: limit >= 0; 0 uses DefaultInstructionLimit.
func NewLuaChooser(src string, limit int, fallback Heuristic, logger *zap.Logger) (*LuaChooser, error) {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	L := newSandboxedState()
	registerModules(L)

	if err := withBudget(L, limit, func() error { return L.DoString(src) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("strategy: loading script: %w", err)
	}
	if L.GetGlobal(hookName) == lua.LNil {
		L.Close()
		return nil, fmt.Errorf("strategy: script does not define %s", hookName)
	}
	return &LuaChooser{L: L, limit: limit, fallback: fallback, logger: logger}, nil
}

// Choose calls choose_move(state, safe_moves).
//
// Postcondition: When any safe move exists the result is one of them.
func (c *LuaChooser) Choose(state battlesnake.GameState) battlesnake.Direction {
	safe := c.fallback.SafeMoves(state)

	c.mu.Lock()
	defer c.mu.Unlock()

	var ret lua.LValue = lua.LNil
	err := withBudget(c.L, c.limit, func() error {
		if err := c.L.CallByParam(lua.P{
			Fn:      c.L.GetGlobal(hookName),
			NRet:    1,
			Protect: true,
		}, stateTable(c.L, state), directionTable(c.L, safe)); err != nil {
			return err
		}
		ret = c.L.Get(-1)
		c.L.Pop(1)
		return nil
	})
	if err != nil {
		c.L.SetTop(0)
		c.logger.Warn("strategy script failed; using heuristic",
			zap.String("game_id", state.Game.ID),
			zap.Int("turn", state.Turn),
			zap.Error(err),
		)
		return c.fallback.Choose(state)
	}

	move := battlesnake.Direction(lua.LVAsString(ret))
	if len(safe) > 0 && !slices.Contains(safe, move) {
		c.logger.Debug("strategy script chose unsafe move; using heuristic",
			zap.String("game_id", state.Game.ID),
			zap.String("move", string(move)),
		)
		return c.fallback.Choose(state)
	}
	if len(safe) == 0 && !slices.Contains(battlesnake.AllDirections, move) {
		return battlesnake.Up
	}
	return move
}

// Close releases the Lua state.
func (c *LuaChooser) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.L.Close()
}

// registerModules installs the snake helper table:
//
//	snake.step(x, y, dir) -> x, y
//	snake.distance(x1, y1, x2, y2) -> n
func registerModules(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "step", L.NewFunction(func(L *lua.LState) int {
		c := battlesnake.Coord{X: L.CheckInt(1), Y: L.CheckInt(2)}
		n := c.Step(battlesnake.Direction(L.CheckString(3)))
		L.Push(lua.LNumber(n.X))
		L.Push(lua.LNumber(n.Y))
		return 2
	}))
	L.SetField(mod, "distance", L.NewFunction(func(L *lua.LState) int {
		a := battlesnake.Coord{X: L.CheckInt(1), Y: L.CheckInt(2)}
		b := battlesnake.Coord{X: L.CheckInt(3), Y: L.CheckInt(4)}
		L.Push(lua.LNumber(a.Distance(b)))
		return 1
	}))
	L.SetGlobal("snake", mod)
}

func coordTable(L *lua.LState, c battlesnake.Coord) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(c.X))
	t.RawSetString("y", lua.LNumber(c.Y))
	return t
}

func coordList(L *lua.LState, cs []battlesnake.Coord) *lua.LTable {
	t := L.NewTable()
	for _, c := range cs {
		t.Append(coordTable(L, c))
	}
	return t
}

func snakeTable(L *lua.LState, s battlesnake.Snake) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(s.ID))
	t.RawSetString("name", lua.LString(s.Name))
	t.RawSetString("health", lua.LNumber(s.Health))
	t.RawSetString("length", lua.LNumber(s.Length))
	t.RawSetString("head", coordTable(L, s.Head))
	t.RawSetString("body", coordList(L, s.Body))
	return t
}

func stateTable(L *lua.LState, state battlesnake.GameState) *lua.LTable {
	board := L.NewTable()
	board.RawSetString("width", lua.LNumber(state.Board.Width))
	board.RawSetString("height", lua.LNumber(state.Board.Height))
	board.RawSetString("food", coordList(L, state.Board.Food))
	board.RawSetString("hazards", coordList(L, state.Board.Hazards))
	snakes := L.NewTable()
	for _, s := range state.Board.Snakes {
		snakes.Append(snakeTable(L, s))
	}
	board.RawSetString("snakes", snakes)

	t := L.NewTable()
	t.RawSetString("game_id", lua.LString(state.Game.ID))
	t.RawSetString("turn", lua.LNumber(state.Turn))
	t.RawSetString("board", board)
	t.RawSetString("you", snakeTable(L, state.You))
	return t
}

func directionTable(L *lua.LState, ds []battlesnake.Direction) *lua.LTable {
	t := L.NewTable()
	for _, d := range ds {
		t.Append(lua.LString(d))
	}
	return t
}
