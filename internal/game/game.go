package game

var neighbourOffsets = [8]Pos{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Game couples a board with its transition rule.
type Game struct {
	Board *Board
	Rule  Rule
}

func New(board *Board, rule Rule) *Game {
	return &Game{Board: board, Rule: rule}
}

// Tick advances one generation. Cells beyond the edge count as dead; the
// board does not wrap.
func (g *Game) Tick() {
	next := NewBoard(g.Board.width, g.Board.height)
	for y := 0; y < g.Board.height; y++ {
		for x := 0; x < g.Board.width; x++ {
			pos := Pos{X: x, Y: y}
			current, _ := g.Board.Get(pos)
			next.cells[x+y*next.width] = g.Rule.next(current, g.aliveNeighbours(pos))
		}
	}
	g.Board = next
}

func (g *Game) aliveNeighbours(p Pos) int {
	n := 0
	for _, off := range neighbourOffsets {
		if s, ok := g.Board.Get(Pos{X: p.X + off.X, Y: p.Y + off.Y}); ok && s == Alive {
			n++
		}
	}
	return n
}

func (g *Game) Cell(p Pos) (State, bool) { return g.Board.Get(p) }

func (g *Game) SetCell(p Pos, s State) bool { return g.Board.Set(p, s) }

func (g *Game) Count(s State) int { return g.Board.Count(s) }

func (g *Game) Clone() *Game {
	rule := Rule{
		Birth:   append([]int(nil), g.Rule.Birth...),
		Survive: append([]int(nil), g.Rule.Survive...),
	}
	return &Game{Board: g.Board.Clone(), Rule: rule}
}
