package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

var ErrBoardTooSmall = errors.New("board too small for requested alive cells")

type State uint8

const (
	Dead State = iota
	Alive
)

func (s State) String() string {
	if s == Alive {
		return "alive"
	}
	return "dead"
}

// Pos addresses a board cell. Negative coordinates are valid values but never
// resolve to a cell.
type Pos struct {
	X int
	Y int
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Board is a width×height grid stored row-major.
type Board struct {
	width  int
	height int
	cells  []State
}

func NewBoard(width, height int) *Board {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("game: negative board size %dx%d", width, height))
	}
	return &Board{width: width, height: height, cells: make([]State, width*height)}
}

// NewRandomBoard seeds alive cells in blockSize×blockSize clusters at distinct
// block-aligned origins. alive is rounded down to a whole number of blocks.
func NewRandomBoard(rng *rand.Rand, width, height, alive, blockSize int) (*Board, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if blockSize <= 0 {
		blockSize = 1
	}
	board := NewBoard(width, height)

	blockCells := blockSize * blockSize
	blocks := alive / blockCells
	origins := make([]Pos, 0, (width/blockSize)*(height/blockSize))
	for y := 0; y+blockSize <= height; y += blockSize {
		for x := 0; x+blockSize <= width; x += blockSize {
			origins = append(origins, Pos{X: x, Y: y})
		}
	}
	if blocks > len(origins) {
		return nil, fmt.Errorf("%w: %dx%d board holds %d blocks of %d, want %d",
			ErrBoardTooSmall, width, height, len(origins), blockSize, blocks)
	}

	for i := 0; i < blocks; i++ {
		idx := rng.Intn(len(origins))
		origin := origins[idx]
		origins[idx] = origins[len(origins)-1]
		origins = origins[:len(origins)-1]

		for dy := 0; dy < blockSize; dy++ {
			for dx := 0; dx < blockSize; dx++ {
				board.Set(Pos{X: origin.X + dx, Y: origin.Y + dy}, Alive)
			}
		}
	}
	return board, nil
}

// ParseBoard builds a board from rows of '#' (alive) and '.' (dead).
func ParseBoard(rows ...string) (*Board, error) {
	if len(rows) == 0 {
		return NewBoard(0, 0), nil
	}
	width := len(rows[0])
	board := NewBoard(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has width %d, want %d", y, len(row), width)
		}
		for x, ch := range row {
			switch ch {
			case '#':
				board.Set(Pos{X: x, Y: y}, Alive)
			case '.':
			default:
				return nil, fmt.Errorf("row %d: unexpected cell %q", y, ch)
			}
		}
	}
	return board, nil
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

func (b *Board) InBounds(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.width && p.Y < b.height
}

// Get reports the state at p; ok is false outside the board.
func (b *Board) Get(p Pos) (State, bool) {
	if !b.InBounds(p) {
		return Dead, false
	}
	return b.cells[p.X+p.Y*b.width], true
}

// Set writes the state at p and reports whether p was on the board.
func (b *Board) Set(p Pos, s State) bool {
	if !b.InBounds(p) {
		return false
	}
	b.cells[p.X+p.Y*b.width] = s
	return true
}

func (b *Board) Count(s State) int {
	n := 0
	for _, cell := range b.cells {
		if cell == s {
			n++
		}
	}
	return n
}

// Positions lists every cell position, x-major to match kernel scan order.
func (b *Board) Positions() []Pos {
	out := make([]Pos, 0, len(b.cells))
	for x := 0; x < b.width; x++ {
		for y := 0; y < b.height; y++ {
			out = append(out, Pos{X: x, Y: y})
		}
	}
	return out
}

func (b *Board) Clear() {
	for i := range b.cells {
		b.cells[i] = Dead
	}
}

func (b *Board) Clone() *Board {
	return &Board{
		width:  b.width,
		height: b.height,
		cells:  append([]State(nil), b.cells...),
	}
}

func (b *Board) Equal(other *Board) bool {
	if b.width != other.width || b.height != other.height {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

func (b *Board) String() string {
	var sb strings.Builder
	sb.Grow((b.width + 1) * b.height)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if b.cells[x+y*b.width] == Alive {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
