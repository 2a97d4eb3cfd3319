package game

import (
	"errors"
	"math/rand"
	"testing"
)

func TestTickIsolatedCellDies(t *testing.T) {
	board, err := ParseBoard(
		"....",
		".#..",
		"....",
		"....",
	)
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}
	g := New(board, Rule{Birth: []int{3}, Survive: []int{2, 3}})
	if got := g.Count(Alive); got != 1 {
		t.Fatalf("unexpected initial alive count: got=%d want=1", got)
	}

	g.Tick()

	if got := g.Count(Alive); got != 0 {
		t.Fatalf("expected extinction after one tick, got %d alive\n%s", got, g.Board)
	}
}

func TestTickBlinkerOscillates(t *testing.T) {
	board, err := ParseBoard(
		".....",
		"..#..",
		"..#..",
		"..#..",
		".....",
	)
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}
	want, err := ParseBoard(
		".....",
		".....",
		".###.",
		".....",
		".....",
	)
	if err != nil {
		t.Fatalf("parse want: %v", err)
	}

	g := New(board, DefaultRule())
	g.Tick()
	if !g.Board.Equal(want) {
		t.Fatalf("unexpected board after tick:\n%s", g.Board)
	}
	g.Tick()
	if !g.Board.Equal(board) {
		t.Fatalf("blinker did not return to start:\n%s", g.Board)
	}
}

func TestTickDoesNotWrap(t *testing.T) {
	board, err := ParseBoard(
		"#..#",
		"....",
		"....",
		"#...",
	)
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}
	g := New(board, DefaultRule())
	g.Tick()
	if got := g.Count(Alive); got != 0 {
		t.Fatalf("corner cells should not see each other, got %d alive", got)
	}
}

func TestBoardOutOfBounds(t *testing.T) {
	board := NewBoard(3, 2)
	for _, pos := range []Pos{{-1, 0}, {0, -1}, {3, 0}, {0, 2}} {
		if _, ok := board.Get(pos); ok {
			t.Fatalf("expected %s to be out of bounds", pos)
		}
		if board.Set(pos, Alive) {
			t.Fatalf("set at %s should fail", pos)
		}
	}
	if !board.Set(Pos{X: 2, Y: 1}, Alive) {
		t.Fatal("expected in-bounds set to succeed")
	}
	if s, ok := board.Get(Pos{X: 2, Y: 1}); !ok || s != Alive {
		t.Fatalf("unexpected cell: state=%s ok=%t", s, ok)
	}
}

func TestNewRandomBoardCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	board, err := NewRandomBoard(rng, 12, 12, 72, 1)
	if err != nil {
		t.Fatalf("new random board: %v", err)
	}
	if got := board.Count(Alive); got != 72 {
		t.Fatalf("unexpected alive count: got=%d want=72", got)
	}
}

func TestNewRandomBoardBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	board, err := NewRandomBoard(rng, 8, 8, 10, 2)
	if err != nil {
		t.Fatalf("new random board: %v", err)
	}
	if got := board.Count(Alive); got != 8 {
		t.Fatalf("alive cells should round down to whole blocks: got=%d want=8", got)
	}
	for y := 0; y < 8; y += 2 {
		for x := 0; x < 8; x += 2 {
			first, _ := board.Get(Pos{X: x, Y: y})
			for _, off := range []Pos{{1, 0}, {0, 1}, {1, 1}} {
				s, _ := board.Get(Pos{X: x + off.X, Y: y + off.Y})
				if s != first {
					t.Fatalf("block at (%d,%d) is not uniform\n%s", x, y, board)
				}
			}
		}
	}
}

func TestNewRandomBoardTooSmall(t *testing.T) {
	_, err := NewRandomBoard(rand.New(rand.NewSource(1)), 2, 2, 5, 1)
	if !errors.Is(err, ErrBoardTooSmall) {
		t.Fatalf("expected ErrBoardTooSmall, got %v", err)
	}
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "B3/S23", want: "B3/S23"},
		{in: "b36/s23", want: "B36/S23"},
		{in: "S23/B3", want: "B3/S23"},
		{in: "B/S", want: "B/S"},
		{in: "B3", wantErr: true},
		{in: "B9/S2", wantErr: true},
		{in: "X3/S2", wantErr: true},
		{in: "B3/B3", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			rule, err := ParseRule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse rule: %v", err)
			}
			if rule.String() != tc.want {
				t.Fatalf("unexpected rule: got=%s want=%s", rule, tc.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(NewBoard(2, 2), DefaultRule())
	clone := g.Clone()
	clone.SetCell(Pos{X: 0, Y: 0}, Alive)
	if g.Count(Alive) != 0 {
		t.Fatal("clone shares cells with original")
	}
}
