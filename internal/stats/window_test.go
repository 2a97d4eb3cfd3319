package stats

import "testing"

func TestScoreWindowRolls(t *testing.T) {
	w := NewScoreWindow(3)
	if _, ok := w.Last(); ok {
		t.Fatal("empty window should have no last value")
	}
	if _, ok := w.Min(); ok {
		t.Fatal("empty window should have no min")
	}

	for _, v := range []int{4, -2, 10} {
		w.Push(v)
	}
	if !w.Ready() {
		t.Fatal("window should be ready once full")
	}
	if got := w.Average(); got != 4 {
		t.Fatalf("unexpected average: got=%f want=4", got)
	}

	w.Push(1)
	s := w.Summary()
	want := Summary{Last: 1, Min: -2, Max: 10, Average: 3, Count: 3}
	if s != want {
		t.Fatalf("unexpected summary: got=%+v want=%+v", s, want)
	}

	w.Push(1)
	w.Push(1)
	if lo, _ := w.Min(); lo != 1 {
		t.Fatalf("old values should have rolled out, min=%d", lo)
	}
}

func TestScoreWindowPartial(t *testing.T) {
	w := NewScoreWindow(50)
	w.Push(5)
	w.Push(15)
	if w.Ready() {
		t.Fatal("partial window should not be ready")
	}
	if w.Len() != 2 || w.Average() != 10 {
		t.Fatalf("unexpected partial stats: len=%d avg=%f", w.Len(), w.Average())
	}
	if hi, ok := w.Max(); !ok || hi != 15 {
		t.Fatalf("unexpected max: %d %t", hi, ok)
	}
}
