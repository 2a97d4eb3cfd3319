package stats

// ScoreWindow keeps the last N generation scores.
type ScoreWindow struct {
	values []int
	next   int
	full   bool
	sum    int
	last   int
	seen   bool
}

func NewScoreWindow(size int) *ScoreWindow {
	if size < 1 {
		size = 1
	}
	return &ScoreWindow{values: make([]int, size)}
}

func (w *ScoreWindow) Push(v int) {
	if w.full {
		w.sum -= w.values[w.next]
	}
	w.values[w.next] = v
	w.sum += v
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
	w.last = v
	w.seen = true
}

func (w *ScoreWindow) Len() int {
	if w.full {
		return len(w.values)
	}
	return w.next
}

// Ready reports whether the window has been filled once.
func (w *ScoreWindow) Ready() bool { return w.full }

func (w *ScoreWindow) Last() (int, bool) { return w.last, w.seen }

func (w *ScoreWindow) Average() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	return float64(w.sum) / float64(n)
}

func (w *ScoreWindow) Min() (int, bool) {
	n := w.Len()
	if n == 0 {
		return 0, false
	}
	m := w.values[0]
	for _, v := range w.values[1:n] {
		if v < m {
			m = v
		}
	}
	return m, true
}

func (w *ScoreWindow) Max() (int, bool) {
	n := w.Len()
	if n == 0 {
		return 0, false
	}
	m := w.values[0]
	for _, v := range w.values[1:n] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// Summary is a point-in-time copy of the window statistics.
type Summary struct {
	Last    int     `json:"last"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func (w *ScoreWindow) Summary() Summary {
	last, _ := w.Last()
	lo, _ := w.Min()
	hi, _ := w.Max()
	return Summary{Last: last, Min: lo, Max: hi, Average: w.Average(), Count: w.Len()}
}
