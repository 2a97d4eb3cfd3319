package platform

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"cellmind/internal/stats"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
)

// ColorEnabled reports whether w is a terminal that should get ANSI colours.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type progressPrinter struct {
	out   io.Writer
	color bool

	prev     stats.Summary
	prevGen  int
	prevTime time.Time
}

func (p *progressPrinter) paint(s, color string) string {
	if !p.color {
		return s
	}
	return color + s + ansiReset
}

// change colours cur against old: green when higher, red when lower.
func (p *progressPrinter) change(cur, old float64, text string) string {
	switch {
	case cur > old:
		return p.paint(text, ansiGreen)
	case cur < old:
		return p.paint(text, ansiRed)
	default:
		return text
	}
}

func (p *progressPrinter) print(generation int, improved bool, s stats.Summary, now time.Time) {
	prefix := strings.Repeat(" ", len("IMPROVED"))
	if improved {
		prefix = p.paint("IMPROVED", ansiGreen)
	}
	rate := 0.0
	if elapsed := now.Sub(p.prevTime).Seconds(); elapsed > 0 {
		rate = float64(generation-p.prevGen) / elapsed
	}
	fmt.Fprintf(p.out, "%s gen %7s: %s | %s < %s < %s | %s gen/s\n",
		prefix,
		humanize.Comma(int64(generation)),
		p.change(float64(s.Last), float64(p.prev.Last), fmt.Sprintf("%5d", s.Last)),
		p.change(float64(s.Min), float64(p.prev.Min), fmt.Sprintf("%5d", s.Min)),
		p.change(s.Average, p.prev.Average, fmt.Sprintf("%8.2f", s.Average)),
		p.change(float64(s.Max), float64(p.prev.Max), fmt.Sprintf("%5d", s.Max)),
		humanize.FormatFloat("#,###.##", rate),
	)
	p.prev = s
	p.prevGen = generation
	p.prevTime = now
}
