package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule lists the alive-neighbour counts that give birth to a dead cell and
// that keep an alive cell alive.
type Rule struct {
	Birth   []int `json:"birth" yaml:"birth"`
	Survive []int `json:"survive" yaml:"survive"`
}

// DefaultRule is Conway's B3/S23.
func DefaultRule() Rule {
	return Rule{Birth: []int{3}, Survive: []int{2, 3}}
}

// ParseRule reads rulestring notation such as "B3/S23".
func ParseRule(s string) (Rule, error) {
	var rule Rule
	seen := map[byte]bool{}
	for _, part := range strings.Split(strings.TrimSpace(s), "/") {
		if part == "" {
			return Rule{}, fmt.Errorf("invalid rule %q", s)
		}
		kind := part[0] | 0x20
		if kind != 'b' && kind != 's' {
			return Rule{}, fmt.Errorf("invalid rule %q: unknown section %q", s, part)
		}
		if seen[kind] {
			return Rule{}, fmt.Errorf("invalid rule %q: duplicate section %q", s, part)
		}
		seen[kind] = true

		counts := make([]int, 0, len(part)-1)
		for _, ch := range part[1:] {
			n, err := strconv.Atoi(string(ch))
			if err != nil || n > 8 {
				return Rule{}, fmt.Errorf("invalid rule %q: bad count %q", s, ch)
			}
			counts = append(counts, n)
		}
		if kind == 'b' {
			rule.Birth = counts
		} else {
			rule.Survive = counts
		}
	}
	if !seen['b'] || !seen['s'] {
		return Rule{}, fmt.Errorf("invalid rule %q: need both B and S sections", s)
	}
	return rule, nil
}

func (r Rule) String() string {
	var sb strings.Builder
	sb.WriteByte('B')
	for _, n := range r.Birth {
		sb.WriteString(strconv.Itoa(n))
	}
	sb.WriteString("/S")
	for _, n := range r.Survive {
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

func (r Rule) next(current State, aliveNeighbours int) State {
	counts := r.Birth
	if current == Alive {
		counts = r.Survive
	}
	for _, n := range counts {
		if n == aliveNeighbours {
			return Alive
		}
	}
	return Dead
}
