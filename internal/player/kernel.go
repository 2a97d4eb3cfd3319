package player

import (
	"fmt"

	"cellmind/internal/game"
	"cellmind/internal/nn"
)

// Slot is one kernel cell as the network sees it.
type Slot uint8

const (
	SlotOutOfBounds Slot = iota
	SlotDead
	SlotAlive
)

// Value is the input encoding: alive +1, dead -1, out of bounds 0.
func (s Slot) Value() float64 {
	switch s {
	case SlotAlive:
		return 1
	case SlotDead:
		return -1
	default:
		return 0
	}
}

func slotOf(st game.State, ok bool) Slot {
	if !ok {
		return SlotOutOfBounds
	}
	if st == game.Alive {
		return SlotAlive
	}
	return SlotDead
}

// Kernel is the diameter x diameter neighbourhood centred on a position,
// x-major: all y offsets for the leftmost column come first.
type Kernel []Slot

// Key is a compact cache key for the kernel contents.
func (k Kernel) Key() string {
	b := make([]byte, len(k))
	for i, s := range k {
		b[i] = byte('0' + s)
	}
	return string(b)
}

// ExtractKernel reads the kernel around center. Cells outside the board,
// including negative coordinates, become SlotOutOfBounds.
func ExtractKernel(g *game.Game, center game.Pos, diameter int) Kernel {
	r := diameter / 2
	k := make(Kernel, 0, diameter*diameter)
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			st, ok := g.Cell(game.Pos{X: center.X + dx, Y: center.Y + dy})
			k = append(k, slotOf(st, ok))
		}
	}
	return k
}

// KernelInputs returns one input function per kernel slot, in kernel order.
func KernelInputs(diameter int) []nn.InputFunc[Kernel] {
	inputs := make([]nn.InputFunc[Kernel], diameter*diameter)
	for i := range inputs {
		idx := i
		inputs[i] = func(k Kernel) float64 { return k[idx].Value() }
	}
	return inputs
}

func validateDiameter(d int) error {
	if d < 1 || d%2 == 0 {
		return fmt.Errorf("kernel diameter must be a positive odd number, got %d", d)
	}
	return nil
}
