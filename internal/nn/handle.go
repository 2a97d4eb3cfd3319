package nn

import "fmt"

// Handle is the stable identity of a node. It stays valid across edge edits,
// cloning and serialisation; the zero Handle never names a node.
type Handle struct {
	Slot uint32
	Gen  uint32
}

func (h Handle) IsZero() bool { return h.Gen == 0 }

// Key packs the handle into a single integer for map-keyed encodings.
func (h Handle) Key() uint64 {
	return uint64(h.Slot)<<32 | uint64(h.Gen)
}

func HandleFromKey(key uint64) Handle {
	return Handle{Slot: uint32(key >> 32), Gen: uint32(key)}
}

func (h Handle) String() string {
	return fmt.Sprintf("n%d.%d", h.Slot, h.Gen)
}

type node struct {
	layer int
	edges []Edge
}

type slot struct {
	gen  uint32
	live bool
	node node
}

// arena hands out handles by slot. A slot's generation only ever moves
// forward, so a handle can never be mistaken for a later occupant.
type arena struct {
	slots []slot
}

func (a *arena) insert(n node) Handle {
	a.slots = append(a.slots, slot{gen: 1, live: true, node: n})
	return Handle{Slot: uint32(len(a.slots) - 1), Gen: 1}
}

// restore places a node at an exact handle, growing the arena as needed.
func (a *arena) restore(h Handle, n node) error {
	if h.IsZero() {
		return fmt.Errorf("invalid handle %s", h)
	}
	for uint32(len(a.slots)) <= h.Slot {
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[h.Slot]
	if s.live {
		return fmt.Errorf("duplicate handle %s", h)
	}
	if s.gen > h.Gen {
		return fmt.Errorf("stale handle %s", h)
	}
	*s = slot{gen: h.Gen, live: true, node: n}
	return nil
}

func (a *arena) get(h Handle) *node {
	if int(h.Slot) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Slot]
	if !s.live || s.gen != h.Gen || h.IsZero() {
		return nil
	}
	return &s.node
}

func (a *arena) clone() arena {
	slots := make([]slot, len(a.slots))
	for i, s := range a.slots {
		slots[i] = s
		slots[i].node.edges = append([]Edge(nil), s.node.edges...)
	}
	return arena{slots: slots}
}
