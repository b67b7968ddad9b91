// Package shiftset checks that a group of raw frames forms a complete pixel
// shift sequence, and works out where each frame sits on the shift grid.
package shiftset

import(
	"fmt"

	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// A Topology is one of the shift patterns cameras shoot.
//
// Four moves the sensor by whole photosites, so each of the four frames
// sees a different bayer color at every spot; the output is the sensor's
// own resolution. Sixteen runs four of those sequences, each from a
// different half-photosite starting point, and the output doubles in both
// axes. Offsets are in 1/Mag photosite units.
type Topology int

const(
	Four Topology = iota + 1
	Sixteen
)

// The camera's shooting order for a four-shot sequence, indexed by
// sequence number - 1.
var fourOrder = []rawframe.Offset{{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}

// Half photosite starting point of each group of four in a sixteen-shot
// sequence.
var sixteenHalves = []rawframe.Offset{{X: 1, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

var sequences = map[Topology][]rawframe.Offset{
	Four:    fourOrder,
	Sixteen: sixteenOrder(),
}

func sixteenOrder() []rawframe.Offset {
	offs := []rawframe.Offset{}
	for _, half := range sixteenHalves {
		for _, whole := range fourOrder {
			offs = append(offs, rawframe.Offset{X: 2*whole.X + half.X, Y: 2*whole.Y + half.Y})
		}
	}
	return offs
}

// TopologyFor picks the topology from the number of frames.
func TopologyFor(n int) (Topology, error) {
	switch n {
	case 4: return Four, nil
	case 16: return Sixteen, nil
	}
	return 0, &InvalidShotCountError{Count: n}
}

func (t Topology)String() string {
	switch t {
	case Four: return "4-shot"
	case Sixteen: return "16-shot"
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

// Shots is the number of frames in a complete set.
func (t Topology)Shots() int { return len(sequences[t]) }

// Mag is the output magnification per axis.
func (t Topology)Mag() int {
	if t == Sixteen {
		return 2
	}
	return 1
}

// Span is the number of distinct offset values per axis.
func (t Topology)Span() int { return 2 * t.Mag() }

// Sequence returns the offsets in the order the camera shoots them.
func (t Topology)Sequence() []rawframe.Offset {
	return append([]rawframe.Offset(nil), sequences[t]...)
}

// SequenceOffset maps a 1-based sequence number to its offset. Numbers past
// the end of the set wrap, as some bodies keep counting across sets.
func (t Topology)SequenceOffset(seq int) (rawframe.Offset, bool) {
	if seq < 1 || t.Shots() == 0 {
		return rawframe.Offset{}, false
	}
	return sequences[t][(seq-1)%t.Shots()], true
}

// SequencePosition is the 1-based position of off in the shooting order, or
// 0 if off is not part of this topology.
func (t Topology)SequencePosition(off rawframe.Offset) int {
	for i, o := range sequences[t] {
		if o == off {
			return i + 1
		}
	}
	return 0
}

// Contains reports whether off is on this topology's grid.
func (t Topology)Contains(off rawframe.Offset) bool {
	return off.X >= 0 && off.Y >= 0 && off.X < t.Span() && off.Y < t.Span()
}

// Slot is the row-major index of off in the Span x Span grid.
func (t Topology)Slot(off rawframe.Offset) int {
	return off.Y*t.Span() + off.X
}
