package shiftset

import(
	"fmt"
	"sort"

	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// A Set is a validated group of frames. Frames are kept in capture order,
// so everything derived from a Set is independent of the order the frames
// were given in. The Set owns the frames; Close releases them.
type Set struct {
	Topology Topology
	Frames   []*rawframe.Frame
	Offsets  []rawframe.Offset // Offsets[i] is where Frames[i] sits on the shift grid
	Ranks    []int             // Ranks[i] is the capture rank of Frames[i], 1 is the first shot

	// Things that are odd, but don't stop the merge.
	Warnings []string

	bySlot   []int
}

// Validate runs the checks in order, stopping at the first that fails. On
// success the returned Set owns the frames; on failure the caller still
// does.
//
// Each frame's offset comes from its explicit shift tag if it has one, else
// from its sequence number, else from its position in frames; both of the
// latter are mapped through the camera's shooting order.
func Validate(frames []*rawframe.Frame) (*Set, error) {
	if len(frames) != 4 && len(frames) != 16 {
		return nil, &InvalidShotCountError{Count: len(frames)}
	}

	if err := checkConsistent(frames); err != nil {
		return nil, err
	}

	topo, err := TopologyFor(len(frames))
	if err != nil {
		return nil, err
	}

	type slot struct {
		f    *rawframe.Frame
		off   rawframe.Offset
		rank  int
	}
	slots := make([]slot, len(frames))
	for i, f := range frames {
		off := rawframe.Offset{}
		switch {
		case f.ShiftOffset != nil:
			off = *f.ShiftOffset
		case f.Sequence > 0:
			off, _ = topo.SequenceOffset(f.Sequence)
		default:
			off, _ = topo.SequenceOffset(i + 1)
		}

		rank := 0
		if f.Sequence > 0 {
			rank = (f.Sequence-1)%topo.Shots() + 1
		} else {
			rank = topo.SequencePosition(off)
		}
		slots[i] = slot{f, off, rank}
	}

	offs := make([]rawframe.Offset, len(slots))
	for i := range slots {
		offs[i] = slots[i].off
	}
	if err := checkComplete(topo, offs); err != nil {
		return nil, err
	}

	// Offsets are distinct now, so this is a total order.
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.off.Y != b.off.Y {
			return a.off.Y < b.off.Y
		}
		return a.off.X < b.off.X
	})

	s := &Set{
		Topology: topo,
		bySlot:   make([]int, topo.Span()*topo.Span()),
	}
	for i, sl := range slots {
		s.Frames = append(s.Frames, sl.f)
		s.Offsets = append(s.Offsets, sl.off)
		s.Ranks = append(s.Ranks, sl.rank)
		s.bySlot[topo.Slot(sl.off)] = i
	}

	ref := s.Reference()
	for _, f := range s.Frames[1:] {
		if f.BlackLevel != ref.BlackLevel {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s: black level %.1f differs from %s (%.1f), using %.1f",
				f.Filename(), f.BlackLevel, ref.Filename(), ref.BlackLevel, ref.BlackLevel))
		}
		if f.WhiteBalance != ref.WhiteBalance {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s: white balance %.3f differs from %s, using %.3f",
				f.Filename(), f.WhiteBalance, ref.Filename(), ref.WhiteBalance))
		}
	}

	return s, nil
}

func checkConsistent(frames []*rawframe.Frame) error {
	first := frames[0]
	for i, f := range frames[1:] {
		mismatch := func(field string, want, got interface{}) error {
			return &InconsistentFrameMetadataError{
				Path:  f.Path,
				Index: i + 1,
				Field: field,
				Want:  fmt.Sprint(want),
				Got:   fmt.Sprint(got),
			}
		}

		switch {
		case f.Width != first.Width:
			return mismatch("width", first.Width, f.Width)
		case f.Height != first.Height:
			return mismatch("height", first.Height, f.Height)
		case f.Bayer != first.Bayer:
			return mismatch("bayer pattern", first.Bayer, f.Bayer)
		case f.BitDepth != first.BitDepth:
			return mismatch("bit depth", first.BitDepth, f.BitDepth)
		}
	}
	return nil
}

func checkComplete(topo Topology, offs []rawframe.Offset) error {
	e := &IncompleteShiftSetError{Topology: topo}

	seen := map[rawframe.Offset]int{}
	for _, off := range offs {
		if !topo.Contains(off) {
			e.Unexpected = append(e.Unexpected, off)
			continue
		}
		seen[off]++
		if seen[off] == 2 {
			e.Duplicates = append(e.Duplicates, off)
		}
	}

	// Report in shooting order, so the messages read like the camera's
	// sequence numbers.
	for _, off := range topo.Sequence() {
		if seen[off] == 0 {
			e.Missing = append(e.Missing, off)
		}
	}

	if len(e.Duplicates)+len(e.Missing)+len(e.Unexpected) > 0 {
		return e
	}
	return nil
}

// Reference is the first frame captured. Its black level and white balance
// are used for the whole set.
func (s *Set)Reference() *rawframe.Frame { return s.Frames[0] }

func (s *Set)Width() int                   { return s.Reference().Width }
func (s *Set)Height() int                  { return s.Reference().Height }
func (s *Set)Bayer() rawframe.BayerPattern { return s.Reference().Bayer }

// FrameAt returns the frame shot at off, or nil.
func (s *Set)FrameAt(off rawframe.Offset) *rawframe.Frame {
	if !s.Topology.Contains(off) {
		return nil
	}
	return s.Frames[s.bySlot[s.Topology.Slot(off)]]
}

// Close releases every frame's mapping.
func (s *Set)Close() error {
	return rawframe.CloseAll(s.Frames)
}

func (s *Set)String() string {
	str := fmt.Sprintf("%s set, %dx%d %s", s.Topology, s.Width(), s.Height(), s.Bayer())
	for i, f := range s.Frames {
		str += fmt.Sprintf("\n  #%-2d %-8s %s", s.Ranks[i], s.Offsets[i], f.Filename())
	}
	return str
}
