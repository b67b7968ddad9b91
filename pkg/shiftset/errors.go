package shiftset

import(
	"fmt"
	"strings"

	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// An InvalidShotCountError means the number of frames is neither 4 nor 16.
type InvalidShotCountError struct {
	Count int
}

func (e *InvalidShotCountError)Error() string {
	return fmt.Sprintf("invalid shot count %d: want 4 or 16 frames", e.Count)
}

// An InconsistentFrameMetadataError names the first frame that does not
// match frame 0.
type InconsistentFrameMetadataError struct {
	Path  string
	Index int
	Field string
	Want  string
	Got   string
}

func (e *InconsistentFrameMetadataError)Error() string {
	return fmt.Sprintf("frame %d (%s): %s is %s, want %s to match the first frame", e.Index, e.Path, e.Field, e.Got, e.Want)
}

// An IncompleteShiftSetError means the frames don't cover the topology's
// offsets exactly once each.
type IncompleteShiftSetError struct {
	Topology   Topology
	Duplicates []rawframe.Offset
	Missing    []rawframe.Offset
	Unexpected []rawframe.Offset
}

func (e *IncompleteShiftSetError)Error() string {
	parts := []string{}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicate offsets "+offsetList(e.Duplicates))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing offsets "+offsetList(e.Missing))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "offsets off the grid "+offsetList(e.Unexpected))
	}
	return fmt.Sprintf("incomplete %s set: %s", e.Topology, strings.Join(parts, "; "))
}

func offsetList(offs []rawframe.Offset) string {
	s := []string{}
	for _, o := range offs {
		s = append(s, o.String())
	}
	return strings.Join(s, ",")
}
