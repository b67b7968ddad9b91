package merge

import(
	"fmt"

	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// Stats counts how each channel of each output pixel was filled. Each
// worker keeps its own and they get added up at the end.
type Stats struct {
	Direct          [3]int64
	Interpolated    [3]int64
	MotionFallbacks int64
}

func (s *Stats)Add(o Stats) {
	for c := range s.Direct {
		s.Direct[c] += o.Direct[c]
		s.Interpolated[c] += o.Interpolated[c]
	}
	s.MotionFallbacks += o.MotionFallbacks
}

func (s Stats)TotalInterpolated() int64 {
	return s.Interpolated[0] + s.Interpolated[1] + s.Interpolated[2]
}

func (s Stats)String() string {
	str := "direct/interpolated"
	for c := rawframe.Red; c <= rawframe.Blue; c++ {
		str += fmt.Sprintf(" %s:%d/%d", c, s.Direct[c], s.Interpolated[c])
	}
	return str + fmt.Sprintf(", motion fallbacks:%d", s.MotionFallbacks)
}

// A GapError means a channel had no direct sample anywhere within the
// interpolation radius, which only happens on sensors too small for the
// radius to reach across.
type GapError struct {
	X, Y    int
	Channel rawframe.Channel
	Radius  int
}

func (e *GapError)Error() string {
	return fmt.Sprintf("merge: no %s sample within %d pixels of (%d,%d)", e.Channel, e.Radius, e.X, e.Y)
}
