// Package merge rebuilds a full color image from a pixel shift set.
//
// Every output pixel sits on a sub-cell of the shift grid. The frames shot
// at that sub-cell's offset each put one photosite over it, and between
// them they cover a whole bayer quad, so red, green and blue are all
// measured directly. Pixels on the top and left edges lose some of those
// photosites off the sensor; their missing channels are filled from the
// nearest neighbours that did get a direct sample.
package merge

import(
	"fmt"
	"image"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/pixelshift/pkg/rawframe"
	"github.com/abworrall/pixelshift/pkg/shiftset"
)

// A SampleTag records where a channel value came from.
type SampleTag uint8

const(
	Missing SampleTag = iota
	Direct
	Interpolated
)

func (t SampleTag)String() string {
	switch t {
	case Direct: return "direct"
	case Interpolated: return "interpolated"
	}
	return "missing"
}

// A Pixel is a merged value in raw sensor units (black level not yet
// removed).
type Pixel struct {
	hdrcolor.RGB
	Tag    [3]SampleTag
	Motion bool // at least one channel's samples disagreed, and the first shot was used
}

func (p Pixel)Channel(c rawframe.Channel) float64 {
	switch c {
	case rawframe.Red: return p.R
	case rawframe.Green: return p.G
	}
	return p.B
}

func (p *Pixel)set(c rawframe.Channel, v float64) {
	switch c {
	case rawframe.Red: p.R = v
	case rawframe.Green: p.G = v
	default: p.B = v
	}
}

func (p Pixel)String() string {
	return fmt.Sprintf("[%.1f/%s, %.1f/%s, %.1f/%s]", p.R, p.Tag[0], p.G, p.Tag[1], p.B, p.Tag[2])
}

type Options struct {
	// Samples of one channel whose spread is bigger than this fraction of
	// the white-black range are treated as motion; the first shot wins.
	MotionTolerance        float64

	// How far (in output pixels) to look for a neighbour to fill a channel
	// with no direct sample.
	MaxInterpolationRadius int
}

func DefaultOptions() Options {
	return Options{
		MotionTolerance:        0.05,
		MaxInterpolationRadius: 4,
	}
}

// A tap is one frame's photosite over an output sub-cell.
type tap struct {
	plane  *rawframe.Plane
	dx, dy  int // whole photosites between the output base coord and the photosite
}

// A cellPlan lists, per channel, the taps over one kind of output pixel,
// first shot first.
type cellPlan [3][]tap

// A Merger is safe for concurrent use; it only reads the set's frames.
type Merger struct {
	opts         Options
	mag          int
	w, h         int
	motionRange  float64

	// plans[rowKey][colKey], see key()
	plans     [][]cellPlan
}

// New precomputes the tap plans for a set.
func New(set *shiftset.Set, opts Options) (*Merger, error) {
	if opts.MotionTolerance <= 0 || opts.MotionTolerance > 1 {
		return nil, fmt.Errorf("new merger: motion tolerance %g outside (0,1]", opts.MotionTolerance)
	}
	if opts.MaxInterpolationRadius < 1 {
		return nil, fmt.Errorf("new merger: interpolation radius %d < 1", opts.MaxInterpolationRadius)
	}

	ref := set.Reference()
	m := &Merger{
		opts:        opts,
		mag:         set.Topology.Mag(),
		w:           set.Width() * set.Topology.Mag(),
		h:           set.Height() * set.Topology.Mag(),
		motionRange: opts.MotionTolerance * (ref.MaxValue() - ref.BlackLevel),
	}

	// A plan depends on the sub-cell (which frames) and on the parity of
	// the base coord (which colors those frames see), per axis.
	nkeys := 2 * m.mag
	m.plans = make([][]cellPlan, nkeys)
	for rk := 0; rk < nkeys; rk++ {
		m.plans[rk] = make([]cellPlan, nkeys)
		subY, parY := rk/2, rk%2

		for ck := 0; ck < nkeys; ck++ {
			subX, parX := ck/2, ck%2
			plan := &m.plans[rk][ck]

			for i, f := range set.Frames {
				off := set.Offsets[i]
				if off.X%m.mag != subX || off.Y%m.mag != subY {
					continue
				}
				t := tap{plane: f.Samples, dx: off.X / m.mag, dy: off.Y / m.mag}
				c := set.Bayer().ColorAt(parX-t.dx, parY-t.dy)
				plan[c] = append(plan[c], t)
			}
		}
	}

	return m, nil
}

func (m *Merger)key(v int) int {
	return (v%m.mag)*2 + (v/m.mag)&1
}

func (m *Merger)Bounds() image.Rectangle {
	return image.Rect(0, 0, m.w, m.h)
}

// At merges a single pixel.
func (m *Merger)At(x, y int) (Pixel, error) {
	if !(image.Point{x, y}).In(m.Bounds()) {
		return Pixel{}, fmt.Errorf("merge: (%d,%d) outside %v", x, y, m.Bounds())
	}
	p := Pixel{}
	err := m.mergePixel(x, y, &m.plans[m.key(y)][m.key(x)], &p, &Stats{})
	return p, err
}

// MergeRow merges output row y into dst, which must be exactly one row
// wide. Counts are added to st, if it isn't nil.
func (m *Merger)MergeRow(y int, dst []Pixel, st *Stats) error {
	if len(dst) != m.w {
		return fmt.Errorf("merge row %d: dst holds %d pixels, want %d", y, len(dst), m.w)
	}
	if y < 0 || y >= m.h {
		return fmt.Errorf("merge row %d: outside [0,%d)", y, m.h)
	}
	if st == nil {
		st = &Stats{}
	}

	row := m.plans[m.key(y)]
	for x := range dst {
		dst[x] = Pixel{}
		if err := m.mergePixel(x, y, &row[m.key(x)], &dst[x], st); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger)mergePixel(x, y int, plan *cellPlan, p *Pixel, st *Stats) error {
	for c := rawframe.Red; c <= rawframe.Blue; c++ {
		if v, ok, motion := m.direct(x, y, plan[c]); ok {
			p.set(c, v)
			p.Tag[c] = Direct
			st.Direct[c]++
			if motion {
				p.Motion = true
				st.MotionFallbacks++
			}
			continue
		}

		v, err := m.interpolate(x, y, c)
		if err != nil {
			return err
		}
		p.set(c, v)
		p.Tag[c] = Interpolated
		st.Interpolated[c]++
	}
	return nil
}

// direct combines the taps that land on the sensor. Agreeing samples are
// averaged; if they spread wider than the motion range, the earliest shot
// is taken as is.
func (m *Merger)direct(x, y int, taps []tap) (float64, bool, bool) {
	bx, by := x/m.mag, y/m.mag

	n := 0
	var first, lo, hi, sum float64
	for _, t := range taps {
		rx, ry := bx-t.dx, by-t.dy
		if rx < 0 || ry < 0 {
			continue
		}
		v := float64(t.plane.At(rx, ry))
		if n == 0 {
			first, lo, hi = v, v, v
		} else if v < lo {
			lo = v
		} else if v > hi {
			hi = v
		}
		sum += v
		n++
	}

	switch {
	case n == 0:
		return 0, false, false
	case n > 1 && hi-lo > m.motionRange:
		return first, true, true
	}
	return sum / float64(n), true, false
}

// interpolate averages the closest ring of neighbours that have a direct
// sample of c: axis neighbours at distance r first, then diagonals at r.
func (m *Merger)interpolate(x, y int, c rawframe.Channel) (float64, error) {
	for r := 1; r <= m.opts.MaxInterpolationRadius; r++ {
		rings := [2][4]image.Point{
			{{r, 0}, {-r, 0}, {0, r}, {0, -r}},
			{{r, r}, {-r, r}, {r, -r}, {-r, -r}},
		}

		for _, ring := range rings {
			n, sum := 0, 0.0
			for _, d := range ring {
				nx, ny := x+d.X, y+d.Y
				if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
					continue
				}
				if v, ok, _ := m.direct(nx, ny, m.plans[m.key(ny)][m.key(nx)][c]); ok {
					sum += v
					n++
				}
			}
			if n > 0 {
				return sum / float64(n), nil
			}
		}
	}

	return 0, &GapError{X: x, Y: y, Channel: c, Radius: m.opts.MaxInterpolationRadius}
}
