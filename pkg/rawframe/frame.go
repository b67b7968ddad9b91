// Package rawframe loads raw sensor captures as memory-mapped planes of
// photosite samples, along with the metadata needed to merge them.
package rawframe

import(
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/abworrall/pixelshift/pkg/emath"
)

// An Offset is a sensor shift position, in units of 1/magnification of a
// photosite (so whole photosites for 4-shot sets, half photosites for
// 16-shot sets).
type Offset struct {
	X, Y int
}

func (o Offset)String() string { return fmt.Sprintf("(%d,%d)", o.X, o.Y) }

// Metadata is everything the container told us about a capture.
type Metadata struct {
	Width         int
	Height        int
	Bayer         BayerPattern
	BitDepth      int
	WhiteLevel    int             // 0 means (1<<BitDepth)-1
	BlackLevel    float64
	WhiteBalance  emath.Vec3      // Channel multipliers, green == 1

	ShiftOffset  *Offset          // Explicit shift tag, if the container (or config) had one
	Sequence      int             // 1-based position in the capture sequence, 0 if untagged

	AsShotNeutral emath.Vec3      // Camera native neutral; zero if absent
	ColorMatrix   emath.Mat3      // XYZ -> camera native; zero if absent
	ForwardMatrix emath.Mat3      // White balanced camera native -> XYZ(D50); zero if absent

	Model         string
	CaptureTime   time.Time
}

// MaxValue is the sample value of a fully exposed photosite.
func (md Metadata)MaxValue() float64 {
	if md.WhiteLevel > 0 {
		return float64(md.WhiteLevel)
	}
	return float64(uint32(1)<<uint(md.BitDepth) - 1)
}

// A Frame is one decoded capture. It is immutable once loaded, so any
// number of goroutines can read Samples at once. The frame owns the memory
// mapping under Samples, and Close releases it; Samples must not be touched
// after that.
type Frame struct {
	Path     string
	Metadata
	Samples *Plane

	mapping  *mapping
	closed    sync.Once
}

// NewFrame builds a frame over an existing plane; used by tests and by
// callers that bring their own decoder.
func NewFrame(path string, md Metadata, samples *Plane) (*Frame, error) {
	if samples == nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("no samples")}
	}
	if md.Width == 0 && md.Height == 0 {
		md.Width, md.Height = samples.Width(), samples.Height()
	}
	if samples.Width() != md.Width || samples.Height() != md.Height {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("plane is %dx%d, metadata says %dx%d",
			samples.Width(), samples.Height(), md.Width, md.Height)}
	}
	if md.Bayer == (BayerPattern{}) {
		md.Bayer = RGGB
	}
	if !md.Bayer.Valid() {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("bad bayer pattern %s", md.Bayer)}
	}
	if md.BitDepth == 0 {
		md.BitDepth = 16
	}
	if md.BitDepth < 1 || md.BitDepth > 16 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("unsupported bit depth %d", md.BitDepth)}
	}
	if md.WhiteBalance.IsZero() {
		md.WhiteBalance = whiteBalanceFromNeutral(md.AsShotNeutral)
	}

	return &Frame{Path: path, Metadata: md, Samples: samples}, nil
}

// Close releases the memory mapping. It is safe to call more than once.
func (f *Frame)Close() error {
	var err error
	f.closed.Do(func() {
		if f.mapping != nil {
			err = f.mapping.Close()
		}
	})
	return err
}

func (f *Frame)Filename() string {
	return filepath.Base(f.Path)
}

func (f *Frame)String() string {
	s := fmt.Sprintf("%s: %dx%d %s, %d bit, black %.0f, wb %.3f/%.3f/%.3f",
		f.Filename(), f.Width, f.Height, f.Bayer, f.BitDepth, f.BlackLevel,
		f.WhiteBalance[0], f.WhiteBalance[1], f.WhiteBalance[2])
	if f.Sequence > 0 {
		s += fmt.Sprintf(", seq %d", f.Sequence)
	}
	if f.ShiftOffset != nil {
		s += fmt.Sprintf(", shift %s", f.ShiftOffset)
	}
	if f.Model != "" {
		s += fmt.Sprintf(", %s", f.Model)
	}
	return s
}

// CloseAll closes every non-nil frame, returning the first error.
func CloseAll(frames []*Frame) error {
	var first error
	for _, f := range frames {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// whiteBalanceFromNeutral turns a camera neutral into multipliers, with
// green normalised to 1.
func whiteBalanceFromNeutral(n emath.Vec3) emath.Vec3 {
	if n[0] <= 0 || n[1] <= 0 || n[2] <= 0 {
		return emath.Vec3{1, 1, 1}
	}
	return emath.Vec3{n[1] / n[0], 1, n[1] / n[2]}
}
