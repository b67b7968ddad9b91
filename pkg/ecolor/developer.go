// Package ecolor turns merged sensor values into output RGB: black level,
// white balance, a 3x3 camera matrix and a gamma curve.
package ecolor

import(
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/pixelshift/pkg/emath"
	"github.com/abworrall/pixelshift/pkg/merge"
	"github.com/abworrall/pixelshift/pkg/rawframe"
)

const lutSize = 1 << 16

type Options struct {
	BlackLevel   float64
	WhiteLevel   float64
	WhiteBalance emath.Vec3 // zero means no white balance
	Matrix       emath.Mat3 // white balanced camera RGB -> output linear RGB; zero means identity
	Gamma        string     // "srgb", "linear", or a number like "2.2"
}

// OptionsFor fills in the options from a frame's metadata.
func OptionsFor(f *rawframe.Frame, gamma string, override emath.Mat3) (Options, string, error) {
	m, source, err := CameraToSRGB(f.Metadata, override)
	if err != nil {
		return Options{}, "", fmt.Errorf("options for %s: %v", f.Filename(), err)
	}
	return Options{
		BlackLevel:   f.BlackLevel,
		WhiteLevel:   f.MaxValue(),
		WhiteBalance: f.WhiteBalance,
		Matrix:       m,
		Gamma:        gamma,
	}, source, nil
}

// A Developer is immutable once built, and safe to share across workers.
type Developer struct {
	black    float64
	scale    [3]float64
	matrix   emath.Mat3
	identity bool
	lut      []uint16
}

func NewDeveloper(o Options) (*Developer, error) {
	if o.WhiteLevel <= o.BlackLevel {
		return nil, fmt.Errorf("new developer: white level %g not above black level %g", o.WhiteLevel, o.BlackLevel)
	}

	wb := o.WhiteBalance
	if wb.IsZero() {
		wb = emath.Vec3{1, 1, 1}
	}
	if wb[0] <= 0 || wb[1] <= 0 || wb[2] <= 0 {
		return nil, fmt.Errorf("new developer: bad white balance %v", wb)
	}

	curve, err := ParseGamma(o.Gamma)
	if err != nil {
		return nil, fmt.Errorf("new developer: %v", err)
	}

	d := &Developer{
		black:  o.BlackLevel,
		matrix: o.Matrix,
		lut:    make([]uint16, lutSize),
	}
	if d.matrix.IsZero() {
		d.matrix = emath.Identity()
	}
	d.identity = d.matrix.IsIdentity()

	for c := 0; c < 3; c++ {
		d.scale[c] = wb[c] / (o.WhiteLevel - o.BlackLevel)
	}
	for i := range d.lut {
		d.lut[i] = quantize(curve(float64(i) / (lutSize - 1)))
	}

	return d, nil
}

// Linear is the white balanced, color corrected value, clamped to [0,1],
// before gamma.
func (d *Developer)Linear(c hdrcolor.RGB) emath.Vec3 {
	v := emath.Vec3{
		(c.R - d.black) * d.scale[0],
		(c.G - d.black) * d.scale[1],
		(c.B - d.black) * d.scale[2],
	}
	v.FloorAt(0)
	v.CeilingAt(1)

	if !d.identity {
		v = d.matrix.Apply(v)
		v.FloorAt(0)
		v.CeilingAt(1)
	}
	return v
}

// Develop maps a merged value in sensor units to 16 bit output RGB.
func (d *Developer)Develop(c hdrcolor.RGB) [3]uint16 {
	v := d.Linear(c)
	return [3]uint16{d.lut[quantize(v[0])], d.lut[quantize(v[1])], d.lut[quantize(v[2])]}
}

// DevelopRow writes len(src) RGB triples into dst.
func (d *Developer)DevelopRow(dst []uint16, src []merge.Pixel) {
	for i := range src {
		rgb := d.Develop(src[i].RGB)
		copy(dst[3*i:3*i+3], rgb[:])
	}
}

func quantize(v float64) uint16 {
	return uint16(math.Round(v * (lutSize - 1)))
}

// A Curve maps linear [0,1] to encoded [0,1].
type Curve func(float64) float64

func ParseGamma(s string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "srgb":
		return func(v float64) float64 { return colorful.LinearRgb(v, 0, 0).R }, nil
	case "linear":
		return func(v float64) float64 { return v }, nil
	}

	g, err := strconv.ParseFloat(s, 64)
	if err != nil || g <= 0 {
		return nil, fmt.Errorf("gamma '%s': want srgb, linear or a positive number", s)
	}
	return func(v float64) float64 { return math.Pow(v, 1/g) }, nil
}
