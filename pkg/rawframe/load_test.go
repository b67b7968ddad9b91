package rawframe

import(
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pixelshift/pkg/emath"
	"github.com/abworrall/pixelshift/pkg/rawframe/rawtest"
)

func ramp(w, h int) []uint16 {
	s := make([]uint16, w*h)
	for i := range s {
		s[i] = uint16(i * 100)
	}
	return s
}

func TestLoadTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot1.dng")
	require.NoError(t, rawtest.WriteTIFF(path, rawtest.Capture{
		Width:    6,
		Height:   4,
		Bayer:    "GRBG",
		Black:    512,
		White:    16383,
		Neutral:  []float64{0.5, 1, 0.25},
		Sequence: 3,
		Model:    "ILCE-7RM4",
		Samples:  ramp(6, 4),
	}))

	f, err := Load(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 6, f.Width)
	assert.Equal(t, 4, f.Height)
	assert.Equal(t, GRBG, f.Bayer)
	assert.Equal(t, 16, f.BitDepth)
	assert.Equal(t, 512.0, f.BlackLevel)
	assert.Equal(t, 16383.0, f.MaxValue())
	assert.Equal(t, 3, f.Sequence)
	assert.Nil(t, f.ShiftOffset)
	assert.Equal(t, "ILCE-7RM4", f.Model)
	assert.InDeltaSlice(t, []float64{2, 1, 4}, f.WhiteBalance[:], 1e-9)

	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			assert.Equal(t, uint16((y*6+x)*100), f.Samples.At(x, y))
		}
	}
}

func TestLoadFITS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "light_0007.fits")
	require.NoError(t, rawtest.WriteFITS(path, rawtest.Capture{
		Width:    4,
		Height:   2,
		Bayer:    "BGGR",
		BitDepth: 14,
		Black:    256,
		Sequence: 7,
		Shift:    &image.Point{X: 1, Y: 0},
		Model:    "ZWO ASI2600MC",
		Samples:  []uint16{0, 1, 2, 3, 40000, 65535, 32768, 32767},
	}))

	f, err := Load(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, BGGR, f.Bayer)
	assert.Equal(t, 14, f.BitDepth)
	assert.Equal(t, 256.0, f.BlackLevel)
	assert.Equal(t, 7, f.Sequence)
	require.NotNil(t, f.ShiftOffset)
	assert.Equal(t, Offset{X: 1, Y: 0}, *f.ShiftOffset)
	assert.Equal(t, "ZWO ASI2600MC", f.Model)
	assert.Equal(t, emath.Vec3{1, 1, 1}, f.WhiteBalance)

	assert.Equal(t, uint16(3), f.Samples.At(3, 0))
	assert.Equal(t, uint16(40000), f.Samples.At(0, 1))
	assert.Equal(t, uint16(65535), f.Samples.At(1, 1))
	assert.Equal(t, uint16(32767), f.Samples.At(3, 1))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		setup func(path string) error
	}{
		{"missing.dng", func(path string) error { return nil }},
		{"empty.dng", func(path string) error { return os.WriteFile(path, nil, 0644) }},
		{"notes.txt", func(path string) error { return os.WriteFile(path, []byte("not a raw file at all"), 0644) }},
		{"garbage.tif", func(path string) error { return os.WriteFile(path, []byte("II*\x00\xff\xff\xff\x7f"), 0644) }},
		{"truncated.dng", func(path string) error {
			if err := rawtest.WriteTIFF(path, rawtest.Constant(8, 8, 100)); err != nil {
				return err
			}
			return os.Truncate(path, 200)
		}},
		{"truncated.fits", func(path string) error {
			if err := rawtest.WriteFITS(path, rawtest.Constant(64, 64, 100)); err != nil {
				return err
			}
			return os.Truncate(path, 2880+100)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, tt.setup(path))

			f, err := Load(path)
			assert.Nil(t, f)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, path, de.Path)
		})
	}
}

func TestLoaderOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dng")
	c := rawtest.Constant(4, 4, 10)
	c.Sequence = 2
	require.NoError(t, rawtest.WriteTIFF(path, c))

	l := Loader{
		Shifts:    map[string]Offset{"a.dng": {X: 1, Y: 1}},
		Sequences: map[string]int{"a.dng": 4},
	}
	f, err := l.Load(path)
	require.NoError(t, err)
	defer f.Close()

	require.NotNil(t, f.ShiftOffset)
	assert.Equal(t, Offset{X: 1, Y: 1}, *f.ShiftOffset)
	assert.Equal(t, 4, f.Sequence)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	paths := []string{}
	for i := 1; i <= 4; i++ {
		c := rawtest.Constant(4, 4, uint16(i))
		c.Sequence = i
		path := filepath.Join(dir, fmt.Sprintf("shot%d.dng", i))
		require.NoError(t, rawtest.WriteTIFF(path, c))
		paths = append(paths, path)
	}

	frames, err := Loader{}.LoadAll(context.Background(), paths)
	require.NoError(t, err)
	defer CloseAll(frames)

	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, paths[i], f.Path)
		assert.Equal(t, uint16(i+1), f.Samples.At(2, 2))
	}

	_, err = Loader{}.LoadAll(context.Background(), append(paths, filepath.Join(dir, "nope.dng")))
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestFrameCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dng")
	require.NoError(t, rawtest.WriteTIFF(path, rawtest.Constant(2, 2, 1)))

	f, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestNewFrameDefaults(t *testing.T) {
	p, err := NewPlane(make([]uint16, 4), 2, 2)
	require.NoError(t, err)

	f, err := NewFrame("mem", Metadata{}, p)
	require.NoError(t, err)
	assert.Equal(t, RGGB, f.Bayer)
	assert.Equal(t, 16, f.BitDepth)
	assert.Equal(t, 65535.0, f.MaxValue())
	assert.Equal(t, emath.Vec3{1, 1, 1}, f.WhiteBalance)

	_, err = NewFrame("mem", Metadata{Width: 3, Height: 2}, p)
	assert.Error(t, err)
}

func TestFitsValue(t *testing.T) {
	assert.Equal(t, "RGGB", fitsValue("'RGGB    '           / bayer"))
	assert.Equal(t, "it's", fitsValue("'it''s'"))
	assert.Equal(t, "32768", fitsValue("               32768 / offset"))
	assert.Equal(t, "a/b", fitsValue("'a/b' / slash"))
}
