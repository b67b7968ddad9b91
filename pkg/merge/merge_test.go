package merge

import(
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pixelshift/pkg/rawframe"
	"github.com/abworrall/pixelshift/pkg/shiftset"
)

func makeFrame(t *testing.T, name string, w, h int, sample func(x, y int) uint16) *rawframe.Frame {
	t.Helper()
	s := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s[y*w+x] = sample(x, y)
		}
	}
	p, err := rawframe.NewPlane(s, w, h)
	require.NoError(t, err)
	f, err := rawframe.NewFrame(name, rawframe.Metadata{}, p)
	require.NoError(t, err)
	return f
}

// bayerConstants fills each photosite with its color's value.
func bayerConstants(r, g, b uint16) func(x, y int) uint16 {
	return func(x, y int) uint16 {
		return [3]uint16{r, g, b}[rawframe.RGGB.ColorAt(x, y)]
	}
}

func constantSet(t *testing.T, n, w, h int) *shiftset.Set {
	frames := []*rawframe.Frame{}
	for i := 0; i < n; i++ {
		f := makeFrame(t, fmt.Sprintf("c%02d", i+1), w, h, bayerConstants(1200, 2400, 3600))
		f.Sequence = i + 1
		frames = append(frames, f)
	}
	s, err := shiftset.Validate(frames)
	require.NoError(t, err)
	return s
}

func mergeAll(t *testing.T, m *Merger) ([][]Pixel, Stats) {
	t.Helper()
	st := Stats{}
	rows := [][]Pixel{}
	for y := 0; y < m.Bounds().Dy(); y++ {
		row := make([]Pixel, m.Bounds().Dx())
		require.NoError(t, m.MergeRow(y, row, &st))
		rows = append(rows, row)
	}
	return rows, st
}

func TestMergeFourConstants(t *testing.T) {
	m, err := New(constantSet(t, 4, 6, 4), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 6, m.Bounds().Dx())
	assert.Equal(t, 4, m.Bounds().Dy())

	rows, st := mergeAll(t, m)
	for y, row := range rows {
		for x, p := range row {
			assert.Equal(t, 1200.0, p.R, "(%d,%d)", x, y)
			assert.Equal(t, 2400.0, p.G, "(%d,%d)", x, y)
			assert.Equal(t, 3600.0, p.B, "(%d,%d)", x, y)
			assert.False(t, p.Motion)
			if x > 0 && y > 0 {
				assert.Equal(t, [3]SampleTag{Direct, Direct, Direct}, p.Tag, "(%d,%d)", x, y)
			}
		}
	}

	// The top row and left column lose their blue, (0,0) also loses green
	assert.Equal(t, [3]int64{0, 1, 9}, st.Interpolated)
	assert.Equal(t, [3]int64{24, 23, 15}, st.Direct)
	assert.Equal(t, int64(0), st.MotionFallbacks)
}

func TestMergeSixteenDoublesSize(t *testing.T) {
	m, err := New(constantSet(t, 16, 6, 4), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 12, m.Bounds().Dx())
	assert.Equal(t, 8, m.Bounds().Dy())

	rows, st := mergeAll(t, m)
	npix := 0
	for _, row := range rows {
		for _, p := range row {
			assert.Equal(t, 1200.0, p.R)
			assert.Equal(t, 2400.0, p.G)
			assert.Equal(t, 3600.0, p.B)
			npix++
		}
	}
	assert.Equal(t, 6*2*4*2, npix)
	assert.Equal(t, int64(npix), st.Direct[0]+st.Interpolated[0])
}

// Four frames at offsets (0,0),(1,0),(0,1),(1,1) over a 4x4 RGGB sensor;
// frame k reads 1000 + 100k + 12*(photosite index).
func TestMergeFourScenario(t *testing.T) {
	offsets := []rawframe.Offset{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	frames := []*rawframe.Frame{}
	for k, off := range offsets {
		k, off := k, off
		f := makeFrame(t, fmt.Sprintf("k%d", k), 4, 4, func(x, y int) uint16 {
			return uint16(1000 + 100*k + 12*(y*4+x))
		})
		f.ShiftOffset = &off
		frames = append(frames, f)
	}
	set, err := shiftset.Validate(frames)
	require.NoError(t, err)
	m, err := New(set, DefaultOptions())
	require.NoError(t, err)

	D, I := Direct, Interpolated
	want := [4][4]Pixel{
		{px(1000, 1030, 1060, D, I, I), px(1100, 1012, 1060, D, D, I), px(1024, 1112, 1160, D, D, I), px(1124, 1036, 1084, D, D, I)},
		{px(1200, 1048, 1060, D, D, I), px(1300, 1180, 1060, D, D, D), px(1224, 1192, 1160, D, D, D), px(1324, 1204, 1084, D, D, D)},
		{px(1096, 1248, 1260, D, D, I), px(1196, 1228, 1260, D, D, D), px(1120, 1240, 1360, D, D, D), px(1220, 1252, 1284, D, D, D)},
		{px(1296, 1144, 1156, D, D, I), px(1396, 1276, 1156, D, D, D), px(1320, 1288, 1256, D, D, D), px(1420, 1300, 1180, D, D, D)},
	}

	rows, _ := mergeAll(t, m)
	for y := range want {
		for x := range want[y] {
			assert.Equal(t, want[y][x], rows[y][x], "(%d,%d)", x, y)

			p, err := m.At(x, y)
			require.NoError(t, err)
			assert.Equal(t, rows[y][x], p)
		}
	}
}

func px(r, g, b float64, tr, tg, tb SampleTag) Pixel {
	p := Pixel{Tag: [3]SampleTag{tr, tg, tb}}
	p.R, p.G, p.B = r, g, b
	return p
}

// At output (2,2) of a four-shot set, green comes from the frames at (1,0)
// (shot 1) and (0,1) (shot 3).
func motionSet(t *testing.T, bumped rawframe.Offset) *shiftset.Set {
	frames := []*rawframe.Frame{}
	for i, off := range shiftset.Four.Sequence() {
		off := off
		sample := bayerConstants(1200, 2400, 3600)
		if off == bumped {
			sample = func(x, y int) uint16 {
				if x == 2-off.X && y == 2-off.Y {
					return 22400
				}
				return bayerConstants(1200, 2400, 3600)(x, y)
			}
		}
		f := makeFrame(t, fmt.Sprintf("m%d", i), 6, 6, sample)
		f.Sequence = i + 1
		frames = append(frames, f)
	}
	set, err := shiftset.Validate(frames)
	require.NoError(t, err)
	return set
}

func TestMergeMotionUsesFirstShot(t *testing.T) {
	m, err := New(motionSet(t, rawframe.Offset{X: 0, Y: 1}), DefaultOptions())
	require.NoError(t, err)

	st := Stats{}
	row := make([]Pixel, 6)
	require.NoError(t, m.MergeRow(2, row, &st))
	assert.Equal(t, 2400.0, row[2].G)
	assert.True(t, row[2].Motion)
	assert.Equal(t, Direct, row[2].Tag[rawframe.Green])
	assert.Equal(t, int64(1), st.MotionFallbacks)

	// When the first shot is the odd one out, it still wins
	m, err = New(motionSet(t, rawframe.Offset{X: 1, Y: 0}), DefaultOptions())
	require.NoError(t, err)
	p, err := m.At(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 22400.0, p.G)

	// A looser tolerance averages instead
	m, err = New(motionSet(t, rawframe.Offset{X: 0, Y: 1}), Options{MotionTolerance: 0.5, MaxInterpolationRadius: 4})
	require.NoError(t, err)
	p, err = m.At(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 12400.0, p.G)
	assert.False(t, p.Motion)
}

func TestMergeGap(t *testing.T) {
	m, err := New(constantSet(t, 16, 4, 4), Options{MotionTolerance: 0.05, MaxInterpolationRadius: 1})
	require.NoError(t, err)

	err = m.MergeRow(0, make([]Pixel, 8), nil)
	var ge *GapError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, GapError{X: 0, Y: 0, Channel: rawframe.Green, Radius: 1}, *ge)

	// Radius 2 reaches it
	m, err = New(constantSet(t, 16, 4, 4), Options{MotionTolerance: 0.05, MaxInterpolationRadius: 2})
	require.NoError(t, err)
	p, err := m.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, [3]SampleTag{Direct, Interpolated, Interpolated}, p.Tag)
}

func TestMergeBadArgs(t *testing.T) {
	set := constantSet(t, 4, 4, 4)

	_, err := New(set, Options{MotionTolerance: 0, MaxInterpolationRadius: 4})
	assert.Error(t, err)
	_, err = New(set, Options{MotionTolerance: 0.05, MaxInterpolationRadius: 0})
	assert.Error(t, err)

	m, err := New(set, DefaultOptions())
	require.NoError(t, err)
	assert.Error(t, m.MergeRow(0, make([]Pixel, 3), nil))
	assert.Error(t, m.MergeRow(4, make([]Pixel, 4), nil))
	_, err = m.At(-1, 0)
	assert.Error(t, err)
}

func TestStatsAdd(t *testing.T) {
	a := Stats{Direct: [3]int64{1, 2, 3}, Interpolated: [3]int64{0, 1, 0}, MotionFallbacks: 2}
	a.Add(Stats{Direct: [3]int64{1, 1, 1}, Interpolated: [3]int64{4, 0, 0}, MotionFallbacks: 1})
	assert.Equal(t, Stats{Direct: [3]int64{2, 3, 4}, Interpolated: [3]int64{4, 1, 0}, MotionFallbacks: 3}, a)
	assert.Equal(t, int64(5), a.TotalInterpolated())
}
