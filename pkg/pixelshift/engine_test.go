package pixelshift

import(
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pixelshift/pkg/ecolor"
	"github.com/abworrall/pixelshift/pkg/emath"
	"github.com/abworrall/pixelshift/pkg/merge"
	"github.com/abworrall/pixelshift/pkg/rawframe"
	"github.com/abworrall/pixelshift/pkg/shiftset"
)

func TestBands(t *testing.T) {
	tests := []struct {
		h, n int
		want []band
	}{
		{8, 4, []band{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{7, 3, []band{{0, 2}, {2, 4}, {4, 7}}},
		{9, 6, []band{{0, 1}, {1, 3}, {3, 4}, {4, 6}, {6, 7}, {7, 9}}},
		{3, 10, []band{{0, 1}, {1, 2}, {2, 3}}},
		{5, 1, []band{{0, 5}}},
		{5, 0, []band{{0, 5}}},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, bands(test.h, test.n), "bands(%d,%d)", test.h, test.n)
	}
}

func TestBandsUseEveryWorker(t *testing.T) {
	for h := 1; h <= 64; h++ {
		for n := 1; n <= 20; n++ {
			bs := bands(h, n)
			want := n
			if h < n {
				want = h
			}
			require.Len(t, bs, want, "bands(%d,%d)", h, n)

			y := 0
			for _, b := range bs {
				assert.Equal(t, y, b.y0)
				size := b.y1 - b.y0
				assert.True(t, size == h/want || size == h/want+1, "bands(%d,%d) has a %d row band", h, n, size)
				y = b.y1
			}
			assert.Equal(t, h, y)
		}
	}
}

func TestRecordLatency(t *testing.T) {
	h := newLatencyHistogram()
	recordLatency(h, 250*time.Millisecond, nil)
	recordLatency(h, 3*time.Hour, nil)
	recordLatency(h, 0, nil)

	assert.Equal(t, int64(3), h.TotalCount())
	assert.InEpsilon(t, float64(maxBandLatency/time.Microsecond), float64(h.Max()), 0.01)
}

func engineSet(t *testing.T, n, w, h int) *shiftset.Set {
	t.Helper()
	frames := []*rawframe.Frame{}
	for i := 0; i < n; i++ {
		s := make([]uint16, w*h)
		for j := range s {
			s[j] = uint16(1000 + 10*i + j)
		}
		p, err := rawframe.NewPlane(s, w, h)
		require.NoError(t, err)
		f, err := rawframe.NewFrame(fmt.Sprintf("f%02d", i), rawframe.Metadata{}, p)
		require.NoError(t, err)
		f.Sequence = i + 1
		frames = append(frames, f)
	}
	set, err := shiftset.Validate(frames)
	require.NoError(t, err)
	return set
}

func linearDeveloper(t *testing.T) *ecolor.Developer {
	t.Helper()
	dev, err := ecolor.NewDeveloper(ecolor.Options{
		WhiteLevel:   65535,
		WhiteBalance: emath.Vec3{1, 1, 1},
		Matrix:       emath.Identity(),
		Gamma:        "linear",
	})
	require.NoError(t, err)
	return dev
}

func TestRenderMatchesSerialMerge(t *testing.T) {
	set := engineSet(t, 4, 6, 9)
	m, err := merge.New(set, merge.DefaultOptions())
	require.NoError(t, err)
	dev := linearDeveloper(t)

	res, err := Engine{Workers: 3, BandsPerWorker: 2}.Render(context.Background(), m, dev, true)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Bands)

	want := merge.Stats{}
	row := make([]merge.Pixel, 6)
	for y := 0; y < 9; y++ {
		require.NoError(t, m.MergeRow(y, row, &want))
		for x := range row {
			c := dev.Develop(row[x].RGB)
			got := res.Image.RGBA64At(x, y)
			assert.Equal(t, c, [3]uint16{got.R, got.G, got.B}, "(%d,%d)", x, y)

			tag := res.Tags[y*6+x]
			assert.Equal(t, row[x].Tag != [3]merge.SampleTag{merge.Direct, merge.Direct, merge.Direct}, tag&TagInterpolated != 0, "(%d,%d)", x, y)
		}
	}
	assert.Equal(t, want, res.Stats)
	assert.Equal(t, int64(6), res.BandLatency.TotalCount())
}

func TestRenderWithoutTags(t *testing.T) {
	m, err := merge.New(engineSet(t, 4, 4, 4), merge.DefaultOptions())
	require.NoError(t, err)

	res, err := Engine{Workers: 1, BandsPerWorker: 1}.Render(context.Background(), m, linearDeveloper(t), false)
	require.NoError(t, err)
	assert.Nil(t, res.Tags)
	assert.Equal(t, 1, res.Bands)
}

func TestRenderPropagatesGap(t *testing.T) {
	m, err := merge.New(engineSet(t, 16, 4, 4), merge.Options{MotionTolerance: 0.05, MaxInterpolationRadius: 1})
	require.NoError(t, err)

	metrics := NewMetrics()
	res, err := Engine{Workers: 2, BandsPerWorker: 4, Metrics: metrics}.Render(context.Background(), m, linearDeveloper(t), false)
	assert.Nil(t, res)
	var gapErr *merge.GapError
	require.True(t, errors.As(err, &gapErr), "%v", err)
}

func TestRenderCancelled(t *testing.T) {
	m, err := merge.New(engineSet(t, 4, 4, 4), merge.DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Engine{Workers: 2, BandsPerWorker: 2}.Render(ctx, m, linearDeveloper(t), false)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestRenderBadSetup(t *testing.T) {
	m, err := merge.New(engineSet(t, 4, 4, 4), merge.DefaultOptions())
	require.NoError(t, err)

	_, err = Engine{Workers: 0, BandsPerWorker: 2}.Render(context.Background(), m, linearDeveloper(t), false)
	assert.Error(t, err)
}
