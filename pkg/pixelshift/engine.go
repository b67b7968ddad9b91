package pixelshift

import(
	"context"
	"fmt"
	"time"

	"github.com/codahale/hdrhistogram"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/pixelshift/pkg/ecolor"
	"github.com/abworrall/pixelshift/pkg/logging"
	"github.com/abworrall/pixelshift/pkg/merge"
)

// Bits in a debug tag plane.
const(
	TagInterpolated uint8 = 1 << iota
	TagMotion
)

// The Engine runs the merge and develop over row bands in parallel. Each
// band writes only its own rows of the output, and the frames are only ever
// read, so there is no locking.
type Engine struct {
	Workers        int
	BandsPerWorker int
	Log           *zap.Logger
	Metrics       *Metrics  // optional
}

type Result struct {
	Image       *OutputImage
	Tags        []uint8     // one per output pixel, row major; nil unless asked for
	Stats        merge.Stats
	Bands        int
	BandLatency *hdrhistogram.Histogram // microseconds
}

type band struct {
	y0, y1 int
}

// bands splits h rows into n contiguous, non-empty bands (fewer if h < n),
// whose sizes differ by at most one row.
func bands(h, n int) []band {
	if n > h {
		n = h
	}
	if n < 1 {
		n = 1
	}

	bs := make([]band, n)
	for i := range bs {
		bs[i] = band{i * h / n, (i + 1) * h / n}
	}
	return bs
}

// The band latency histogram tracks up to this; slower bands are recorded
// at the top.
const maxBandLatency = time.Hour

func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(maxBandLatency/time.Microsecond), 3)
}

func recordLatency(h *hdrhistogram.Histogram, d time.Duration, log *zap.Logger) {
	if d > maxBandLatency {
		d = maxBandLatency
	}
	if err := h.RecordValue(d.Microseconds()); err != nil {
		logging.OrNop(log).Debug("band latency not recorded", zap.Duration("latency", d), zap.Error(err))
	}
}

// Render merges and develops the whole image. The first band to fail
// cancels the rest, and its error is returned with no image.
func (e Engine)Render(ctx context.Context, m *merge.Merger, dev *ecolor.Developer, withTags bool) (*Result, error) {
	log := logging.OrNop(e.Log)
	if e.Workers < 1 || e.BandsPerWorker < 1 {
		return nil, fmt.Errorf("render: bad worker setup %d x %d", e.Workers, e.BandsPerWorker)
	}

	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := NewOutputImage(w, h)
	var tags []uint8
	if withTags {
		tags = make([]uint8, w*h)
	}

	bs := bands(h, e.Workers*e.BandsPerWorker)
	stats := make([]merge.Stats, len(bs))
	durations := make([]time.Duration, len(bs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)

	for i, b := range bs {
		if gctx.Err() != nil {
			break // something failed already; don't start more bands
		}
		i, b := i, b

		g.Go(func() error {
			start := time.Now()
			scratch := make([]merge.Pixel, w)
			rows := out.Rows(b.y0, b.y1)

			for y := b.y0; y < b.y1; y++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := m.MergeRow(y, scratch, &stats[i]); err != nil {
					return fmt.Errorf("band %d-%d: %w", b.y0, b.y1, err)
				}

				row := rows[(y-b.y0)*out.Stride : (y-b.y0+1)*out.Stride]
				dev.DevelopRow(row, scratch)

				if tags != nil {
					tagRow(tags[y*w:(y+1)*w], scratch)
				}
			}

			durations[i] = time.Since(start)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Cancelled before any band started
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Image:       out,
		Tags:        tags,
		Bands:       len(bs),
		BandLatency: newLatencyHistogram(),
	}
	for i := range bs {
		res.Stats.Add(stats[i])
		recordLatency(res.BandLatency, durations[i], log)
		if e.Metrics != nil {
			e.Metrics.BandDuration.Observe(durations[i].Seconds())
			e.Metrics.BandsProcessed.Inc()
		}
	}

	log.Debug("bands rendered",
		zap.Int("bands", len(bs)),
		zap.Int("workers", e.Workers),
		zap.Duration("p50", time.Duration(res.BandLatency.ValueAtQuantile(50))*time.Microsecond),
		zap.Duration("p99", time.Duration(res.BandLatency.ValueAtQuantile(99))*time.Microsecond),
		zap.Duration("max", time.Duration(res.BandLatency.Max())*time.Microsecond))

	return res, nil
}

func tagRow(dst []uint8, src []merge.Pixel) {
	for x := range src {
		t := uint8(0)
		for _, st := range src[x].Tag {
			if st == merge.Interpolated {
				t |= TagInterpolated
			}
		}
		if src[x].Motion {
			t |= TagMotion
		}
		dst[x] = t
	}
}
