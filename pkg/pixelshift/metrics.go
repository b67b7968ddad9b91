package pixelshift

import(
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/abworrall/pixelshift/pkg/merge"
	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// Metrics holds the Prometheus metrics for one run. Each Job has its own
// registry, so the output can be written as a node_exporter textfile.
type Metrics struct {
	Registry        *prometheus.Registry

	FramesLoaded    prometheus.Counter
	LoadDuration    prometheus.Histogram
	MergeDuration   prometheus.Histogram
	BandDuration    prometheus.Histogram
	BandsProcessed  prometheus.Counter
	Samples         *prometheus.CounterVec
	MotionFallbacks prometheus.Counter
	OutputPixels    prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesLoaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelshift_frames_loaded_total",
				Help: "Number of raw frames loaded",
			},
		),
		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pixelshift_load_duration_seconds",
				Help:    "Time to load and validate the shift set",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		MergeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pixelshift_merge_duration_seconds",
				Help:    "Time to merge and develop the whole image",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		BandDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pixelshift_band_duration_seconds",
				Help:    "Time for one worker to merge one band of rows",
				Buckets: []float64{.0001, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		BandsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelshift_bands_processed_total",
				Help: "Number of row bands merged",
			},
		),
		Samples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixelshift_channel_samples_total",
				Help: "Output channel values, by channel and by how they were filled",
			},
			[]string{"channel", "source"},
		),
		MotionFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelshift_motion_fallbacks_total",
				Help: "Channel values where the shots disagreed and the first shot was used",
			},
		),
		OutputPixels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pixelshift_output_pixels",
				Help: "Number of pixels in the output image",
			},
		),
	}
}

func (m *Metrics)RecordStats(st merge.Stats) {
	for c := rawframe.Red; c <= rawframe.Blue; c++ {
		m.Samples.WithLabelValues(c.String(), merge.Direct.String()).Add(float64(st.Direct[c]))
		m.Samples.WithLabelValues(c.String(), merge.Interpolated.String()).Add(float64(st.Interpolated[c]))
	}
	m.MotionFallbacks.Add(float64(st.MotionFallbacks))
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics)WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.Registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", filename, err)
	}
	return nil
}
