// Package pixelshift runs a whole pixel shift merge: load the raw frames,
// check they form a shift set, merge and develop in parallel, and write
// the result.
package pixelshift

import(
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/abworrall/pixelshift/pkg/ecolor"
	"github.com/abworrall/pixelshift/pkg/logging"
	"github.com/abworrall/pixelshift/pkg/merge"
	"github.com/abworrall/pixelshift/pkg/rawframe"
	"github.com/abworrall/pixelshift/pkg/shiftset"
)

type Job struct {
	Config
	Inputs  []string
	Output  string
	Log    *zap.Logger
	Metrics *Metrics
}

func NewJob(cfg Config, inputs []string, output string, log *zap.Logger) *Job {
	return &Job{
		Config:  cfg,
		Inputs:  inputs,
		Output:  output,
		Log:     logging.OrNop(log),
		Metrics: NewMetrics(),
	}
}

// Run does the whole thing. Any error stops it, and leaves none of the
// output files behind.
func (j *Job)Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := logging.OrNop(j.Log)
	if j.Metrics == nil {
		j.Metrics = NewMetrics()
	}

	if err := j.Config.Finalize(); err != nil {
		return nil, err
	}
	if !SupportedOutput(j.Output) {
		return nil, &EncodeError{Path: j.Output, Err: fmt.Errorf("unsupported output format")}
	}

	set, err := j.loadSet(ctx)
	if err != nil {
		return nil, err
	}
	defer set.Close()

	merger, err := merge.New(set, j.MergeOptions())
	if err != nil {
		return nil, err
	}

	opts, matrixSource, err := ecolor.OptionsFor(set.Reference(), j.Gamma, j.ManualOverrideCameraMatrix)
	if err != nil {
		return nil, err
	}
	dev, err := ecolor.NewDeveloper(opts)
	if err != nil {
		return nil, err
	}
	log.Debug("developer ready",
		zap.String("matrix", matrixSource),
		zap.Float64("black", opts.BlackLevel),
		zap.Float64("white", opts.WhiteLevel),
		zap.Stringer("wb", opts.WhiteBalance),
		zap.String("gamma", j.Gamma))

	mergeStart := time.Now()
	eng := Engine{
		Workers:        j.Workers,
		BandsPerWorker: j.BandsPerWorker,
		Log:            log,
		Metrics:        j.Metrics,
	}
	res, err := eng.Render(ctx, merger, dev, j.DebugMapFile != "")
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	j.Metrics.MergeDuration.Observe(time.Since(mergeStart).Seconds())
	j.Metrics.RecordStats(res.Stats)
	j.Metrics.OutputPixels.Set(float64(res.Image.Size()))

	log.Info("merged",
		zap.Stringer("size", res.Image.Bounds().Size()),
		zap.Duration("took", time.Since(mergeStart)),
		zap.Stringer("stats", res.Stats))

	if err := j.writeOutputs(res); err != nil {
		return nil, err
	}

	log.Info("done", zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// writeOutputs writes the image, then the side files. If any of them
// fails, the files already written are removed again.
func (j *Job)writeOutputs(res *Result) error {
	log := logging.OrNop(j.Log)

	written := []string{}
	fail := func(err error) error {
		for _, path := range written {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn("remove after failed run", zap.String("path", path), zap.Error(rmErr))
			}
		}
		return err
	}

	if err := WriteImage(res.Image, j.Output, j.Compress); err != nil {
		return fail(err)
	}
	written = append(written, j.Output)

	if j.DebugMapFile != "" {
		if err := WriteDebugMap(res, j.DebugMapFile); err != nil {
			return fail(err)
		}
		written = append(written, j.DebugMapFile)
	}
	if j.PreviewFile != "" {
		if err := WritePreview(res.Image, j.Tonemapper, j.PreviewFile); err != nil {
			return fail(err)
		}
		written = append(written, j.PreviewFile)
	}
	if j.MetricsFile != "" {
		if err := j.Metrics.WriteTextfile(j.MetricsFile); err != nil {
			return fail(err)
		}
	}

	log.Info("output written", zap.String("path", j.Output))
	for _, path := range written[1:] {
		log.Info("side output written", zap.String("path", path))
	}
	return nil
}

// loadSet loads and validates the frames. On success the caller owns the
// set; on failure everything loaded has been released.
func (j *Job)loadSet(ctx context.Context) (*shiftset.Set, error) {
	loadStart := time.Now()
	log := logging.OrNop(j.Log)

	loader := j.Loader()
	loader.Log = log
	frames, err := loader.LoadAll(ctx, j.Inputs)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	j.Metrics.FramesLoaded.Add(float64(len(frames)))

	set, err := shiftset.Validate(frames)
	if err != nil {
		rawframe.CloseAll(frames)
		return nil, fmt.Errorf("validate: %w", err)
	}
	j.Metrics.LoadDuration.Observe(time.Since(loadStart).Seconds())

	for _, w := range set.Warnings {
		log.Warn(w)
	}
	log.Info("shift set ready",
		zap.Stringer("topology", set.Topology),
		zap.Int("width", set.Width()),
		zap.Int("height", set.Height()),
		zap.Stringer("bayer", set.Bayer()),
		zap.Duration("took", time.Since(loadStart)))
	if j.Verbosity > 0 {
		log.Debug("frames", zap.String("set", set.String()))
	}

	return set, nil
}
