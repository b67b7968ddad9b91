package main

import(
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/abworrall/pixelshift/pkg/logging"
	"github.com/abworrall/pixelshift/pkg/pixelshift"
)

// multiFlag collects a flag that may be given more than once.
type multiFlag []string

func (m *multiFlag)String() string     { return strings.Join(*m, ",") }
func (m *multiFlag)Set(s string) error { *m = append(*m, s); return nil }

var(
	fOutputFilename string
	fInputs multiFlag
	fConfigFilename string
	fVerbosity int
	fWorkers int
	fTolerance float64
	fRadius int
	fGamma string
	fCompress bool
	fMetricsFilename string
	fDebugMapFilename string
	fPreviewFilename string
	fTonemapper string
)

func init() {
	flag.StringVar(&fOutputFilename, "o", "", "name of output image file (.tif, .png or .hdr)")
	flag.Var(&fInputs, "i", "input raw file or glob (may be repeated; trailing args are inputs too)")
	flag.StringVar(&fConfigFilename, "config", "", "YAML config file")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.IntVar(&fWorkers, "workers", 0, "number of merge workers (default: one per CPU)")
	flag.Float64Var(&fTolerance, "tolerance", 0, "motion tolerance, as a fraction of the sensor's range")
	flag.IntVar(&fRadius, "radius", 0, "max distance to search for a missing channel, in output pixels")
	flag.StringVar(&fGamma, "gamma", "", "output transfer curve: srgb, linear, or a number like 2.2")
	flag.BoolVar(&fCompress, "compress", false, "deflate compress TIFF output")
	flag.StringVar(&fMetricsFilename, "metrics", "", "write Prometheus metrics to this textfile")
	flag.StringVar(&fDebugMapFilename, "debugmap", "", "write a PNG showing interpolated and motion pixels")
	flag.StringVar(&fPreviewFilename, "preview", "", "write a tonemapped 8 bit PNG preview")
	flag.StringVar(&fTonemapper, "tonemapper", "", "how to tonemap the preview: "+pixelshift.ListTonemappers())
}

func main() {
	args, _ := parseArgs(flag.CommandLine, os.Args[1:]) // CommandLine exits on error
	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "pixelshift: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs lets flags follow plain args, so "-i a.dng b.dng -o out.tif"
// works: flag.Parse stops at the first non-flag, so keep going from there.
// Everything after "--" is an arg.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	plain := []string{}
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return plain, nil
		}
		if len(rest) < len(args) && args[len(args)-len(rest)-1] == "--" {
			return append(plain, rest...), nil
		}
		plain = append(plain, rest[0])
		args = rest[1:]
	}
}

func run(args []string) error {
	configFiles, patterns := splitArgs(append(fInputs, args...))
	if fConfigFilename != "" {
		configFiles = append(configFiles, fConfigFilename)
	}
	if len(configFiles) > 1 {
		return fmt.Errorf("more than one config file: %s", strings.Join(configFiles, ", "))
	}
	if fOutputFilename == "" {
		return fmt.Errorf("no output file; use -o")
	}

	cfg := pixelshift.NewConfig()
	if len(configFiles) == 1 {
		var err error
		if cfg, err = pixelshift.LoadConfig(configFiles[0]); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Finalize(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogConfig())
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Verbosity > 0 {
		log.Debug("final configuration:-\n\n" + cfg.AsYaml())
	}

	inputs, err := expandInputs(patterns)
	if err != nil {
		return err
	}
	log.Info("pixelshift starting", zap.Int("inputs", len(inputs)), zap.String("output", fOutputFilename))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = pixelshift.NewJob(cfg, inputs, fOutputFilename, log).Run(ctx)
	return err
}

// applyFlags overrides the config with only the flags that were given.
func applyFlags(cfg *pixelshift.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":          cfg.Verbosity = fVerbosity
		case "workers":    cfg.Workers = fWorkers
		case "tolerance":  cfg.MotionTolerance = fTolerance
		case "radius":     cfg.MaxInterpolationRadius = fRadius
		case "gamma":      cfg.Gamma = fGamma
		case "compress":   cfg.Compress = fCompress
		case "metrics":    cfg.MetricsFile = fMetricsFilename
		case "debugmap":   cfg.DebugMapFile = fDebugMapFilename
		case "preview":    cfg.PreviewFile = fPreviewFilename
		case "tonemapper": cfg.Tonemapper = fTonemapper
		}
	})
}

// splitArgs pulls any .yaml files out of the args.
func splitArgs(args []string) (configs, patterns []string) {
	for _, arg := range args {
		switch strings.ToLower(filepath.Ext(arg)) {
		case ".yaml", ".yml":
			configs = append(configs, arg)
		default:
			patterns = append(patterns, arg)
		}
	}
	return configs, patterns
}

// expandInputs expands each glob, sorting its matches but keeping the
// patterns in the order given. A plain path that matches nothing is kept,
// so the loader can say what's wrong with it.
func expandInputs(patterns []string) ([]string, error) {
	inputs := []string{}
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if hasMeta(pattern) {
				return nil, fmt.Errorf("expand %s: no files match", pattern)
			}
			matches = []string{pattern}
		}
		sort.Strings(matches)
		inputs = append(inputs, matches...)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files; use -i")
	}
	return inputs, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{`)
}
