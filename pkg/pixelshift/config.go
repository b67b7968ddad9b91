package pixelshift

import(
	"fmt"
	"os"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/pixelshift/pkg/ecolor"
	"github.com/abworrall/pixelshift/pkg/emath"
	"github.com/abworrall/pixelshift/pkg/logging"
	"github.com/abworrall/pixelshift/pkg/merge"
	"github.com/abworrall/pixelshift/pkg/rawframe"
)

// Config is built up in layers: NewConfig's defaults, then a YAML file,
// then PIXELSHIFT_* environment variables, then command line flags.
type Config struct {
	Verbosity                  int

	Workers                    int
	BandsPerWorker             int

	MotionTolerance            float64 // Fraction of the white-black range
	MaxInterpolationRadius     int
	Gamma                      string  // "srgb", "linear", or a number
	ManualOverrideCameraMatrix emath.Mat3 // White balanced camera RGB -> linear sRGB; all zeros to use the camera's

	Compress                   bool    // Deflate TIFF output
	MetricsFile                string  // Prometheus textfile, written at the end
	DebugMapFile               string  // PNG showing where interpolation and motion fallbacks happened
	PreviewFile                string  // Tonemapped 8 bit preview
	Tonemapper                 string

	LogLevel                   string
	LogDevelopment             bool

	// For containers that don't record them: filename -> offset, in 1/Mag
	// photosites; filename -> 1-based sequence number
	Shifts                     map[string][2]int
	Sequences                  map[string]int
}

func NewConfig() Config {
	return Config{
		Workers:                runtime.NumCPU(),
		BandsPerWorker:         4,
		MotionTolerance:        merge.DefaultOptions().MotionTolerance,
		MaxInterpolationRadius: merge.DefaultOptions().MaxInterpolationRadius,
		Gamma:                  "srgb",
		Tonemapper:             "reinhard05",
		LogLevel:               "info",
		LogDevelopment:         true,
		Shifts:                 map[string][2]int{},
		Sequences:              map[string]int{},
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", filename, err)
	}
	c, err := newConfigFromYaml(contents)
	if err != nil {
		return Config{}, fmt.Errorf("config parse %s: %w", filename, err)
	}
	return c, nil
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// envOverrides only holds what's set in the environment; nil means unset,
// so the YAML layer underneath shows through.
type envOverrides struct {
	Workers                *int     `envconfig:"WORKERS"`
	BandsPerWorker         *int     `envconfig:"BANDS_PER_WORKER"`
	MotionTolerance        *float64 `envconfig:"MOTION_TOLERANCE"`
	MaxInterpolationRadius *int     `envconfig:"MAX_INTERPOLATION_RADIUS"`
	Gamma                  *string  `envconfig:"GAMMA"`
	LogLevel               *string  `envconfig:"LOG_LEVEL"`
	LogDevelopment         *bool    `envconfig:"LOG_DEV"`
}

// ApplyEnv overlays PIXELSHIFT_* environment variables.
func (c *Config)ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("pixelshift", &env); err != nil {
		return fmt.Errorf("config env: %w", err)
	}

	if env.Workers != nil                { c.Workers = *env.Workers }
	if env.BandsPerWorker != nil         { c.BandsPerWorker = *env.BandsPerWorker }
	if env.MotionTolerance != nil        { c.MotionTolerance = *env.MotionTolerance }
	if env.MaxInterpolationRadius != nil { c.MaxInterpolationRadius = *env.MaxInterpolationRadius }
	if env.Gamma != nil                  { c.Gamma = *env.Gamma }
	if env.LogLevel != nil               { c.LogLevel = *env.LogLevel }
	if env.LogDevelopment != nil         { c.LogDevelopment = *env.LogDevelopment }

	return nil
}

// Finalize checks the values that the merge can't run without.
func (c *Config)Finalize() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers %d < 1", c.Workers)
	}
	if c.BandsPerWorker < 1 {
		return fmt.Errorf("config: bands per worker %d < 1", c.BandsPerWorker)
	}
	if c.MotionTolerance <= 0 || c.MotionTolerance > 1 {
		return fmt.Errorf("config: motion tolerance %g outside (0,1]", c.MotionTolerance)
	}
	if c.MaxInterpolationRadius < 1 {
		return fmt.Errorf("config: interpolation radius %d < 1", c.MaxInterpolationRadius)
	}
	if _, err := ecolor.ParseGamma(c.Gamma); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.PreviewFile != "" {
		if err := checkTonemapper(c.Tonemapper); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.Shifts == nil {
		c.Shifts = map[string][2]int{}
	}
	if c.Sequences == nil {
		c.Sequences = map[string]int{}
	}
	return nil
}

func (c Config)MergeOptions() merge.Options {
	return merge.Options{
		MotionTolerance:        c.MotionTolerance,
		MaxInterpolationRadius: c.MaxInterpolationRadius,
	}
}

func (c Config)LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Development = c.LogDevelopment
	if c.Verbosity > 0 {
		lc.Level = "debug"
	}
	return lc
}

// Loader builds a frame loader carrying the filename overrides.
func (c Config)Loader() rawframe.Loader {
	l := rawframe.Loader{
		Shifts:    map[string]rawframe.Offset{},
		Sequences: map[string]int{},
	}
	for name, xy := range c.Shifts {
		l.Shifts[name] = rawframe.Offset{X: xy[0], Y: xy[1]}
	}
	for name, seq := range c.Sequences {
		l.Sequences[name] = seq
	}
	return l
}
