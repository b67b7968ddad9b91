package main

import(
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, nil, 0644))
	}
}

func testFlags() (*flag.FlagSet, *string, *multiFlag) {
	fs := flag.NewFlagSet("pixelshift", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("o", "", "")
	ins := &multiFlag{}
	fs.Var(ins, "i", "")
	fs.Bool("compress", false, "")
	return fs, out, ins
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		inputs []string
		plain  []string
	}{
		{"flags after inputs", []string{"-i", "a.dng", "b.dng", "-o", "out.tif"}, []string{"a.dng"}, []string{"b.dng"}},
		{"inputs last", []string{"-o", "out.tif", "a.dng", "b.dng"}, []string{}, []string{"a.dng", "b.dng"}},
		{"interleaved", []string{"a.dng", "-compress", "b.dng", "-i", "c.dng", "ps.yaml", "-o", "out.tif"}, []string{"c.dng"}, []string{"a.dng", "b.dng", "ps.yaml"}},
		{"terminator", []string{"-o", "out.tif", "--", "-odd.dng", "b.dng"}, []string{}, []string{"-odd.dng", "b.dng"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs, out, ins := testFlags()
			plain, err := parseArgs(fs, test.args)
			require.NoError(t, err)
			assert.Equal(t, "out.tif", *out)
			assert.Equal(t, test.inputs, []string(append(multiFlag{}, *ins...)))
			assert.Equal(t, test.plain, plain)
		})
	}
}

func TestParseArgsBadFlag(t *testing.T) {
	fs, _, _ := testFlags()
	_, err := parseArgs(fs, []string{"a.dng", "-nope"})
	assert.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	configs, patterns := splitArgs([]string{"a.dng", "ps.yaml", "b/*.fits", "other.YML"})
	assert.Equal(t, []string{"ps.yaml", "other.YML"}, configs)
	assert.Equal(t, []string{"a.dng", "b/*.fits"}, patterns)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "set1", "p3.dng"),
		filepath.Join(dir, "set1", "p1.dng"),
		filepath.Join(dir, "set1", "p2.dng"),
		filepath.Join(dir, "deep", "x", "q1.fits"),
		filepath.Join(dir, "deep", "y", "q0.fits"),
	)

	got, err := expandInputs([]string{
		filepath.Join(dir, "set1", "*.dng"),
		filepath.Join(dir, "deep", "**", "*.fits"),
		filepath.Join(dir, "literal.dng"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "set1", "p1.dng"),
		filepath.Join(dir, "set1", "p2.dng"),
		filepath.Join(dir, "set1", "p3.dng"),
		filepath.Join(dir, "deep", "x", "q1.fits"),
		filepath.Join(dir, "deep", "y", "q0.fits"),
		filepath.Join(dir, "literal.dng"),
	}, got)
}

func TestExpandInputsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := expandInputs(nil)
	assert.Error(t, err)

	_, err = expandInputs([]string{filepath.Join(dir, "*.dng")})
	assert.Error(t, err)

	_, err = expandInputs([]string{filepath.Join(dir, "[")})
	assert.Error(t, err)
}
