package rawframe

import(
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/pixelshift/pkg/logging"
)

// A Loader turns raw files into Frames. The maps let a config file supply
// shift and sequence tags for containers that don't record them; they are
// keyed by base filename, and win over whatever the container says.
type Loader struct {
	Shifts    map[string]Offset
	Sequences map[string]int
	Log      *zap.Logger
}

// Load reads a single file with no overrides.
func Load(path string) (*Frame, error) {
	return Loader{}.Load(path)
}

func (l Loader)Load(path string) (*Frame, error) {
	m, err := mapFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	f, err := decode(path, m.data)
	if err != nil {
		m.Close()
		return nil, err
	}
	f.mapping = m

	name := filepath.Base(path)
	if off, exists := l.Shifts[name]; exists {
		off := off
		f.ShiftOffset = &off
	}
	if seq, exists := l.Sequences[name]; exists {
		f.Sequence = seq
	}

	logging.OrNop(l.Log).Debug("frame loaded", zap.Stringer("frame", f))
	return f, nil
}

// LoadAll loads every path in parallel, keeping the input order. If any file
// fails, the frames already loaded are closed and the first error returned.
func (l Loader)LoadAll(ctx context.Context, paths []string) ([]*Frame, error) {
	frames := make([]*Frame, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := l.Load(path)
			if err != nil {
				return err
			}
			frames[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		CloseAll(frames)
		return nil, err
	}
	return frames, nil
}

var(
	tiffMagicLE = []byte("II*\x00")
	tiffMagicBE = []byte("MM\x00*")
	fitsMagic   = []byte("SIMPLE  =")

	tiffExts = map[string]bool{".tif": true, ".tiff": true, ".dng": true, ".arw": true, ".nef": true, ".pef": true}
	fitsExts = map[string]bool{".fits": true, ".fit": true, ".fts": true}
)

// decode sniffs the container and hands the mapped bytes to the right
// decoder.
func decode(path string, data []byte) (*Frame, error) {
	mtype := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case mtype.Is("image/tiff") || bytes.HasPrefix(data, tiffMagicLE) || bytes.HasPrefix(data, tiffMagicBE):
		return decodeTIFF(path, data)

	case mtype.Is("application/fits") || bytes.HasPrefix(data, fitsMagic):
		return decodeFITS(path, data)

	case tiffExts[ext]:
		return decodeTIFF(path, data)

	case fitsExts[ext]:
		return decodeFITS(path, data)
	}

	return nil, decodeErrorf(path, "unsupported container (%s)", mtype.String())
}
