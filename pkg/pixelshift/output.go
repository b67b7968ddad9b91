package pixelshift

import(
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/image/tiff"
)

// OutputImage is the merged, developed image: 16 bit RGB triples, row
// major. Implements image.Image and hdr.Image.
type OutputImage struct {
	Pix    []uint16
	Stride int      // in uint16s, i.e. 3*width
	Rect   image.Rectangle
}

var _ hdr.Image = (*OutputImage)(nil)

func NewOutputImage(w, h int) *OutputImage {
	return &OutputImage{
		Pix:    make([]uint16, 3*w*h),
		Stride: 3 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// Implement image.Image
func (o *OutputImage)ColorModel() color.Model { return color.RGBA64Model }
func (o *OutputImage)Bounds() image.Rectangle { return o.Rect }
func (o *OutputImage)At(x, y int) color.Color { return o.RGBA64At(x, y) }
func (o *OutputImage)Opaque() bool            { return true }

// Implement hdr.Image
func (o *OutputImage)HDRAt(x, y int) hdrcolor.Color {
	c := o.RGBA64At(x, y)
	return hdrcolor.RGB{R: float64(c.R) / 0xFFFF, G: float64(c.G) / 0xFFFF, B: float64(c.B) / 0xFFFF}
}
func (o *OutputImage)Size() int { return o.Rect.Dx() * o.Rect.Dy() }

func (o *OutputImage)RGBA64At(x, y int) color.RGBA64 {
	if !(image.Point{x, y}).In(o.Rect) {
		return color.RGBA64{}
	}
	i := y*o.Stride + 3*x
	return color.RGBA64{R: o.Pix[i], G: o.Pix[i+1], B: o.Pix[i+2], A: 0xFFFF}
}

// Rows returns the backing slice for rows [y0,y1); workers each own one
// such range.
func (o *OutputImage)Rows(y0, y1 int) []uint16 {
	return o.Pix[y0*o.Stride : y1*o.Stride]
}

// toRGBA64 is for encoders that only write 16 bits from concrete types.
// x/image/tiff has no 3-sample 16 bit path, so TIFF output carries an
// opaque alpha channel.
func (o *OutputImage)toRGBA64() *image.RGBA64 {
	img := image.NewRGBA64(o.Rect)
	for y := 0; y < o.Rect.Dy(); y++ {
		src := o.Pix[y*o.Stride : (y+1)*o.Stride]
		dst := img.Pix[y*img.Stride : (y+1)*img.Stride]
		for x := 0; x < o.Rect.Dx(); x++ {
			for c := 0; c < 3; c++ {
				dst[8*x+2*c]   = uint8(src[3*x+c] >> 8)
				dst[8*x+2*c+1] = uint8(src[3*x+c])
			}
			dst[8*x+6], dst[8*x+7] = 0xFF, 0xFF
		}
	}
	return img
}

// An EncodeError means the output couldn't be written; no file is left
// behind.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError)Error() string { return fmt.Sprintf("encode %s: %v", e.Path, e.Err) }
func (e *EncodeError)Unwrap() error { return e.Err }

type encodeFunc func(w io.Writer, img *OutputImage, compress bool) error

var encoders = map[string]encodeFunc{
	".tif":  encodeTIFF,
	".tiff": encodeTIFF,
	".png":  encodePNG,
	".hdr":  encodeHDR,
}

// SupportedOutput reports whether the filename's extension has an encoder.
func SupportedOutput(path string) bool {
	_, exists := encoders[strings.ToLower(filepath.Ext(path))]
	return exists
}

func encodeTIFF(w io.Writer, img *OutputImage, compress bool) error {
	opts := &tiff.Options{Compression: tiff.Uncompressed}
	if compress {
		opts = &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	}
	return tiff.Encode(w, img.toRGBA64(), opts)
}

func encodePNG(w io.Writer, img *OutputImage, compress bool) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if compress {
		enc.CompressionLevel = png.BestCompression
	}
	return enc.Encode(w, img)
}

// hdrView presents the output in the color model rgbe.Encode accepts; the
// pixels come from HDRAt either way.
type hdrView struct {
	*OutputImage
}

func (v hdrView)ColorModel() color.Model { return hdrcolor.RGBModel }

func encodeHDR(w io.Writer, img *OutputImage, compress bool) error {
	return rgbe.Encode(w, hdrView{img})
}

// WriteImage encodes into a temp file next to path, and renames it into
// place once the encode has worked.
func WriteImage(img *OutputImage, path string, compress bool) error {
	enc, exists := encoders[strings.ToLower(filepath.Ext(path))]
	if !exists {
		return &EncodeError{Path: path, Err: fmt.Errorf("no encoder for '%s' (want .tif, .png or .hdr)", filepath.Ext(path))}
	}
	return writeAtomic(path, func(w io.Writer) error { return enc(w, img, compress) })
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmp.Name())
		return &EncodeError{Path: path, Err: err}
	}

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := write(bw); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &EncodeError{Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return &EncodeError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}
