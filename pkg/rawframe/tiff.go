package rawframe

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/abworrall/pixelshift/pkg/emath"
)

// TIFF/EP and DNG tag IDs we care about. ARW, NEF etc. are TIFF underneath.
const(
	tagNewSubfileType       = 0x00fe
	tagImageWidth           = 0x0100
	tagImageLength          = 0x0101
	tagBitsPerSample        = 0x0102
	tagCompression          = 0x0103
	tagPhotometric          = 0x0106
	tagModel                = 0x0110
	tagStripOffsets         = 0x0111
	tagSamplesPerPixel      = 0x0115
	tagStripByteCounts      = 0x0117
	tagTileWidth            = 0x0142
	tagSubIFDs              = 0x014a
	tagCFARepeatPatternDim  = 0x828d
	tagCFAPattern           = 0x828e
	tagExifIFD              = 0x8769
	tagImageNumber          = 0x9211
	tagBlackLevel           = 0xc61a
	tagWhiteLevel           = 0xc61d
	tagColorMatrix1         = 0xc621
	tagAsShotNeutral        = 0xc628
	tagForwardMatrix1       = 0xc714

	photometricCFA          = 32803
	maxIFDs                 = 64
)

type ifd struct {
	offset int64
	*tiff.Dir
}

func (d ifd)get(id uint16) *tiff.Tag {
	for _, t := range d.Tags {
		if t.Id == id {
			return t
		}
	}
	return nil
}

func (d ifd)int(id uint16, def int64) int64 {
	if vals, err := tagInts(d.get(id)); err == nil && len(vals) > 0 {
		return vals[0]
	}
	return def
}

// decodeTIFF finds the CFA image inside a TIFF-structured raw file, and
// returns a Frame whose samples view the strip bytes in place.
func decodeTIFF(path string, data []byte) (*Frame, error) {
	order, first, err := tiffHeader(data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	dirs, err := readIFDs(data, order, first)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	raw, err := pickCFA(dirs)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	ifd0 := dirs[0]

	md := Metadata{
		Width:    int(raw.int(tagImageWidth, 0)),
		Height:   int(raw.int(tagImageLength, 0)),
		BitDepth: int(raw.int(tagBitsPerSample, 16)),
	}

	if c := raw.int(tagCompression, 1); c != 1 {
		return nil, decodeErrorf(path, "compression %d not supported, only uncompressed raw", c)
	}
	if raw.get(tagTileWidth) != nil {
		return nil, decodeErrorf(path, "tiled raw layout not supported")
	}
	if md.Width <= 0 || md.Height <= 0 {
		return nil, decodeErrorf(path, "bad raw dimensions %dx%d", md.Width, md.Height)
	}
	if md.BitDepth < 1 || md.BitDepth > 16 {
		return nil, decodeErrorf(path, "unsupported bits per sample %d", md.BitDepth)
	}

	start, length, err := stripExtent(raw)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if need := int64(md.Width) * int64(md.Height) * 2; length != need {
		return nil, decodeErrorf(path, "raw strips hold %d bytes, want %d for %dx%d 16-bit samples (packed data not supported)",
			length, need, md.Width, md.Height)
	}
	if start < 0 || start+length > int64(len(data)) {
		return nil, decodeErrorf(path, "truncated: raw data [%d,%d) beyond end of file (%d bytes)", start, start+length, len(data))
	}

	if md.Bayer, err = cfaPattern(raw); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if vals, err := tagFloats(raw.get(tagBlackLevel)); err == nil && len(vals) > 0 {
		md.BlackLevel = mean(vals)
	}
	md.WhiteLevel = int(raw.int(tagWhiteLevel, 0))

	// Color tags live in IFD0 for DNG; look in the raw IFD first anyway.
	for _, d := range []ifd{raw, ifd0} {
		if vals, err := tagFloats(d.get(tagAsShotNeutral)); err == nil && len(vals) == 3 && md.AsShotNeutral.IsZero() {
			md.AsShotNeutral = emath.Vec3{vals[0], vals[1], vals[2]}
		}
		if vals, err := tagFloats(d.get(tagColorMatrix1)); err == nil && len(vals) == 9 && md.ColorMatrix.IsZero() {
			copy(md.ColorMatrix[:], vals)
		}
		if vals, err := tagFloats(d.get(tagForwardMatrix1)); err == nil && len(vals) == 9 && md.ForwardMatrix.IsZero() {
			copy(md.ForwardMatrix[:], vals)
		}
	}

	md.Sequence = imageNumber(data, order, ifd0)
	if t := ifd0.get(tagModel); t != nil {
		if s, err := t.StringVal(); err == nil {
			md.Model = strings.TrimRight(s, "\x00 ")
		}
	}
	readExifInfo(data[:start], &md)

	plane, err := NewPlaneView(data[start:start+length], md.Width, md.Height, order, 0)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return NewFrame(path, md, plane)
}

func tiffHeader(data []byte) (binary.ByteOrder, int64, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("truncated TIFF header")
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II": order = binary.LittleEndian
	case "MM": order = binary.BigEndian
	default:
		return nil, 0, fmt.Errorf("not a TIFF file (byte order '%q')", data[:2])
	}

	if order.Uint16(data[2:]) != 42 {
		return nil, 0, fmt.Errorf("not a TIFF file (magic %d)", order.Uint16(data[2:]))
	}
	return order, int64(order.Uint32(data[4:])), nil
}

// readIFDs walks the main IFD chain, and any SubIFDs hanging off it. We
// use goexif's DecodeDir directly over the mapped bytes; tiff.Decode would
// copy the whole file into memory first.
func readIFDs(data []byte, order binary.ByteOrder, first int64) ([]ifd, error) {
	dirs := []ifd{}
	seen := map[int64]bool{}
	toVisit := []int64{first}

	for len(toVisit) > 0 {
		off := toVisit[0]
		toVisit = toVisit[1:]

		if off == 0 || seen[off] {
			continue
		}
		if len(dirs) >= maxIFDs {
			return nil, fmt.Errorf("too many IFDs")
		}
		if off < 8 || off >= int64(len(data)) {
			return nil, fmt.Errorf("IFD offset %d outside file", off)
		}
		seen[off] = true

		r := bytes.NewReader(data)
		if _, err := r.Seek(off, io.SeekStart); err != nil {
			return nil, err
		}
		dir, next, err := tiff.DecodeDir(r, order)
		if err != nil {
			return nil, fmt.Errorf("IFD at %d: %v", off, err)
		}

		d := ifd{offset: off, Dir: dir}
		dirs = append(dirs, d)

		if subs, err := tagInts(d.get(tagSubIFDs)); err == nil {
			for _, sub := range subs {
				toVisit = append(toVisit, sub)
			}
		}
		toVisit = append(toVisit, int64(uint32(next)))
	}

	if len(dirs) == 0 {
		return nil, fmt.Errorf("no IFDs")
	}
	return dirs, nil
}

// pickCFA prefers an IFD that says it is CFA data; otherwise the biggest
// single-sample full resolution image, which is what older raws look like.
func pickCFA(dirs []ifd) (ifd, error) {
	for _, d := range dirs {
		if d.int(tagPhotometric, 0) == photometricCFA {
			return d, nil
		}
	}

	var best ifd
	bestArea := int64(0)
	for _, d := range dirs {
		if d.int(tagSamplesPerPixel, 1) != 1 || d.int(tagNewSubfileType, 0)&1 != 0 {
			continue
		}
		if area := d.int(tagImageWidth, 0) * d.int(tagImageLength, 0); area > bestArea {
			best, bestArea = d, area
		}
	}
	if bestArea == 0 {
		return ifd{}, fmt.Errorf("no CFA image found in %d IFDs", len(dirs))
	}
	return best, nil
}

// stripExtent requires the strips to be contiguous, so that a single view
// covers the whole plane.
func stripExtent(d ifd) (int64, int64, error) {
	offsets, err := tagInts(d.get(tagStripOffsets))
	if err != nil || len(offsets) == 0 {
		return 0, 0, fmt.Errorf("no strip offsets")
	}
	counts, err := tagInts(d.get(tagStripByteCounts))
	if err != nil || len(counts) != len(offsets) {
		return 0, 0, fmt.Errorf("strip byte counts don't match %d strip offsets", len(offsets))
	}

	start, length := offsets[0], int64(0)
	for i := range offsets {
		if offsets[i] != start+length {
			return 0, 0, fmt.Errorf("strip %d not contiguous (at %d, want %d)", i, offsets[i], start+length)
		}
		length += counts[i]
	}
	return start, length, nil
}

func cfaPattern(d ifd) (BayerPattern, error) {
	t := d.get(tagCFAPattern)
	if t == nil {
		return RGGB, nil
	}

	if dims, err := tagInts(d.get(tagCFARepeatPatternDim)); err == nil && len(dims) == 2 && (dims[0] != 2 || dims[1] != 2) {
		return BayerPattern{}, fmt.Errorf("CFA repeat %dx%d not supported", dims[0], dims[1])
	}

	vals := t.Val
	if t.Format() == tiff.IntVal {
		ints, err := tagInts(t)
		if err != nil {
			return BayerPattern{}, err
		}
		vals = make([]byte, len(ints))
		for i, v := range ints {
			vals[i] = byte(v)
		}
	}
	if len(vals) != 4 {
		return BayerPattern{}, fmt.Errorf("CFA pattern has %d entries, want 4", len(vals))
	}

	bp := BayerPattern{Channel(vals[0]), Channel(vals[1]), Channel(vals[2]), Channel(vals[3])}
	if !bp.Valid() {
		return BayerPattern{}, fmt.Errorf("CFA pattern %v is not a bayer pattern", vals)
	}
	return bp, nil
}

// imageNumber looks for the TIFF/EP ImageNumber tag, in IFD0 or the Exif
// IFD. Some bodies record the pixel shift sequence there.
func imageNumber(data []byte, order binary.ByteOrder, ifd0 ifd) int {
	if n := ifd0.int(tagImageNumber, 0); n > 0 {
		return int(n)
	}

	off := ifd0.int(tagExifIFD, 0)
	if off <= 0 || off >= int64(len(data)) {
		return 0
	}
	r := bytes.NewReader(data)
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return 0
	}
	dir, _, err := tiff.DecodeDir(r, order)
	if err != nil {
		return 0
	}
	return int(ifd{offset: off, Dir: dir}.int(tagImageNumber, 0))
}

// readExifInfo is best effort; the camera model and capture time are only
// for the logs. It only sees the bytes ahead of the raw data, as exif.Decode
// reads everything it is given into memory.
func readExifInfo(head []byte, md *Metadata) {
	ex, err := exif.Decode(bytes.NewReader(head))
	if err != nil {
		return
	}

	if tag, err := ex.Get(exif.Model); err == nil && md.Model == "" {
		if s, err := tag.StringVal(); err == nil {
			md.Model = s
		}
	}
	if t, err := ex.DateTime(); err == nil {
		md.CaptureTime = t
	}
}

func tagInts(t *tiff.Tag) ([]int64, error) {
	if t == nil {
		return nil, fmt.Errorf("missing tag")
	}
	if t.Format() != tiff.IntVal {
		return nil, fmt.Errorf("tag 0x%04x is not an integer", t.Id)
	}
	vals := make([]int64, int(t.Count))
	for i := range vals {
		v, err := t.Int64(i)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func tagFloats(t *tiff.Tag) ([]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("missing tag")
	}
	vals := make([]float64, int(t.Count))
	for i := range vals {
		switch t.Format() {
		case tiff.IntVal:
			v, err := t.Int64(i)
			if err != nil {
				return nil, err
			}
			vals[i] = float64(v)
		case tiff.RatVal:
			num, denom, err := t.Rat2(i)
			if err != nil {
				return nil, err
			}
			if denom == 0 {
				return nil, fmt.Errorf("tag 0x%04x: zero denominator", t.Id)
			}
			vals[i] = float64(num) / float64(denom)
		case tiff.FloatVal:
			v, err := t.Float(i)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		default:
			return nil, fmt.Errorf("tag 0x%04x is not numeric", t.Id)
		}
	}
	return vals, nil
}

func mean(vals []float64) float64 {
	tot := 0.0
	for _, v := range vals {
		tot += v
	}
	return tot / float64(len(vals))
}
