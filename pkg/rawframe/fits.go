package rawframe

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const(
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

// fitsHeader is the primary HDU's keyword cards, keys uppercased.
type fitsHeader map[string]string

func (h fitsHeader)str(key string) string {
	return h[key]
}

func (h fitsHeader)int(key string) (int, bool) {
	v, exists := h[key]
	if !exists {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		i = int(f)
	}
	return i, true
}

func (h fitsHeader)float(key string) (float64, bool) {
	v, exists := h[key]
	if !exists {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// decodeFITS handles the single-HDU 16-bit mosaic FITS files that capture
// software writes for one-shot-color sensors. The big endian data block is
// viewed in place.
func decodeFITS(path string, data []byte) (*Frame, error) {
	hdr, dataStart, err := parseFITSHeader(data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	bitpix, _ := hdr.int("BITPIX")
	naxis, _ := hdr.int("NAXIS")
	w, _ := hdr.int("NAXIS1")
	h, _ := hdr.int("NAXIS2")

	if bitpix != 16 {
		return nil, decodeErrorf(path, "BITPIX %d not supported, only 16 bit mosaics", bitpix)
	}
	if naxis != 2 {
		return nil, decodeErrorf(path, "NAXIS %d not supported, want a single 2D plane", naxis)
	}
	if w <= 0 || h <= 0 {
		return nil, decodeErrorf(path, "bad dimensions %dx%d", w, h)
	}
	if bscale, exists := hdr.float("BSCALE"); exists && bscale != 1 {
		return nil, decodeErrorf(path, "BSCALE %g not supported", bscale)
	}

	flip := uint16(0)
	bzero, _ := hdr.float("BZERO")
	switch bzero {
	case 0:
	case 32768:
		flip = 0x8000
	default:
		return nil, decodeErrorf(path, "BZERO %g not supported", bzero)
	}

	if end := dataStart + int64(w)*int64(h)*2; end > int64(len(data)) {
		return nil, decodeErrorf(path, "truncated: data needs %d bytes, file has %d", end, len(data))
	}

	md := Metadata{
		Width:    w,
		Height:   h,
		Bayer:    RGGB,
		BitDepth: 16,
	}

	if s := hdr.str("BAYERPAT"); s != "" {
		if md.Bayer, err = ParseBayerPattern(s); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}
	xoff, _ := hdr.int("XBAYROFF")
	yoff, _ := hdr.int("YBAYROFF")
	md.Bayer = md.Bayer.Shift(xoff, yoff)

	if bd, exists := hdr.int("BITDEPTH"); exists {
		md.BitDepth = bd
	}
	if bl, exists := hdr.float("BLKLEVEL"); exists {
		md.BlackLevel = bl
	} else if bl, exists := hdr.float("OFFSET"); exists {
		md.BlackLevel = bl
	}
	if seq, exists := hdr.int("SEQNUM"); exists {
		md.Sequence = seq
	}
	px, xExists := hdr.int("PSHIFTX")
	py, yExists := hdr.int("PSHIFTY")
	if xExists && yExists {
		md.ShiftOffset = &Offset{X: px, Y: py}
	}

	md.Model = hdr.str("INSTRUME")
	for _, layout := range []string{"2006-01-02T15:04:05.999999", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, hdr.str("DATE-OBS")); err == nil {
			md.CaptureTime = t
			break
		}
	}

	plane, err := NewPlaneView(data[dataStart:], w, h, binary.BigEndian, flip)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return NewFrame(path, md, plane)
}

// parseFITSHeader reads cards up to END, and returns the offset of the data
// block, which starts on the next 2880 byte boundary.
func parseFITSHeader(data []byte) (fitsHeader, int64, error) {
	if !bytes.HasPrefix(data, fitsMagic) {
		return nil, 0, fmt.Errorf("not a FITS file")
	}

	hdr := fitsHeader{}
	for off := 0; off+fitsCardSize <= len(data); off += fitsCardSize {
		card := string(data[off : off+fitsCardSize])
		key := strings.TrimSpace(card[:8])

		if key == "END" {
			blocks := (off + fitsCardSize + fitsBlockSize - 1) / fitsBlockSize
			return hdr, int64(blocks * fitsBlockSize), nil
		}
		if card[8:10] != "= " || key == "" {
			continue // COMMENT, HISTORY, blank
		}
		hdr[strings.ToUpper(key)] = fitsValue(card[10:])
	}

	return nil, 0, fmt.Errorf("truncated: no END card in header")
}

// fitsValue strips the comment and any quoting from a card's value field.
func fitsValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		// Quotes inside strings are doubled
		val := ""
		for i := 1; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					val += "'"
					i++
					continue
				}
				break
			}
			val += string(s[i])
		}
		return strings.TrimRight(val, " ")
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
