// Package rawtest writes small synthetic raw files, for tests that need
// something on disk to load.
package rawtest

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"
)

// A Capture describes one synthetic raw frame.
type Capture struct {
	Width, Height int
	Bayer         string      // e.g. "RGGB"; empty means RGGB
	BitDepth      int         // 0 means 16
	Black         int
	White         int         // 0 means no WhiteLevel tag
	Neutral      []float64    // AsShotNeutral, TIFF only
	Sequence      int         // ImageNumber / SEQNUM; 0 means untagged
	Shift        *image.Point // PSHIFTX/PSHIFTY, FITS only
	Model         string
	Samples      []uint16
}

func (c Capture)check() error {
	if len(c.Samples) != c.Width*c.Height {
		return fmt.Errorf("capture %dx%d has %d samples", c.Width, c.Height, len(c.Samples))
	}
	return nil
}

func (c Capture)bayer() string {
	if c.Bayer == "" {
		return "RGGB"
	}
	return strings.ToUpper(c.Bayer)
}

func (c Capture)bitDepth() int {
	if c.BitDepth == 0 {
		return 16
	}
	return c.BitDepth
}

// Constant fills a w x h capture with a single value.
func Constant(w, h int, v uint16) Capture {
	s := make([]uint16, w*h)
	for i := range s {
		s[i] = v
	}
	return Capture{Width: w, Height: h, Samples: s}
}

const(
	tByte     = 1
	tASCII    = 2
	tShort    = 3
	tLong     = 4
	tRational = 5
)

var typeSizes = map[uint16]int{tByte: 1, tASCII: 1, tShort: 2, tLong: 4, tRational: 8}

type entry struct {
	id    uint16
	typ   uint16
	count int
	val   []byte
}

// WriteTIFF writes a little endian TIFF/EP style raw: a single IFD holding
// one uncompressed CFA strip of 16 bit samples.
func WriteTIFF(path string, c Capture) error {
	if err := c.check(); err != nil {
		return err
	}
	le := binary.LittleEndian

	longs := func(vals ...uint32) []byte {
		b := make([]byte, 4*len(vals))
		for i, v := range vals { le.PutUint32(b[4*i:], v) }
		return b
	}
	shorts := func(vals ...uint16) []byte {
		b := make([]byte, 2*len(vals))
		for i, v := range vals { le.PutUint16(b[2*i:], v) }
		return b
	}

	cfa := make([]byte, 4)
	for i, r := range c.bayer() {
		cfa[i] = byte(strings.IndexRune("RGB", r))
	}

	stripLen := uint32(2 * c.Width * c.Height)
	entries := []entry{
		{0x00fe, tLong,  1, longs(0)},
		{0x0100, tLong,  1, longs(uint32(c.Width))},
		{0x0101, tLong,  1, longs(uint32(c.Height))},
		{0x0102, tShort, 1, shorts(16)},
		{0x0103, tShort, 1, shorts(1)},
		{0x0106, tShort, 1, shorts(32803)},
		{0x0111, tLong,  1, nil}, // patched below
		{0x0115, tShort, 1, shorts(1)},
		{0x0117, tLong,  1, longs(stripLen)},
		{0x828d, tShort, 2, shorts(2, 2)},
		{0x828e, tByte,  4, cfa},
		{0xc61a, tLong,  1, longs(uint32(c.Black))},
	}
	// Samples are always stored in 16 bits; a shallower sensor shows up as
	// a lower WhiteLevel.
	if c.bitDepth() != 16 && c.White == 0 {
		c.White = 1<<uint(c.bitDepth()) - 1
	}
	if c.White > 0 {
		entries = append(entries, entry{0xc61d, tLong, 1, longs(uint32(c.White))})
	}
	if c.Model != "" {
		s := append([]byte(c.Model), 0)
		entries = append(entries, entry{0x0110, tASCII, len(s), s})
	}
	if c.Sequence > 0 {
		entries = append(entries, entry{0x9211, tLong, 1, longs(uint32(c.Sequence))})
	}
	if len(c.Neutral) == 3 {
		r := []uint32{}
		for _, v := range c.Neutral {
			r = append(r, uint32(v*1000000+0.5), 1000000)
		}
		entries = append(entries, entry{0xc628, tRational, 3, longs(r...)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	ifdLen := 2 + 12*len(entries) + 4
	extraStart := 8 + ifdLen
	extra := []byte{}
	for _, e := range entries {
		if len(e.val) > 4 {
			extra = append(extra, make([]byte, len(extra)%2)...) // word aligned
			extra = append(extra, e.val...)
		}
	}
	stripStart := uint32(extraStart + len(extra))
	stripStart += stripStart % 2

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(shorts(42))
	buf.Write(longs(8))

	buf.Write(shorts(uint16(len(entries))))
	extraOff := uint32(extraStart)
	for _, e := range entries {
		if e.id == 0x0111 {
			e.val = longs(stripStart)
		}
		if e.count*typeSizes[e.typ] != len(e.val) {
			return fmt.Errorf("tag 0x%04x: %d bytes for %d values", e.id, len(e.val), e.count)
		}

		buf.Write(shorts(e.id, e.typ))
		buf.Write(longs(uint32(e.count)))
		if len(e.val) <= 4 {
			v := make([]byte, 4)
			copy(v, e.val)
			buf.Write(v)
		} else {
			extraOff += extraOff % 2
			buf.Write(longs(extraOff))
			extraOff += uint32(len(e.val))
		}
	}
	buf.Write(longs(0))
	buf.Write(extra)
	for uint32(buf.Len()) < stripStart {
		buf.WriteByte(0)
	}

	for _, s := range c.Samples {
		buf.Write(shorts(s))
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// WriteFITS writes a primary HDU of BITPIX=16 with BZERO=32768, the way
// astro capture software stores unsigned mosaics.
func WriteFITS(path string, c Capture) error {
	if err := c.check(); err != nil {
		return err
	}

	cards := []string{
		card("SIMPLE", "T"),
		card("BITPIX", "16"),
		card("NAXIS", "2"),
		card("NAXIS1", fmt.Sprint(c.Width)),
		card("NAXIS2", fmt.Sprint(c.Height)),
		card("BZERO", "32768"),
		card("BSCALE", "1"),
		card("BAYERPAT", "'"+c.bayer()+"'"),
		card("BITDEPTH", fmt.Sprint(c.bitDepth())),
		card("BLKLEVEL", fmt.Sprint(c.Black)),
	}
	if c.Model != "" {
		cards = append(cards, card("INSTRUME", "'"+c.Model+"'"))
	}
	if c.Sequence > 0 {
		cards = append(cards, card("SEQNUM", fmt.Sprint(c.Sequence)))
	}
	if c.Shift != nil {
		cards = append(cards, card("PSHIFTX", fmt.Sprint(c.Shift.X)), card("PSHIFTY", fmt.Sprint(c.Shift.Y)))
	}
	cards = append(cards, fmt.Sprintf("%-80s", "COMMENT synthetic"), fmt.Sprintf("%-80s", "END"))

	var buf bytes.Buffer
	for _, cd := range cards {
		buf.WriteString(cd)
	}
	pad(&buf, ' ')

	for _, s := range c.Samples {
		binary.Write(&buf, binary.BigEndian, s^0x8000)
	}
	pad(&buf, 0)

	return os.WriteFile(path, buf.Bytes(), 0644)
}

func card(key, val string) string {
	return fmt.Sprintf("%-8s= %20s / %-47s", key, val, "")[:80]
}

func pad(buf *bytes.Buffer, b byte) {
	for buf.Len()%2880 != 0 {
		buf.WriteByte(b)
	}
}
