package rawframe

import(
	"encoding/binary"
	"fmt"
)

// A Plane is a read-only view over row-major 16-bit sensor samples, one per
// photosite. It does not own its bytes; for loaded frames they are the
// memory mapping of the raw file, so nothing is decoded up front.
type Plane struct {
	data      []byte
	width     int
	height    int
	bigEndian bool
	flip      uint16 // xor'd into every sample; 0x8000 turns FITS signed data (BZERO=32768) unsigned
}

// NewPlaneView wraps existing bytes. The view must hold at least
// width*height samples.
func NewPlaneView(data []byte, width, height int, order binary.ByteOrder, flip uint16) (*Plane, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("plane %dx%d: bad dimensions", width, height)
	}
	need := width * height * 2
	if len(data) < need {
		return nil, fmt.Errorf("plane %dx%d: truncated, have %d bytes, need %d", width, height, len(data), need)
	}

	return &Plane{
		data:      data[:need:need],
		width:     width,
		height:    height,
		bigEndian: order == binary.BigEndian,
		flip:      flip,
	}, nil
}

// NewPlane copies samples into a little endian in-memory plane.
func NewPlane(samples []uint16, width, height int) (*Plane, error) {
	if len(samples) != width*height {
		return nil, fmt.Errorf("plane %dx%d: have %d samples", width, height, len(samples))
	}
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], s)
	}
	return NewPlaneView(b, width, height, binary.LittleEndian, 0)
}

func (p *Plane)Width() int  { return p.width }
func (p *Plane)Height() int { return p.height }
func (p *Plane)Len() int    { return p.width * p.height }

// At does no bounds checking beyond what the slice does; callers stay inside
// [0,Width) x [0,Height).
func (p *Plane)At(x, y int) uint16 {
	i := 2 * (y*p.width + x)
	b := p.data[i : i+2 : i+2]
	if p.bigEndian {
		return (uint16(b[0])<<8 | uint16(b[1])) ^ p.flip
	}
	return (uint16(b[0]) | uint16(b[1])<<8) ^ p.flip
}
