package rawframe

import(
	"fmt"
	"strings"
)

// A Channel is one of the three colors a photosite can sample.
type Channel uint8

const(
	Red Channel = iota
	Green
	Blue
)

var channelNames = [3]string{"R", "G", "B"}

func (c Channel)String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", c)
}

// A BayerPattern is the 2x2 color filter arrangement, in row-major order
// starting at photosite (0,0). The first entry is the pattern's phase.
//
// R G R G
// G B G B
// R G R G
// G B G B
type BayerPattern [4]Channel

var(
	RGGB = BayerPattern{Red, Green, Green, Blue}
	BGGR = BayerPattern{Blue, Green, Green, Red}
	GRBG = BayerPattern{Green, Red, Blue, Green}
	GBRG = BayerPattern{Green, Blue, Red, Green}
)

func (bp BayerPattern)ColorAt(x, y int) Channel {
	return bp[(y&1)<<1 | (x&1)]
}

// Shift returns the pattern as seen from photosite (dx,dy), e.g. after a
// crop that starts on an odd column.
func (bp BayerPattern)Shift(dx, dy int) BayerPattern {
	return BayerPattern{
		bp.ColorAt(dx,   dy),
		bp.ColorAt(dx+1, dy),
		bp.ColorAt(dx,   dy+1),
		bp.ColorAt(dx+1, dy+1),
	}
}

func (bp BayerPattern)Valid() bool {
	n := [3]int{}
	for _, c := range bp {
		if c > Blue {
			return false
		}
		n[c]++
	}
	return n[Red] == 1 && n[Green] == 2 && n[Blue] == 1
}

func (bp BayerPattern)String() string {
	s := ""
	for _, c := range bp {
		s += c.String()
	}
	return s
}

func ParseBayerPattern(s string) (BayerPattern, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 4 {
		return BayerPattern{}, fmt.Errorf("bayer pattern '%s': want 4 letters", s)
	}

	bp := BayerPattern{}
	for i, r := range s {
		switch r {
		case 'R': bp[i] = Red
		case 'G': bp[i] = Green
		case 'B': bp[i] = Blue
		default:
			return BayerPattern{}, fmt.Errorf("bayer pattern '%s': bad color '%c'", s, r)
		}
	}

	if !bp.Valid() {
		return BayerPattern{}, fmt.Errorf("bayer pattern '%s': need one R, two G, one B", s)
	}
	return bp, nil
}
