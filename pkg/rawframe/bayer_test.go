package rawframe

import(
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBayerColorAt(t *testing.T) {
	assert.Equal(t, Red,   RGGB.ColorAt(0, 0))
	assert.Equal(t, Green, RGGB.ColorAt(1, 0))
	assert.Equal(t, Green, RGGB.ColorAt(0, 1))
	assert.Equal(t, Blue,  RGGB.ColorAt(1, 1))
	assert.Equal(t, Blue,  RGGB.ColorAt(5, 7))
	assert.Equal(t, Red,   RGGB.ColorAt(4, 2))
}

func TestBayerShift(t *testing.T) {
	assert.Equal(t, GRBG, RGGB.Shift(1, 0))
	assert.Equal(t, GBRG, RGGB.Shift(0, 1))
	assert.Equal(t, BGGR, RGGB.Shift(1, 1))
	assert.Equal(t, RGGB, RGGB.Shift(2, 2))
}

func TestParseBayerPattern(t *testing.T) {
	bp, err := ParseBayerPattern(" bggr ")
	require.NoError(t, err)
	assert.Equal(t, BGGR, bp)
	assert.Equal(t, "BGGR", bp.String())

	for _, bad := range []string{"", "RGB", "RGGX", "RRGB", "GGGG"} {
		_, err := ParseBayerPattern(bad)
		assert.Error(t, err, bad)
	}
}

func TestBayerValid(t *testing.T) {
	assert.True(t, RGGB.Valid())
	assert.False(t, BayerPattern{}.Valid())
	assert.False(t, BayerPattern{Red, Green, Green, Channel(7)}.Valid())
}
