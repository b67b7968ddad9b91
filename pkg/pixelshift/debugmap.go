package pixelshift

import(
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"
)

var(
	debugInterpolated = color.RGBA{0xFF, 0xD0, 0x00, 0xFF}
	debugMotion       = color.RGBA{0xFF, 0x20, 0x20, 0xFF}
)

// WriteDebugMap draws a dimmed grayscale copy of the image, with pixels
// that needed interpolation in yellow and motion fallbacks in red, and a
// legend with the counts.
func WriteDebugMap(res *Result, filename string) error {
	if res.Tags == nil {
		return fmt.Errorf("debug map %s: no tag plane was collected", filename)
	}

	b := res.Image.Bounds()
	img := image.NewRGBA(b)
	nInterp, nMotion := 0, 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			t := res.Tags[y*b.Dx()+x]
			switch {
			case t&TagMotion != 0:
				img.SetRGBA(x, y, debugMotion)
				nMotion++
			case t&TagInterpolated != 0:
				img.SetRGBA(x, y, debugInterpolated)
				nInterp++
			default:
				c := res.Image.RGBA64At(x, y)
				gray := uint8((uint32(c.R) + 2*uint32(c.G) + uint32(c.B)) >> 12) // quarter brightness
				img.SetRGBA(x, y, color.RGBA{gray, gray, gray, 0xFF})
			}
		}
	}

	dc := gg.NewContextForImage(img)
	legend := fmt.Sprintf("interpolated:%d  motion:%d  %s", nInterp, nMotion, res.Stats)
	w, h := dc.MeasureString(legend)
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, 0, w+8, h+8)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(legend, 4, h+3)

	return writeAtomic(filename, func(wr io.Writer) error {
		return dc.EncodePNG(wr)
	})
}
