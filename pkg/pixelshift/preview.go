package pixelshift

import(
	"fmt"
	"image/png"
	"io"
	"sort"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/tmo"
)

var tonemappers = map[string]func(hdr.Image) tmo.ToneMappingOperator{
	"linear":     func(m hdr.Image) tmo.ToneMappingOperator { return tmo.NewLinear(m) },
	"drago03":    func(m hdr.Image) tmo.ToneMappingOperator {
		op := tmo.NewDefaultDrago03(m)
		op.Bias = 1.0 // Otherwise bright areas blow out
		return op
	},
	"durand":     func(m hdr.Image) tmo.ToneMappingOperator { return tmo.NewDefaultDurand(m) },
	"icam06":     func(m hdr.Image) tmo.ToneMappingOperator { return tmo.NewDefaultICam06(m) },
	"reinhard05": func(m hdr.Image) tmo.ToneMappingOperator { return tmo.NewDefaultReinhard05(m) },
}

func ListTonemappers() string {
	names := []string{}
	for name := range tonemappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func checkTonemapper(name string) error {
	if _, exists := tonemappers[name]; !exists {
		return fmt.Errorf("no tonemapper named '%s' (have %s)", name, ListTonemappers())
	}
	return nil
}

// WritePreview tonemaps the output down to an 8 bit PNG, for a quick look.
func WritePreview(img *OutputImage, tonemapper, filename string) error {
	if err := checkTonemapper(tonemapper); err != nil {
		return fmt.Errorf("preview %s: %w", filename, err)
	}

	ldr := tonemappers[tonemapper](img).Perform()
	return writeAtomic(filename, func(w io.Writer) error {
		return png.Encode(w, ldr)
	})
}
