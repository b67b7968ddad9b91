package ecolor

import(
	"fmt"

	"github.com/abworrall/pixelshift/pkg/emath"
	"github.com/abworrall/pixelshift/pkg/rawframe"
)

var(
	// Translates XYZ(D50) to sRGB(D65)
	//
	// https://sites.google.com/site/crossstereo/raw-converting/dng
	// http://www.brucelindbloom.com/index.html?Eqn_RGB_XYZ_Matrix.html
	//
	// This is the second table on Bruce Lindbloom's site; it bundles in
	// the chromatic adaptation from D50 to D65 reference white, so the
	// image's white balance doesn't shift on the way out.
	XYZD50_to_linear_sRGBD65 = emath.Mat3{
		 3.1338561, -1.6168667, -0.4906146,
		-0.9787684,  1.9161415,  0.0334540,
		 0.0719453, -0.2289914,  1.4052427,
	}
)

// Where a camera matrix came from, for the logs.
const(
	MatrixConfig   = "config"
	MatrixForward  = "ForwardMatrix1"
	MatrixColor    = "ColorMatrix1"
	MatrixIdentity = "identity"
)

// CameraToSRGB picks the matrix that takes white balanced camera native
// RGB to linear sRGB(D65):
//
//   - an override (from the config file), as is
//   - the DNG ForwardMatrix, which maps white balanced camera RGB to
//     XYZ(D50), followed by XYZ(D50)->sRGB(D65)
//   - the inverse of the DNG ColorMatrix (XYZ->camera native), undoing the
//     white balance first, with rows normalised so neutral stays neutral
//   - identity, i.e. camera RGB is passed through
func CameraToSRGB(md rawframe.Metadata, override emath.Mat3) (emath.Mat3, string, error) {
	if !override.IsZero() {
		return override, MatrixConfig, nil
	}

	if !md.ForwardMatrix.IsZero() {
		return XYZD50_to_linear_sRGBD65.Mult(md.ForwardMatrix), MatrixForward, nil
	}

	if !md.ColorMatrix.IsZero() {
		camToXYZ, err := md.ColorMatrix.Invert()
		if err != nil {
			return emath.Mat3{}, "", fmt.Errorf("camera matrix: %v", err)
		}

		wb := md.WhiteBalance
		if wb.IsZero() {
			wb = emath.Vec3{1, 1, 1}
		}
		m := XYZD50_to_linear_sRGBD65.Mult(camToXYZ).Mult(wb.InvertDiag())
		return normaliseRows(m), MatrixColor, nil
	}

	return emath.Identity(), MatrixIdentity, nil
}

// normaliseRows scales each row to sum to 1, so that (1,1,1) maps to
// (1,1,1).
func normaliseRows(m emath.Mat3) emath.Mat3 {
	sums := emath.Vec3{}
	for r := 0; r < 3; r++ {
		sums[r] = m[3*r+0] + m[3*r+1] + m[3*r+2]
		if sums[r] == 0 {
			return m
		}
	}
	return m.ScaleRows(emath.Vec3{1 / sums[0], 1 / sums[1], 1 / sums[2]})
}
