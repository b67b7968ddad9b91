package emath

// 3x3 matrices and vectors, used for the color transforms

import(
	"fmt"

	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point
	"gonum.org/v1/gonum/mat"
)

type Vec3 f64.Vec3
type Mat3 f64.Mat3

func Identity() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

func (a Mat3)Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3)Apply(v Vec3) Vec3 {
	return Vec3{
		(m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2]),
		(m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2]),
		(m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2]),
	}
}

// Invert uses gonum; camera ColorMatrix tags map XYZ into camera space, and
// we need the other direction.
func (m Mat3)Invert() (Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, m[:])); err != nil {
		return Mat3{}, fmt.Errorf("invert %v: %v", m, err)
	}

	out := Mat3{}
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			out[3*r+c] = inv.At(r, c)
		}
	}
	return out, nil
}

func (m Mat3)IsZero() bool { return m == Mat3{} }
func (m Mat3)IsIdentity() bool { return m == Identity() }

// ScaleRows multiplies each row by the matching element of v
func (m Mat3)ScaleRows(v Vec3) Mat3 {
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			m[3*r+c] *= v[r]
		}
	}
	return m
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}

func (v Vec3)String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

func (v Vec3)IsZero() bool { return v == Vec3{} }

// Places the vector on the diagonal of a matrix, then inverts it
func (v Vec3)InvertDiag() Mat3 {
	return Mat3{
		1.0 / v[0],           0,           0,
		0,           1.0 / v[1],           0,
		0,                    0,  1.0 / v[2],
	}
}

func (v Vec3)Diag() Mat3 {
	return Mat3{
		v[0],    0,    0,
		0,    v[1],    0,
		0,       0, v[2],
	}
}

func (v *Vec3)FloorAt(min float64) {
	if v[0] < min { v[0] = min }
	if v[1] < min { v[1] = min }
	if v[2] < min { v[2] = min }
}

func (v *Vec3)CeilingAt(max float64) {
	if v[0] > max { v[0] = max }
	if v[1] > max { v[1] = max }
	if v[2] > max { v[2] = max }
}
