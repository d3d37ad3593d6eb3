package seq

import "math"

// spin is a classical magnetization vector. Integrate accumulates the
// effect of RF by rotating one, sample by sample.
type spin [3]float64

func relaxedSpin() spin { return spin{0, 0, 1} }

func (s spin) norm() float64 {
	return math.Sqrt(s[0]*s[0] + s[1]*s[1] + s[2]*s[2])
}

// angle is the polar angle to +z: the accumulated flip angle.
// Normalized because error builds up across many rotations.
func (s spin) angle() float64 {
	return math.Acos(s[2] / s.norm())
}

// phase is the phase of the applied rotation rather than of the spin
// itself, mapped to [0, 2π).
func (s spin) phase() float64 {
	ph := math.Atan2(s[1], s[0]) + math.Pi/2
	if ph < 0 {
		ph += tau
	}
	return ph
}

// rotation is a 3x3 matrix rotating spins by angle around the
// transverse axis at the given phase.
type rotation [3][3]float64

func newRotation(angle, phase float64) rotation {
	sa, ca := math.Sincos(angle)
	sp, cp := math.Sincos(phase)
	return rotation{
		{ca*sp*sp + cp*cp, (1 - ca) * sp * cp, sa * sp},
		{(1 - ca) * sp * cp, ca*cp*cp + sp*sp, -sa * cp},
		{-sa * sp, sa * cp, ca},
	}
}

func (r rotation) apply(s spin) spin {
	return spin{
		r[0][0]*s[0] + r[0][1]*s[1] + r[0][2]*s[2],
		r[1][0]*s[0] + r[1][1]*s[1] + r[1][2]*s[2],
		r[2][0]*s[0] + r[2][1]*s[1] + r[2][2]*s[2],
	}
}
