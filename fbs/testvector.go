package fbs

import (
	"fmt"

	"github.com/Pro7ech/lattigo/ring"
)

// TestVector is a negacyclic lookup table over the bootstrapping ring,
// stored in the NTT domain. For a plaintext space of t = 2^logT values, a
// blind rotation on a phase close to m*(2N/t) mod 2N reads out entry m of
// the table in the constant coefficient of the output.
type TestVector struct {
	Poly ring.RNSPoly
	LogT int
}

// NewTestVector builds the test vector for the table f(m) = values[m],
// m in [0, t/2]; the remaining entries are implied by negacyclicity,
// f(m + t/2) = -f(m), which also requires values[t/2] = -values[0] mod q.
// Each table entry spans 2N/t coefficients centered on its nominal phase,
// so inputs within half a plateau of m*(2N/t) still select entry m.
//
// The blind rotation reads the rotated vector at the reflection of the
// phase, so entry m is stored negated at the coefficients around
// (t/2 - m)*(2N/t); callers supply values in plain table order.
//
// Values must be given reduced modulo the ring modulus; the ring must have
// a single prime modulus.
func NewTestVector(rQ ring.RNSRing, logT int, values []uint64) (tv TestVector, err error) {

	if rQ.ModuliChainLength() != 1 {
		return tv, fmt.Errorf("invalid ring: test vectors require a single-modulus ring")
	}

	N := rQ.N()
	t := 1 << logT

	if N < t {
		return tv, fmt.Errorf("invalid logT=%d: table larger than ring degree %d", logT, N)
	}

	if len(values) < t/2+1 {
		return tv, fmt.Errorf("invalid values: need %d entries for logT=%d, got %d", t/2+1, logT, len(values))
	}

	q := rQ[0].Modulus

	if (values[0]+values[t/2])%q != 0 {
		return tv, fmt.Errorf("invalid values: values[%d] must be the negation of values[0] mod q", t/2)
	}

	lut := make([]uint64, t/2+1)
	for k := range lut {
		if v := values[t/2-k]; v != 0 {
			lut[k] = q - v
		}
	}

	// Plateau layout: lut[0] once, then each subsequent value twice,
	// covering the t chunks of N/t coefficients.
	halfPlateau := N >> logT
	p := rQ.NewRNSPoly()
	coeffs := p.At(0)
	for chunk := 0; chunk < t; chunk++ {
		v := lut[(chunk+1)>>1]
		for i := chunk * halfPlateau; i < (chunk+1)*halfPlateau; i++ {
			coeffs[i] = v
		}
	}

	rQ.NTT(p, p)

	return TestVector{Poly: p, LogT: logT}, nil
}
