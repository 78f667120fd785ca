package fbs

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rgsw"
	"github.com/Pro7ech/lattigo/ring"
	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/Pro7ech/lattigo/utils"
)

// Evaluator evaluates blind rotations of test vectors over the
// bootstrapping ring paramsBR on LWE samples extracted from ciphertexts
// over paramsLWE.
type Evaluator struct {
	*rgsw.Evaluator
	paramsBR  rlwe.Parameters
	paramsLWE rlwe.Parameters

	// X^i - 1 in the NTT and Montgomery domain, for 0 <= i < 2N.
	xPowMinusOne [][2]ring.RNSPoly

	buffLWE     [2]ring.RNSPoly
	buffMod2N   [3][]uint64
	accumulator *rlwe.Ciphertext
	buffRGSW    *rgsw.Ciphertext
	one         *rgsw.Plaintext
}

// NewEvaluator instantiates a new Evaluator. The digit decomposition must
// match the one of the blind rotation keys that will be evaluated.
func NewEvaluator(paramsBR, paramsLWE rlwe.Parameters, dd rlwe.DigitDecomposition) (eval *Evaluator) {

	eval = new(Evaluator)
	eval.Evaluator = rgsw.NewEvaluator(paramsBR, nil)
	eval.paramsBR = paramsBR
	eval.paramsLWE = paramsLWE

	rQ := paramsBR.RingQ()
	N := rQ.N()

	oneNTTMForm := rQ.NewRNSPoly()
	oneNTTMForm.Ones()
	rQ.MForm(oneNTTMForm, oneNTTMForm)

	eval.xPowMinusOne = make([][2]ring.RNSPoly, 2*N)
	for i := 0; i < N; i++ {

		xPow := rQ.NewMonomialXi(i)
		rQ.NTT(xPow, xPow)
		rQ.MForm(xPow, xPow)

		// Negacyclic wrap-around: X^{i+N} = -X^{i}.
		xPowNeg := rQ.NewRNSPoly()
		rQ.Neg(xPow, xPowNeg)

		rQ.Sub(xPow, oneNTTMForm, xPow)
		rQ.Sub(xPowNeg, oneNTTMForm, xPowNeg)

		eval.xPowMinusOne[i][0] = xPow
		eval.xPowMinusOne[i+N][0] = xPowNeg
	}

	nLWE := paramsLWE.N()
	rLWE := paramsLWE.RingQ().AtLevel(0)

	eval.buffLWE = [2]ring.RNSPoly{rLWE.NewRNSPoly(), rLWE.NewRNSPoly()}
	eval.buffMod2N = [3][]uint64{make([]uint64, nLWE), make([]uint64, nLWE), make([]uint64, nLWE)}

	eval.accumulator = rlwe.NewCiphertext(paramsBR, 1, paramsBR.MaxLevel(), -1)
	eval.accumulator.IsNTT = true

	LevelQ := paramsBR.MaxLevelQ()
	LevelP := paramsBR.PCount() - 1

	eval.buffRGSW = rgsw.NewCiphertext(paramsBR, LevelQ, LevelP, dd)

	var err error
	if eval.one, err = rgsw.NewPlaintext(paramsBR, uint64(1), LevelQ, LevelP, dd); err != nil {
		// Sanity check, this error should not happen.
		panic(err)
	}

	return
}

// ShallowCopy creates a shallow copy of this Evaluator in which all the
// read-only data-structures are shared with the receiver and the temporary
// buffers are reallocated. The receiver and the returned Evaluators can be
// used concurrently.
func (eval Evaluator) ShallowCopy() *Evaluator {

	rLWE := eval.paramsLWE.RingQ().AtLevel(0)
	nLWE := eval.paramsLWE.N()

	acc := rlwe.NewCiphertext(eval.paramsBR, 1, eval.paramsBR.MaxLevel(), -1)
	acc.IsNTT = true

	return &Evaluator{
		Evaluator:    eval.Evaluator.ShallowCopy(),
		paramsBR:     eval.paramsBR,
		paramsLWE:    eval.paramsLWE,
		xPowMinusOne: eval.xPowMinusOne,
		buffLWE:      [2]ring.RNSPoly{rLWE.NewRNSPoly(), rLWE.NewRNSPoly()},
		buffMod2N:    [3][]uint64{make([]uint64, nLWE), make([]uint64, nLWE), make([]uint64, nLWE)},
		accumulator:  acc,
		buffRGSW:     rgsw.NewCiphertext(eval.paramsBR, eval.paramsBR.MaxLevelQ(), eval.paramsBR.PCount()-1, eval.buffRGSW.DigitDecomposition),
		one:          eval.one,
	}
}

// Evaluate extracts on the fly the LWE samples at the slot indices of
// testVectors from ct and blind rotates the matching test vector by each of
// them. It returns one ciphertext over the bootstrapping ring per requested
// slot, encrypting the selected table entry in its constant coefficient.
//
// ct must be a degree-1 ciphertext over the LWE ring at level 0, with
// coefficient-encoded values.
func (eval *Evaluator) Evaluate(ct *rlwe.Ciphertext, testVectors map[int]TestVector, key *EvaluationKey) (res map[int]*rlwe.Ciphertext, err error) {

	if ct.Degree() != 1 {
		return nil, fmt.Errorf("invalid ct: Degree() != 1")
	}

	nLWE := eval.paramsLWE.N()

	if len(key.SkPos) != nLWE || len(key.SkNeg) != nLWE {
		return nil, fmt.Errorf("invalid key: %d RGSW pairs for an LWE ring of degree %d", len(key.SkPos), nLWE)
	}

	rLWE := eval.paramsLWE.RingQ().AtLevel(0)
	rBR := eval.paramsBR.RingQ()

	twoN := uint64(rBR.N() << 1)
	mask := twoN - 1

	b := eval.buffLWE[0]
	a := eval.buffLWE[1]

	if ct.IsNTT {
		rLWE.INTT(ct.Q[0], b)
		rLWE.INTT(ct.Q[1], a)
	} else {
		b.Copy(&ct.Q[0])
		a.Copy(&ct.Q[1])
	}

	aMod2N := eval.buffMod2N[0]
	bMod2N := eval.buffMod2N[1]
	buf2N := eval.buffMod2N[2]

	modSwitchTo2N(rLWE[0].Modulus, twoN, a.At(0), buf2N)
	modSwitchTo2N(rLWE[0].Modulus, twoN, b.At(0), bMod2N)

	// Conversion from convolution to dot product for the LWE decryption:
	// coefficients of a are reversed and negated, except the first one.
	aMod2N[0] = buf2N[0]
	for j := 1; j < nLWE; j++ {
		aMod2N[j] = -buf2N[nLWE-j] & mask
	}

	acc := eval.accumulator

	res = make(map[int]*rlwe.Ciphertext, len(testVectors))

	var prevIndex int
	for index := 0; index < nLWE; index++ {

		tv, ok := testVectors[index]
		if !ok {
			continue
		}

		mulBySmallMonomialMod2N(mask, aMod2N, index-prevIndex)
		prevIndex = index

		// acc = tv * X^{b} = tv * (X^{b} - 1) + tv
		rBR.MulCoeffsMontgomery(tv.Poly, eval.xPowMinusOne[bMod2N[index]][0], acc.Q[0])
		rBR.Add(acc.Q[0], tv.Poly, acc.Q[0])
		acc.Q[1].Zero()

		for j := 0; j < nLWE; j++ {

			// CMUX: RGSW[(X^{a_j} - 1) * sk_j[+] + (X^{-a_j} - 1) * sk_j[-] + 1]
			rgsw.MulByXPowAlphaMinusOneLazy(&rBR, nil, key.SkPos[j], eval.xPowMinusOne[aMod2N[j]], eval.buffRGSW)
			rgsw.MulByXPowAlphaMinusOneThenAddLazy(&rBR, nil, key.SkNeg[j], eval.xPowMinusOne[-aMod2N[j]&mask], eval.buffRGSW)
			rgsw.AddLazy(rBR, nil, eval.one, eval.buffRGSW)
			rgsw.Reduce(&rBR, nil, eval.buffRGSW, eval.buffRGSW)

			// acc = acc x CMUX
			eval.ExternalProduct(acc, eval.buffRGSW, acc)
		}

		res[index] = acc.Clone()
	}

	return res, nil
}

// modSwitchTo2N applies round(x * 2N / q) coefficient-wise.
func modSwitchTo2N(q, twoN uint64, in, out []uint64) {
	qHalf := q >> 1
	for i := range in {
		out[i] = ((in[i]*twoN + qHalf) / q) & (twoN - 1)
	}
}

// mulBySmallMonomialMod2N multiplies the Z_2N coefficient vector by X^n,
// with 0 <= n < N, in the negacyclic sense.
func mulBySmallMonomialMod2N(mask uint64, coeffs []uint64, n int) {
	if n != 0 {
		utils.RotateSliceAllocFree(coeffs, len(coeffs)-n, coeffs)
		for j := 0; j < n; j++ {
			coeffs[j] = -coeffs[j] & mask
		}
	}
}
