package fbs

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/stretchr/testify/require"
)

func testString(params rlwe.Parameters, opname string) string {
	return fmt.Sprintf("%slogN=%d/logQ=%f/#Qi=%d",
		opname,
		params.LogN(),
		params.LogQ(),
		params.QCount())
}

func TestBlindRotation(t *testing.T) {
	for _, testSet := range []func(t *testing.T){
		testEvaluate,
	} {
		testSet(t)
		runtime.GC()
	}
}

func testEvaluate(t *testing.T) {

	// RLWE parameters of the blind rotation ring
	// N=1024, Q=0x7fff801 -> 131 bit secure
	paramsBR, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    10,
		Q:       []uint64{0x7fff801},
		NTTFlag: true,
	})
	require.NoError(t, err)

	// RLWE parameters of the samples
	// N=512, Q=0x3001 -> 135 bit secure
	paramsLWE, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    9,
		Q:       []uint64{0x3001},
		NTTFlag: true,
	})
	require.NoError(t, err)

	dd := rlwe.DigitDecomposition{Type: rlwe.SignedBalanced, Log2Basis: 5}

	logT := 3
	t8 := 1 << logT

	qLWE := paramsLWE.Q()[0]
	qBR := paramsBR.Q()[0]

	delta := ((qBR >> uint(logT+1)) + 1) >> 1

	kgenLWE := rlwe.NewKeyGenerator(paramsLWE)
	skLWE := kgenLWE.GenSecretKeyNew()

	// One sample per table entry: slot i encrypts the value i.
	ptLWE := rlwe.NewPlaintext(paramsLWE, paramsLWE.MaxLevel(), -1)
	scaleLWE := qLWE / uint64(t8)
	for i := 0; i < t8; i++ {
		ptLWE.Q.At(0)[i] = uint64(i) * scaleLWE
	}

	if ptLWE.IsNTT {
		paramsLWE.RingQ().NTT(ptLWE.Q, ptLWE.Q)
	}

	ctLWE := rlwe.NewCiphertext(paramsLWE, 1, paramsLWE.MaxLevel(), -1)
	require.NoError(t, rlwe.NewEncryptor(paramsLWE, skLWE).Encrypt(ptLWE, ctLWE))

	skBR := rlwe.NewKeyGenerator(paramsBR).GenSecretKeyNew()

	key, err := GenEvaluationKey(paramsBR, skBR, paramsLWE, skLWE, dd)
	require.NoError(t, err)

	eval := NewEvaluator(paramsBR, paramsLWE, dd)
	decryptor := rlwe.NewDecryptor(paramsBR, skBR)
	ptBR := rlwe.NewPlaintext(paramsBR, paramsBR.MaxLevel(), -1)

	evaluate := func(t *testing.T, values []uint64, want []int64) {

		tv, err := NewTestVector(paramsBR.RingQ(), logT, values)
		require.NoError(t, err)

		testVectors := make(map[int]TestVector, t8)
		for i := 0; i < t8; i++ {
			testVectors[i] = tv
		}

		cts, err := eval.Evaluate(ctLWE, testVectors, key)
		require.NoError(t, err)
		require.Equal(t, t8, len(cts))

		for i := 0; i < t8; i++ {

			decryptor.Decrypt(cts[i], ptBR)

			if ptBR.IsNTT {
				paramsBR.RingQ().INTT(ptBR.Q, ptBR.Q)
			}

			have := decodeSigned(ptBR.Q.At(0)[0], qBR, delta)
			require.Equal(t, want[i], have, "slot %d", i)
		}
	}

	t.Run(testString(paramsBR, "Evaluate/Sign/"), func(t *testing.T) {

		// Table mapping 0 -> +delta, t/2 -> -delta, everything else to 0.
		// Expected values extended by negacyclicity.
		want := make([]int64, t8)
		want[0] = 1
		want[t8/2] = -1

		evaluate(t, []uint64{delta, 0, 0, 0, qBR - delta}, want)
	})

	t.Run(testString(paramsBR, "Evaluate/Spike/"), func(t *testing.T) {

		// Asymmetric table spiking at a single entry, so that any
		// misalignment between the table layout and the rotation readout
		// selects the wrong entry.
		want := make([]int64, t8)
		want[1] = 1
		want[1+t8/2] = -1

		evaluate(t, []uint64{0, delta, 0, 0, 0}, want)
	})
}

// decodeSigned rounds a coefficient to the nearest multiple of delta,
// interpreted in the centered representation.
func decodeSigned(c, q, delta uint64) int64 {
	if c >= q>>1 {
		return -int64((q - c + delta/2) / delta)
	}
	return int64((c + delta/2) / delta)
}
