package fbs

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rgsw"
	"github.com/Pro7ech/lattigo/rlwe"
)

// EvaluationKey is the blind rotation key: for each coefficient of the LWE
// secret, a pair of RGSW ciphertexts under the bootstrapping ring secret.
// SkPos[i] encrypts 1 if the coefficient is 1, SkNeg[i] encrypts 1 if it
// is -1, and both encrypt 0 if it is 0, enabling the CMUX
// RGSW[(X^{a_i}-1)*sk_i[+] + (X^{-a_i}-1)*sk_i[-] + 1].
type EvaluationKey struct {
	rlwe.DigitDecomposition
	SkPos []*rgsw.Ciphertext
	SkNeg []*rgsw.Ciphertext
}

// GenEvaluationKey generates the blind rotation key for skLWE under skBR.
func GenEvaluationKey(paramsBR rlwe.Parameters, skBR *rlwe.SecretKey, paramsLWE rlwe.Parameters, skLWE *rlwe.SecretKey, dd rlwe.DigitDecomposition) (key *EvaluationKey, err error) {

	rLWE := paramsLWE.RingQ().AtLevel(0)

	if rLWE.ModuliChainLength() != 1 {
		return nil, fmt.Errorf("invalid paramsLWE: blind rotation keys require a single-modulus LWE ring")
	}

	// Secret coefficients in the time domain, out of the Montgomery domain.
	skCoeffs := skLWE.Q.Clone()
	rLWE.INTT(*skCoeffs, *skCoeffs)
	rLWE.IMForm(*skCoeffs, *skCoeffs)

	q := rLWE[0].Modulus

	// NTT of the constant polynomial 1.
	ptOne := rlwe.NewPlaintext(paramsBR, paramsBR.MaxLevel(), -1)
	ptOne.IsNTT = true
	ptOne.Q.Ones()

	enc := rgsw.NewEncryptor(paramsBR, skBR)

	LevelQ := paramsBR.MaxLevelQ()
	LevelP := paramsBR.PCount() - 1

	n := paramsLWE.N()

	key = &EvaluationKey{
		DigitDecomposition: dd,
		SkPos:              make([]*rgsw.Ciphertext, n),
		SkNeg:              make([]*rgsw.Ciphertext, n),
	}

	for i, si := range skCoeffs.At(0) {

		key.SkPos[i] = rgsw.NewCiphertext(paramsBR, LevelQ, LevelP, dd)
		key.SkNeg[i] = rgsw.NewCiphertext(paramsBR, LevelQ, LevelP, dd)

		var ptPos, ptNeg *rlwe.Plaintext
		switch si {
		case 1:
			ptPos = ptOne
		case q - 1:
			ptNeg = ptOne
		case 0:
		default:
			return nil, fmt.Errorf("invalid skLWE: coefficient %d is not ternary", i)
		}

		if err = enc.Encrypt(ptPos, key.SkPos[i]); err != nil {
			return nil, fmt.Errorf("enc.Encrypt: %w", err)
		}

		if err = enc.Encrypt(ptNeg, key.SkNeg[i]); err != nil {
			return nil, fmt.Errorf("enc.Encrypt: %w", err)
		}
	}

	return key, nil
}

// BinarySize returns the serialized size of the key in bytes.
func (key EvaluationKey) BinarySize() (size int) {
	size = 2
	for i := range key.SkPos {
		size += key.SkPos[i].BinarySize()
		size += key.SkNeg[i].BinarySize()
	}
	return
}
