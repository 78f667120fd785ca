package omr

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/instantomr/omr/fbs"
)

// SecretKeyPack is the recipient's private key material across the three
// lattice algebras. It is created once at setup and never transmitted.
type SecretKeyPack struct {
	// Clue is the secret of the clue algebra.
	Clue *rlwe.SecretKey
	// FirstLevel is the secret of the first bootstrapping ring.
	FirstLevel *rlwe.SecretKey
	// Intermediate is the secret the first level output is switched to
	// before the second blind rotation. It lives in the first ring.
	Intermediate *rlwe.SecretKey
	// SecondLevel is the secret of the second bootstrapping ring. Digests
	// decrypt under this key.
	SecondLevel *rlwe.SecretKey
}

// ClueKey is the public artifact handed to senders. It binds a clue to
// exactly one recipient.
type ClueKey struct {
	PublicKey *rlwe.PublicKey
}

// BinarySize returns the serialized size of the key in bytes.
func (ck *ClueKey) BinarySize() int {
	return ck.PublicKey.BinarySize()
}

// DetectionKey is the public artifact handed to the detector. It enables
// the homomorphic evaluation of the pertinence predicate and of the
// compaction circuit but carries no decryption capability.
type DetectionKey struct {
	// FirstLevel is the blind rotation key of the clue secret under the
	// first bootstrapping ring secret.
	FirstLevel *fbs.EvaluationKey
	// KeySwitch switches the summed first level output from the first
	// bootstrapping ring secret to the intermediate secret.
	KeySwitch *rlwe.EvaluationKey
	// SecondLevel is the blind rotation key of the intermediate secret
	// under the second bootstrapping ring secret.
	SecondLevel *fbs.EvaluationKey
	// Trace holds the Galois keys isolating the constant coefficient of
	// the second level output.
	Trace *rlwe.MemEvaluationKeySet
}

// BinarySize returns the serialized size of the key in bytes.
func (dk *DetectionKey) BinarySize() int {
	size := dk.FirstLevel.BinarySize() + dk.SecondLevel.BinarySize()
	size += dk.KeySwitch.BinarySize()
	size += dk.Trace.BinarySize()
	return size
}

// KeyGenerator generates the recipient key material.
type KeyGenerator struct {
	params   Parameters
	kgenClue *rlwe.KeyGenerator
	kgenBR1  *rlwe.KeyGenerator
	kgenBR2  *rlwe.KeyGenerator
}

// NewKeyGenerator instantiates a new KeyGenerator.
func NewKeyGenerator(params Parameters) *KeyGenerator {
	return &KeyGenerator{
		params:   params,
		kgenClue: rlwe.NewKeyGenerator(params.clue),
		kgenBR1:  rlwe.NewKeyGenerator(params.br1),
		kgenBR2:  rlwe.NewKeyGenerator(params.br2),
	}
}

// GenSecretKeyPackNew samples a fresh SecretKeyPack.
func (kgen *KeyGenerator) GenSecretKeyPackNew() *SecretKeyPack {
	return &SecretKeyPack{
		Clue:         kgen.kgenClue.GenSecretKeyNew(),
		FirstLevel:   kgen.kgenBR1.GenSecretKeyNew(),
		Intermediate: kgen.kgenBR1.GenSecretKeyNew(),
		SecondLevel:  kgen.kgenBR2.GenSecretKeyNew(),
	}
}

// GenClueKeyNew derives the public clue key of a SecretKeyPack.
func (kgen *KeyGenerator) GenClueKeyNew(skp *SecretKeyPack) *ClueKey {
	return &ClueKey{PublicKey: kgen.kgenClue.GenPublicKeyNew(skp.Clue)}
}

// GenDetectionKeyNew derives the detection key of a SecretKeyPack.
func (kgen *KeyGenerator) GenDetectionKeyNew(skp *SecretKeyPack) (dk *DetectionKey, err error) {

	dk = new(DetectionKey)

	if dk.FirstLevel, err = fbs.GenEvaluationKey(kgen.params.br1, skp.FirstLevel, kgen.params.clue, skp.Clue, kgen.params.dd1); err != nil {
		return nil, fmt.Errorf("first level blind rotation key: %w", err)
	}

	dk.KeySwitch = kgen.kgenBR1.GenEvaluationKeyNew(skp.FirstLevel, skp.Intermediate, rlwe.EvaluationKeyParameters{
		DigitDecomposition: kgen.params.ddKS,
	})

	if dk.SecondLevel, err = fbs.GenEvaluationKey(kgen.params.br2, skp.SecondLevel, kgen.params.br1, skp.Intermediate, kgen.params.dd2); err != nil {
		return nil, fmt.Errorf("second level blind rotation key: %w", err)
	}

	galEls := rlwe.GaloisElementsForTrace(kgen.params.br2, 0)
	gks := kgen.kgenBR2.GenGaloisKeysNew(galEls, skp.SecondLevel, rlwe.EvaluationKeyParameters{
		DigitDecomposition: kgen.params.ddTra,
	})

	dk.Trace = rlwe.NewMemEvaluationKeySet(nil, gks...)

	return dk, nil
}
