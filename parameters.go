package omr

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rlwe"
)

const (
	// MaxBulletinSize bounds the number of messages scanned in a single run.
	// Bulletin positions are encoded in the digest as two base-256 digits.
	MaxBulletinSize = 1 << 16

	// ClueCount is the number of LWE samples carried by each clue. All of
	// them must decrypt to zero for a message to be declared pertinent.
	ClueCount = 7

	// PlaintextModulus is the modulus of the decoded digest slots.
	PlaintextModulus = 1 << 15

	// MaxCapacity bounds the digest capacity.
	MaxCapacity = 1 << 12

	cluePlaintextModulus         = 8
	intermediatePlaintextModulus = 32

	// Index-digest slots per bucket: low digit, high digit, counter.
	indexSlots = 3
)

// ParametersLiteral is a toolbox to instantiate digest and scheme
// parameters. Two parties obtain interoperable Parameters if and only if
// they start from equal literals.
type ParametersLiteral struct {
	// Capacity is the maximum number of pertinent messages the digest can
	// losslessly encode.
	Capacity int `json:"capacity" yaml:"capacity"`

	// Levels is the number of independent bucket rows of the sketch.
	// The default is 3.
	Levels int `json:"levels" yaml:"levels"`

	// Buckets is the number of buckets per level. The default, 0, derives
	// it from Capacity.
	Buckets int `json:"buckets" yaml:"buckets"`

	// HashKey salts the bucket-assignment hash. It is public and must be
	// shared by the detector and the recipient.
	HashKey [32]byte `json:"hashkey" yaml:"hashkey"`
}

// Parameters groups the parameters of the three lattice algebras and the
// digest geometry.
type Parameters struct {
	capacity int
	levels   int
	buckets  int
	hashKey  [32]byte

	clue rlwe.Parameters
	br1  rlwe.Parameters
	br2  rlwe.Parameters

	dd1   rlwe.DigitDecomposition
	dd2   rlwe.DigitDecomposition
	ddKS  rlwe.DigitDecomposition
	ddTra rlwe.DigitDecomposition
}

// NewParameters instantiates new Parameters from a literal, validating the
// digest geometry and instantiating the three fixed lattice algebras:
// the clue ring (N=512, 14-bit modulus), the first bootstrapping ring
// (N=1024, 27-bit modulus) and the second bootstrapping ring (N=2048,
// 50-bit modulus), which also serves as the compaction algebra.
func NewParameters(lit ParametersLiteral) (p Parameters, err error) {

	if lit.Capacity < 1 || lit.Capacity > MaxCapacity {
		return p, fmt.Errorf("invalid Capacity=%d: must be in [1, %d]", lit.Capacity, MaxCapacity)
	}

	levels := lit.Levels
	if levels == 0 {
		levels = 3
	}

	if levels < 1 || levels > 8 {
		return p, fmt.Errorf("invalid Levels=%d: must be in [1, 8]", levels)
	}

	buckets := lit.Buckets
	if buckets == 0 {
		buckets = 2 * lit.Capacity
		if buckets < 8 {
			buckets = 8
		}
	}

	if buckets < 1 {
		return p, fmt.Errorf("invalid Buckets=%d: must be >= 1", buckets)
	}

	if p.clue, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    9,
		Q:       []uint64{0x3001},
		NTTFlag: true,
	}); err != nil {
		return p, fmt.Errorf("clue parameters: %w", err)
	}

	if p.br1, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    10,
		Q:       []uint64{0x7fff801},
		NTTFlag: true,
	}); err != nil {
		return p, fmt.Errorf("first level parameters: %w", err)
	}

	if p.br2, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    11,
		Q:       []uint64{0x3FFFFFFFFC001}, // 2^50 - 2^14 + 1
		NTTFlag: true,
	}); err != nil {
		return p, fmt.Errorf("second level parameters: %w", err)
	}

	p.capacity = lit.Capacity
	p.levels = levels
	p.buckets = buckets
	p.hashKey = lit.HashKey

	// The blind rotation and trace keys use narrow signed balanced bases:
	// the first level output noise must stay well below half a plateau of
	// the second level table after the 7-sample sum, and the indicator
	// noise is later amplified by the byte-valued placement polynomials.
	p.dd1 = rlwe.DigitDecomposition{Type: rlwe.SignedBalanced, Log2Basis: 5}
	p.dd2 = rlwe.DigitDecomposition{Type: rlwe.SignedBalanced, Log2Basis: 6}
	p.ddKS = rlwe.DigitDecomposition{Type: rlwe.Unsigned, Log2Basis: 10}
	p.ddTra = rlwe.DigitDecomposition{Type: rlwe.SignedBalanced, Log2Basis: 2}

	return p, nil
}

// Capacity returns the maximum number of pertinent messages the digest can
// losslessly encode.
func (p Parameters) Capacity() int {
	return p.capacity
}

// Levels returns the number of bucket rows of the sketch.
func (p Parameters) Levels() int {
	return p.levels
}

// Buckets returns the number of buckets per sketch level.
func (p Parameters) Buckets() int {
	return p.buckets
}

// HashKey returns the salt of the bucket-assignment hash.
func (p Parameters) HashKey() [32]byte {
	return p.hashKey
}

// ClueParameters returns the RLWE parameters of the clue algebra.
func (p Parameters) ClueParameters() rlwe.Parameters {
	return p.clue
}

// FirstLevelParameters returns the RLWE parameters of the first
// bootstrapping ring.
func (p Parameters) FirstLevelParameters() rlwe.Parameters {
	return p.br1
}

// SecondLevelParameters returns the RLWE parameters of the second
// bootstrapping ring, which is also the compaction algebra.
func (p Parameters) SecondLevelParameters() rlwe.Parameters {
	return p.br2
}

// IndexDigestSize returns the number of ciphertexts of the index digest.
func (p Parameters) IndexDigestSize() int {
	return (p.levels*p.buckets*indexSlots + p.br2.N() - 1) / p.br2.N()
}

// PayloadDigestSize returns the number of ciphertexts of the payload
// digest.
func (p Parameters) PayloadDigestSize() int {
	return (p.levels*p.buckets*PayloadSize + p.br2.N() - 1) / p.br2.N()
}

// Equal returns whether the receiver and other are interoperable.
func (p Parameters) Equal(other *Parameters) bool {
	return p.capacity == other.capacity &&
		p.levels == other.levels &&
		p.buckets == other.buckets &&
		p.hashKey == other.hashKey
}

// scaleFirstLevel is the scaling factor of the first level blind rotation
// output, i.e. the encoding of 1 in the intermediate plaintext space.
func (p Parameters) scaleFirstLevel() uint64 {
	q := p.br1.Q()[0]
	return ((q >> 4) + 1) >> 1 // round(q / intermediatePlaintextModulus)
}

// scaleOutput is the scaling factor of the pertinence indicator, i.e. the
// encoding of 1 in the output plaintext space.
func (p Parameters) scaleOutput() uint64 {
	q := p.br2.Q()[0]
	return ((q >> 14) + 1) >> 1 // round(q / PlaintextModulus)
}
