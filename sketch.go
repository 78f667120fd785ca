package omr

import (
	"encoding/binary"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/zeebo/blake3"
)

// sketch is the plaintext geometry of the digest: levels rows of buckets
// buckets, with every bulletin index assigned to one bucket per row by a
// keyed hash. The compactor writes indicator-weighted bucket contents, the
// decoder peels them back.
type sketch struct {
	levels  int
	buckets int
	hasher  *blake3.Hasher
}

func newSketch(params Parameters) *sketch {
	h, err := blake3.NewKeyed(params.hashKey[:])
	if err != nil {
		// Sanity check, the key size is fixed.
		panic(err)
	}
	return &sketch{
		levels:  params.levels,
		buckets: params.buckets,
		hasher:  h,
	}
}

// bucket returns the bucket of index at the given level.
func (s *sketch) bucket(level, index int) int {
	var buf [10]byte
	buf[0] = byte(level)
	binary.LittleEndian.PutUint16(buf[1:], uint16(index))
	s.hasher.Reset()
	s.hasher.Write(buf[:])
	var sum [8]byte
	s.hasher.Digest().Read(sum[:])
	return int(binary.LittleEndian.Uint64(sum[:]) % uint64(s.buckets))
}

// indexOffset returns the global slot offset of a bucket in the index
// digest.
func (s *sketch) indexOffset(level, bucket int) int {
	return (level*s.buckets + bucket) * indexSlots
}

// payloadOffset returns the global slot offset of a bucket in the payload
// digest.
func (s *sketch) payloadOffset(level, bucket int) int {
	return (level*s.buckets + bucket) * PayloadSize
}

func (s *sketch) indexSlotCount() int {
	return s.levels * s.buckets * indexSlots
}

func (s *sketch) payloadSlotCount() int {
	return s.levels * s.buckets * PayloadSize
}

// EstimateOverflowProbability upper-bounds the probability that a digest
// holding capacity pertinent messages fails to peel, i.e. that some message
// shares each of its levels buckets with another pertinent message. The
// bound is capacity * (1 - (1 - 1/buckets)^(capacity-1))^levels.
func EstimateOverflowProbability(capacity, levels, buckets int) float64 {

	if capacity < 2 {
		return 0
	}

	one := big.NewFloat(1).SetPrec(128)

	empty := new(big.Float).SetPrec(128).Sub(one, new(big.Float).Quo(one, big.NewFloat(float64(buckets))))
	empty = bigfloat.Pow(empty, big.NewFloat(float64(capacity-1)))

	shared := new(big.Float).SetPrec(128).Sub(one, empty)
	shared = bigfloat.Pow(shared, big.NewFloat(float64(levels)))

	bound, _ := new(big.Float).Mul(shared, big.NewFloat(float64(capacity))).Float64()
	if bound > 1 {
		bound = 1
	}

	return bound
}

// peel runs the iterative peeling decode over the decoded digest slots,
// both taken modulo PlaintextModulus. It resolves buckets holding exactly
// one message, subtracts their contribution from every level and repeats
// until a fixpoint. It reports whether the sketch was fully consumed; a
// false return means more than capacity messages were folded in (or the
// digest noise exceeded its budget) and the result is partial.
func peel(s *sketch, bulletinSize int, idxVals, payVals []uint64) (indices []int, payloads []Payload, clean bool) {

	const p = PlaintextModulus

	seen := make(map[int]bool)

	for {
		progress := false

		for level := 0; level < s.levels; level++ {
			for bucket := 0; bucket < s.buckets; bucket++ {

				o := s.indexOffset(level, bucket)
				if idxVals[o+2] != 1 {
					continue
				}

				lo, hi := idxVals[o], idxVals[o+1]
				if lo > 0xff || hi > 0xff {
					continue
				}

				index := int(hi)<<8 | int(lo)
				if index >= bulletinSize || seen[index] {
					continue
				}

				// A pure bucket must be one of the index's own buckets.
				if s.bucket(level, index) != bucket {
					continue
				}

				po := s.payloadOffset(level, bucket)
				var payload Payload
				pure := true
				for j := 0; j < PayloadSize; j++ {
					if payVals[po+j] > 0xff {
						pure = false
						break
					}
					payload[j] = byte(payVals[po+j])
				}
				if !pure {
					continue
				}

				seen[index] = true
				indices = append(indices, index)
				payloads = append(payloads, payload)

				// Subtract the message from all its buckets.
				for l := 0; l < s.levels; l++ {
					b := s.bucket(l, index)
					oo := s.indexOffset(l, b)
					idxVals[oo] = (idxVals[oo] - lo) & (p - 1)
					idxVals[oo+1] = (idxVals[oo+1] - hi) & (p - 1)
					idxVals[oo+2] = (idxVals[oo+2] - 1) & (p - 1)
					pp := s.payloadOffset(l, b)
					for j := 0; j < PayloadSize; j++ {
						payVals[pp+j] = (payVals[pp+j] - uint64(payload[j])) & (p - 1)
					}
				}

				progress = true
			}
		}

		if !progress {
			break
		}
	}

	clean = true
	for _, v := range idxVals {
		if v != 0 {
			clean = false
			break
		}
	}
	if clean {
		for _, v := range payVals {
			if v != 0 {
				clean = false
				break
			}
		}
	}

	return indices, payloads, clean
}
