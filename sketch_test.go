package omr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// insertPlain folds a message into the plaintext sketch slots the way the
// compactor does under encryption, for testing the peeling decode in
// isolation.
func insertPlain(s *sketch, index int, payload Payload, idxVals, payVals []uint64) {
	const p = PlaintextModulus
	for level := 0; level < s.levels; level++ {
		b := s.bucket(level, index)
		o := s.indexOffset(level, b)
		idxVals[o] = (idxVals[o] + uint64(index&0xff)) & (p - 1)
		idxVals[o+1] = (idxVals[o+1] + uint64(index>>8)) & (p - 1)
		idxVals[o+2] = (idxVals[o+2] + 1) & (p - 1)
		po := s.payloadOffset(level, b)
		for j := 0; j < PayloadSize; j++ {
			payVals[po+j] = (payVals[po+j] + uint64(payload[j])) & (p - 1)
		}
	}
}

func TestSketch(t *testing.T) {

	params, err := NewParameters(ParametersLiteral{Capacity: 8, HashKey: [32]byte{0x42}})
	require.NoError(t, err)

	t.Run("Bucket", func(t *testing.T) {

		s := newSketch(params)

		for level := 0; level < s.levels; level++ {
			for _, index := range []int{0, 1, 255, 256, 4095, MaxBulletinSize - 1} {
				b := s.bucket(level, index)
				require.GreaterOrEqual(t, b, 0)
				require.Less(t, b, s.buckets)
				require.Equal(t, b, s.bucket(level, index))
			}
		}

		// A different hash key yields a different assignment for at least
		// one of the probed indices.
		paramsAlt, err := NewParameters(ParametersLiteral{Capacity: 8, HashKey: [32]byte{0x43}})
		require.NoError(t, err)
		sAlt := newSketch(paramsAlt)

		same := true
		for index := 0; index < 64; index++ {
			if s.bucket(0, index) != sAlt.bucket(0, index) {
				same = false
				break
			}
		}
		require.False(t, same)
	})

	t.Run("PeelEmpty", func(t *testing.T) {

		s := newSketch(params)

		indices, payloads, clean := peel(s, 1024, make([]uint64, s.indexSlotCount()), make([]uint64, s.payloadSlotCount()))
		require.True(t, clean)
		require.Empty(t, indices)
		require.Empty(t, payloads)
	})

	t.Run("PeelRoundTrip", func(t *testing.T) {

		paramsWide, err := NewParameters(ParametersLiteral{Capacity: 8, Buckets: 256, HashKey: [32]byte{0x42}})
		require.NoError(t, err)
		s := newSketch(paramsWide)

		idxVals := make([]uint64, s.indexSlotCount())
		payVals := make([]uint64, s.payloadSlotCount())

		inserted := map[int]Payload{}
		for i, index := range []int{3, 300, 301, 40000, MaxBulletinSize - 1} {
			var payload Payload
			for j := range payload {
				payload[j] = byte(i*31 + j)
			}
			inserted[index] = payload
			insertPlain(s, index, payload, idxVals, payVals)
		}

		indices, payloads, clean := peel(s, MaxBulletinSize, idxVals, payVals)
		require.True(t, clean)
		require.Equal(t, len(inserted), len(indices))

		for i, index := range indices {
			payload, ok := inserted[index]
			require.True(t, ok)
			require.Equal(t, payload, payloads[i])
		}
	})

	t.Run("PeelPayloadResidue", func(t *testing.T) {

		// A residue confined to the payload slots must still be reported
		// as an incomplete decode.
		s := newSketch(params)

		idxVals := make([]uint64, s.indexSlotCount())
		payVals := make([]uint64, s.payloadSlotCount())
		payVals[0] = 1

		indices, _, clean := peel(s, 1024, idxVals, payVals)
		require.False(t, clean)
		require.Empty(t, indices)
	})

	t.Run("PeelOverflow", func(t *testing.T) {

		// With a single bucket per level every pair of messages collides in
		// every level, so the decode cannot make progress.
		paramsTiny, err := NewParameters(ParametersLiteral{Capacity: 2, Buckets: 1})
		require.NoError(t, err)
		s := newSketch(paramsTiny)

		idxVals := make([]uint64, s.indexSlotCount())
		payVals := make([]uint64, s.payloadSlotCount())

		insertPlain(s, 5, Payload{1}, idxVals, payVals)
		insertPlain(s, 9, Payload{2}, idxVals, payVals)

		indices, _, clean := peel(s, 16, idxVals, payVals)
		require.False(t, clean)
		require.Empty(t, indices)
	})

	t.Run("EstimateOverflowProbability", func(t *testing.T) {

		require.Equal(t, 0.0, EstimateOverflowProbability(1, 3, 8))

		p := EstimateOverflowProbability(8, 3, 16)
		require.Greater(t, p, 0.0)
		require.Less(t, p, 1.0)

		// More buckets help, more levels help.
		require.Less(t, EstimateOverflowProbability(8, 3, 32), p)
		require.Less(t, EstimateOverflowProbability(8, 4, 16), p)

		// A degenerate geometry saturates the bound.
		require.Equal(t, 1.0, EstimateOverflowProbability(64, 1, 1))
	})
}
