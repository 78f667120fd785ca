package omr

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// decodeIndicator decrypts an indicator and rounds its constant coefficient
// to the output plaintext space.
func decodeIndicator(params Parameters, skp *SecretKeyPack, ind *Indicator) uint64 {

	dec := rlwe.NewDecryptor(params.br2, skp.SecondLevel)
	pt := dec.DecryptNew(&ind.Ct)

	if pt.IsNTT {
		params.br2.RingQ().INTT(pt.Q, pt.Q)
	}

	return roundToPlaintext(pt.Q.At(0)[0], params.br2.Q()[0])
}

// TestCompaction exercises the compaction and decoding circuits in
// isolation, with indicators encrypted directly under the recipient's
// second level secret instead of being produced by a Detector.
func TestCompaction(t *testing.T) {

	params, err := NewParameters(ParametersLiteral{Capacity: 4, HashKey: [32]byte{0x01}})
	require.NoError(t, err)

	skp := NewKeyGenerator(params).GenSecretKeyPackNew()
	enc := rlwe.NewEncryptor(params.br2, skp.SecondLevel)
	rQ := params.br2.RingQ()

	makeIndicator := func(pertinent bool) *Indicator {
		ct := rlwe.NewCiphertext(params.br2, 1, params.br2.MaxLevel(), -1)
		require.NoError(t, enc.EncryptZero(ct))
		if pertinent {
			rQ.AddScalar(ct.Q[0], params.scaleOutput(), ct.Q[0])
		}
		return &Indicator{Ct: *ct}
	}

	const D = 32
	pertinent := map[int]bool{3: true, 11: true, 28: true}

	payloadKey := NewPayloadKey()

	indicators := make([]*Indicator, D)
	payloads := make([]Payload, D)
	bodies := make(map[int][]byte, D)
	for i := 0; i < D; i++ {
		indicators[i] = makeIndicator(pertinent[i])
		bodies[i] = []byte(fmt.Sprintf("entry %02d", i))
		payloads[i], err = SealPayload(payloadKey, bodies[i])
		require.NoError(t, err)
	}

	comp := NewCompactor(params)

	accumulate := func(order []int) *Digest {
		digest := NewDigest(params)
		for _, i := range order {
			require.NoError(t, comp.Accumulate(i, payloads[i], indicators[i], digest))
		}
		return digest
	}

	forward := make([]int, D)
	backward := make([]int, D)
	for i := 0; i < D; i++ {
		forward[i] = i
		backward[i] = D - 1 - i
	}

	digest := accumulate(forward)

	t.Run("Decode", func(t *testing.T) {

		msgs, err := NewDecoder(params, skp).Decode(digest, payloadKey, D)
		require.NoError(t, err)
		require.Equal(t, len(pertinent), len(msgs))

		for _, msg := range msgs {
			require.True(t, pertinent[msg.Index])
			require.Equal(t, bodies[msg.Index], msg.Payload)
		}
	})

	t.Run("OrderInvariance", func(t *testing.T) {
		require.True(t, digest.Equal(accumulate(backward)))
	})

	t.Run("AggregateCommutes", func(t *testing.T) {

		lo := accumulate(forward[:D/2])
		hi := accumulate(forward[D/2:])

		ab := NewDigest(params)
		require.NoError(t, ab.Aggregate(params, lo, hi))

		ba := NewDigest(params)
		require.NoError(t, ba.Aggregate(params, hi, lo))

		require.True(t, ab.Equal(ba))
		require.True(t, ab.Equal(digest))
	})

	t.Run("Overflow", func(t *testing.T) {

		// One bucket per level forces every pair of pertinent messages to
		// collide, so the decode must report itself as partial.
		paramsTiny, err := NewParameters(ParametersLiteral{Capacity: 2, Buckets: 1})
		require.NoError(t, err)

		skpTiny := NewKeyGenerator(paramsTiny).GenSecretKeyPackNew()
		encTiny := rlwe.NewEncryptor(paramsTiny.br2, skpTiny.SecondLevel)
		rQTiny := paramsTiny.br2.RingQ()

		compTiny := NewCompactor(paramsTiny)
		digestTiny := NewDigest(paramsTiny)

		for _, i := range []int{0, 1} {
			ct := rlwe.NewCiphertext(paramsTiny.br2, 1, paramsTiny.br2.MaxLevel(), -1)
			require.NoError(t, encTiny.EncryptZero(ct))
			rQTiny.AddScalar(ct.Q[0], paramsTiny.scaleOutput(), ct.Q[0])
			require.NoError(t, compTiny.Accumulate(i, payloads[i], &Indicator{Ct: *ct}, digestTiny))
		}

		msgs, err := NewDecoder(paramsTiny, skpTiny).Decode(digestTiny, payloadKey, 2)
		require.ErrorIs(t, err, ErrIncompleteDecode)
		require.Empty(t, msgs)
	})
}

// TestOMR runs the full pipeline: key generation, clue encoding, oblivious
// detection, compaction and decoding.
func TestOMR(t *testing.T) {

	if testing.Short() {
		t.Skip("skipping homomorphic pipeline test in short mode")
	}

	params, err := NewParameters(ParametersLiteral{Capacity: 4, HashKey: [32]byte{0x07}})
	require.NoError(t, err)

	kgen := NewKeyGenerator(params)
	skp := kgen.GenSecretKeyPackNew()
	ck := kgen.GenClueKeyNew(skp)
	dk, err := kgen.GenDetectionKeyNew(skp)
	require.NoError(t, err)

	// A second recipient whose clues must be declared non-pertinent.
	decoyCk := kgen.GenClueKeyNew(kgen.GenSecretKeyPackNew())

	sender := NewSender(params, ck)
	decoy := NewSender(params, decoyCk)

	payloadKey := NewPayloadKey()

	const D = 16
	pertinent := map[int]bool{1: true, 7: true, 13: true}

	bulletin := make([]Message, D)
	bodies := make(map[int][]byte, D)
	for i := range bulletin {

		s := decoy
		if pertinent[i] {
			s = sender
		}

		clue, err := s.EncodeClue()
		require.NoError(t, err)

		bodies[i] = []byte(fmt.Sprintf("bulletin entry %02d", i))
		payload, err := SealPayload(payloadKey, bodies[i])
		require.NoError(t, err)

		bulletin[i] = Message{Clue: clue, Payload: payload}
	}

	det, err := NewDetector(params, dk)
	require.NoError(t, err)

	t.Run("Detect", func(t *testing.T) {

		ind, err := det.Detect(bulletin[1].Clue)
		require.NoError(t, err)
		require.Equal(t, uint64(1), decodeIndicator(params, skp, ind))

		ind, err = det.Detect(bulletin[0].Clue)
		require.NoError(t, err)
		require.Equal(t, uint64(0), decodeIndicator(params, skp, ind))
	})

	progress := atomic.NewUint64(0)
	durations := make([]time.Duration, D)

	digest, err := det.Scan(bulletin, ScanOptions{Threads: 1, Progress: progress, Durations: durations})
	require.NoError(t, err)
	require.Equal(t, uint64(D), progress.Load())
	for i := range durations {
		require.Greater(t, durations[i], time.Duration(0))
	}

	decoder := NewDecoder(params, skp)

	t.Run("ScanDecode", func(t *testing.T) {

		msgs, err := decoder.Decode(digest, payloadKey, D)
		require.NoError(t, err)
		require.Equal(t, len(pertinent), len(msgs))

		for _, msg := range msgs {
			require.True(t, pertinent[msg.Index])
			require.Equal(t, bodies[msg.Index], msg.Payload)
		}
	})

	t.Run("ThreadInvariance", func(t *testing.T) {

		threads := runtime.NumCPU()
		if threads > 4 {
			threads = 4
		}

		parallel, err := det.Scan(bulletin, ScanOptions{Threads: threads})
		require.NoError(t, err)

		// Detection and compaction are deterministic and aggregation is an
		// exact ring addition, so the digest is bit-identical regardless of
		// the worker count and scheduling.
		require.True(t, digest.Equal(parallel))
	})

	t.Run("SingleMessage", func(t *testing.T) {

		single, err := det.Scan(bulletin[1:2], ScanOptions{Threads: 1})
		require.NoError(t, err)

		msgs, err := decoder.Decode(single, payloadKey, 1)
		require.NoError(t, err)
		require.Equal(t, 1, len(msgs))
		require.Equal(t, 0, msgs[0].Index)
		require.Equal(t, bodies[1], msgs[0].Payload)
	})

	t.Run("NonePertinent", func(t *testing.T) {

		none, err := det.Scan(bulletin[2:7], ScanOptions{Threads: 1})
		require.NoError(t, err)

		msgs, err := decoder.Decode(none, payloadKey, 5)
		require.NoError(t, err)
		require.Empty(t, msgs)
	})

	t.Run("InvalidOptions", func(t *testing.T) {

		_, err := det.Scan(bulletin, ScanOptions{Threads: 0})
		require.Error(t, err)

		_, err = det.Scan(nil, ScanOptions{Threads: 1})
		require.Error(t, err)

		_, err = det.Scan(bulletin, ScanOptions{Threads: 1, Durations: make([]time.Duration, D-1)})
		require.Error(t, err)
	})
}
