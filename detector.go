package omr

import (
	"fmt"
	"time"

	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/Pro7ech/lattigo/utils/concurrency"
	"github.com/instantomr/omr/fbs"
	"go.uber.org/atomic"
)

// Detector evaluates the pertinence predicate homomorphically: it decides,
// under encryption, whether all samples of a clue decrypt to zero under the
// recipient's clue secret, without being able to decrypt anything itself.
//
// A Detector is not safe for concurrent use; Scan shallow-copies it across
// workers.
type Detector struct {
	params Parameters
	key    *DetectionKey

	first  *fbs.Evaluator
	second *fbs.Evaluator
	ks     *rlwe.Evaluator
	tr     *rlwe.Evaluator

	firstVectors  map[int]fbs.TestVector
	secondVectors map[int]fbs.TestVector

	buffSum   *rlwe.Ciphertext
	buffInter *rlwe.Ciphertext
}

// NewDetector instantiates a new Detector from a detection key.
func NewDetector(params Parameters, key *DetectionKey) (d *Detector, err error) {

	d = &Detector{
		params: params,
		key:    key,
		first:  fbs.NewEvaluator(params.br1, params.clue, params.dd1),
		second: fbs.NewEvaluator(params.br2, params.br1, params.dd2),
		ks:     rlwe.NewEvaluator(params.br1, nil),
		tr:     rlwe.NewEvaluator(params.br2, key.Trace),
	}

	if d.firstVectors, err = firstLevelVectors(params); err != nil {
		return nil, err
	}

	if d.secondVectors, err = secondLevelVectors(params); err != nil {
		return nil, err
	}

	d.buffSum = rlwe.NewCiphertext(params.br1, 1, params.br1.MaxLevel(), -1)
	d.buffInter = rlwe.NewCiphertext(params.br1, 1, params.br1.MaxLevel(), -1)

	return d, nil
}

// ShallowCopy creates a copy of the Detector that can be used concurrently
// with the receiver. The detection key is shared.
func (d *Detector) ShallowCopy() *Detector {
	return &Detector{
		params:        d.params,
		key:           d.key,
		first:         d.first.ShallowCopy(),
		second:        d.second.ShallowCopy(),
		ks:            d.ks.ShallowCopy(),
		tr:            d.tr.ShallowCopy(),
		firstVectors:  d.firstVectors,
		secondVectors: d.secondVectors,
		buffSum:       rlwe.NewCiphertext(d.params.br1, 1, d.params.br1.MaxLevel(), -1),
		buffInter:     rlwe.NewCiphertext(d.params.br1, 1, d.params.br1.MaxLevel(), -1),
	}
}

// firstLevelVectors builds the table mapping a clue sample to +1 if it
// decrypts to 0, to -1 if it decrypts to t/2, and to 0 otherwise, scaled
// into the intermediate plaintext space, for each of the ClueCount slots.
func firstLevelVectors(params Parameters) (map[int]fbs.TestVector, error) {

	q := params.br1.Q()[0]
	scale := params.scaleFirstLevel()

	tv, err := fbs.NewTestVector(params.br1.RingQ(), 3, []uint64{scale, 0, 0, 0, q - scale})
	if err != nil {
		return nil, fmt.Errorf("first level test vector: %w", err)
	}

	vectors := make(map[int]fbs.TestVector, ClueCount)
	for i := 0; i < ClueCount; i++ {
		vectors[i] = tv
	}

	return vectors, nil
}

// secondLevelVectors builds the table spiking at 2*ClueCount, the value the
// offset sum reaches exactly when every clue sample decrypted to zero,
// scaled into the output plaintext space.
func secondLevelVectors(params Parameters) (map[int]fbs.TestVector, error) {

	values := make([]uint64, intermediatePlaintextModulus/2+1)
	values[2*ClueCount] = params.scaleOutput()

	tv, err := fbs.NewTestVector(params.br2.RingQ(), 5, values)
	if err != nil {
		return nil, fmt.Errorf("second level test vector: %w", err)
	}

	return map[int]fbs.TestVector{0: tv}, nil
}

// Detect evaluates the pertinence predicate on a single clue and returns
// the encrypted indicator.
func (d *Detector) Detect(clue *Clue) (indicator *Indicator, err error) {

	if clue == nil {
		return nil, fmt.Errorf("invalid clue: nil")
	}

	// First level: one blind rotation per clue sample, mapping it to an
	// encryption of +scale, -scale or ~0 over the first ring.
	cts, err := d.first.Evaluate(&clue.Ct, d.firstVectors, d.key.FirstLevel)
	if err != nil {
		return nil, fmt.Errorf("first level blind rotation: %w", err)
	}

	rQ1 := d.params.br1.RingQ()

	sum := d.buffSum
	sum.Copy(cts[0])
	for i := 1; i < ClueCount; i++ {
		rQ1.Add(sum.Q[0], cts[i].Q[0], sum.Q[0])
		rQ1.Add(sum.Q[1], cts[i].Q[1], sum.Q[1])
	}

	// Switch the sum to the intermediate secret.
	if err = d.ks.ApplyEvaluationKey(sum, d.key.KeySwitch, d.buffInter); err != nil {
		return nil, fmt.Errorf("ks.ApplyEvaluationKey: %w", err)
	}

	// Shift the sum from [-ClueCount, ClueCount] to [0, 2*ClueCount].
	offset := (uint64(ClueCount) * d.params.scaleFirstLevel()) % d.params.br1.Q()[0]
	rQ1.AddScalar(d.buffInter.Q[0], offset, d.buffInter.Q[0])

	// Second level: a single blind rotation selecting the spike at
	// 2*ClueCount, i.e. "all samples decrypted to zero".
	out, err := d.second.Evaluate(d.buffInter, d.secondVectors, d.key.SecondLevel)
	if err != nil {
		return nil, fmt.Errorf("second level blind rotation: %w", err)
	}

	// Isolate the constant coefficient so that the indicator can be used
	// as a scalar weight by the compactor.
	res := rlwe.NewCiphertext(d.params.br2, 1, d.params.br2.MaxLevel(), -1)
	if err = d.tr.Trace(out[0], 0, res); err != nil {
		return nil, fmt.Errorf("tr.Trace: %w", err)
	}

	return &Indicator{Ct: *res}, nil
}

// ScanOptions parameterizes a Scan.
type ScanOptions struct {
	// Threads is the number of worker goroutines. It must be positive.
	Threads int

	// Progress, if not nil, is incremented once per processed message.
	Progress *atomic.Uint64

	// Durations, if not nil, must have the length of the bulletin and is
	// filled with the per-message detection wall time.
	Durations []time.Duration
}

// Scan runs the full detection and compaction over a bulletin: it maps
// Detect + Accumulate over all messages with Threads workers, each folding
// into a private partial digest, and aggregates the partial digests. The
// first failing message aborts the scan, as a silently missing contribution
// would corrupt the digest invisibly.
func (d *Detector) Scan(bulletin []Message, opts ScanOptions) (digest *Digest, err error) {

	D := len(bulletin)

	if D == 0 {
		return nil, fmt.Errorf("invalid bulletin: empty")
	}

	if D > MaxBulletinSize {
		return nil, fmt.Errorf("invalid bulletin: %d messages exceeds the maximum of %d", D, MaxBulletinSize)
	}

	if opts.Threads < 1 {
		return nil, fmt.Errorf("invalid Threads=%d: must be positive", opts.Threads)
	}

	if opts.Durations != nil && len(opts.Durations) != D {
		return nil, fmt.Errorf("invalid Durations: length %d does not match the bulletin size %d", len(opts.Durations), D)
	}

	type worker struct {
		det    *Detector
		comp   *Compactor
		digest *Digest
	}

	workers := make([]*worker, opts.Threads)
	for i := range workers {
		det := d
		if i > 0 {
			det = d.ShallowCopy()
		}
		workers[i] = &worker{
			det:    det,
			comp:   NewCompactor(d.params),
			digest: NewDigest(d.params),
		}
	}

	rm := concurrency.NewRessourceManager(workers)

	for i := range bulletin {
		rm.Run(func(w *worker) error {

			now := time.Now()

			indicator, err := w.det.Detect(bulletin[i].Clue)
			if err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}

			if err := w.comp.Accumulate(i, bulletin[i].Payload, indicator, w.digest); err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}

			if opts.Durations != nil {
				opts.Durations[i] = time.Since(now)
			}

			if opts.Progress != nil {
				opts.Progress.Inc()
			}

			return nil
		})
	}

	if err = rm.Wait(); err != nil {
		return nil, err
	}

	digest = workers[0].digest
	for i := 1; i < len(workers); i++ {
		if err = digest.Aggregate(d.params, digest, workers[i].digest); err != nil {
			return nil, err
		}
	}

	return digest, nil
}
