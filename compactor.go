package omr

import (
	"fmt"

	"github.com/Pro7ech/lattigo/ring"
)

// Compactor folds indicator-weighted message data into a Digest. For each
// message it builds sparse placement polynomials holding the message's
// bucket contents (index digits, counter, sealed payload bytes) and
// accumulates indicator x placement into the digest ciphertexts. A zero
// indicator contributes only noise, so non-pertinent messages leave no
// trace in the decoded digest.
//
// A Compactor is not safe for concurrent use; see ShallowCopy.
type Compactor struct {
	params Parameters
	sketch *sketch

	buff        ring.RNSPoly
	indexSlots  [][]slotValue // per index-digest ciphertext
	payloadSlot [][]slotValue // per payload-digest ciphertext
}

type slotValue struct {
	coeff int
	value uint64
}

// NewCompactor instantiates a new Compactor.
func NewCompactor(params Parameters) *Compactor {
	return &Compactor{
		params:      params,
		sketch:      newSketch(params),
		buff:        params.br2.RingQ().NewRNSPoly(),
		indexSlots:  make([][]slotValue, params.IndexDigestSize()),
		payloadSlot: make([][]slotValue, params.PayloadDigestSize()),
	}
}

// ShallowCopy creates a copy of the Compactor that can be used concurrently
// with the receiver.
func (c *Compactor) ShallowCopy() *Compactor {
	return NewCompactor(c.params)
}

// Accumulate adds the contribution of the message at the given bulletin
// index, weighted by its encrypted pertinence indicator, to the digest.
func (c *Compactor) Accumulate(index int, payload Payload, indicator *Indicator, digest *Digest) (err error) {

	if index < 0 || index >= MaxBulletinSize {
		return fmt.Errorf("invalid index=%d: must be in [0, %d)", index, MaxBulletinSize)
	}

	if len(digest.Index) != len(c.indexSlots) || len(digest.Payload) != len(c.payloadSlot) {
		return fmt.Errorf("invalid digest: size does not match the compactor parameters")
	}

	N := c.params.br2.N()

	for i := range c.indexSlots {
		c.indexSlots[i] = c.indexSlots[i][:0]
	}
	for i := range c.payloadSlot {
		c.payloadSlot[i] = c.payloadSlot[i][:0]
	}

	for level := 0; level < c.sketch.levels; level++ {

		bucket := c.sketch.bucket(level, index)

		o := c.sketch.indexOffset(level, bucket)
		c.addSlot(c.indexSlots, N, o, uint64(index&0xff))
		c.addSlot(c.indexSlots, N, o+1, uint64(index>>8))
		c.addSlot(c.indexSlots, N, o+2, 1)

		po := c.sketch.payloadOffset(level, bucket)
		for j := 0; j < PayloadSize; j++ {
			if payload[j] != 0 {
				c.addSlot(c.payloadSlot, N, po+j, uint64(payload[j]))
			}
		}
	}

	rQ := c.params.br2.RingQ()

	for i, slots := range c.indexSlots {
		if len(slots) == 0 {
			continue
		}
		c.placement(slots)
		rQ.MulCoeffsMontgomeryThenAdd(indicator.Ct.Q[0], c.buff, digest.Index[i].Q[0])
		rQ.MulCoeffsMontgomeryThenAdd(indicator.Ct.Q[1], c.buff, digest.Index[i].Q[1])
	}

	for i, slots := range c.payloadSlot {
		if len(slots) == 0 {
			continue
		}
		c.placement(slots)
		rQ.MulCoeffsMontgomeryThenAdd(indicator.Ct.Q[0], c.buff, digest.Payload[i].Q[0])
		rQ.MulCoeffsMontgomeryThenAdd(indicator.Ct.Q[1], c.buff, digest.Payload[i].Q[1])
	}

	return nil
}

func (c *Compactor) addSlot(slots [][]slotValue, N, globalSlot int, value uint64) {
	slots[globalSlot/N] = append(slots[globalSlot/N], slotValue{coeff: globalSlot % N, value: value})
}

// placement writes the sparse slot values into the scratch polynomial and
// brings it to the NTT and Montgomery domain.
func (c *Compactor) placement(slots []slotValue) {

	rQ := c.params.br2.RingQ()

	c.buff.Zero()
	for level := range c.buff {
		coeffs := c.buff.At(level)
		for _, sv := range slots {
			coeffs[sv.coeff] = sv.value
		}
	}

	rQ.NTT(c.buff, c.buff)
	rQ.MForm(c.buff, c.buff)
}
