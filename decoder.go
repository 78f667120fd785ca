package omr

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Pro7ech/lattigo/rlwe"
	"golang.org/x/exp/slices"
)

// ErrIncompleteDecode is returned by Decode when the peeling decode stalls
// before consuming the whole sketch: more pertinent messages were folded in
// than the digest capacity, or the digest noise exceeded its budget. The
// result returned alongside it is valid but partial.
var ErrIncompleteDecode = errors.New("incomplete decode: sketch not fully peeled")

// DecodedMessage is one recovered bulletin entry.
type DecodedMessage struct {
	// Index is the position of the message in the scanned bulletin.
	Index int
	// Payload is the opened payload body.
	Payload []byte
}

// Decoder recovers the pertinent messages from a digest. It holds the
// recipient's second level secret and is the only party able to read a
// digest.
type Decoder struct {
	params Parameters
	sketch *sketch
	dec    *rlwe.Decryptor
	buffPt *rlwe.Plaintext
}

// NewDecoder instantiates a new Decoder from the recipient's key material.
func NewDecoder(params Parameters, skp *SecretKeyPack) *Decoder {
	return &Decoder{
		params: params,
		sketch: newSketch(params),
		dec:    rlwe.NewDecryptor(params.br2, skp.SecondLevel),
		buffPt: rlwe.NewPlaintext(params.br2, params.br2.MaxLevel(), -1),
	}
}

// Decode decrypts the digest and peels it back into the exact set of
// pertinent (index, payload) pairs, sorted by index. bulletinSize must be
// the size of the scanned bulletin; payloadKey opens the recovered
// payloads.
//
// A payload that fails to open (e.g. recovered through a false-positive
// indicator) is returned with a nil Payload rather than dropped, so the
// caller still learns the index. If the peeling stalls, the partial result
// is returned together with ErrIncompleteDecode.
func (d *Decoder) Decode(digest *Digest, payloadKey PayloadKey, bulletinSize int) (msgs []DecodedMessage, err error) {

	if bulletinSize < 1 || bulletinSize > MaxBulletinSize {
		return nil, fmt.Errorf("invalid bulletinSize=%d: must be in [1, %d]", bulletinSize, MaxBulletinSize)
	}

	if len(digest.Index) != d.params.IndexDigestSize() || len(digest.Payload) != d.params.PayloadDigestSize() {
		return nil, fmt.Errorf("invalid digest: size does not match the decoder parameters")
	}

	idxVals := make([]uint64, d.sketch.indexSlotCount())
	d.decryptSlots(digest.Index, idxVals)

	payVals := make([]uint64, d.sketch.payloadSlotCount())
	d.decryptSlots(digest.Payload, payVals)

	indices, payloads, clean := peel(d.sketch, bulletinSize, idxVals, payVals)

	msgs = make([]DecodedMessage, len(indices))
	for i := range indices {
		msgs[i] = DecodedMessage{Index: indices[i]}
		if body, err := OpenPayload(payloadKey, payloads[i]); err == nil {
			msgs[i].Payload = body
		}
	}

	slices.SortFunc(msgs, func(a, b DecodedMessage) int { return a.Index - b.Index })

	if !clean {
		return msgs, ErrIncompleteDecode
	}

	return msgs, nil
}

// decryptSlots decrypts the digest ciphertexts and rounds each coefficient
// to the output plaintext space.
func (d *Decoder) decryptSlots(cts []rlwe.Ciphertext, out []uint64) {

	rQ := d.params.br2.RingQ()
	q := d.params.br2.Q()[0]
	N := d.params.br2.N()

	for i := range cts {

		d.dec.Decrypt(&cts[i], d.buffPt)

		if d.buffPt.IsNTT {
			rQ.INTT(d.buffPt.Q, d.buffPt.Q)
		}

		coeffs := d.buffPt.Q.At(0)
		for j := 0; j < N && i*N+j < len(out); j++ {
			out[i*N+j] = roundToPlaintext(coeffs[j], q)
		}
	}
}

// roundToPlaintext computes round(c * PlaintextModulus / q) mod
// PlaintextModulus with 128-bit intermediates, since c * PlaintextModulus
// overflows 64 bits for a 50-bit q.
func roundToPlaintext(c, q uint64) uint64 {
	hi, lo := bits.Mul64(c, PlaintextModulus)
	carry := lo + q>>1
	if carry < lo {
		hi++
	}
	quo, _ := bits.Div64(hi, carry, q)
	return quo & (PlaintextModulus - 1)
}
