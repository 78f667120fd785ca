package omr

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rlwe"
	"github.com/google/go-cmp/cmp"
)

// Digest is the fixed-size encrypted summary of a scan: the index digest
// encodes which bulletin positions were pertinent, the payload digest their
// sealed payload bytes. Its size depends only on the digest capacity, never
// on the bulletin size.
type Digest struct {
	Index   []rlwe.Ciphertext
	Payload []rlwe.Ciphertext
}

// NewDigest allocates a zero digest.
func NewDigest(params Parameters) (d *Digest) {

	d = &Digest{
		Index:   make([]rlwe.Ciphertext, params.IndexDigestSize()),
		Payload: make([]rlwe.Ciphertext, params.PayloadDigestSize()),
	}

	for i := range d.Index {
		d.Index[i] = *rlwe.NewCiphertext(params.br2, 1, params.br2.MaxLevel(), -1)
		d.Index[i].IsNTT = true
	}

	for i := range d.Payload {
		d.Payload[i] = *rlwe.NewCiphertext(params.br2, 1, params.br2.MaxLevel(), -1)
		d.Payload[i].IsNTT = true
	}

	return d
}

// Aggregate sets the receiver to a + b. Aggregation is an exact ring
// addition: it is commutative and associative, so per-worker partial
// digests can be merged in any order with a bit-identical result.
func (d *Digest) Aggregate(params Parameters, a, b *Digest) (err error) {

	if len(a.Index) != len(d.Index) || len(b.Index) != len(d.Index) ||
		len(a.Payload) != len(d.Payload) || len(b.Payload) != len(d.Payload) {
		return fmt.Errorf("invalid digests: mismatched sizes")
	}

	rQ := params.br2.RingQ()

	for i := range d.Index {
		rQ.Add(a.Index[i].Q[0], b.Index[i].Q[0], d.Index[i].Q[0])
		rQ.Add(a.Index[i].Q[1], b.Index[i].Q[1], d.Index[i].Q[1])
	}

	for i := range d.Payload {
		rQ.Add(a.Payload[i].Q[0], b.Payload[i].Q[0], d.Payload[i].Q[0])
		rQ.Add(a.Payload[i].Q[1], b.Payload[i].Q[1], d.Payload[i].Q[1])
	}

	return nil
}

// Equal reports whether the two digests hold identical ciphertexts.
func (d *Digest) Equal(other *Digest) bool {
	return cmp.Equal(d.Index, other.Index) && cmp.Equal(d.Payload, other.Payload)
}

// BinarySize returns the serialized size of the digest in bytes.
func (d *Digest) BinarySize() (size int) {
	for i := range d.Index {
		size += d.Index[i].BinarySize()
	}
	for i := range d.Payload {
		size += d.Payload[i].BinarySize()
	}
	return
}
