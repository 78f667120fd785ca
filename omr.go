// Package omr implements oblivious message retrieval: an untrusted detector
// scans a public bulletin of (clue, payload) pairs on behalf of a recipient
// and produces a compact encrypted digest from which the recipient recovers
// exactly the messages addressed to them, while the detector learns nothing
// about which messages those are.
//
// The pipeline has five roles:
//
//   - KeyGenerator derives the recipient's SecretKeyPack and the two public
//     artifacts: the ClueKey handed to senders and the DetectionKey handed
//     to the detector.
//   - Sender encodes a Clue bound to a recipient's ClueKey and seals the
//     message Payload.
//   - Detector homomorphically evaluates, per message, a pertinence
//     predicate on the clue via two levels of blind rotation, yielding an
//     encrypted Indicator it cannot read.
//   - Compactor folds indicator-weighted message data into a fixed-size
//     Digest whose size depends only on the digest capacity, not on the
//     bulletin size.
//   - Decoder decrypts the digest and recovers the pertinent (index,
//     payload) pairs with an iterative peeling decode.
package omr

import (
	"github.com/Pro7ech/lattigo/rlwe"
)

// Clue is the per-message ciphertext over the clue algebra, encrypted to
// exactly one recipient's ClueKey. It encrypts the all-zero tag; decrypting
// it under any other key yields uniformly random tag values, which is what
// the pertinence predicate discriminates.
type Clue struct {
	Ct rlwe.Ciphertext
}

// BinarySize returns the serialized size of the clue in bytes.
func (c *Clue) BinarySize() int {
	return c.Ct.BinarySize()
}

// Indicator is the encrypted pertinence scalar of a single message, over
// the compaction algebra. It encrypts delta if the message is pertinent and
// zero otherwise, in the constant coefficient, and is never decrypted by
// the detector.
type Indicator struct {
	Ct rlwe.Ciphertext
}

// Message is one bulletin entry. The index of a message is its position in
// the bulletin slice; it is not stored in the ciphertexts.
type Message struct {
	Clue    *Clue
	Payload Payload
}
