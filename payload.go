package omr

import (
	"encoding/binary"
	"fmt"

	"github.com/Pro7ech/lattigo/utils/sampling"
	"github.com/zeebo/blake3"
)

const (
	// PayloadSize is the fixed byte length of a sealed payload. Every
	// bulletin entry carries exactly this many payload bytes.
	PayloadSize = 612

	payloadNonceSize  = 16
	payloadLengthSize = 2

	// PayloadBodySize is the maximum plaintext body length of a payload.
	PayloadBodySize = PayloadSize - payloadNonceSize - payloadLengthSize
)

// Payload is a sealed, fixed-size message body. The detector treats its
// bytes as opaque weights; only holders of the PayloadKey can open it.
type Payload [PayloadSize]byte

// PayloadKey seals and opens payloads. It is shared out of band between
// senders and the recipient and is independent of the lattice key material.
type PayloadKey [32]byte

// NewPayloadKey samples a fresh PayloadKey.
func NewPayloadKey() PayloadKey {
	return PayloadKey(sampling.NewSeed())
}

// SealPayload seals body into a fixed-size Payload: a fresh nonce followed
// by the length-prefixed body masked with a keyed BLAKE3 stream.
func SealPayload(key PayloadKey, body []byte) (p Payload, err error) {

	if len(body) > PayloadBodySize {
		return p, fmt.Errorf("invalid body: %d bytes exceeds the maximum of %d", len(body), PayloadBodySize)
	}

	nonce := sampling.NewSeed()
	copy(p[:payloadNonceSize], nonce[:payloadNonceSize])

	binary.LittleEndian.PutUint16(p[payloadNonceSize:], uint16(len(body)))
	copy(p[payloadNonceSize+payloadLengthSize:], body)

	pad, err := payloadPad(key, p[:payloadNonceSize])
	if err != nil {
		return p, err
	}

	for i := payloadNonceSize; i < PayloadSize; i++ {
		p[i] ^= pad[i-payloadNonceSize]
	}

	return p, nil
}

// OpenPayload opens a sealed Payload. It returns an error if the unmasked
// length prefix is inconsistent, which is the common failure mode of a
// payload recovered from a false-positive indicator or opened with the
// wrong key.
func OpenPayload(key PayloadKey, p Payload) (body []byte, err error) {

	pad, err := payloadPad(key, p[:payloadNonceSize])
	if err != nil {
		return nil, err
	}

	buf := make([]byte, PayloadSize-payloadNonceSize)
	for i := range buf {
		buf[i] = p[payloadNonceSize+i] ^ pad[i]
	}

	n := int(binary.LittleEndian.Uint16(buf))
	if n > PayloadBodySize {
		return nil, fmt.Errorf("invalid payload: length prefix %d exceeds the maximum of %d", n, PayloadBodySize)
	}

	return buf[payloadLengthSize : payloadLengthSize+n], nil
}

func payloadPad(key PayloadKey, nonce []byte) ([]byte, error) {

	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		return nil, fmt.Errorf("blake3.NewKeyed: %w", err)
	}

	if _, err = h.Write(nonce); err != nil {
		return nil, err
	}

	pad := make([]byte, PayloadSize-payloadNonceSize)
	if _, err = h.Digest().Read(pad); err != nil {
		return nil, err
	}

	return pad, nil
}
