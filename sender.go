package omr

import (
	"fmt"

	"github.com/Pro7ech/lattigo/rlwe"
)

// Sender encodes clues bound to a single recipient's ClueKey. A Sender is
// cheap to instantiate and senders addressing different recipients simply
// hold one Sender per ClueKey.
type Sender struct {
	params Parameters
	enc    *rlwe.Encryptor
}

// NewSender instantiates a new Sender for the given recipient.
func NewSender(params Parameters, ck *ClueKey) *Sender {
	return &Sender{
		params: params,
		enc:    rlwe.NewEncryptor(params.clue, ck.PublicKey),
	}
}

// EncodeClue produces a fresh clue for the Sender's recipient: a public-key
// encryption of the all-zero tag. Each call consumes fresh encryption
// randomness, so clues for the same recipient are unlinkable.
func (s *Sender) EncodeClue() (*Clue, error) {

	ct := rlwe.NewCiphertext(s.params.clue, 1, s.params.clue.MaxLevel(), -1)

	if err := s.enc.EncryptZero(ct); err != nil {
		return nil, fmt.Errorf("enc.EncryptZero: %w", err)
	}

	return &Clue{Ct: *ct}, nil
}
