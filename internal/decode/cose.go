// internal/decode/cose.go
package decode

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/solatis/healthcert/internal/types"
)

// sign1Tag is CBOR tag 18 (COSE_Sign1) in its one-byte encoding.
const sign1Tag = 0xd2

// ParseSign1 parses a COSE_Sign1 message with or without its tag.
func ParseSign1(data []byte) (*cose.Sign1Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", types.ErrBadCose)
	}

	if data[0] == sign1Tag {
		var msg cose.Sign1Message
		if err := msg.UnmarshalCBOR(data); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBadCose, err)
		}
		return &msg, nil
	}

	var untagged cose.UntaggedSign1Message
	if err := untagged.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadCose, err)
	}
	msg := cose.Sign1Message(untagged)
	return &msg, nil
}

// KeyID returns the kid header, preferring the protected bucket. The kid is
// not integrity relevant, so either bucket is accepted. Returns nil when
// neither carries one.
func KeyID(msg *cose.Sign1Message) []byte {
	if kid, ok := msg.Headers.Protected[cose.HeaderLabelKeyID].([]byte); ok && len(kid) > 0 {
		return kid
	}
	if kid, ok := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte); ok && len(kid) > 0 {
		return kid
	}
	return nil
}

// VerifySignature reports whether any candidate key validates the message.
// Keys of the wrong type for the message algorithm, and keys the COSE
// library rejects, count as non-matching.
func VerifySignature(msg *cose.Sign1Message, keys []crypto.PublicKey) bool {
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return false
	}

	for _, key := range keys {
		if !keyMatchesAlgorithm(key, alg) {
			continue
		}
		verifier, err := cose.NewVerifier(alg, key)
		if err != nil {
			continue
		}
		if err := msg.Verify(nil, verifier); err == nil {
			return true
		}
	}
	return false
}

func keyMatchesAlgorithm(key crypto.PublicKey, alg cose.Algorithm) bool {
	switch key.(type) {
	case *ecdsa.PublicKey:
		return alg == cose.AlgorithmES256
	case *rsa.PublicKey:
		return alg == cose.AlgorithmPS256
	default:
		return false
	}
}
