// Package decodetest issues signed QR payloads for tests.
package decodetest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/veraison/go-cose"

	"github.com/solatis/healthcert/internal/decode"
	"github.com/solatis/healthcert/internal/types"
)

// Issuer signs certificates with a fresh ES256 key.
type Issuer struct {
	KeyID []byte
	Key   *ecdsa.PrivateKey

	// Untagged omits the COSE_Sign1 tag.
	Untagged bool

	// UnprotectedKID moves the kid into the unprotected header.
	UnprotectedKID bool
}

// NewIssuer generates a P-256 key under kid.
func NewIssuer(t testing.TB, kid string) *Issuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Issuer{KeyID: []byte(kid), Key: key}
}

// SigningKey returns the trust-list entry for the issuer's public key.
func (i *Issuer) SigningKey(t testing.TB, use string) types.SigningKey {
	t.Helper()
	pub, err := i.Key.PublicKey.ECDH()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	point := pub.Bytes() // 0x04 || X || Y
	return types.SigningKey{
		KeyID: base64.StdEncoding.EncodeToString(i.KeyID),
		Alg:   "ES256",
		Use:   use,
		Crv:   "P-256",
		X:     base64.RawURLEncoding.EncodeToString(point[1:33]),
		Y:     base64.RawURLEncoding.EncodeToString(point[33:]),
	}
}

// Sign returns the serialized COSE_Sign1 message for payload.
func (i *Issuer) Sign(t testing.TB, payload []byte) []byte {
	t.Helper()
	signer, err := cose.NewSigner(cose.AlgorithmES256, i.Key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	if i.UnprotectedKID {
		msg.Headers.Unprotected[cose.HeaderLabelKeyID] = i.KeyID
	} else {
		msg.Headers.Protected[cose.HeaderLabelKeyID] = i.KeyID
	}
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		t.Fatalf("sign: %v", err)
	}

	var raw []byte
	if i.Untagged {
		untagged := cose.UntaggedSign1Message(*msg)
		raw, err = untagged.MarshalCBOR()
	} else {
		raw, err = msg.MarshalCBOR()
	}
	if err != nil {
		t.Fatalf("marshal COSE: %v", err)
	}
	return raw
}

// Issue signs the holder's certificate and returns the QR text.
func (i *Issuer) Issue(t testing.TB, h *types.CertificateHolder) string {
	t.Helper()
	claims, err := decode.MarshalClaims(h)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	_, light := h.Certificate.(*types.LightCert)
	qr, err := decode.Encode(i.Sign(t, claims), light)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return qr
}
