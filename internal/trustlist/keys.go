// internal/trustlist/keys.go
package trustlist

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/solatis/healthcert/internal/types"
)

/*
 * Document-signer keys.
 *
 * Trust lists publish keys in JWK shape: EC keys as curve plus affine x/y,
 * RSA keys as modulus n and exponent e, all base64. ParseKey turns one entry
 * into a crypto.PublicKey usable by the COSE verifier; CandidateKeys picks
 * the keys that may verify a given certificate.
 */

// minRSABits matches the minimum PS256 key size accepted by the COSE library.
const minRSABits = 2048

// ParseKey converts a trust-list entry to a public key.
func ParseKey(k types.SigningKey) (crypto.PublicKey, error) {
	switch {
	case k.X != "" || k.Y != "":
		return parseECKey(k)
	case k.N != "" || k.E != "":
		return parseRSAKey(k)
	default:
		return nil, fmt.Errorf("%w: key %s has no key material", types.ErrUnsupportedKey, k.KeyID)
	}
}

func parseECKey(k types.SigningKey) (*ecdsa.PublicKey, error) {
	if k.Crv != "" && k.Crv != "P-256" {
		return nil, fmt.Errorf("%w: curve %q", types.ErrUnsupportedKey, k.Crv)
	}

	x, err := types.DecodeBase64(k.X)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", types.ErrUnsupportedKey, err)
	}
	y, err := types.DecodeBase64(k.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: y: %v", types.ErrUnsupportedKey, err)
	}
	x, y = leftPad(x, 32), leftPad(y, 32)
	if len(x) != 32 || len(y) != 32 {
		return nil, fmt.Errorf("%w: coordinates are not 32 bytes", types.ErrUnsupportedKey)
	}

	// ecdh rejects points that are not on the curve.
	point := append(append([]byte{0x04}, x...), y...)
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedKey, err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

func parseRSAKey(k types.SigningKey) (*rsa.PublicKey, error) {
	n, err := types.DecodeBase64(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: n: %v", types.ErrUnsupportedKey, err)
	}
	e, err := types.DecodeBase64(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: e: %v", types.ErrUnsupportedKey, err)
	}

	modulus := new(big.Int).SetBytes(n)
	if modulus.BitLen() < minRSABits {
		return nil, fmt.Errorf("%w: RSA modulus of %d bits", types.ErrUnsupportedKey, modulus.BitLen())
	}
	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: RSA exponent out of range", types.ErrUnsupportedKey)
	}

	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// CandidateKeys returns the parsed keys whose id equals kid and whose usage
// permits certType. Entries that fail to parse are skipped.
func CandidateKeys(keys []types.SigningKey, kid []byte, certType types.CertType) []crypto.PublicKey {
	if len(kid) == 0 {
		return nil
	}

	var out []crypto.PublicKey
	for _, k := range keys {
		id, err := k.KeyIDBytes()
		if err != nil || !bytes.Equal(id, kid) {
			continue
		}
		if !k.Permits(certType) {
			continue
		}
		pub, err := ParseKey(k)
		if err != nil {
			continue
		}
		out = append(out, pub)
	}
	return out
}
