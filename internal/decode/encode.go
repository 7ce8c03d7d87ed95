// internal/decode/encode.go
package decode

import (
	"bytes"
	"compress/zlib"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/minvws/base45-go/eubase45"

	"github.com/solatis/healthcert/internal/types"
)

// MarshalClaims encodes the holder's certificate and envelope fields as a
// CWT claim set, the inverse of the claim step of Decode.
func MarshalClaims(h *types.CertificateHolder) ([]byte, error) {
	claims := cwtClaims{Issuer: h.Issuer}
	if h.ExpirationTime != nil {
		exp := h.ExpirationTime.Unix()
		claims.Expiration = &exp
	}
	if h.IssuedAt != nil {
		iat := h.IssuedAt.Unix()
		claims.IssuedAt = &iat
	}

	switch cert := h.Certificate.(type) {
	case *types.DccCert:
		claims.HCert = &hcertClaim{DCC: cert}
	case *types.LightCert:
		claims.Light = &lightClaim{Light: cert}
	default:
		return nil, types.ErrUnknownCertType
	}
	return cbor.Marshal(claims)
}

// Encode wraps a serialized COSE_Sign1 message into QR text: zlib, base45
// and the prefix for the certificate shape.
func Encode(sign1 []byte, light bool) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(sign1); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}

	prefix := PrefixDCC
	if light {
		prefix = PrefixLight
	}
	return prefix + string(eubase45.EUBase45Encode(buf.Bytes())), nil
}
