// internal/decode/decode.go
package decode

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/minvws/base45-go/eubase45"
	"github.com/veraison/go-cose"

	"github.com/solatis/healthcert/internal/types"
)

/*
 * QR payload decode chain.
 *
 * Layers, outermost first:
 *   1. Text prefix: "HC1:" for a DCC, "LT1:" for a light certificate
 *   2. Base45 (the EU alphabet)
 *   3. zlib; payloads that do not start with a zlib header are taken raw
 *   4. COSE_Sign1, tagged or untagged
 *   5. CWT claims carrying the certificate as a nested CBOR map
 *
 * Decoding never checks the signature. Each layer maps its failure to one
 * sentinel so callers can derive a stable diagnostic code with ErrorCode.
 */

const (
	PrefixDCC   = "HC1:"
	PrefixLight = "LT1:"
)

type hcertClaim struct {
	DCC *types.DccCert `cbor:"1,keyasint"`
}

type lightClaim struct {
	Light *types.LightCert `cbor:"1,keyasint"`
}

// cwtClaims holds the RFC 8392 claims plus the hcert (-260) and light (-250)
// extensions.
type cwtClaims struct {
	Issuer     string      `cbor:"1,keyasint,omitempty"`
	Expiration *int64      `cbor:"4,keyasint,omitempty"`
	IssuedAt   *int64      `cbor:"6,keyasint,omitempty"`
	HCert      *hcertClaim `cbor:"-260,keyasint,omitempty"`
	Light      *lightClaim `cbor:"-250,keyasint,omitempty"`
}

// Decode runs the full chain and returns the certificate holder with its
// envelope fields and detected type. The signature is not verified.
func Decode(qr string) (*types.CertificateHolder, error) {
	msg, err := Unwrap(qr)
	if err != nil {
		return nil, err
	}

	holder, err := parseClaims(msg.Payload)
	if err != nil {
		return nil, err
	}
	holder.QRCodeData = qr
	holder.KeyID = KeyID(msg)
	holder.CertType = DetectCertType(holder)
	return holder, nil
}

// Unwrap strips the prefix, base45 and zlib layers and parses the
// COSE_Sign1 message. The signature verifier re-runs this on the holder's
// QR text to recover the signed bytes.
func Unwrap(qr string) (*cose.Sign1Message, error) {
	if len(qr) > types.MaxQRPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", types.ErrPayloadTooLarge, len(qr))
	}

	encoded, err := stripPrefix(strings.TrimSpace(qr))
	if err != nil {
		return nil, err
	}

	compressed, err := eubase45.EUBase45Decode([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadBase45, err)
	}

	raw, err := inflate(compressed)
	if err != nil {
		return nil, err
	}

	return ParseSign1(raw)
}

func stripPrefix(qr string) (string, error) {
	switch {
	case strings.HasPrefix(qr, PrefixDCC):
		return qr[len(PrefixDCC):], nil
	case strings.HasPrefix(qr, PrefixLight):
		return qr[len(PrefixLight):], nil
	default:
		return "", types.ErrBadPrefix
	}
}

// inflate decompresses zlib data. Input without the zlib CMF byte is
// returned unchanged; some issuers skip compression for short payloads.
func inflate(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != 0x78 {
		return data, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadCompression, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, types.MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadCompression, err)
	}
	if len(out) > types.MaxDecompressedSize {
		return nil, fmt.Errorf("%w: inflated body above %d bytes", types.ErrPayloadTooLarge, types.MaxDecompressedSize)
	}
	return out, nil
}

func parseClaims(payload []byte) (*types.CertificateHolder, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", types.ErrBadCbor)
	}

	var claims cwtClaims
	if err := cbor.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadCbor, err)
	}

	holder := &types.CertificateHolder{
		Issuer:         claims.Issuer,
		ExpirationTime: epoch(claims.Expiration),
		IssuedAt:       epoch(claims.IssuedAt),
	}

	switch {
	case claims.HCert != nil:
		if claims.HCert.DCC == nil {
			return nil, fmt.Errorf("%w: hcert claim without certificate", types.ErrBadCbor)
		}
		holder.Certificate = claims.HCert.DCC
	case claims.Light != nil:
		if claims.Light.Light == nil {
			return nil, fmt.Errorf("%w: light claim without certificate", types.ErrBadCbor)
		}
		holder.Certificate = claims.Light.Light
	default:
		return nil, fmt.Errorf("%w: no certificate claim", types.ErrBadCbor)
	}
	return holder, nil
}

func epoch(seconds *int64) *time.Time {
	if seconds == nil {
		return nil
	}
	t := time.Unix(*seconds, 0).UTC()
	return &t
}

// DetectCertType classifies the holder's certificate. A DCC carrying several
// kinds resolves to vaccination over recovery over test; a DCC without any
// entry is unknown.
func DetectCertType(h *types.CertificateHolder) types.CertType {
	if h.ContainsLight() {
		return types.CertTypeLight
	}
	dcc, ok := h.DCC()
	if !ok {
		return types.CertTypeUnknown
	}

	certType := types.CertTypeUnknown
	if len(dcc.Tests) > 0 {
		certType = types.CertTypeTest
	}
	if len(dcc.Recoveries) > 0 {
		certType = types.CertTypeRecovery
	}
	if len(dcc.Vaccinations) > 0 {
		certType = types.CertTypeVaccination
	}
	return certType
}
