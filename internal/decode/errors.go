// internal/decode/errors.go
package decode

import (
	"errors"

	"github.com/solatis/healthcert/internal/types"
)

// ErrorCode maps a decode error to its diagnostic code. Oversized payloads
// report as the layer that could not be read; unknown errors as COSE.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrBadPrefix):
		return types.ErrorCodeDecodePrefix
	case errors.Is(err, types.ErrBadBase45):
		return types.ErrorCodeDecodeBase45
	case errors.Is(err, types.ErrBadCompression), errors.Is(err, types.ErrPayloadTooLarge):
		return types.ErrorCodeDecodeZlib
	case errors.Is(err, types.ErrBadCbor):
		return types.ErrorCodeDecodeCbor
	default:
		return types.ErrorCodeDecodeCose
	}
}
