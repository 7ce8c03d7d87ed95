// internal/verifier/checks.go
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/healthcert/internal/decode"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/trustlist"
	"github.com/solatis/healthcert/internal/types"
)

// panicMessage renders a recovered value for a StateError.
func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", r)
}

// checkSignature validates the certificate type, the CWT timestamps and the
// COSE signature against the trust list's keys.
func (v *Verifier) checkSignature(ctx context.Context, h *types.CertificateHolder, keys []types.SigningKey) (state types.SignatureState) {
	defer func() {
		if r := recover(); r != nil {
			state = types.SignatureError{Err: types.StateError{Code: types.ErrorCodeSignatureUnknown, Message: panicMessage(r)}}
		}
	}()

	if h.CertType == types.CertTypeUnknown {
		return types.SignatureInvalid{Code: types.ErrorCodeSignatureTypeInvalid}
	}
	if code := CheckTimestamps(h, v.now(), v.skew); code != "" {
		return types.SignatureInvalid{Code: code}
	}

	// The signed bytes come from the QR text, not from the decoded holder.
	msg, err := decode.Unwrap(h.QRCodeData)
	if err != nil {
		return types.SignatureInvalid{Code: decode.ErrorCode(err)}
	}

	candidates := trustlist.CandidateKeys(keys, decode.KeyID(msg), h.CertType)
	if !decode.VerifySignature(msg, candidates) {
		v.logger.DebugContext(ctx, "no trusted key validates the signature",
			"kid", h.KeyIDBase64(), "candidates", len(candidates))
		return types.SignatureInvalid{Code: types.ErrorCodeSignatureCoseInvalid}
	}
	return types.SignatureSuccess{}
}

// CheckTimestamps returns S|EXP when the expiration is not after now, or
// S|NYV when issuedAt lies more than skew after now. Expiry wins when both
// apply. Absent timestamps are not checked.
func CheckTimestamps(h *types.CertificateHolder, now time.Time, skew time.Duration) string {
	if h.ExpirationTime != nil && !h.ExpirationTime.After(now) {
		return types.ErrorCodeSignatureTimestampExpired
	}
	if h.IssuedAt != nil && h.IssuedAt.After(now.Add(skew)) {
		return types.ErrorCodeSignatureTimestampNotYet
	}
	return ""
}

// checkRevocation looks up the first certificate identifier. Light
// certificates carry no identifier and skip the check.
func (v *Verifier) checkRevocation(ctx context.Context, h *types.CertificateHolder, store types.RevocationStore) (state types.RevocationState) {
	defer func() {
		if r := recover(); r != nil {
			state = types.RevocationError{Err: types.StateError{Code: types.ErrorCodeRevocationUnknown, Message: panicMessage(r)}}
		}
	}()

	if h.ContainsLight() {
		return types.RevocationSkipped{}
	}
	dcc, ok := h.DCC()
	if !ok {
		return types.RevocationError{Err: types.StateError{Code: types.ErrorCodeRevocationUnknown, Message: types.ErrUnknownCertType.Error()}}
	}

	id, ok := FirstCertificateIdentifier(dcc)
	if !ok || store == nil {
		return types.RevocationSuccess{}
	}

	revoked, err := store.Contains(ctx, id)
	if err != nil {
		return types.RevocationError{Err: types.StateError{Code: types.ErrorCodeRevocationUnknown, Message: err.Error()}}
	}
	if revoked {
		return types.RevocationInvalid{Code: types.ErrorCodeRevocationRevoked}
	}
	return types.RevocationSuccess{}
}

// FirstCertificateIdentifier returns the identifier of the first entry of
// the first non-empty kind, in the order tests, vaccinations, recoveries.
// Later entries are never consulted.
func FirstCertificateIdentifier(dcc *types.DccCert) (string, bool) {
	switch {
	case len(dcc.Tests) > 0:
		return dcc.Tests[0].CertificateIdentifier, true
	case len(dcc.Vaccinations) > 0:
		return dcc.Vaccinations[0].CertificateIdentifier, true
	case len(dcc.Recoveries) > 0:
		return dcc.Recoveries[0].CertificateIdentifier, true
	default:
		return "", false
	}
}

// checkNational runs the business rules for a DCC. Light certificates are
// valid from issuance to expiry without consulting rules.
func (v *Verifier) checkNational(ctx context.Context, req Request) (state types.NationalRulesState) {
	defer func() {
		if r := recover(); r != nil {
			state = types.NationalRulesCheckError{Err: types.StateError{Code: types.ErrorCodeRulesetUnknown, Message: panicMessage(r)}}
		}
	}()

	h := req.Holder
	if h.ContainsLight() {
		return v.national.LightCertificateState(h)
	}
	dcc, ok := h.DCC()
	if !ok {
		return types.NationalRulesCheckError{Err: types.StateError{Code: types.ErrorCodeRulesetUnknown, Message: types.ErrUnknownCertType.Error()}}
	}

	return v.national.Verify(ctx, rules.NationalRequest{
		Certificate: dcc,
		RuleSet:     req.TrustList.RuleSet,
		CertType:    h.CertType,
		Headers:     rules.HeadersFromHolder(h, ""),
		AsOf:        req.AsOf,
		IsForeign:   req.IsForeign,
	})
}

// checkModes grades the certificate once per requested mode. Foreign checks
// skip mode rules and succeed with no grades.
func (v *Verifier) checkModes(ctx context.Context, req Request) (state types.ModeRulesState) {
	defer func() {
		if r := recover(); r != nil {
			state = types.ModeRulesError{Err: types.StateError{Code: types.ErrorCodeRulesetUnknown, Message: panicMessage(r)}}
		}
	}()

	if req.IsForeign {
		return types.ModeRulesSuccess{}
	}
	h := req.Holder
	if !h.ContainsDCC() && !h.ContainsLight() {
		return types.ModeRulesError{Err: types.StateError{Code: types.ErrorCodeRulesetUnknown, Message: types.ErrUnknownCertType.Error()}}
	}

	validities := make([]types.ModeValidity, 0, len(req.Modes))
	for _, mode := range req.Modes {
		validities = append(validities,
			v.mode.Verify(ctx, h.Certificate, req.TrustList.RuleSet, rules.HeadersFromHolder(h, mode), mode))
	}
	return types.ModeRulesSuccess{Validities: validities}
}
