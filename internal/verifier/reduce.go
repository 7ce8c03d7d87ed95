// internal/verifier/reduce.go
package verifier

import "github.com/solatis/healthcert/internal/types"

/*
 * Verdict reduction. First match wins:
 *   1. Any branch Error -> Error, in the order signature, revocation,
 *      national, mode. Signature and revocation errors carry the national
 *      window; national and mode errors carry none.
 *   2. Every branch successful (revocation may be skipped) -> Success in
 *      the requested flavor.
 *   3. Signature or revocation Invalid, or national Invalid, NotYetValid
 *      or NotValidAnymore -> Invalid with all branch states.
 *   4. Otherwise Loading. Only reachable when a branch returned a variant
 *      the arms above do not know.
 */

// Reduce combines the four branch states into one verdict.
func Reduce(
	sig types.SignatureState,
	rev types.RevocationState,
	nat types.NationalRulesState,
	mode types.ModeRulesState,
	flavor types.VerificationType,
	isLight bool,
) types.VerificationState {
	if st, ok := sig.(types.SignatureError); ok {
		return types.VerificationError{Err: st.Err, Window: types.NationalWindow(nat)}
	}
	if st, ok := rev.(types.RevocationError); ok {
		return types.VerificationError{Err: st.Err, Window: types.NationalWindow(nat)}
	}
	if st, ok := nat.(types.NationalRulesCheckError); ok {
		return types.VerificationError{Err: st.Err}
	}
	if st, ok := mode.(types.ModeRulesError); ok {
		return types.VerificationError{Err: st.Err}
	}

	_, sigOK := sig.(types.SignatureSuccess)
	revOK := false
	switch rev.(type) {
	case types.RevocationSuccess, types.RevocationSkipped:
		revOK = true
	}
	natSuccess, natOK := nat.(types.NationalRulesSuccess)
	modeSuccess, modeOK := mode.(types.ModeRulesSuccess)

	if sigOK && revOK && natOK && modeOK {
		return types.VerificationSuccess{
			Result:  successResult(natSuccess, modeSuccess, flavor),
			IsLight: isLight,
		}
	}

	invalid := false
	if _, ok := sig.(types.SignatureInvalid); ok {
		invalid = true
	}
	if _, ok := rev.(types.RevocationInvalid); ok {
		invalid = true
	}
	switch nat.(type) {
	case types.NationalRulesInvalid, types.NationalRulesNotYetValid, types.NationalRulesNotValidAnymore:
		invalid = true
	}
	if invalid {
		return types.VerificationInvalid{
			Signature:   sig,
			Revocation:  rev,
			National:    nat,
			Window:      types.NationalWindow(nat),
			RenewBanner: types.NationalRenewBanner(nat),
		}
	}

	return types.VerificationLoading{}
}

func successResult(nat types.NationalRulesSuccess, mode types.ModeRulesSuccess, flavor types.VerificationType) types.SuccessResult {
	if flavor == types.VerificationTypeWallet {
		return types.WalletSuccess{
			IsOnlyValidInCH: nat.IsOnlyValidInCH,
			Window:          nat.Window,
			ModeValidities:  mode.Validities,
			EOLBanner:       nat.EOLBanner,
			RenewBanner:     nat.RenewBanner,
		}
	}

	// A verifier check without modes has nothing to grade.
	if len(mode.Validities) == 0 {
		return types.VerifierSuccess{ModeValidity: types.ModeValidity{State: types.ModeUnknown}}
	}
	return types.VerifierSuccess{ModeValidity: mode.Validities[0]}
}

// StateName is the metric and log label for a verdict.
func StateName(s types.VerificationState) string {
	switch s.(type) {
	case types.VerificationSuccess:
		return "success"
	case types.VerificationInvalid:
		return "invalid"
	case types.VerificationError:
		return "error"
	default:
		return "loading"
	}
}
