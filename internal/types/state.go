// internal/types/state.go
package types

/*
 * Verification verdicts.
 *
 * Every check produces a closed set of outcomes. Each set is an interface
 * with an unexported marker method so that only the variants declared here
 * satisfy it; consumers switch on the concrete type and treat the default
 * arm as a programming error.
 *
 * Lifecycle: verdicts are plain values created per verification call and are
 * never shared or mutated afterwards.
 */

// Diagnostic codes carried on Invalid and Error verdicts.
const (
	ErrorCodeDecodePrefix = "D|PRX"
	ErrorCodeDecodeBase45 = "D|B45"
	ErrorCodeDecodeZlib   = "D|ZLB"
	ErrorCodeDecodeCose   = "D|CSE"
	ErrorCodeDecodeCbor   = "D|CBR"

	ErrorCodeSignatureUnknown          = "S|UNK"
	ErrorCodeSignatureCoseInvalid      = "S|CSE"
	ErrorCodeSignatureTypeInvalid      = "S|TIV"
	ErrorCodeSignatureTimestampNotYet  = "S|NYV"
	ErrorCodeSignatureTimestampExpired = "S|EXP"

	ErrorCodeRevocationRevoked = "R|REV"
	ErrorCodeRevocationUnknown = "R|UNK"

	ErrorCodeRulesetUnknown = "N|RSU"
)

// StateError describes why a check could not be completed.
type StateError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e StateError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// SignatureState is the outcome of the signature branch.
type SignatureState interface{ isSignatureState() }

type (
	SignatureSuccess struct{}
	SignatureInvalid struct{ Code string }
	SignatureError   struct{ Err StateError }
)

func (SignatureSuccess) isSignatureState() {}
func (SignatureInvalid) isSignatureState() {}
func (SignatureError) isSignatureState()   {}

// RevocationState is the outcome of the revocation branch.
type RevocationState interface{ isRevocationState() }

type (
	RevocationSuccess struct{}
	RevocationSkipped struct{}
	RevocationInvalid struct{ Code string }
	RevocationError   struct{ Err StateError }
)

func (RevocationSuccess) isRevocationState() {}
func (RevocationSkipped) isRevocationState() {}
func (RevocationInvalid) isRevocationState() {}
func (RevocationError) isRevocationState()   {}

// NationalRulesState is the outcome of the business-rule branch.
type NationalRulesState interface{ isNationalRulesState() }

type (
	// NationalRulesSuccess carries the display window and flags. Window is nil
	// for foreign checks without display rules.
	NationalRulesSuccess struct {
		Window          *ValidityRange
		IsOnlyValidInCH bool
		EOLBanner       string
		RenewBanner     string
	}

	// NationalRulesInvalid names the first failing rule.
	NationalRulesInvalid struct {
		Error       NationalRulesError
		RuleID      string
		RenewBanner string
	}

	// NationalRulesNotYetValid means the certificate becomes valid inside Window.
	NationalRulesNotYetValid struct {
		Window      ValidityRange
		RuleID      string
		RenewBanner string
	}

	// NationalRulesNotValidAnymore means Window has already passed.
	NationalRulesNotValidAnymore struct {
		Window      ValidityRange
		RuleID      string
		RenewBanner string
	}

	NationalRulesCheckError struct{ Err StateError }
)

func (NationalRulesSuccess) isNationalRulesState()         {}
func (NationalRulesInvalid) isNationalRulesState()         {}
func (NationalRulesNotYetValid) isNationalRulesState()     {}
func (NationalRulesNotValidAnymore) isNationalRulesState() {}
func (NationalRulesCheckError) isNationalRulesState()      {}

// NationalWindow returns the validity window carried by a national verdict, if any.
func NationalWindow(s NationalRulesState) *ValidityRange {
	switch st := s.(type) {
	case NationalRulesSuccess:
		return st.Window
	case NationalRulesNotYetValid:
		w := st.Window
		return &w
	case NationalRulesNotValidAnymore:
		w := st.Window
		return &w
	default:
		return nil
	}
}

// NationalRenewBanner returns the renew banner carried by a national verdict.
func NationalRenewBanner(s NationalRulesState) string {
	switch st := s.(type) {
	case NationalRulesSuccess:
		return st.RenewBanner
	case NationalRulesInvalid:
		return st.RenewBanner
	case NationalRulesNotYetValid:
		return st.RenewBanner
	case NationalRulesNotValidAnymore:
		return st.RenewBanner
	default:
		return ""
	}
}

// ModeValidityState grades a certificate against one verification mode.
type ModeValidityState string

const (
	ModeSuccess       ModeValidityState = "SUCCESS"
	ModeIsLight       ModeValidityState = "IS_LIGHT"
	ModeInvalid       ModeValidityState = "INVALID"
	ModeUnknownMode   ModeValidityState = "UNKNOWN_MODE"
	ModeUnknown       ModeValidityState = "UNKNOWN"
	ModeSuccess2G     ModeValidityState = "SUCCESS_2G"
	ModeSuccess2GPlus ModeValidityState = "SUCCESS_2G_PLUS"
)

// ModeValidity is the graded result for one requested mode.
type ModeValidity struct {
	Mode  string            `json:"mode"`
	State ModeValidityState `json:"state"`
}

// ModeRulesState is the outcome of the mode-rule branch.
type ModeRulesState interface{ isModeRulesState() }

type (
	ModeRulesSuccess struct{ Validities []ModeValidity }
	ModeRulesError   struct{ Err StateError }
)

func (ModeRulesSuccess) isModeRulesState() {}
func (ModeRulesError) isModeRulesState()   {}

// SuccessResult is the flavor-specific payload of a successful verification.
type SuccessResult interface{ isSuccessResult() }

// WalletSuccess carries everything a holder app displays.
type WalletSuccess struct {
	IsOnlyValidInCH bool
	Window          *ValidityRange
	ModeValidities  []ModeValidity
	EOLBanner       string
	RenewBanner     string
}

// VerifierSuccess carries the single mode result a checking app displays.
type VerifierSuccess struct {
	ModeValidity ModeValidity
}

func (WalletSuccess) isSuccessResult()   {}
func (VerifierSuccess) isSuccessResult() {}

// VerificationState is the reduced verdict of all four branches.
type VerificationState interface{ isVerificationState() }

type (
	VerificationSuccess struct {
		Result  SuccessResult
		IsLight bool
	}

	VerificationInvalid struct {
		Signature   SignatureState
		Revocation  RevocationState
		National    NationalRulesState
		Window      *ValidityRange
		RenewBanner string
	}

	VerificationError struct {
		Err    StateError
		Window *ValidityRange
	}

	// VerificationLoading is only produced when no other reduction arm
	// matched, which indicates a branch returned an unexpected variant.
	VerificationLoading struct{}
)

func (VerificationSuccess) isVerificationState() {}
func (VerificationInvalid) isVerificationState() {}
func (VerificationError) isVerificationState()   {}
func (VerificationLoading) isVerificationState() {}
