package api

import (
	"github.com/solatis/healthcert/internal/types"
	"github.com/solatis/healthcert/internal/verifier"
)

// Verdict is the client-facing rendering of a verification. The same shape
// is returned over HTTP (JSON) and gRPC (google.protobuf.Struct).
type Verdict struct {
	VerificationID  string               `json:"verificationId"`
	State           string               `json:"state"`
	CertType        string               `json:"certType,omitempty"`
	IsLight         bool                 `json:"isLight,omitempty"`
	Person          *Person              `json:"person,omitempty"`
	Validity        *types.ValidityRange `json:"validity,omitempty"`
	Modes           []types.ModeValidity `json:"modes,omitempty"`
	IsOnlyValidInCH bool                 `json:"isOnlyValidInCH,omitempty"`
	EOLBanner       string               `json:"eolBanner,omitempty"`
	RenewBanner     string               `json:"renewBanner,omitempty"`
	Reasons         []Reason             `json:"reasons,omitempty"`
	Error           *types.StateError    `json:"error,omitempty"`
}

// Person is the holder identity printed next to the verdict.
type Person struct {
	FamilyName       string `json:"familyName,omitempty"`
	GivenName        string `json:"givenName,omitempty"`
	StandardizedName string `json:"standardizedName"`
	DateOfBirth      string `json:"dateOfBirth"`
}

// Reason is one failed branch of an invalid verdict.
type Reason struct {
	Branch string `json:"branch"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	RuleID string `json:"ruleId,omitempty"`
}

// Reason statuses.
const (
	StatusInvalid         = "invalid"
	StatusNotYetValid     = "not_yet_valid"
	StatusNotValidAnymore = "not_valid_anymore"
)

// Render converts a verifier result into a Verdict.
func Render(res *verifier.Result) *Verdict {
	v := &Verdict{
		VerificationID: string(res.ID),
		State:          verifier.StateName(res.State),
	}
	if h := res.Holder; h != nil {
		v.CertType = string(h.CertType)
		v.Person = renderPerson(h)
	}

	switch st := res.State.(type) {
	case types.VerificationSuccess:
		v.IsLight = st.IsLight
		switch r := st.Result.(type) {
		case types.WalletSuccess:
			v.Validity = r.Window
			v.Modes = r.ModeValidities
			v.IsOnlyValidInCH = r.IsOnlyValidInCH
			v.EOLBanner = r.EOLBanner
			v.RenewBanner = r.RenewBanner
		case types.VerifierSuccess:
			v.Modes = []types.ModeValidity{r.ModeValidity}
		}
	case types.VerificationInvalid:
		v.Validity = st.Window
		v.RenewBanner = st.RenewBanner
		v.Reasons = invalidReasons(st)
	case types.VerificationError:
		v.Validity = st.Window
		err := st.Err
		v.Error = &err
	}
	return v
}

func renderPerson(h *types.CertificateHolder) *Person {
	if h.Certificate == nil {
		return nil
	}
	name := h.Certificate.PersonName()
	return &Person{
		FamilyName:       name.PrettyFamilyName(),
		GivenName:        name.PrettyGivenName(),
		StandardizedName: name.PrettyStandardizedName(),
		DateOfBirth:      h.Certificate.DateOfBirth(),
	}
}

func invalidReasons(st types.VerificationInvalid) []Reason {
	var reasons []Reason
	if sig, ok := st.Signature.(types.SignatureInvalid); ok {
		reasons = append(reasons, Reason{Branch: verifier.BranchSignature, Status: StatusInvalid, Code: sig.Code})
	}
	if rev, ok := st.Revocation.(types.RevocationInvalid); ok {
		reasons = append(reasons, Reason{Branch: verifier.BranchRevocation, Status: StatusInvalid, Code: rev.Code})
	}
	switch nat := st.National.(type) {
	case types.NationalRulesInvalid:
		reasons = append(reasons, Reason{Branch: verifier.BranchNational, Status: StatusInvalid, Code: nat.Error.Code(), RuleID: nat.RuleID})
	case types.NationalRulesNotYetValid:
		reasons = append(reasons, Reason{Branch: verifier.BranchNational, Status: StatusNotYetValid, RuleID: nat.RuleID})
	case types.NationalRulesNotValidAnymore:
		reasons = append(reasons, Reason{Branch: verifier.BranchNational, Status: StatusNotValidAnymore, RuleID: nat.RuleID})
	}
	return reasons
}
