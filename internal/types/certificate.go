// internal/types/certificate.go
package types

import (
	"encoding/base64"
	"time"
)

/*
 * Health certificate domain model.
 *
 * Two certificate shapes exist: the full EU DCC (vaccination, test and
 * recovery entries) and the Swiss light certificate (identity only). Both
 * satisfy Certificate; code that needs the clinical entries switches on the
 * concrete type instead of relying on subtype behavior.
 *
 * Field names follow the hcert JSON schema. fxamacker/cbor honors json tags,
 * so the same structs decode straight out of the CWT claim.
 */

// Acceptance constants from the hcert value sets.
const (
	TestResultNegative    = "260415000"
	TestResultPositive    = "260373001"
	TargetDiseaseSarsCov2 = "840539006"

	TestTypeRAT              = "LP217198-3"
	TestTypePCR              = "LP6464-4"
	TestTypeSerological      = "94504-8"
	TestTypeMedicalExemption = "medical-exemption"
)

// CertType classifies a decoded certificate for key-usage and rule selection.
type CertType string

const (
	CertTypeUnknown     CertType = ""
	CertTypeVaccination CertType = "vaccination"
	CertTypeRecovery    CertType = "recovery"
	CertTypeTest        CertType = "test"
	CertTypeLight       CertType = "light"
)

// UsageLetter returns the key-usage letter that authorizes signing this type.
// Unknown types have no letter.
func (c CertType) UsageLetter() rune {
	switch c {
	case CertTypeVaccination:
		return 'v'
	case CertTypeRecovery:
		return 'r'
	case CertTypeTest:
		return 't'
	case CertTypeLight:
		return 'l'
	default:
		return 0
	}
}

// Certificate is the identity capability shared by both certificate shapes.
type Certificate interface {
	PersonName() PersonName
	DateOfBirth() string
	Version() string
	isCertificate()
}

// PersonName holds the holder's name as printed and in ICAO transliteration.
type PersonName struct {
	FamilyName             string `json:"fn,omitempty"`
	StandardizedFamilyName string `json:"fnt"`
	GivenName              string `json:"gn,omitempty"`
	StandardizedGivenName  string `json:"gnt,omitempty"`
}

// PrettyFamilyName prefers the printed family name over the transliteration.
func (n PersonName) PrettyFamilyName() string {
	if n.FamilyName != "" {
		return n.FamilyName
	}
	return n.StandardizedFamilyName
}

// PrettyGivenName prefers the printed given name over the transliteration.
func (n PersonName) PrettyGivenName() string {
	if n.GivenName != "" {
		return n.GivenName
	}
	return n.StandardizedGivenName
}

// PrettyName returns "<family> <given>".
func (n PersonName) PrettyName() string {
	return n.PrettyFamilyName() + " " + n.PrettyGivenName()
}

// PrettyStandardizedName returns the MRZ-style "FNT<<GNT" form.
// Never falls back to the printed given name, which may hold non-ICAO characters.
func (n PersonName) PrettyStandardizedName() string {
	return n.StandardizedFamilyName + "<<" + n.StandardizedGivenName
}

// VaccinationEntry is one "v" entry of a DCC.
type VaccinationEntry struct {
	Disease               string `json:"tg"`
	Vaccine               string `json:"vp"`
	MedicinalProduct      string `json:"mp"`
	MarketingAuthHolder   string `json:"ma"`
	DoseNumber            int    `json:"dn"`
	TotalDoses            int    `json:"sd"`
	VaccinationDate       string `json:"dt"`
	Country               string `json:"co"`
	CertificateIssuer     string `json:"is"`
	CertificateIdentifier string `json:"ci"`
}

// TestEntry is one "t" entry of a DCC.
type TestEntry struct {
	Disease                    string `json:"tg"`
	Type                       string `json:"tt"`
	NaaTestName                string `json:"nm,omitempty"`
	RatTestNameAndManufacturer string `json:"ma,omitempty"`
	TimestampSample            string `json:"sc"`
	TimestampResult            string `json:"dr,omitempty"`
	Result                     string `json:"tr"`
	TestCenter                 string `json:"tc,omitempty"`
	Country                    string `json:"co"`
	CertificateIssuer          string `json:"is"`
	CertificateIdentifier      string `json:"ci"`
}

// IsNegative reports whether the test result is the negative code.
func (t TestEntry) IsNegative() bool {
	return t.Result == TestResultNegative
}

// IsPositiveRAT reports a positive rapid antigen test, whose sample time is
// reduced to its calendar day before rules see it.
func (t TestEntry) IsPositiveRAT() bool {
	return t.Type == TestTypeRAT && t.Result == TestResultPositive
}

// RecoveryEntry is one "r" entry of a DCC.
type RecoveryEntry struct {
	Disease                 string `json:"tg"`
	DateFirstPositiveResult string `json:"fr"`
	Country                 string `json:"co"`
	CertificateIssuer       string `json:"is"`
	ValidFrom               string `json:"df"`
	ValidUntil              string `json:"du"`
	CertificateIdentifier   string `json:"ci"`
}

// DccCert is the full EU Digital COVID Certificate.
type DccCert struct {
	Ver          string             `json:"ver"`
	Name         PersonName         `json:"nam"`
	Dob          string             `json:"dob"`
	Vaccinations []VaccinationEntry `json:"v,omitempty"`
	Tests        []TestEntry        `json:"t,omitempty"`
	Recoveries   []RecoveryEntry    `json:"r,omitempty"`
}

func (c *DccCert) PersonName() PersonName { return c.Name }
func (c *DccCert) DateOfBirth() string    { return c.Dob }
func (c *DccCert) Version() string        { return c.Ver }
func (c *DccCert) isCertificate()         {}

// LightCert is the Swiss light certificate carrying identity only.
type LightCert struct {
	Ver  string     `json:"ver"`
	Name PersonName `json:"nam"`
	Dob  string     `json:"dob"`
}

func (c *LightCert) PersonName() PersonName { return c.Name }
func (c *LightCert) DateOfBirth() string    { return c.Dob }
func (c *LightCert) Version() string        { return c.Ver }
func (c *LightCert) isCertificate()         {}

// CertificateHolder is the decoder output: a certificate plus its CWT
// envelope fields and the raw QR text needed to re-verify the signature.
type CertificateHolder struct {
	Certificate    Certificate
	QRCodeData     string
	ExpirationTime *time.Time
	IssuedAt       *time.Time
	Issuer         string
	KeyID          []byte
	CertType       CertType
}

// DCC returns the full certificate when the holder carries one.
func (h *CertificateHolder) DCC() (*DccCert, bool) {
	c, ok := h.Certificate.(*DccCert)
	return c, ok && c != nil
}

// Light returns the light certificate when the holder carries one.
func (h *CertificateHolder) Light() (*LightCert, bool) {
	c, ok := h.Certificate.(*LightCert)
	return c, ok && c != nil
}

// ContainsDCC reports whether the holder carries a full certificate.
func (h *CertificateHolder) ContainsDCC() bool {
	_, ok := h.DCC()
	return ok
}

// ContainsLight reports whether the holder carries a light certificate.
func (h *CertificateHolder) ContainsLight() bool {
	_, ok := h.Light()
	return ok
}

// KeyIDBase64 returns the key id in standard base64, or "" when absent.
func (h *CertificateHolder) KeyIDBase64() string {
	if len(h.KeyID) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(h.KeyID)
}
