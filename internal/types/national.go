// internal/types/national.go
package types

// NationalRulesError is the domain reason a certificate failed a business rule.
type NationalRulesError string

const (
	NoValidDate                 NationalRulesError = "NO_VALID_DATE"
	NoValidProduct              NationalRulesError = "NO_VALID_PRODUCT"
	NoValidRulesForSpecificDate NationalRulesError = "NO_VALID_RULES_FOR_SPECIFIC_DATE"
	ValidityRangeNotFound       NationalRulesError = "VALIDITY_RANGE_NOT_FOUND"
	WrongDiseaseTarget          NationalRulesError = "WRONG_DISEASE_TARGET"
	WrongTestType               NationalRulesError = "WRONG_TEST_TYPE"
	PositiveResult              NationalRulesError = "POSITIVE_RESULT"
	NegativeResult              NationalRulesError = "NEGATIVE_RESULT"
	NotFullyProtected           NationalRulesError = "NOT_FULLY_PROTECTED"
	TooManyVaccineEntries       NationalRulesError = "TOO_MANY_VACCINE_ENTRIES"
	TooManyTestEntries          NationalRulesError = "TOO_MANY_TEST_ENTRIES"
	TooManyRecoveryEntries      NationalRulesError = "TOO_MANY_RECOVERY_ENTRIES"
	UnknownRuleFailed           NationalRulesError = "UNKNOWN_RULE_FAILED"
	CheckModeNotSupported       NationalRulesError = "CHECK_MODE_NOT_SUPPORTED"
)

var nationalRulesErrorInfo = map[NationalRulesError]struct {
	message string
	code    string
}{
	NoValidDate:                 {"Not a valid Date format", "N|NVD"},
	NoValidProduct:              {"Product is not registered", "N|NVP"},
	NoValidRulesForSpecificDate: {"No valid rules for specified date", "N|NVR"},
	ValidityRangeNotFound:       {"Could not determine validity range", "N|VRN"},
	WrongDiseaseTarget:          {"Only SarsCov2 is a valid disease target", "N|WDT"},
	WrongTestType:               {"Test type invalid", "N|WTT"},
	PositiveResult:              {"Test result was positive", "N|PR"},
	NegativeResult:              {"Test result was negative", "N|NR"},
	NotFullyProtected:           {"Missing vaccine shots, only partially protected", "N|NFP"},
	TooManyVaccineEntries:       {"Certificate contains more than one vaccine entries", "N|TMV"},
	TooManyTestEntries:          {"Certificate contains more than one test entries", "N|TMT"},
	TooManyRecoveryEntries:      {"Certificate contains more than one recovery entries", "N|TMR"},
	UnknownRuleFailed:           {"An unknown rule failed to verify", "N|UNK"},
	CheckModeNotSupported:       {"The provided check mode is not supported", "N|CMN"},
}

// Message returns the human-readable explanation.
func (e NationalRulesError) Message() string {
	return nationalRulesErrorInfo[e].message
}

// Code returns the stable diagnostic code.
func (e NationalRulesError) Code() string {
	return nationalRulesErrorInfo[e].code
}
