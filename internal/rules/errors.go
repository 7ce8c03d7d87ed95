// internal/rules/errors.go
package rules

import (
	"github.com/solatis/healthcert/internal/types"
)

/*
 * Mapping of failed national rule identifiers to domain errors.
 *
 * Identifiers follow <kind>-CH-<nnnn>: GR general, VR vaccination, TR test,
 * RR recovery. Date rules do not produce a bare Invalid; they are reported
 * as not-yet-valid or no-longer-valid together with the display window.
 * Unknown identifiers map to UnknownRuleFailed so that new rules published
 * in a rule set never break verification.
 */

type failureKind int

const (
	failureInvalid failureKind = iota
	failureNotYetValid
	failureNotValidAnymore
)

type ruleFailure struct {
	kind failureKind
	err  types.NationalRulesError
}

var ruleFailures = map[string]ruleFailure{
	"GR-CH-0001": {failureInvalid, types.WrongDiseaseTarget},

	"VR-CH-0000": {failureInvalid, types.TooManyVaccineEntries},
	"VR-CH-0001": {failureInvalid, types.NotFullyProtected},
	"VR-CH-0002": {failureInvalid, types.NoValidProduct},
	"VR-CH-0003": {failureInvalid, types.NoValidDate},
	"VR-CH-0004": {failureNotYetValid, types.NoValidDate},
	"VR-CH-0005": {failureNotYetValid, types.NoValidDate},
	"VR-CH-0006": {failureNotValidAnymore, types.NoValidDate},

	"TR-CH-0000": {failureInvalid, types.TooManyTestEntries},
	"TR-CH-0001": {failureInvalid, types.PositiveResult},
	"TR-CH-0002": {failureInvalid, types.WrongTestType},
	"TR-CH-0003": {failureInvalid, types.NoValidProduct},
	"TR-CH-0004": {failureInvalid, types.NoValidDate},
	"TR-CH-0005": {failureNotYetValid, types.NoValidDate},
	"TR-CH-0006": {failureNotValidAnymore, types.NoValidDate},
	"TR-CH-0007": {failureNotValidAnymore, types.NoValidDate},

	"RR-CH-0000": {failureInvalid, types.TooManyRecoveryEntries},
	"RR-CH-0001": {failureInvalid, types.NoValidDate},
	"RR-CH-0002": {failureNotYetValid, types.NoValidDate},
	"RR-CH-0003": {failureNotValidAnymore, types.NoValidDate},
}

// lookupFailure returns the mapping for a rule identifier.
func lookupFailure(ruleID string) ruleFailure {
	if f, ok := ruleFailures[ruleID]; ok {
		return f
	}
	return ruleFailure{failureInvalid, types.UnknownRuleFailed}
}
