// internal/types/ruleset.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

/*
 * Rule set wire format.
 *
 * Field names are a compatibility surface with rule-set publishers and must
 * not change. Rule logic arrives either as an embedded JSON object or as a
 * JSON string holding the expression text; RawLogic accepts both and keeps
 * the expression bytes for the CertLogic parser.
 *
 * Key types:
 *   - RuleSet: rules, display rules, mode rules, value sets, valid duration
 *   - Rule: one versioned business rule with its validity interval
 *   - DisplayRule: named expression producing a display value
 *   - ModeRules: one shared expression classifying a verification mode
 */

// RawLogic holds the bytes of a CertLogic expression.
type RawLogic json.RawMessage

// UnmarshalJSON unwraps string-encoded logic and keeps object logic as-is.
func (l *RawLogic) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*l = RawLogic(s)
		return nil
	}
	*l = append((*l)[:0], trimmed...)
	return nil
}

// MarshalJSON emits the logic as an embedded JSON value.
func (l RawLogic) MarshalJSON() ([]byte, error) {
	if len(l) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(l).MarshalJSON()
}

// Timestamp is a rule validity bound. Publishers emit RFC 3339 with or
// without offset, and occasionally a bare date.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON parses the first matching layout; offset-less values are UTC.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid rule timestamp %q", s)
}

// MarshalJSON formats the bound as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Description is a localized rule description.
type Description struct {
	Lang string `json:"lang"`
	Desc string `json:"desc"`
}

// Rule is one versioned business rule.
type Rule struct {
	Identifier      string        `json:"identifier"`
	Type            string        `json:"type,omitempty"`
	Country         string        `json:"country,omitempty"`
	Version         string        `json:"version,omitempty"`
	SchemaVersion   string        `json:"schemaVersion,omitempty"`
	Engine          string        `json:"engine,omitempty"`
	EngineVersion   string        `json:"engineVersion,omitempty"`
	CertificateType string        `json:"certificateType,omitempty"`
	Description     []Description `json:"description,omitempty"`
	ValidFrom       Timestamp     `json:"validFrom"`
	ValidTo         Timestamp     `json:"validTo"`
	AffectedFields  []string      `json:"affectedFields,omitempty"`
	Logic           RawLogic      `json:"logic"`
}

// Contains reports whether at lies within [ValidFrom, ValidTo], both ends inclusive.
func (r Rule) Contains(at time.Time) bool {
	return !at.Before(r.ValidFrom.Time) && !at.After(r.ValidTo.Time)
}

// Display rule identifiers understood by the national rules verifier.
const (
	DisplayRuleFromDate      = "display-from-date"
	DisplayRuleUntilDate     = "display-until-date"
	DisplayRuleOnlyValidInCH = "is-only-valid-in-ch"
	DisplayRuleEOLBanner     = "eol-banner"
	DisplayRuleRenewBanner   = "renew-banner"
)

// DisplayRule is a named expression producing a display value.
type DisplayRule struct {
	ID    string   `json:"id"`
	Logic RawLogic `json:"logic"`
}

// ActiveMode is a verification mode offered to apps.
type ActiveMode struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ModeRules carries the mode catalogue and the shared classification logic.
type ModeRules struct {
	ActiveModes         []ActiveMode `json:"activeModes"`
	WalletActiveModes   []ActiveMode `json:"walletActiveModes"`
	VerifierActiveModes []ActiveMode `json:"verifierActiveModes"`
	Logic               RawLogic     `json:"logic"`
}

// RuleSet is a parsed national (or foreign) rule set.
type RuleSet struct {
	DisplayRules  []DisplayRule       `json:"displayRules,omitempty"`
	Rules         []Rule              `json:"rules"`
	ModeRules     *ModeRules          `json:"modeRules,omitempty"`
	ValueSets     map[string][]string `json:"valueSets"`
	ValidDuration int64               `json:"validDuration"`
}

// DisplayRule returns the display rule with the given id.
func (rs *RuleSet) DisplayRule(id string) (DisplayRule, bool) {
	for _, dr := range rs.DisplayRules {
		if dr.ID == id {
			return dr, true
		}
	}
	return DisplayRule{}, false
}

// ParseRuleSet decodes a rule-set document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	if len(data) > MaxRuleSetSize {
		return nil, ErrPayloadTooLarge
	}
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	return &rs, nil
}
