// internal/rules/context.go
package rules

import (
	"fmt"
	"time"

	"github.com/solatis/healthcert/internal/certlogic"
	"github.com/solatis/healthcert/internal/types"
)

/*
 * Evaluation context construction.
 *
 * Every rule sees the same document:
 *
 *   {
 *     "payload":  { "nam", "dob", "ver", "v", "t", "r", "h": { "iat", "exp", "isLight", "mode", "iss", "kid" } },
 *     "external": { "valueSets", "validationClock", "validationClockAtStartOfDay" }
 *   }
 *
 * Absent entry kinds are null. Clocks are ISO 8601 with an explicit offset
 * in the location the caller chose; iat and exp are calendar dates in that
 * same location.
 *
 * The context is rebuilt for each evaluation pass and never mutated.
 */

// Headers are the CWT envelope fields exposed to rules under payload.h.
type Headers struct {
	IssuedAt       *time.Time
	ExpirationTime *time.Time
	IsLight        bool
	Mode           string
	Issuer         string
	KeyID          string
}

// HeadersFromHolder copies the envelope fields of a decoded certificate.
func HeadersFromHolder(h *types.CertificateHolder, mode string) Headers {
	return Headers{
		IssuedAt:       h.IssuedAt,
		ExpirationTime: h.ExpirationTime,
		IsLight:        h.ContainsLight(),
		Mode:           mode,
		Issuer:         h.Issuer,
		KeyID:          h.KeyIDBase64(),
	}
}

type headerDoc struct {
	IssuedAt       *string `json:"iat"`
	ExpirationTime *string `json:"exp"`
	IsLight        bool    `json:"isLight"`
	Mode           string  `json:"mode,omitempty"`
	Issuer         string  `json:"iss,omitempty"`
	KeyID          string  `json:"kid,omitempty"`
}

type payloadDoc struct {
	Name         types.PersonName         `json:"nam"`
	Dob          string                   `json:"dob"`
	Ver          string                   `json:"ver"`
	Vaccinations []types.VaccinationEntry `json:"v"`
	Tests        []types.TestEntry        `json:"t"`
	Recoveries   []types.RecoveryEntry    `json:"r"`
	Headers      headerDoc                `json:"h"`
}

type lightPayloadDoc struct {
	Headers headerDoc `json:"h"`
}

type externalDoc struct {
	ValueSets                   map[string][]string `json:"valueSets"`
	ValidationClock             string              `json:"validationClock"`
	ValidationClockAtStartOfDay string              `json:"validationClockAtStartOfDay"`
}

type contextDoc struct {
	Payload  any         `json:"payload"`
	External externalDoc `json:"external"`
}

// BuildContext assembles the evaluation context for cert at now, rendering
// clocks and header dates in loc. Light certificates expose only headers.
func BuildContext(cert types.Certificate, valueSets map[string][]string, headers Headers, now time.Time, loc *time.Location) (certlogic.Value, error) {
	if loc == nil {
		loc = time.UTC
	}

	h := headerDoc{
		IssuedAt:       formatHeaderDate(headers.IssuedAt, loc),
		ExpirationTime: formatHeaderDate(headers.ExpirationTime, loc),
		IsLight:        headers.IsLight,
		Mode:           headers.Mode,
		Issuer:         headers.Issuer,
		KeyID:          headers.KeyID,
	}

	var payload any
	switch c := cert.(type) {
	case *types.DccCert:
		payload = payloadDoc{
			Name:         c.Name,
			Dob:          c.Dob,
			Ver:          c.Ver,
			Vaccinations: c.Vaccinations,
			Tests:        normalizeTests(c.Tests, loc),
			Recoveries:   c.Recoveries,
			Headers:      h,
		}
	case *types.LightCert:
		payload = lightPayloadDoc{Headers: h}
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnknownCertType, cert)
	}

	if valueSets == nil {
		valueSets = map[string][]string{}
	}

	local := now.In(loc)
	doc := contextDoc{
		Payload: payload,
		External: externalDoc{
			ValueSets:                   valueSets,
			ValidationClock:             local.Format(time.RFC3339Nano),
			ValidationClockAtStartOfDay: startOfDay(local).Format(time.RFC3339Nano),
		},
	}
	return certlogic.FromStruct(doc)
}

// normalizeTests moves the sample time of positive rapid antigen tests to
// local midnight of the sample day. Other entries are returned unchanged.
func normalizeTests(tests []types.TestEntry, loc *time.Location) []types.TestEntry {
	if tests == nil {
		return nil
	}
	out := make([]types.TestEntry, len(tests))
	for i, t := range tests {
		out[i] = t
		if !t.IsPositiveRAT() {
			continue
		}
		sc, err := certlogic.ParseDateTime(t.TimestampSample)
		if err != nil {
			continue
		}
		out[i].TimestampSample = startOfDay(sc.Time.In(loc)).Format(time.RFC3339Nano)
	}
	return out
}

func formatHeaderDate(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := t.In(loc).Format("2006-01-02")
	return &s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
