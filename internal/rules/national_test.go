// internal/rules/national_test.go
package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/solatis/healthcert/internal/types"
)

var testNow = time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadRuleSet(t *testing.T, name string) *types.RuleSet {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", name, err)
	}
	rs, err := types.ParseRuleSet(data)
	if err != nil {
		t.Fatalf("ParseRuleSet(%s) error = %v", name, err)
	}
	return rs
}

func newTestNational(loc *time.Location) *NationalVerifier {
	return NewNationalVerifier(NewEngine(), NationalConfig{
		Location: loc,
		Now:      func() time.Time { return testNow },
		Logger:   discardLogger(),
	})
}

func vaccinationCert(dn, sd int, date, product string) *types.DccCert {
	return &types.DccCert{
		Ver:  "1.3.0",
		Name: types.PersonName{FamilyName: "Muster", StandardizedFamilyName: "MUSTER", GivenName: "Hans", StandardizedGivenName: "HANS"},
		Dob:  "1980-01-01",
		Vaccinations: []types.VaccinationEntry{{
			Disease:               types.TargetDiseaseSarsCov2,
			Vaccine:               "1119349007",
			MedicinalProduct:      product,
			MarketingAuthHolder:   "ORG-100030215",
			DoseNumber:            dn,
			TotalDoses:            sd,
			VaccinationDate:       date,
			Country:               "CH",
			CertificateIssuer:     "Bundesamt für Gesundheit (BAG)",
			CertificateIdentifier: "urn:uvci:01:CH:VACC0001",
		}},
	}
}

func testCert(testType, sample, result, product string) *types.DccCert {
	return &types.DccCert{
		Ver:  "1.3.0",
		Name: types.PersonName{StandardizedFamilyName: "MUSTER", StandardizedGivenName: "HANS"},
		Dob:  "1980-01-01",
		Tests: []types.TestEntry{{
			Disease:                    types.TargetDiseaseSarsCov2,
			Type:                       testType,
			RatTestNameAndManufacturer: product,
			TimestampSample:            sample,
			Result:                     result,
			TestCenter:                 "Testcenter Bern",
			Country:                    "CH",
			CertificateIssuer:          "Bundesamt für Gesundheit (BAG)",
			CertificateIdentifier:      "urn:uvci:01:CH:TEST0001",
		}},
	}
}

func recoveryCert(firstPositive string) *types.DccCert {
	return &types.DccCert{
		Ver:  "1.3.0",
		Name: types.PersonName{StandardizedFamilyName: "MUSTER", StandardizedGivenName: "HANS"},
		Dob:  "1980-01-01",
		Recoveries: []types.RecoveryEntry{{
			Disease:                 types.TargetDiseaseSarsCov2,
			DateFirstPositiveResult: firstPositive,
			Country:                 "CH",
			CertificateIssuer:       "Bundesamt für Gesundheit (BAG)",
			CertificateIdentifier:   "urn:uvci:01:CH:RECO0001",
		}},
	}
}

func endOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 23, 59, 59, 999999999, loc)
}

func assertWindow(t *testing.T, got *types.ValidityRange, from, until time.Time) {
	t.Helper()
	if got == nil {
		t.Fatalf("window = nil, want [%v, %v]", from, until)
	}
	if got.From == nil || !got.From.Equal(from) {
		t.Errorf("window.From = %v, want %v", got.From, from)
	}
	if got.Until == nil || !got.Until.Equal(until) {
		t.Errorf("window.Until = %v, want %v", got.Until, until)
	}
}

func TestNationalVerify_Vaccination(t *testing.T) {
	rs := loadRuleSet(t, "nationalrules.json")
	v := newTestNational(time.UTC)
	ctx := context.Background()

	t.Run("two of two doses today", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{
			Certificate: vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528"),
			RuleSet:     rs,
			CertType:    types.CertTypeVaccination,
		})
		success, ok := state.(types.NationalRulesSuccess)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
		}
		assertWindow(t, success.Window,
			time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC),
			endOfDay(2022, 6, 14, time.UTC))
		if success.IsOnlyValidInCH {
			t.Errorf("IsOnlyValidInCH = true, want false")
		}
		if success.EOLBanner != "" {
			t.Errorf("EOLBanner = %q, want empty", success.EOLBanner)
		}
	})

	tests := []struct {
		name    string
		cert    *types.DccCert
		wantErr types.NationalRulesError
		wantID  string
	}{
		{"one of two doses", vaccinationCert(1, 2, "2021-06-15", "EU/1/20/1528"), types.NotFullyProtected, "VR-CH-0001"},
		{"product not accepted", vaccinationCert(2, 2, "2021-06-15", "Sputnik-V"), types.NoValidProduct, "VR-CH-0002"},
		{"unparsable date", vaccinationCert(2, 2, "15.06.2021", "EU/1/20/1528"), types.NoValidDate, "VR-CH-0003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := v.Verify(ctx, NationalRequest{Certificate: tt.cert, RuleSet: rs, CertType: types.CertTypeVaccination})
			invalid, ok := state.(types.NationalRulesInvalid)
			if !ok {
				t.Fatalf("Verify() = %#v, want NationalRulesInvalid", state)
			}
			if invalid.Error != tt.wantErr {
				t.Errorf("Error = %v, want %v", invalid.Error, tt.wantErr)
			}
			if invalid.RuleID != tt.wantID {
				t.Errorf("RuleID = %q, want %q", invalid.RuleID, tt.wantID)
			}
		})
	}

	t.Run("wrong disease target", func(t *testing.T) {
		cert := vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528")
		cert.Vaccinations[0].Disease = "12345"
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination})
		if invalid, ok := state.(types.NationalRulesInvalid); !ok || invalid.Error != types.WrongDiseaseTarget {
			t.Fatalf("Verify() = %#v, want WrongDiseaseTarget", state)
		}
	})

	t.Run("two vaccination entries", func(t *testing.T) {
		cert := vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528")
		cert.Vaccinations = append(cert.Vaccinations, cert.Vaccinations[0])
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination})
		if invalid, ok := state.(types.NationalRulesInvalid); !ok || invalid.Error != types.TooManyVaccineEntries {
			t.Fatalf("Verify() = %#v, want TooManyVaccineEntries", state)
		}
	})

	t.Run("vaccinated tomorrow is not yet valid", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{
			Certificate: vaccinationCert(2, 2, "2021-06-16", "EU/1/20/1528"),
			RuleSet:     rs,
			CertType:    types.CertTypeVaccination,
		})
		notYet, ok := state.(types.NationalRulesNotYetValid)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesNotYetValid", state)
		}
		if notYet.RuleID != "VR-CH-0004" {
			t.Errorf("RuleID = %q, want VR-CH-0004", notYet.RuleID)
		}
		assertWindow(t, &notYet.Window,
			time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC),
			endOfDay(2022, 6, 15, time.UTC))
	})

	t.Run("end of life product banner", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{
			Certificate: vaccinationCert(1, 1, "2021-06-01", "EU/1/21/1529"),
			RuleSet:     rs,
			CertType:    types.CertTypeVaccination,
		})
		success, ok := state.(types.NationalRulesSuccess)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
		}
		if success.EOLBanner != "eol-product" {
			t.Errorf("EOLBanner = %q, want eol-product", success.EOLBanner)
		}
	})

	t.Run("renew banner near expiry", func(t *testing.T) {
		exp := testNow.Add(10 * 24 * time.Hour)
		state := v.Verify(ctx, NationalRequest{
			Certificate: vaccinationCert(2, 2, "2021-06-01", "EU/1/20/1528"),
			RuleSet:     rs,
			CertType:    types.CertTypeVaccination,
			Headers:     Headers{ExpirationTime: &exp},
		})
		if got := types.NationalRenewBanner(state); got != "renew" {
			t.Errorf("renew banner = %q, want renew (state %#v)", got, state)
		}
	})
}

func TestNationalVerify_Test(t *testing.T) {
	rs := loadRuleSet(t, "nationalrules.json")
	v := newTestNational(time.UTC)
	ctx := context.Background()

	t.Run("PCR sampled 71 hours ago", func(t *testing.T) {
		sample := testNow.Add(-71 * time.Hour)
		state := v.Verify(ctx, NationalRequest{
			Certificate: testCert(types.TestTypePCR, sample.Format(time.RFC3339), types.TestResultNegative, ""),
			RuleSet:     rs,
			CertType:    types.CertTypeTest,
		})
		success, ok := state.(types.NationalRulesSuccess)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
		}
		assertWindow(t, success.Window, sample, sample.Add(72*time.Hour))
	})

	t.Run("PCR sampled exactly 72 hours ago", func(t *testing.T) {
		sample := testNow.Add(-72 * time.Hour)
		state := v.Verify(ctx, NationalRequest{
			Certificate: testCert(types.TestTypePCR, sample.Format(time.RFC3339), types.TestResultNegative, ""),
			RuleSet:     rs,
			CertType:    types.CertTypeTest,
		})
		notAnymore, ok := state.(types.NationalRulesNotValidAnymore)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesNotValidAnymore", state)
		}
		if notAnymore.RuleID != "TR-CH-0006" {
			t.Errorf("RuleID = %q, want TR-CH-0006", notAnymore.RuleID)
		}
		assertWindow(t, &notAnymore.Window, sample, testNow)
	})

	t.Run("rapid antigen test is only valid in CH", func(t *testing.T) {
		sample := testNow.Add(-2 * time.Hour)
		state := v.Verify(ctx, NationalRequest{
			Certificate: testCert(types.TestTypeRAT, sample.Format(time.RFC3339), types.TestResultNegative, "1232"),
			RuleSet:     rs,
			CertType:    types.CertTypeTest,
		})
		success, ok := state.(types.NationalRulesSuccess)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
		}
		if !success.IsOnlyValidInCH {
			t.Errorf("IsOnlyValidInCH = false, want true")
		}
		assertWindow(t, success.Window, sample, sample.Add(24*time.Hour))
	})

	tests := []struct {
		name    string
		cert    *types.DccCert
		wantErr types.NationalRulesError
		wantID  string
	}{
		{"positive PCR", testCert(types.TestTypePCR, "2021-06-15T08:00:00Z", types.TestResultPositive, ""), types.PositiveResult, "TR-CH-0001"},
		{"serological test", testCert(types.TestTypeSerological, "2021-06-15T08:00:00Z", types.TestResultNegative, ""), types.WrongTestType, "TR-CH-0002"},
		{"unknown antigen test product", testCert(types.TestTypeRAT, "2021-06-15T08:00:00Z", types.TestResultNegative, "9999"), types.NoValidProduct, "TR-CH-0003"},
		{"unparsable sample time", testCert(types.TestTypePCR, "yesterday", types.TestResultNegative, ""), types.NoValidDate, "TR-CH-0004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := v.Verify(ctx, NationalRequest{Certificate: tt.cert, RuleSet: rs, CertType: types.CertTypeTest})
			invalid, ok := state.(types.NationalRulesInvalid)
			if !ok {
				t.Fatalf("Verify() = %#v, want NationalRulesInvalid", state)
			}
			if invalid.Error != tt.wantErr || invalid.RuleID != tt.wantID {
				t.Errorf("Verify() = (%v, %s), want (%v, %s)", invalid.Error, invalid.RuleID, tt.wantErr, tt.wantID)
			}
		})
	}
}

func TestNationalVerify_Recovery(t *testing.T) {
	rs := loadRuleSet(t, "nationalrules.json")
	v := newTestNational(time.UTC)

	state := v.Verify(context.Background(), NationalRequest{
		Certificate: recoveryCert("2021-06-10"),
		RuleSet:     rs,
		CertType:    types.CertTypeRecovery,
	})
	notYet, ok := state.(types.NationalRulesNotYetValid)
	if !ok {
		t.Fatalf("Verify() = %#v, want NationalRulesNotYetValid", state)
	}
	if notYet.RuleID != "RR-CH-0002" {
		t.Errorf("RuleID = %q, want RR-CH-0002", notYet.RuleID)
	}
	assertWindow(t, &notYet.Window,
		time.Date(2021, 6, 20, 0, 0, 0, 0, time.UTC),
		endOfDay(2021, 12, 6, time.UTC))
}

func TestNationalVerify_AsOf(t *testing.T) {
	rs := loadRuleSet(t, "nationalrules.json")
	v := newTestNational(time.UTC)
	ctx := context.Background()
	cert := vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528")

	t.Run("date before every rule version", func(t *testing.T) {
		asOf := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination, AsOf: &asOf})
		if invalid, ok := state.(types.NationalRulesInvalid); !ok || invalid.Error != types.NoValidRulesForSpecificDate {
			t.Fatalf("Verify() = %#v, want NoValidRulesForSpecificDate", state)
		}
	})

	t.Run("as-of date replaces the clock", func(t *testing.T) {
		asOf := time.Date(2022, 7, 1, 10, 0, 0, 0, time.UTC)
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination, AsOf: &asOf})
		notAnymore, ok := state.(types.NationalRulesNotValidAnymore)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesNotValidAnymore", state)
		}
		if notAnymore.RuleID != "VR-CH-0006" {
			t.Errorf("RuleID = %q, want VR-CH-0006", notAnymore.RuleID)
		}
		assertWindow(t, &notAnymore.Window,
			time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC),
			endOfDay(2022, 6, 14, time.UTC))
	})
}

func TestNationalVerify_DisplayLocation(t *testing.T) {
	zurich := time.FixedZone("CEST", 2*3600)
	rs := loadRuleSet(t, "nationalrules.json")
	v := newTestNational(zurich)

	state := v.Verify(context.Background(), NationalRequest{
		Certificate: vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528"),
		RuleSet:     rs,
		CertType:    types.CertTypeVaccination,
	})
	success, ok := state.(types.NationalRulesSuccess)
	if !ok {
		t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
	}
	assertWindow(t, success.Window,
		time.Date(2021, 6, 15, 0, 0, 0, 0, zurich),
		endOfDay(2022, 6, 14, zurich))
}

func TestNationalVerify_EarlyHoursInVerifierZone(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	rs := loadRuleSet(t, "nationalrules.json")

	for _, now := range []time.Time{
		time.Date(2021, 6, 15, 0, 30, 0, 0, zurich),
		time.Date(2021, 6, 15, 1, 30, 0, 0, zurich),
	} {
		t.Run(now.Format("15:04 MST"), func(t *testing.T) {
			v := NewNationalVerifier(NewEngine(), NationalConfig{
				Location: zurich,
				Now:      func() time.Time { return now },
				Logger:   discardLogger(),
			})
			state := v.Verify(context.Background(), NationalRequest{
				Certificate: vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528"),
				RuleSet:     rs,
				CertType:    types.CertTypeVaccination,
			})
			success, ok := state.(types.NationalRulesSuccess)
			if !ok {
				t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
			}
			assertWindow(t, success.Window,
				time.Date(2021, 6, 15, 0, 0, 0, 0, zurich),
				endOfDay(2022, 6, 14, zurich))
		})
	}
}

func TestNationalVerify_RuleSetShapes(t *testing.T) {
	v := newTestNational(time.UTC)
	ctx := context.Background()
	cert := vaccinationCert(2, 2, "2021-06-15", "EU/1/20/1528")
	foreign := loadRuleSet(t, "foreignrules.json")

	t.Run("foreign rules without display rules", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: foreign, CertType: types.CertTypeVaccination, IsForeign: true})
		success, ok := state.(types.NationalRulesSuccess)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesSuccess", state)
		}
		if success.Window != nil {
			t.Errorf("Window = %v, want nil", success.Window)
		}
	})

	t.Run("national check without display rules", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: foreign, CertType: types.CertTypeVaccination})
		if invalid, ok := state.(types.NationalRulesInvalid); !ok || invalid.Error != types.ValidityRangeNotFound {
			t.Fatalf("Verify() = %#v, want ValidityRangeNotFound", state)
		}
	})

	t.Run("unknown rule identifier", func(t *testing.T) {
		rs := &types.RuleSet{Rules: []types.Rule{{Identifier: "XX-CH-0042", Logic: types.RawLogic(`false`)}}}
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination})
		invalid, ok := state.(types.NationalRulesInvalid)
		if !ok || invalid.Error != types.UnknownRuleFailed {
			t.Fatalf("Verify() = %#v, want UnknownRuleFailed", state)
		}
		if invalid.RuleID != "XX-CH-0042" {
			t.Errorf("RuleID = %q, want XX-CH-0042", invalid.RuleID)
		}
	})

	t.Run("date rule without display window", func(t *testing.T) {
		rs := &types.RuleSet{Rules: []types.Rule{{Identifier: "VR-CH-0004", Logic: types.RawLogic(`false`)}}}
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination})
		if invalid, ok := state.(types.NationalRulesInvalid); !ok || invalid.Error != types.NoValidDate {
			t.Fatalf("Verify() = %#v, want NoValidDate", state)
		}
	})

	t.Run("invalid logic is a check error", func(t *testing.T) {
		rs := &types.RuleSet{Rules: []types.Rule{{Identifier: "GR-CH-0001", Logic: types.RawLogic(`{"xor": [true, false]}`)}}}
		state := v.Verify(ctx, NationalRequest{Certificate: cert, RuleSet: rs, CertType: types.CertTypeVaccination})
		checkErr, ok := state.(types.NationalRulesCheckError)
		if !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesCheckError", state)
		}
		if checkErr.Err.Code != types.ErrorCodeRulesetUnknown {
			t.Errorf("Code = %q, want %q", checkErr.Err.Code, types.ErrorCodeRulesetUnknown)
		}
	})

	t.Run("missing rule set", func(t *testing.T) {
		state := v.Verify(ctx, NationalRequest{Certificate: cert, CertType: types.CertTypeVaccination})
		if _, ok := state.(types.NationalRulesCheckError); !ok {
			t.Fatalf("Verify() = %#v, want NationalRulesCheckError", state)
		}
	})
}

func TestLightCertificateState(t *testing.T) {
	v := newTestNational(time.UTC)
	iat := testNow
	exp := testNow.Add(24 * time.Hour)

	state := v.LightCertificateState(&types.CertificateHolder{IssuedAt: &iat, ExpirationTime: &exp})
	success, ok := state.(types.NationalRulesSuccess)
	if !ok {
		t.Fatalf("LightCertificateState() = %#v, want NationalRulesSuccess", state)
	}
	if !success.IsOnlyValidInCH {
		t.Errorf("IsOnlyValidInCH = false, want true")
	}
	assertWindow(t, success.Window, iat, exp)
}

func TestEngineLoad(t *testing.T) {
	e := NewEngine()
	if err := e.Load(loadRuleSet(t, "nationalrules.json")); err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if e.Len() == 0 {
		t.Errorf("Len() = 0, want cached expressions")
	}

	bad := &types.RuleSet{
		Rules:        []types.Rule{{Identifier: "VR-CH-0001", Logic: types.RawLogic(`{"if": [true, 1]}`)}},
		DisplayRules: []types.DisplayRule{{ID: "eol-banner", Logic: types.RawLogic(`{"var": 3}`)}},
	}
	err := e.Load(bad)
	if !errors.Is(err, types.ErrInvalidRuleSet) {
		t.Fatalf("Load() error = %v, want ErrInvalidRuleSet", err)
	}
	var rsErr *RuleSetError
	if !errors.As(err, &rsErr) || len(rsErr.Problems) != 2 {
		t.Fatalf("Load() problems = %v, want 2", err)
	}
	if rsErr.Problems[0] != `rule VR-CH-0001: $: an "if"-operation must have exactly 3 values/operands, but it has 2` {
		t.Errorf("Problems[0] = %q", rsErr.Problems[0])
	}

	if err := e.Load(nil); !errors.Is(err, types.ErrNoRuleSet) {
		t.Errorf("Load(nil) error = %v, want ErrNoRuleSet", err)
	}
}

func TestEngineReset(t *testing.T) {
	e := NewEngine()
	logic := types.RawLogic(`{"===": [{"var": "x"}, 1]}`)
	expr, err := e.Expr(logic)
	if err != nil {
		t.Fatalf("Expr() error = %v", err)
	}
	if e.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Len())
	}

	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", e.Len())
	}
	if expr == nil {
		t.Errorf("expression handed out before Reset is nil")
	}
	if _, err := e.Expr(logic); err != nil {
		t.Fatalf("Expr() after Reset error = %v", err)
	}
	if e.Len() != 1 {
		t.Errorf("Len() after recompiling = %d, want 1", e.Len())
	}
}
