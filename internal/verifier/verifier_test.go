package verifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/healthcert/internal/core/metrics"
	"github.com/solatis/healthcert/internal/decode/decodetest"
	"github.com/solatis/healthcert/internal/trustlist"
	"github.com/solatis/healthcert/internal/types"
)

var testNow = time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	issuer   *decodetest.Issuer
	verifier *Verifier
	metrics  *metrics.Metrics
	revoked  *trustlist.MemoryStore
	trust    *types.TrustList
}

func newFixture(t *testing.T, ruleFile string) *fixture {
	t.Helper()
	issuer := decodetest.NewIssuer(t, "CH-KID-1")

	rs, err := trustlist.LoadRuleSet(filepath.Join("..", "rules", "testdata", ruleFile))
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	revoked := trustlist.NewMemoryStore()
	return &fixture{
		issuer: issuer,
		verifier: New(Config{
			Location: time.UTC,
			Now:      func() time.Time { return testNow },
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			Observer: m,
		}),
		metrics: m,
		revoked: revoked,
		trust: &types.TrustList{
			SigningKeys: []types.SigningKey{issuer.SigningKey(t, "sig")},
			Revoked:     revoked,
			RuleSet:     rs,
		},
	}
}

func holder(cert types.Certificate, iat, exp time.Time) *types.CertificateHolder {
	return &types.CertificateHolder{
		Certificate:    cert,
		Issuer:         "CH BAG",
		IssuedAt:       &iat,
		ExpirationTime: &exp,
	}
}

func vaccination(date string) *types.DccCert {
	return &types.DccCert{
		Ver:  "1.3.0",
		Name: types.PersonName{StandardizedFamilyName: "MUSTER", StandardizedGivenName: "HANS"},
		Dob:  "1980-01-01",
		Vaccinations: []types.VaccinationEntry{{
			Disease:               types.TargetDiseaseSarsCov2,
			Vaccine:               "1119349007",
			MedicinalProduct:      "EU/1/20/1528",
			MarketingAuthHolder:   "ORG-100030215",
			DoseNumber:            2,
			TotalDoses:            2,
			VaccinationDate:       date,
			Country:               "CH",
			CertificateIssuer:     "Bundesamt für Gesundheit (BAG)",
			CertificateIdentifier: "urn:uvci:01:CH:VACC0001",
		}},
	}
}

func (f *fixture) verifyQR(t *testing.T, qr string, req Request) *Result {
	t.Helper()
	req.TrustList = f.trust
	res, err := f.verifier.VerifyQR(context.Background(), qr, req)
	require.NoError(t, err)
	return res
}

func validHolder() *types.CertificateHolder {
	return holder(vaccination("2021-06-01"), testNow.Add(-time.Hour), testNow.AddDate(1, 0, 0))
}

func TestVerify_SuccessFlavors(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	qr := f.issuer.Issue(t, validHolder())

	t.Run("verifier", func(t *testing.T) {
		res := f.verifyQR(t, qr, Request{Modes: []string{"THREE_G", "TWO_G"}})
		success, ok := res.State.(types.VerificationSuccess)
		require.True(t, ok, "state = %#v", res.State)
		assert.False(t, success.IsLight)
		assert.Equal(t, types.VerifierSuccess{ModeValidity: types.ModeValidity{Mode: "THREE_G", State: types.ModeSuccess}}, success.Result)
	})

	t.Run("wallet", func(t *testing.T) {
		res := f.verifyQR(t, qr, Request{Modes: []string{"THREE_G", "TWO_G"}, Type: types.VerificationTypeWallet})
		success, ok := res.State.(types.VerificationSuccess)
		require.True(t, ok, "state = %#v", res.State)

		wallet, ok := success.Result.(types.WalletSuccess)
		require.True(t, ok, "result = %#v", success.Result)
		assert.Equal(t, []types.ModeValidity{
			{Mode: "THREE_G", State: types.ModeSuccess},
			{Mode: "TWO_G", State: types.ModeSuccess2G},
		}, wallet.ModeValidities)
		require.NotNil(t, wallet.Window)
		assert.True(t, wallet.Window.From.Equal(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, wallet.Window.Until.Equal(time.Date(2022, 5, 31, 23, 59, 59, 999999999, time.UTC)))
		assert.False(t, wallet.IsOnlyValidInCH)
		assert.Empty(t, wallet.RenewBanner)
	})

	t.Run("verifier without modes", func(t *testing.T) {
		res := f.verifyQR(t, qr, Request{})
		success, ok := res.State.(types.VerificationSuccess)
		require.True(t, ok, "state = %#v", res.State)
		assert.Equal(t, types.VerifierSuccess{ModeValidity: types.ModeValidity{State: types.ModeUnknown}}, success.Result)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("success", "verifier")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("success", "wallet")))
}

func TestVerify_Signature(t *testing.T) {
	tests := []struct {
		name     string
		holder   *types.CertificateHolder
		keyUse   string
		wantCode string
	}{
		{"expired", holder(vaccination("2021-06-01"), testNow.AddDate(0, -1, 0), testNow), "sig", types.ErrorCodeSignatureTimestampExpired},
		{"expired wins over not yet valid", holder(vaccination("2021-06-01"), testNow.Add(time.Hour), testNow.Add(-time.Hour)), "sig", types.ErrorCodeSignatureTimestampExpired},
		{"issued in the future", holder(vaccination("2021-06-01"), testNow.Add(6*time.Minute), testNow.AddDate(1, 0, 0)), "sig", types.ErrorCodeSignatureTimestampNotYet},
		{"key not allowed for type", validHolder(), "t", types.ErrorCodeSignatureCoseInvalid},
		{"unknown type", holder(&types.DccCert{Ver: "1.3.0"}, testNow.Add(-time.Hour), testNow.AddDate(1, 0, 0)), "sig", types.ErrorCodeSignatureTypeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "nationalrules.json")
			f.trust.SigningKeys = []types.SigningKey{f.issuer.SigningKey(t, tt.keyUse)}

			res := f.verifyQR(t, f.issuer.Issue(t, tt.holder), Request{Modes: []string{"THREE_G"}})
			invalid, ok := res.State.(types.VerificationInvalid)
			require.True(t, ok, "state = %#v", res.State)
			assert.Equal(t, types.SignatureInvalid{Code: tt.wantCode}, invalid.Signature)
		})
	}

	t.Run("clock skew tolerated", func(t *testing.T) {
		f := newFixture(t, "nationalrules.json")
		h := holder(vaccination("2021-06-01"), testNow.Add(4*time.Minute), testNow.AddDate(1, 0, 0))
		res := f.verifyQR(t, f.issuer.Issue(t, h), Request{Modes: []string{"THREE_G"}})
		assert.Equal(t, types.SignatureSuccess{}, res.Signature)
	})

	t.Run("untrusted signer", func(t *testing.T) {
		f := newFixture(t, "nationalrules.json")
		other := decodetest.NewIssuer(t, "CH-KID-1")
		res := f.verifyQR(t, other.Issue(t, validHolder()), Request{Modes: []string{"THREE_G"}})
		assert.Equal(t, types.SignatureInvalid{Code: types.ErrorCodeSignatureCoseInvalid}, res.Signature)
	})
}

func TestVerify_Revoked(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	require.NoError(t, f.revoked.Add(context.Background(), "urn:uvci:01:CH:VACC0001"))

	res := f.verifyQR(t, f.issuer.Issue(t, validHolder()), Request{Modes: []string{"THREE_G"}})
	invalid, ok := res.State.(types.VerificationInvalid)
	require.True(t, ok, "state = %#v", res.State)
	assert.Equal(t, types.SignatureSuccess{}, invalid.Signature)
	assert.Equal(t, types.RevocationInvalid{Code: types.ErrorCodeRevocationRevoked}, invalid.Revocation)
	assert.IsType(t, types.NationalRulesSuccess{}, invalid.National)
	require.NotNil(t, invalid.Window)
}

func TestVerify_NationalNotYetValid(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	h := holder(vaccination("2021-06-16"), testNow.Add(-time.Hour), testNow.AddDate(1, 0, 0))

	res := f.verifyQR(t, f.issuer.Issue(t, h), Request{Modes: []string{"THREE_G"}})
	invalid, ok := res.State.(types.VerificationInvalid)
	require.True(t, ok, "state = %#v", res.State)
	assert.IsType(t, types.NationalRulesNotYetValid{}, invalid.National)
	require.NotNil(t, invalid.Window)
	assert.True(t, invalid.Window.From.Equal(time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RuleFailures.WithLabelValues("VR-CH-0004")))
}

func TestVerify_LightCertificate(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	iat := testNow.Add(-time.Hour)
	exp := testNow.Add(47 * time.Hour)
	light := holder(&types.LightCert{
		Ver:  "1.0.0",
		Name: types.PersonName{StandardizedFamilyName: "MUSTER", StandardizedGivenName: "HANS"},
		Dob:  "1980-01-01",
	}, iat, exp)

	res := f.verifyQR(t, f.issuer.Issue(t, light), Request{Modes: []string{"THREE_G", "TWO_G"}, Type: types.VerificationTypeWallet})
	assert.Equal(t, types.RevocationSkipped{}, res.Revocation)

	success, ok := res.State.(types.VerificationSuccess)
	require.True(t, ok, "state = %#v", res.State)
	assert.True(t, success.IsLight)

	wallet := success.Result.(types.WalletSuccess)
	assert.True(t, wallet.IsOnlyValidInCH)
	require.NotNil(t, wallet.Window)
	assert.True(t, wallet.Window.From.Equal(iat))
	assert.True(t, wallet.Window.Until.Equal(exp))
	assert.Equal(t, []types.ModeValidity{
		{Mode: "THREE_G", State: types.ModeSuccess},
		{Mode: "TWO_G", State: types.ModeInvalid},
	}, wallet.ModeValidities)
}

func TestVerify_Foreign(t *testing.T) {
	f := newFixture(t, "foreignrules.json")

	res := f.verifyQR(t, f.issuer.Issue(t, validHolder()), Request{Modes: []string{"THREE_G"}, IsForeign: true})
	assert.Equal(t, types.ModeRulesSuccess{}, res.Mode)
	assert.Equal(t, types.NationalRulesSuccess{}, res.National)

	success, ok := res.State.(types.VerificationSuccess)
	require.True(t, ok, "state = %#v", res.State)
	assert.Equal(t, types.VerifierSuccess{ModeValidity: types.ModeValidity{State: types.ModeUnknown}}, success.Result)
}

func TestVerify_DecodeFailure(t *testing.T) {
	f := newFixture(t, "nationalrules.json")

	res := f.verifyQR(t, "not a certificate", Request{})
	verr, ok := res.State.(types.VerificationError)
	require.True(t, ok, "state = %#v", res.State)
	assert.Equal(t, types.ErrorCodeDecodePrefix, verr.Err.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("error", "verifier")))
}

func TestVerify_BadRequest(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	ctx := context.Background()

	_, err := f.verifier.Verify(ctx, Request{TrustList: f.trust})
	assert.ErrorIs(t, err, types.ErrUnknownCertType)

	_, err = f.verifier.Verify(ctx, Request{Holder: validHolder()})
	assert.ErrorIs(t, err, types.ErrNoTrustList)

	_, err = f.verifier.Verify(ctx, Request{Holder: validHolder(), TrustList: f.trust, Type: "kiosk"})
	assert.ErrorIs(t, err, types.ErrUnknownVerificationType)
}

type failingStore struct {
	err   error
	panic bool
}

func (s failingStore) Contains(context.Context, string) (bool, error) {
	if s.panic {
		panic("store exploded")
	}
	return false, s.err
}

func TestVerify_RevocationBranchFailures(t *testing.T) {
	tests := []struct {
		name        string
		store       failingStore
		wantMessage string
	}{
		{"store error", failingStore{err: errors.New("connection refused")}, "connection refused"},
		{"store panic", failingStore{panic: true}, "panic: store exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "nationalrules.json")
			f.trust.Revoked = tt.store

			res := f.verifyQR(t, f.issuer.Issue(t, validHolder()), Request{Modes: []string{"THREE_G"}})
			verr, ok := res.State.(types.VerificationError)
			require.True(t, ok, "state = %#v", res.State)
			assert.Equal(t, types.ErrorCodeRevocationUnknown, verr.Err.Code)
			assert.Equal(t, tt.wantMessage, verr.Err.Message)
			require.NotNil(t, verr.Window, "revocation errors carry the national window")
		})
	}
}

func TestCheckRevocation_FirstEntryOnly(t *testing.T) {
	f := newFixture(t, "nationalrules.json")
	ctx := context.Background()
	store := trustlist.NewMemoryStore("urn:uvci:01:CH:VACC0001", "urn:uvci:01:CH:TEST0002")

	cert := vaccination("2021-06-01")
	cert.Tests = []types.TestEntry{
		{CertificateIdentifier: "urn:uvci:01:CH:TEST0001"},
		{CertificateIdentifier: "urn:uvci:01:CH:TEST0002"},
	}
	h := &types.CertificateHolder{Certificate: cert}

	// Tests come first; neither the second test nor the vaccination is consulted.
	assert.Equal(t, types.RevocationSuccess{}, f.verifier.checkRevocation(ctx, h, store))

	cert.Tests = nil
	assert.Equal(t, types.RevocationInvalid{Code: types.ErrorCodeRevocationRevoked}, f.verifier.checkRevocation(ctx, h, store))

	id, ok := FirstCertificateIdentifier(&types.DccCert{})
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestCheckTimestamps(t *testing.T) {
	ptr := func(t time.Time) *time.Time { return &t }
	tests := []struct {
		name string
		iat  *time.Time
		exp  *time.Time
		want string
	}{
		{"no timestamps", nil, nil, ""},
		{"valid", ptr(testNow.Add(-time.Hour)), ptr(testNow.Add(time.Hour)), ""},
		{"expires now", nil, ptr(testNow), types.ErrorCodeSignatureTimestampExpired},
		{"issued at skew boundary", ptr(testNow.Add(5 * time.Minute)), nil, ""},
		{"issued past skew", ptr(testNow.Add(5*time.Minute + time.Second)), nil, types.ErrorCodeSignatureTimestampNotYet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &types.CertificateHolder{IssuedAt: tt.iat, ExpirationTime: tt.exp}
			assert.Equal(t, tt.want, CheckTimestamps(h, testNow, types.IssuedAtSkew))
		})
	}
}
