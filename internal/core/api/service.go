// Package api provides the transport-neutral verification service behind
// the gRPC and HTTP surfaces.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/healthcert/internal/types"
	"github.com/solatis/healthcert/internal/verifier"
)

// VerifyRequest is one verification call.
type VerifyRequest struct {
	// QR is the scanned payload including its HC1: or LT1: prefix.
	QR string `json:"qr"`

	// Modes overrides the configured default modes.
	Modes []string `json:"modes,omitempty"`

	// Type is "verifier" or "wallet"; empty selects the configured default.
	Type string `json:"verificationType,omitempty"`

	// AsOf checks national rules at another date (YYYY-MM-DD or RFC 3339).
	AsOf string `json:"asOf,omitempty"`

	// Country selects whose rules apply; empty selects the home country.
	Country string `json:"country,omitempty"`
}

// Options configures a VerificationService.
type Options struct {
	Country      string
	DefaultModes []string
	DefaultType  types.VerificationType
	Location     *time.Location
	Timeout      time.Duration
	Logger       *slog.Logger
}

// VerificationService maps requests onto the verifier and renders verdicts.
// Thin orchestration layer delegating to the verifier and trust-list source.
type VerificationService struct {
	verifier   *verifier.Verifier
	trustLists TrustLists
	opts       Options
	logger     *slog.Logger
}

// NewVerificationService creates service instance with dependencies.
func NewVerificationService(v *verifier.Verifier, trustLists TrustLists, opts Options) (*VerificationService, error) {
	if v == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if trustLists == nil {
		return nil, fmt.Errorf("trustLists cannot be nil")
	}
	if len(opts.Country) != 2 {
		return nil, fmt.Errorf("country must be a two-letter code, got %q", opts.Country)
	}
	opts.Country = strings.ToUpper(opts.Country)
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &VerificationService{
		verifier:   v,
		trustLists: trustLists,
		opts:       opts,
		logger:     opts.Logger,
	}, nil
}

// Verify decodes and verifies one payload. Every verification outcome is a
// Verdict; the error is non-nil for malformed requests (ErrInvalidRequest)
// and for missing trust material (ErrUnavailable).
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	if strings.TrimSpace(req.QR) == "" {
		return nil, fmt.Errorf("%w: qr is required", ErrInvalidRequest)
	}

	asOf, err := parseAsOf(req.AsOf, s.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		country = s.opts.Country
	}

	flavor := types.VerificationType(req.Type)
	if flavor == "" {
		flavor = s.opts.DefaultType
	}

	modes := req.Modes
	if len(modes) == 0 {
		modes = s.opts.DefaultModes
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	tl, err := s.trustLists.TrustList(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res, err := s.verifier.VerifyQR(ctx, req.QR, verifier.Request{
		TrustList: tl,
		Modes:     modes,
		Type:      flavor,
		AsOf:      asOf,
		IsForeign: country != s.opts.Country,
	})
	if err != nil {
		if errors.Is(err, types.ErrUnknownVerificationType) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}

	verdict := Render(res)
	s.logger.InfoContext(ctx, "certificate verified",
		"verification_id", verdict.VerificationID,
		"state", verdict.State,
		"cert_type", verdict.CertType,
		"country", country,
	)
	return verdict, nil
}

// parseAsOf accepts a calendar date, read as midnight in loc, or an RFC 3339
// timestamp. The empty string means now.
func parseAsOf(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("asOf must be YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return &t, nil
}
