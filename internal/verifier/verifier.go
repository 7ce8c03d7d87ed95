// Package verifier runs the four verification branches for a decoded
// certificate and reduces their outcomes to one verdict.
//
// The signature, revocation, national-rule and mode-rule checks are
// independent reads over immutable inputs, so they run concurrently and
// always to completion; the verdict is computed after all four joined.
// A panic inside a branch becomes that branch's Error state.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/healthcert/internal/decode"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/types"
)

// Branch names used in logs and metrics.
const (
	BranchSignature  = "signature"
	BranchRevocation = "revocation"
	BranchNational   = "national"
	BranchMode       = "mode"
)

// Observer receives verification telemetry. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveVerification(state, flavor string)
	ObserveBranch(branch string, d time.Duration)
	ObserveRuleFailure(ruleID string)
}

type noopObserver struct{}

func (noopObserver) ObserveVerification(string, string)  {}
func (noopObserver) ObserveBranch(string, time.Duration) {}
func (noopObserver) ObserveRuleFailure(string)           {}

// Config configures a Verifier.
type Config struct {
	// Location renders national clocks and validity windows. Defaults to time.Local.
	Location *time.Location

	// Now supplies the wall clock. Defaults to time.Now.
	Now func() time.Time

	// IssuedAtSkew tolerates issuers whose clock runs ahead. Defaults to
	// types.IssuedAtSkew.
	IssuedAtSkew time.Duration

	// Engine caches compiled rule logic. Defaults to a fresh engine.
	Engine *rules.Engine

	Logger   *slog.Logger
	Observer Observer
}

// Verifier verifies decoded certificates. Safe for concurrent use.
type Verifier struct {
	national *rules.NationalVerifier
	mode     *rules.ModeVerifier
	now      func() time.Time
	skew     time.Duration
	logger   *slog.Logger
	observer Observer
}

// New creates a Verifier.
func New(cfg Config) *Verifier {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IssuedAtSkew == 0 {
		cfg.IssuedAtSkew = types.IssuedAtSkew
	}
	if cfg.Engine == nil {
		cfg.Engine = rules.NewEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	return &Verifier{
		national: rules.NewNationalVerifier(cfg.Engine, rules.NationalConfig{
			Location: cfg.Location,
			Now:      cfg.Now,
			Logger:   cfg.Logger,
		}),
		mode: rules.NewModeVerifier(cfg.Engine, rules.ModeConfig{
			Now:    cfg.Now,
			Logger: cfg.Logger,
		}),
		now:      cfg.Now,
		skew:     cfg.IssuedAtSkew,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Request is the input of one verification.
type Request struct {
	Holder    *types.CertificateHolder
	TrustList *types.TrustList

	// Modes are graded in order. The verifier flavor reports the first.
	Modes []string

	// Type selects the success payload. Empty selects the verifier flavor.
	Type types.VerificationType

	// AsOf checks national rules at another date instead of now.
	AsOf *time.Time

	// IsForeign checks against another country's rules; mode rules are skipped.
	IsForeign bool
}

// Result is the verdict plus the branch states it was reduced from. Holder
// is nil when the payload did not decode.
type Result struct {
	ID         types.VerificationID
	Holder     *types.CertificateHolder
	State      types.VerificationState
	Signature  types.SignatureState
	Revocation types.RevocationState
	National   types.NationalRulesState
	Mode       types.ModeRulesState
}

// Verify runs all four branches and reduces them. The error is non-nil only
// for malformed requests; every verification outcome is a state.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.Holder == nil {
		return nil, fmt.Errorf("verify: %w", types.ErrUnknownCertType)
	}
	if req.TrustList == nil {
		return nil, fmt.Errorf("verify: %w", types.ErrNoTrustList)
	}
	flavor, err := types.ParseVerificationType(string(req.Type))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	req.Type = flavor

	res := &Result{ID: types.NewVerificationID(), Holder: req.Holder}
	logger := v.logger.With("verification_id", res.ID)

	var g errgroup.Group
	g.Go(func() error {
		defer v.timeBranch(BranchSignature, time.Now())
		res.Signature = v.checkSignature(ctx, req.Holder, req.TrustList.SigningKeys)
		return nil
	})
	g.Go(func() error {
		defer v.timeBranch(BranchRevocation, time.Now())
		res.Revocation = v.checkRevocation(ctx, req.Holder, req.TrustList.Revoked)
		return nil
	})
	g.Go(func() error {
		defer v.timeBranch(BranchNational, time.Now())
		res.National = v.checkNational(ctx, req)
		return nil
	})
	g.Go(func() error {
		defer v.timeBranch(BranchMode, time.Now())
		res.Mode = v.checkModes(ctx, req)
		return nil
	})
	_ = g.Wait() // branches report failures as states

	v.logBranchErrors(ctx, logger, res)
	if id := failedRuleID(res.National); id != "" {
		v.observer.ObserveRuleFailure(id)
	}

	res.State = Reduce(res.Signature, res.Revocation, res.National, res.Mode, req.Type, req.Holder.CertType == types.CertTypeLight)
	if _, ok := res.State.(types.VerificationLoading); ok {
		logger.ErrorContext(ctx, "verification reduced to loading",
			"signature", fmt.Sprintf("%T", res.Signature),
			"revocation", fmt.Sprintf("%T", res.Revocation),
			"national", fmt.Sprintf("%T", res.National),
			"mode", fmt.Sprintf("%T", res.Mode),
		)
	}
	v.observer.ObserveVerification(StateName(res.State), string(req.Type))
	return res, nil
}

// VerifyQR decodes qr and verifies the result. A payload that does not
// decode yields an Error verdict carrying the decode diagnostic code;
// req.Holder is ignored.
func (v *Verifier) VerifyQR(ctx context.Context, qr string, req Request) (*Result, error) {
	flavor, err := types.ParseVerificationType(string(req.Type))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	req.Type = flavor

	holder, err := decode.Decode(qr)
	if err != nil {
		v.logger.DebugContext(ctx, "payload does not decode", "error", err)
		res := &Result{
			ID:    types.NewVerificationID(),
			State: types.VerificationError{Err: types.StateError{Code: decode.ErrorCode(err), Message: err.Error()}},
		}
		v.observer.ObserveVerification(StateName(res.State), string(req.Type))
		return res, nil
	}
	req.Holder = holder
	return v.Verify(ctx, req)
}

func (v *Verifier) timeBranch(branch string, start time.Time) {
	v.observer.ObserveBranch(branch, time.Since(start))
}

func (v *Verifier) logBranchErrors(ctx context.Context, logger *slog.Logger, res *Result) {
	if st, ok := res.Signature.(types.SignatureError); ok {
		logger.WarnContext(ctx, "branch failed", "branch", BranchSignature, "error", st.Err)
	}
	if st, ok := res.Revocation.(types.RevocationError); ok {
		logger.WarnContext(ctx, "branch failed", "branch", BranchRevocation, "error", st.Err)
	}
	if st, ok := res.National.(types.NationalRulesCheckError); ok {
		logger.WarnContext(ctx, "branch failed", "branch", BranchNational, "error", st.Err)
	}
	if st, ok := res.Mode.(types.ModeRulesError); ok {
		logger.WarnContext(ctx, "branch failed", "branch", BranchMode, "error", st.Err)
	}
}

func failedRuleID(s types.NationalRulesState) string {
	switch st := s.(type) {
	case types.NationalRulesInvalid:
		return st.RuleID
	case types.NationalRulesNotYetValid:
		return st.RuleID
	case types.NationalRulesNotValidAnymore:
		return st.RuleID
	default:
		return ""
	}
}
