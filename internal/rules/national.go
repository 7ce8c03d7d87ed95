// internal/rules/national.go
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/solatis/healthcert/internal/certlogic"
	"github.com/solatis/healthcert/internal/types"
)

/*
 * National (business) rule verification.
 *
 * Flow:
 *   1. Build the context once, using asOf as the clock when given
 *   2. Select the rules applicable at asOf
 *   3. Evaluate rules in rule-set order; the first falsy result decides
 *   4. On failure, map the rule identifier to a domain error; date rules
 *      are reported with the display window
 *   5. On success, derive the display window and flags
 *
 * The failure path evaluates display rules against the context built in
 * step 1, so a verification as of a past date shows the window as of that
 * date too.
 */

// NationalConfig configures a NationalVerifier.
type NationalConfig struct {
	// Location renders clocks and display windows. Defaults to time.Local.
	Location *time.Location

	// Now supplies the wall clock. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NationalVerifier checks a DCC against a national rule set.
type NationalVerifier struct {
	engine   *Engine
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewNationalVerifier creates a verifier sharing engine's expression cache.
func NewNationalVerifier(engine *Engine, cfg NationalConfig) *NationalVerifier {
	if engine == nil {
		engine = NewEngine()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &NationalVerifier{
		engine:   engine,
		location: cfg.Location,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Location returns the location windows are rendered in.
func (v *NationalVerifier) Location() *time.Location {
	return v.location
}

// NationalRequest is the input of one national rule check.
type NationalRequest struct {
	Certificate *types.DccCert
	RuleSet     *types.RuleSet
	CertType    types.CertType
	Headers     Headers

	// AsOf replaces the wall clock and restricts rule versions.
	AsOf *time.Time

	// IsForeign marks a check against another country's rules, which
	// carry no display rules.
	IsForeign bool
}

// Verify runs the national rules. It never panics on well-formed input and
// reports program errors (invalid rule logic) as NationalRulesCheckError.
func (v *NationalVerifier) Verify(ctx context.Context, req NationalRequest) types.NationalRulesState {
	if req.RuleSet == nil {
		return checkError(types.ErrNoRuleSet)
	}
	if req.Certificate == nil {
		return checkError(types.ErrUnknownCertType)
	}

	now := v.now()
	if req.AsOf != nil {
		now = *req.AsOf
	}

	data, err := BuildContext(req.Certificate, req.RuleSet.ValueSets, req.Headers, now, v.location)
	if err != nil {
		return checkError(err)
	}

	selected := SelectRules(req.RuleSet.Rules, req.AsOf)
	if len(selected) == 0 {
		return types.NationalRulesInvalid{Error: types.NoValidRulesForSpecificDate}
	}

	for _, rule := range selected {
		expr, err := v.engine.Expr(rule.Logic)
		if err != nil {
			v.logger.ErrorContext(ctx, "rule logic does not compile", "rule_id", rule.Identifier, "error", err)
			return checkError(err)
		}
		ok, err := certlogic.EvaluateBool(expr, data)
		if err != nil {
			return checkError(err)
		}
		if !ok {
			v.logger.DebugContext(ctx, "national rule failed", "rule_id", rule.Identifier)
			return v.failure(req, rule.Identifier, data)
		}
	}

	disp, err := v.evaluateDisplay(req.RuleSet, data, req.CertType)
	if err != nil {
		return checkError(err)
	}

	switch {
	case disp.window != nil:
		return types.NationalRulesSuccess{
			Window:          disp.window,
			IsOnlyValidInCH: disp.isOnlyValidInCH,
			EOLBanner:       disp.eolBanner,
			RenewBanner:     disp.renewBanner,
		}
	case req.IsForeign:
		return types.NationalRulesSuccess{}
	default:
		return types.NationalRulesInvalid{Error: types.ValidityRangeNotFound, RenewBanner: disp.renewBanner}
	}
}

// failure converts the first failing rule into a verdict.
func (v *NationalVerifier) failure(req NationalRequest, ruleID string, data certlogic.Value) types.NationalRulesState {
	f := lookupFailure(ruleID)

	disp, err := v.evaluateDisplay(req.RuleSet, data, req.CertType)
	if err != nil {
		return checkError(err)
	}

	if f.kind == failureInvalid {
		return types.NationalRulesInvalid{Error: f.err, RuleID: ruleID, RenewBanner: disp.renewBanner}
	}
	if disp.window == nil {
		return types.NationalRulesInvalid{Error: types.NoValidDate, RuleID: ruleID, RenewBanner: disp.renewBanner}
	}
	if f.kind == failureNotYetValid {
		return types.NationalRulesNotYetValid{Window: *disp.window, RuleID: ruleID, RenewBanner: disp.renewBanner}
	}
	return types.NationalRulesNotValidAnymore{Window: *disp.window, RuleID: ruleID, RenewBanner: disp.renewBanner}
}

func checkError(err error) types.NationalRulesState {
	return types.NationalRulesCheckError{Err: types.StateError{
		Code:    types.ErrorCodeRulesetUnknown,
		Message: err.Error(),
	}}
}

// LightCertificateState is the national verdict for a light certificate:
// valid between issuance and expiry, in Switzerland only.
func (v *NationalVerifier) LightCertificateState(h *types.CertificateHolder) types.NationalRulesState {
	window := &types.ValidityRange{}
	if h.IssuedAt != nil {
		t := h.IssuedAt.In(v.location)
		window.From = &t
	}
	if h.ExpirationTime != nil {
		t := h.ExpirationTime.In(v.location)
		window.Until = &t
	}
	return types.NationalRulesSuccess{Window: window, IsOnlyValidInCH: true}
}
