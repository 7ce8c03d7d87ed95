// internal/rules/mode.go
package rules

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/healthcert/internal/certlogic"
	"github.com/solatis/healthcert/internal/types"
)

/*
 * Mode rules classify a certificate against a named verification mode
 * (for example 3G or 2G). One shared expression receives the requested
 * mode in payload.h.mode and returns a state name.
 *
 * The outcome is graded, never an error: missing mode rules, evaluation
 * failures and unrecognised results all yield UNKNOWN. Clocks are UTC.
 */

var modeStates = []types.ModeValidityState{
	types.ModeSuccess,
	types.ModeInvalid,
	types.ModeIsLight,
	types.ModeSuccess2G,
	types.ModeSuccess2GPlus,
	types.ModeUnknownMode,
}

// ParseModeState matches a rule result case-insensitively.
func ParseModeState(s string) types.ModeValidityState {
	for _, st := range modeStates {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	return types.ModeUnknown
}

// ModeConfig configures a ModeVerifier.
type ModeConfig struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// ModeVerifier evaluates mode rules.
type ModeVerifier struct {
	engine *Engine
	now    func() time.Time
	logger *slog.Logger
}

// NewModeVerifier creates a verifier sharing engine's expression cache.
func NewModeVerifier(engine *Engine, cfg ModeConfig) *ModeVerifier {
	if engine == nil {
		engine = NewEngine()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ModeVerifier{engine: engine, now: cfg.Now, logger: cfg.Logger}
}

// Verify grades cert against mode. headers.Mode is overridden with mode.
func (v *ModeVerifier) Verify(ctx context.Context, cert types.Certificate, ruleSet *types.RuleSet, headers Headers, mode string) types.ModeValidity {
	result := types.ModeValidity{Mode: mode, State: types.ModeUnknown}
	if ruleSet == nil || ruleSet.ModeRules == nil || len(ruleSet.ModeRules.Logic) == 0 {
		return result
	}

	expr, err := v.engine.Expr(ruleSet.ModeRules.Logic)
	if err != nil {
		v.logger.WarnContext(ctx, "mode logic does not compile", "mode", mode, "error", err)
		return result
	}

	headers.Mode = mode
	data, err := BuildContext(cert, ruleSet.ValueSets, headers, v.now(), time.UTC)
	if err != nil {
		v.logger.WarnContext(ctx, "mode context unavailable", "mode", mode, "error", err)
		return result
	}

	val, err := certlogic.Evaluate(expr, data)
	if err != nil {
		v.logger.WarnContext(ctx, "mode logic failed", "mode", mode, "error", err)
		return result
	}
	if s, ok := val.(certlogic.Text); ok {
		result.State = ParseModeState(string(s))
	}
	return result
}
