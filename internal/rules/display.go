// internal/rules/display.go
package rules

import (
	"time"

	"github.com/solatis/healthcert/internal/certlogic"
	"github.com/solatis/healthcert/internal/types"
)

/*
 * Display rules: the second evaluation pass.
 *
 * display-from-date and display-until-date produce the validity window shown
 * to users. A window exists only when both rules are present; an end whose
 * rule does not yield a date-time is left open.
 *
 * Test certificates carry instants (sample time plus hours), shown in the
 * verifier's location. Vaccination and recovery windows are calendar days:
 * the date is taken in the offset it was computed in and widened to the full
 * day in the verifier's location.
 */

// display is the outcome of the display pass.
type display struct {
	window          *types.ValidityRange
	isOnlyValidInCH bool
	eolBanner       string
	renewBanner     string
}

// evaluateDisplay runs all display rules of rs against data.
func (v *NationalVerifier) evaluateDisplay(rs *types.RuleSet, data certlogic.Value, certType types.CertType) (display, error) {
	var out display

	fromRule, hasFrom := rs.DisplayRule(types.DisplayRuleFromDate)
	untilRule, hasUntil := rs.DisplayRule(types.DisplayRuleUntilDate)
	if hasFrom && hasUntil {
		from, err := v.evaluateDisplayRule(fromRule, data)
		if err != nil {
			return display{}, err
		}
		until, err := v.evaluateDisplayRule(untilRule, data)
		if err != nil {
			return display{}, err
		}
		out.window = &types.ValidityRange{
			From:  v.displayTime(from, certType, false),
			Until: v.displayTime(until, certType, true),
		}
	}

	if dr, ok := rs.DisplayRule(types.DisplayRuleOnlyValidInCH); ok {
		val, err := v.evaluateDisplayRule(dr, data)
		if err != nil {
			return display{}, err
		}
		out.isOnlyValidInCH = certlogic.IsTruthy(val)
	}

	var err error
	if out.eolBanner, err = v.displayText(rs, types.DisplayRuleEOLBanner, data); err != nil {
		return display{}, err
	}
	if out.renewBanner, err = v.displayText(rs, types.DisplayRuleRenewBanner, data); err != nil {
		return display{}, err
	}
	return out, nil
}

func (v *NationalVerifier) evaluateDisplayRule(dr types.DisplayRule, data certlogic.Value) (certlogic.Value, error) {
	expr, err := v.engine.Expr(dr.Logic)
	if err != nil {
		return nil, err
	}
	return certlogic.Evaluate(expr, data)
}

// displayText evaluates a banner rule; anything but text is no banner.
func (v *NationalVerifier) displayText(rs *types.RuleSet, id string, data certlogic.Value) (string, error) {
	dr, ok := rs.DisplayRule(id)
	if !ok {
		return "", nil
	}
	val, err := v.evaluateDisplayRule(dr, data)
	if err != nil {
		return "", err
	}
	if s, ok := val.(certlogic.Text); ok {
		return string(s), nil
	}
	return "", nil
}

// displayTime converts a display rule result into a window end.
func (v *NationalVerifier) displayTime(val certlogic.Value, certType types.CertType, endOfDay bool) *time.Time {
	dt, ok := val.(certlogic.DateTime)
	if !ok {
		return nil
	}

	var t time.Time
	if certType == types.CertTypeTest {
		t = dt.Time.In(v.location)
	} else {
		y, m, d := dt.Time.Date()
		if endOfDay {
			t = time.Date(y, m, d, 23, 59, 59, 999999999, v.location)
		} else {
			t = time.Date(y, m, d, 0, 0, 0, 0, v.location)
		}
	}
	return &t
}
