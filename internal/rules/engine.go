// internal/rules/engine.go
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/solatis/healthcert/internal/certlogic"
	"github.com/solatis/healthcert/internal/types"
)

/*
 * Compiled-logic cache shared by the national and mode verifiers.
 *
 * Rule logic is stored as text in the rule set. The engine parses each
 * distinct logic document once and hands out the immutable compiled tree to
 * every later verification. Parsing includes structural validation, so a
 * tree returned from Expr is always safe to evaluate.
 *
 * Thread safety: the cache is guarded by an RWMutex; lookups take the read
 * lock, first-time compilation takes the write lock.
 *
 * The cache only grows between resets. Whoever swaps rule sets in and out
 * calls Reset so that superseded logic does not accumulate.
 */

// Engine caches compiled CertLogic expressions keyed by their source text.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]certlogic.Expr
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]certlogic.Expr)}
}

// Expr returns the compiled form of logic, parsing it on first use.
func (e *Engine) Expr(logic types.RawLogic) (certlogic.Expr, error) {
	key := string(logic)

	e.mu.RLock()
	expr, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := certlogic.Parse(logic)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = expr
	e.mu.Unlock()
	return expr, nil
}

// Len returns the number of cached expressions.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Reset drops every cached expression. Trees already handed out stay valid.
func (e *Engine) Reset() {
	e.mu.Lock()
	clear(e.cache)
	e.mu.Unlock()
}

// RuleSetError lists every invalid expression found in a rule set.
type RuleSetError struct {
	Problems []string
}

func (e *RuleSetError) Error() string {
	return fmt.Sprintf("%s: %s", types.ErrInvalidRuleSet, strings.Join(e.Problems, "; "))
}

func (e *RuleSetError) Unwrap() error {
	return types.ErrInvalidRuleSet
}

// Load validates and compiles every expression of a rule set: each rule,
// each display rule and the mode logic. All problems are collected before
// returning.
func (e *Engine) Load(rs *types.RuleSet) error {
	if rs == nil {
		return types.ErrNoRuleSet
	}

	var problems []string
	check := func(label string, logic types.RawLogic) {
		if _, err := e.Expr(logic); err != nil {
			var verrs certlogic.ValidationErrors
			if errors.As(err, &verrs) {
				for _, ve := range verrs {
					problems = append(problems, fmt.Sprintf("%s: %s", label, ve.Error()))
				}
				return
			}
			problems = append(problems, fmt.Sprintf("%s: %v", label, err))
		}
	}

	for _, r := range rs.Rules {
		check("rule "+r.Identifier, r.Logic)
	}
	for _, dr := range rs.DisplayRules {
		check("display rule "+dr.ID, dr.Logic)
	}
	if rs.ModeRules != nil && len(rs.ModeRules.Logic) > 0 {
		check("mode rules", rs.ModeRules.Logic)
	}

	if len(problems) > 0 {
		return &RuleSetError{Problems: problems}
	}
	return nil
}
