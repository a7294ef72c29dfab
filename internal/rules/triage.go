// Package rules provides the CEL-Go based triage rule engine. Triage
// rules run over scored records after the composite scorer and select
// which detections raise alert events; they never change scores.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/riskmetric/internal/domain"
)

// Engine is the CEL-based triage rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.TriageRuleConfig
	Program cel.Program
}

// NewEngine creates a new triage rule engine.
func NewEngine() (*Engine, error) {
	// CEL environment over the scored-record fields triage cares about.
	env, err := cel.NewEnv(
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("risk_tier", cel.StringType),
		cel.Variable("detected_fraud", cel.BoolType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("country", cel.StringType),
		cel.Variable("home_country", cel.StringType),
		cel.Variable("flag_impossible_travel", cel.BoolType),
		cel.Variable("flag_velocity_spike", cel.BoolType),
		cel.Variable("flag_behavioral_drift", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.TriageRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.TriageRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(configs []domain.TriageRuleConfig) error {
	for i := range configs {
		if configs[i].Enabled {
			if err := e.LoadRule(&configs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

func (e *Engine) compileRule(cfg *domain.TriageRuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" || cfg.Expression == "" {
		return nil, fmt.Errorf("rule id and expression are required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Evaluate runs every loaded rule against one scored record and returns
// the matches. A rule that errors at evaluation time is skipped: triage
// is advisory and must not fail the pipeline.
func (e *Engine) Evaluate(rec *domain.RiskRecord, homeCountry string) []domain.TriageMatch {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"risk_score":             int64(rec.RiskScore),
		"risk_tier":              string(rec.RiskTier),
		"detected_fraud":         rec.DetectedFraud,
		"amount":                 rec.Amount,
		"country":                rec.Country,
		"home_country":           homeCountry,
		"flag_impossible_travel": rec.FlagImpossibleTravel,
		"flag_velocity_spike":    rec.FlagVelocitySpike,
		"flag_behavioral_drift":  rec.FlagBehavioralDrift,
	}

	var matches []domain.TriageMatch
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			matches = append(matches, domain.TriageMatch{
				RuleID:        rule.Config.ID,
				RuleName:      rule.Config.Name,
				TransactionID: rec.ID,
				Reason:        rule.Config.Description,
			})
		}
	}
	return matches
}
