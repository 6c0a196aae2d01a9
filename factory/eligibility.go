/*
Package factory provides YAML/JSON to Go eligibility policy conversion.

PURPOSE:
  Converts eligibility policy documents into ledger.EligibilityPolicy values.
  Operators decide who may receive credit by editing a file, not code.

SCHEMA (YAML shown, JSON uses the same keys):
  mode: rules            # deny_all (default) | allow_all | rules
  match: all             # all (default) | any: how the criteria combine
  clients: [300, 310]    # explicit client numbers
  cities: [Porto]        # exact, case-sensitive
  agencies: [Baixa]
  opened_before: 01-01-2020
  min_tenure_days: 365
  rules:                 # nested documents, combined with the criteria above
    - match: any
      cities: [Lisboa]
      clients: [400]

  Criteria left empty do not participate. A "rules" document with no
  criteria at all denies everyone: an empty rule set never grants credit.

USAGE:
  f := factory.NewEligibilityFactory(time.Now)
  policy, err := f.LoadFile("config/eligibility.yaml")
  engine := ledger.NewEngine(store, ledger.WithEligibilityPolicy(policy))

SEE ALSO:
  - ledger/eligibility.go: Built-in policies and combinators
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

const (
	ModeDenyAll  = "deny_all"
	ModeAllowAll = "allow_all"
	ModeRules    = "rules"

	MatchAll = "all"
	MatchAny = "any"
)

// EligibilityConfig is the file representation of an eligibility policy.
type EligibilityConfig struct {
	Mode          string              `json:"mode,omitempty" yaml:"mode,omitempty"`
	Match         string              `json:"match,omitempty" yaml:"match,omitempty"`
	Clients       []int               `json:"clients,omitempty" yaml:"clients,omitempty"`
	Cities        []string            `json:"cities,omitempty" yaml:"cities,omitempty"`
	Agencies      []string            `json:"agencies,omitempty" yaml:"agencies,omitempty"`
	OpenedBefore  string              `json:"opened_before,omitempty" yaml:"opened_before,omitempty"` // dd-mm-yyyy
	MinTenureDays *int                `json:"min_tenure_days,omitempty" yaml:"min_tenure_days,omitempty"`
	Rules         []EligibilityConfig `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// =============================================================================
// ELIGIBILITY FACTORY
// =============================================================================

// EligibilityFactory builds policies. The clock feeds tenure rules.
type EligibilityFactory struct {
	Clock ledger.Clock
}

func NewEligibilityFactory(clock ledger.Clock) *EligibilityFactory {
	if clock == nil {
		clock = time.Now
	}
	return &EligibilityFactory{Clock: clock}
}

// ParseYAML parses a YAML document into a policy.
func (f *EligibilityFactory) ParseYAML(data []byte) (ledger.EligibilityPolicy, error) {
	var cfg EligibilityConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse eligibility YAML: %w", err)
	}
	return f.Build(cfg)
}

// ParseJSON parses a JSON document into a policy.
func (f *EligibilityFactory) ParseJSON(data []byte) (ledger.EligibilityPolicy, error) {
	var cfg EligibilityConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse eligibility JSON: %w", err)
	}
	return f.Build(cfg)
}

// LoadFile reads a policy file, choosing the format by extension
// (.json is JSON, anything else YAML).
func (f *EligibilityFactory) LoadFile(path string) (ledger.EligibilityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read eligibility policy %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return f.ParseJSON(data)
	}
	return f.ParseYAML(data)
}

// Build converts a config into a policy.
func (f *EligibilityFactory) Build(cfg EligibilityConfig) (ledger.EligibilityPolicy, error) {
	switch cfg.Mode {
	case "", ModeDenyAll:
		if cfg.hasCriteria() {
			return nil, fmt.Errorf("eligibility mode %q does not take criteria (use mode: %s)", ModeDenyAll, ModeRules)
		}
		return ledger.DenyAll, nil
	case ModeAllowAll:
		return ledger.AllowAll, nil
	case ModeRules:
		return f.buildRules(cfg)
	default:
		return nil, fmt.Errorf("unknown eligibility mode %q", cfg.Mode)
	}
}

func (f *EligibilityFactory) buildRules(cfg EligibilityConfig) (ledger.EligibilityPolicy, error) {
	var parts []ledger.EligibilityPolicy

	if len(cfg.Clients) > 0 {
		numbers := make([]ledger.ClientNumber, len(cfg.Clients))
		for i, n := range cfg.Clients {
			numbers[i] = ledger.ClientNumber(n)
		}
		parts = append(parts, ledger.AllowList(numbers...))
	}
	if len(cfg.Cities) > 0 {
		parts = append(parts, ledger.InCities(cfg.Cities...))
	}
	if len(cfg.Agencies) > 0 {
		parts = append(parts, ledger.InAgencies(cfg.Agencies...))
	}
	if cfg.OpenedBefore != "" {
		date, err := ledger.ParseDate(cfg.OpenedBefore)
		if err != nil {
			return nil, fmt.Errorf("invalid opened_before: %w", err)
		}
		parts = append(parts, ledger.OpenedBefore(date))
	}
	if cfg.MinTenureDays != nil {
		if *cfg.MinTenureDays < 0 {
			return nil, fmt.Errorf("min_tenure_days must not be negative, got %d", *cfg.MinTenureDays)
		}
		parts = append(parts, ledger.MinTenure(*cfg.MinTenureDays, f.Clock))
	}
	for i, sub := range cfg.Rules {
		if sub.Mode == "" {
			sub.Mode = ModeRules
		}
		p, err := f.Build(sub)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		parts = append(parts, p)
	}

	if len(parts) == 0 {
		return ledger.DenyAll, nil
	}

	switch cfg.Match {
	case "", MatchAll:
		return ledger.All(parts...), nil
	case MatchAny:
		return ledger.Any(parts...), nil
	default:
		return nil, fmt.Errorf("unknown match %q (use %s or %s)", cfg.Match, MatchAll, MatchAny)
	}
}

func (cfg EligibilityConfig) hasCriteria() bool {
	return len(cfg.Clients) > 0 || len(cfg.Cities) > 0 || len(cfg.Agencies) > 0 ||
		cfg.OpenedBefore != "" || cfg.MinTenureDays != nil || len(cfg.Rules) > 0
}
