// Package rules guesses the vendor behind a transaction description from a
// YAML rule set.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
)

//go:embed vendors.yaml
var embeddedRules []byte

// MatchType defines how patterns are matched against transaction descriptions
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire description exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the description
	MatchTypeContains MatchType = "contains"
)

// Rule maps a description pattern to a vendor name.
type Rule struct {
	Name      string    `yaml:"name"`
	Pattern   string    `yaml:"pattern"`
	MatchType MatchType `yaml:"match_type"`
	Priority  int       `yaml:"priority"`
	Vendor    string    `yaml:"vendor"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on transaction descriptions
type Engine struct {
	rules []Rule // Sorted by priority (highest first)
}

// MatchResult contains the result of applying a rule
type MatchResult struct {
	Vendor   string
	RuleName string
}

func validate(i int, rule Rule) error {
	if rule.Priority < 0 || rule.Priority > 999 {
		return fmt.Errorf("rule %d (%s): priority must be in [0,999], got %d", i, rule.Name, rule.Priority)
	}
	if rule.MatchType != MatchTypeExact && rule.MatchType != MatchTypeContains {
		return fmt.Errorf("rule %d (%s): invalid match_type %q (must be 'exact' or 'contains')", i, rule.Name, rule.MatchType)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("rule %d (%s): pattern cannot be empty", i, rule.Name)
	}
	if strings.TrimSpace(rule.Vendor) == "" {
		return fmt.Errorf("rule %d (%s): vendor cannot be empty", i, rule.Name)
	}
	return nil
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules: %w", err)
	}

	for i, rule := range ruleSet.Rules {
		if err := validate(i, rule); err != nil {
			return nil, err
		}
	}

	// Stable sort keeps file order for equal priorities.
	sorted := make([]Rule, len(ruleSet.Rules))
	copy(sorted, ruleSet.Rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Engine{rules: sorted}, nil
}

// LoadEmbedded loads the embedded vendors.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Load returns the rules at path, or the embedded rules when path is empty.
func Load(path string) (*Engine, error) {
	if path == "" {
		return LoadEmbedded()
	}
	return LoadFromFile(path)
}

// Match returns the first rule matching description, comparing case-insensitively.
// Returns (nil, false) if no rules match.
func (e *Engine) Match(description string) (*MatchResult, bool) {
	normalizedDesc := strings.ToLower(strings.TrimSpace(description))
	if normalizedDesc == "" {
		return nil, false
	}

	for _, rule := range e.rules {
		normalizedPattern := strings.ToLower(strings.TrimSpace(rule.Pattern))

		matched := false
		switch rule.MatchType {
		case MatchTypeExact:
			matched = normalizedDesc == normalizedPattern
		case MatchTypeContains:
			matched = strings.Contains(normalizedDesc, normalizedPattern)
		}

		if matched {
			return &MatchResult{Vendor: rule.Vendor, RuleName: rule.Name}, true
		}
	}

	return nil, false
}

// Apply sets c.VendorGuess from the first matching rule. It reports whether a
// rule matched. A nil engine matches nothing.
func (e *Engine) Apply(c *domain.Candidate) bool {
	if e == nil || c == nil {
		return false
	}
	result, ok := e.Match(c.Description)
	if !ok {
		return false
	}
	c.VendorGuess = result.Vendor
	return true
}

// GetRules returns a copy of the rules in priority order.
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	copy(result, e.rules)
	return result
}
