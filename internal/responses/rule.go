// Package responses builds "meow" replies from an ordered, weighted rule table.
package responses

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrEmptyTable is returned when a table has no rules.
	ErrEmptyTable = errors.New("response table must have at least one rule")
	// ErrNilTable is returned when a generator is built without a table.
	ErrNilTable = errors.New("response table is required")
)

// RuleError describes a validation error in a single rule.
type RuleError struct {
	Index   int
	Field   string
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("responses[%d].%s: %s", e.Index, e.Field, e.Message)
}

// Rule is one entry of the ordered response table.
//
// Chance is a conditional probability: it applies only when every earlier
// rule was skipped. The last rule of a table ignores Chance and Regex.
type Rule struct {
	// Chance is the percent chance (0-100) that this rule is attempted.
	Chance int `mapstructure:"chance" toml:"chance" yaml:"chance" json:"chance"`

	// Regex, when set, must match the triggering post text.
	Regex string `mapstructure:"regex" toml:"regex,omitempty" yaml:"regex,omitempty" json:"regex,omitempty"`

	// MinWords and MaxWords bound the reply length as [MinWords, MaxWords).
	MinWords int `mapstructure:"min_words" toml:"min_words" yaml:"min_words" json:"min_words"`
	MaxWords int `mapstructure:"max_words" toml:"max_words" yaml:"max_words" json:"max_words"`

	// ContainsEmoji documents that Words holds :shortcode: tokens.
	ContainsEmoji bool `mapstructure:"contains_emoji" toml:"contains_emoji" yaml:"contains_emoji" json:"contains_emoji"`

	// Words are drawn uniformly, with replacement.
	Words []string `mapstructure:"words" toml:"words" yaml:"words" json:"words"`
}

// Validate checks a rule in isolation. index is used for error reporting.
func (r Rule) Validate(index int) error {
	var errs []error
	if r.Chance < 0 || r.Chance > 100 {
		errs = append(errs, &RuleError{Index: index, Field: "chance", Message: fmt.Sprintf("must be 0-100, got %d", r.Chance)})
	}
	if r.MinWords < 0 {
		errs = append(errs, &RuleError{Index: index, Field: "min_words", Message: fmt.Sprintf("must not be negative, got %d", r.MinWords)})
	}
	if r.MinWords >= r.MaxWords {
		errs = append(errs, &RuleError{Index: index, Field: "max_words", Message: fmt.Sprintf("must be greater than min_words (%d), got %d", r.MinWords, r.MaxWords)})
	}
	if len(r.Words) == 0 {
		errs = append(errs, &RuleError{Index: index, Field: "words", Message: "must not be empty"})
	}
	if r.Regex != "" {
		if _, err := regexp.Compile(r.Regex); err != nil {
			errs = append(errs, &RuleError{Index: index, Field: "regex", Message: err.Error()})
		}
	}
	return errors.Join(errs...)
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// Table is an immutable, validated response table.
type Table struct {
	rules []compiledRule
}

// NewTable validates rules and compiles their patterns.
func NewTable(rules []Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyTable
	}

	var errs []error
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(i); err != nil {
			errs = append(errs, err)
			continue
		}
		cr := compiledRule{Rule: cloneRule(rule)}
		if rule.Regex != "" {
			cr.pattern = regexp.MustCompile(rule.Regex)
		}
		compiled = append(compiled, cr)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Table{rules: compiled}, nil
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the table's rules in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = cloneRule(r.Rule)
	}
	return out
}

func cloneRule(r Rule) Rule {
	r.Words = append([]string(nil), r.Words...)
	return r
}
