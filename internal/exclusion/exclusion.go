// Package exclusion removes friends, family, staff and promotional clients
// from countable populations while keeping an auditable reason for each.
package exclusion

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
)

// Field names a client attribute a rule inspects.
type Field string

const (
	FieldMembership Field = "membership"
	FieldTeacher    Field = "teacher"
	FieldFirstName  Field = "first_name"
	FieldLastName   Field = "last_name"
	FieldEmail      Field = "email"
)

// Rule excludes a client when Field contains Pattern, case-insensitively.
type Rule struct {
	Field   Field  `mapstructure:"field" yaml:"field" json:"field" validate:"required,oneof=membership teacher first_name last_name email"`
	Pattern string `mapstructure:"pattern" yaml:"pattern" json:"pattern" validate:"required"`
	Reason  string `mapstructure:"reason" yaml:"reason" json:"reason" validate:"required"`
}

// Name identifies the rule in audit records.
func (r Rule) Name() string { return fmt.Sprintf("%s~%s", r.Field, r.Pattern) }

// DefaultRules covers friends and family passes, staff comps and promotional classes.
func DefaultRules() []Rule {
	return []Rule{
		{Field: FieldMembership, Pattern: "friends & family", Reason: "friends & family"},
		{Field: FieldMembership, Pattern: "friends and family", Reason: "friends & family"},
		{Field: FieldMembership, Pattern: "staff", Reason: "staff comp"},
		{Field: FieldMembership, Pattern: "employee", Reason: "staff comp"},
		{Field: FieldMembership, Pattern: "instructor comp", Reason: "staff comp"},
		{Field: FieldMembership, Pattern: "influencer", Reason: "promotional"},
		{Field: FieldMembership, Pattern: "promo", Reason: "promotional"},
		{Field: FieldMembership, Pattern: "event", Reason: "promotional"},
	}
}

type compiled struct {
	rule    Rule
	pattern string
}

// Filter applies rules in order; the first match decides the reason.
type Filter struct {
	rules []compiled
}

// New compiles rules. Rules with a blank pattern are skipped.
func New(rules []Rule) *Filter {
	f := &Filter{}
	for _, r := range rules {
		p := normalize.Fold(r.Pattern)
		if p == "" {
			continue
		}
		f.rules = append(f.rules, compiled{rule: r, pattern: p})
	}
	return f
}

// Match returns the first rule matching c.
func (f *Filter) Match(c model.ClientProfile) (Rule, bool) {
	for _, cr := range f.rules {
		v := normalize.Fold(fieldValue(c, cr.rule.Field))
		if v != "" && strings.Contains(v, cr.pattern) {
			return cr.rule, true
		}
	}
	return Rule{}, false
}

// Exclude returns the audit record for c when a rule matches. The reason
// falls back to the rule name so it is never empty.
func (f *Filter) Exclude(c model.ClientProfile) (model.ExclusionRecord, bool) {
	r, ok := f.Match(c)
	if !ok {
		return model.ExclusionRecord{}, false
	}
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		reason = "matched " + r.Name()
	}
	return model.ExclusionRecord{Client: c, Reason: reason, Rule: r.Name()}, true
}

func fieldValue(c model.ClientProfile, f Field) string {
	switch f {
	case FieldMembership:
		return c.MembershipUsed
	case FieldTeacher:
		return c.Teacher
	case FieldFirstName:
		return c.FirstName
	case FieldLastName:
		return c.LastName
	case FieldEmail:
		return c.Email
	default:
		return ""
	}
}
