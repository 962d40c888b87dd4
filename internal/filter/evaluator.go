// Package filter evaluates the tenant filter DSL (internal/domain's
// FilterConfig) against an account and its active policies. Groups are
// ORed; rules within a group are ANDed.
//
// Date-trigger rules (field in {policy_expiration, policy_effective,
// account_created} with a days-future/days-past operator) are recognized
// here so a caller can partition them out, but evaluated by
// internal/automation, not by this package.
package filter

import (
	"strconv"
	"strings"

	"github.com/ignite/automail/internal/domain"
)

// Evaluate reports whether account (with its active policies) satisfies
// cfg. Date-trigger rules are skipped here — a filter_config that carries
// only date-trigger groups trivially matches.
func Evaluate(cfg domain.FilterConfig, account *domain.Account, policies []domain.Policy) bool {
	if len(cfg.Groups) == 0 {
		return true
	}
	for _, group := range cfg.Groups {
		if evaluateGroup(group, account, policies) {
			return true
		}
	}
	return false
}

func evaluateGroup(group domain.FilterGroup, account *domain.Account, policies []domain.Policy) bool {
	for _, rule := range group.Rules {
		if domain.IsDateTriggerOperator(rule.Operator) {
			continue // handled by the scheduler
		}
		if !evaluateRule(rule, account, policies) {
			return false
		}
	}
	return true
}

func evaluateRule(rule domain.FilterRule, account *domain.Account, policies []domain.Policy) bool {
	switch rule.Field {
	case "policy_type", "line_of_business":
		return anyPolicy(policies, func(p domain.Policy) bool {
			return p.Status == domain.PolicyActive && compare(rule.Operator, p.LineOfBusiness, rule.Value)
		})
	case "policy_term", "term":
		return anyPolicy(policies, func(p domain.Policy) bool {
			return p.Status == domain.PolicyActive && compare(rule.Operator, p.Term, rule.Value)
		})
	default:
		return compare(rule.Operator, accountField(account, rule.Field), rule.Value)
	}
}

func anyPolicy(policies []domain.Policy, pred func(domain.Policy) bool) bool {
	for _, p := range policies {
		if pred(p) {
			return true
		}
	}
	return false
}

func accountField(a *domain.Account, field string) string {
	switch field {
	case "name":
		return a.Name
	case "first_name":
		return a.FirstName
	case "last_name":
		return a.LastName
	case "email", "person_email":
		return a.RecipientEmail()
	case "city":
		return a.City
	case "state":
		return a.State
	case "zip":
		return a.Zip
	case "phone":
		return a.Phone
	default:
		return ""
	}
}

func compare(op domain.FilterOperator, actual, want string) bool {
	switch op {
	case domain.OpEquals, domain.OpIs:
		return strings.EqualFold(actual, want)
	case domain.OpNotEquals, domain.OpIsNot:
		return !strings.EqualFold(actual, want)
	case domain.OpContains:
		return containsFold(actual, want)
	case domain.OpNotContains:
		return !containsFold(actual, want)
	case domain.OpStartsWith:
		return len(actual) >= len(want) && strings.EqualFold(actual[:len(want)], want)
	case domain.OpEndsWith:
		return len(actual) >= len(want) && strings.EqualFold(actual[len(actual)-len(want):], want)
	case domain.OpIsEmpty:
		return strings.TrimSpace(actual) == ""
	case domain.OpIsNotEmpty:
		return strings.TrimSpace(actual) != ""
	case domain.OpIn:
		for _, v := range strings.Split(want, ",") {
			if strings.EqualFold(actual, strings.TrimSpace(v)) {
				return true
			}
		}
		return false
	case domain.OpNotIn:
		for _, v := range strings.Split(want, ",") {
			if strings.EqualFold(actual, strings.TrimSpace(v)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// ValidateConditions recursively sanity-checks a FilterConfig, returning a
// list of human-readable problems (empty if valid).
func ValidateConditions(cfg domain.FilterConfig) []string {
	var problems []string
	for gi, group := range cfg.Groups {
		for ri, rule := range group.Rules {
			if rule.Field == "" {
				problems = append(problems, ruleLabel(gi, ri)+": missing field")
			}
			if rule.Operator == "" {
				problems = append(problems, ruleLabel(gi, ri)+": missing operator")
			}
			needsValue := rule.Operator != domain.OpIsEmpty && rule.Operator != domain.OpIsNotEmpty
			if needsValue && rule.Value == "" && !domain.IsDateTriggerOperator(rule.Operator) {
				problems = append(problems, ruleLabel(gi, ri)+": missing value")
			}
		}
	}
	return problems
}

func ruleLabel(groupIdx, ruleIdx int) string {
	return "group " + strconv.Itoa(groupIdx) + " rule " + strconv.Itoa(ruleIdx)
}
