package services

import "fmt"

// Policy is the immutable DML/DDL permission pair fixed at handle creation.
// Query-category statements are always permitted; Forbidden and Unrecognized
// statements never are. Changing permissions requires constructing a new
// handle.
type Policy struct {
	AllowMutation   bool
	AllowDefinition bool
}

// Decision is the outcome of evaluating a statement category against a policy.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decide evaluates a command category against the policy. The default is
// deny: no category outside the explicit rules is ever permitted. The reason
// names the category and, for policy-gated categories, the flag that would
// permit it.
func (p Policy) Decide(category CommandCategory, keyword string) Decision {
	switch category {
	case CategoryForbidden:
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("%s statements are forbidden and cannot be enabled by policy", keyword),
		}
	case CategoryQuery:
		return Decision{Allowed: true, Reason: "read-only query statements are always permitted"}
	case CategoryMutation:
		if p.AllowMutation {
			return Decision{Allowed: true, Reason: "mutation permitted by allow-mutation"}
		}
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("%s is a mutation (DML) statement; enable allow-mutation to permit it", keyword),
		}
	case CategoryDefinition:
		if p.AllowDefinition {
			return Decision{Allowed: true, Reason: "definition permitted by allow-definition"}
		}
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("%s is a definition (DDL) statement; enable allow-definition to permit it", keyword),
		}
	default:
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("unrecognized statement keyword %q is denied by default", keyword),
		}
	}
}

// IsPermitted reports whether a category is allowed under the policy.
func IsPermitted(category CommandCategory, policy Policy) bool {
	return policy.Decide(category, category.String()).Allowed
}
