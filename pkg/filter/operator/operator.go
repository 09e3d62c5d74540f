// Package operator defines the rule operators and which field kinds expose
// them. Text and numeric fields have different vocabularies; a rule whose
// field changes kind must pick its operator again.
package operator

import "slices"

const (
	Equals      = "="
	NotEquals   = "!="
	Lt          = "<"
	Lte         = "<="
	Gt          = ">"
	Gte         = ">="
	Contains    = "contains"
	NotContains = "does_not_contain"
	BeginsWith  = "begins_with"
	EndsWith    = "ends_with"
	Regex       = "regex"
	IsNull      = "is_null"
	IsNotNull   = "is_not_null"
)

// Default is the operator a rule gets when created or when its field changes.
const Default = Equals

// Kind is the operator family of a field.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

var (
	textOperators    = []string{Equals, NotEquals, Contains, NotContains, BeginsWith, EndsWith, Regex, IsNull, IsNotNull}
	numericOperators = []string{Equals, NotEquals, Lt, Lte, Gt, Gte, IsNull, IsNotNull}
)

// ForKind lists the operators offered for a field kind, in menu order.
func ForKind(k Kind) []string {
	if k == KindNumeric {
		return slices.Clone(numericOperators)
	}
	return slices.Clone(textOperators)
}

// Supports reports whether op is offered for fields of kind k.
func Supports(k Kind, op string) bool {
	if k == KindNumeric {
		return slices.Contains(numericOperators, op)
	}
	return slices.Contains(textOperators, op)
}

// NeedsValue is false for operators that ignore the rule value.
func NeedsValue(op string) bool {
	return op != IsNull && op != IsNotNull
}

// Label is the human readable name of op.
func Label(op string) string {
	switch op {
	case NotContains:
		return "does not contain"
	case BeginsWith:
		return "begins with"
	case EndsWith:
		return "ends with"
	case Regex:
		return "matches regex"
	case IsNull:
		return "is null"
	case IsNotNull:
		return "is not null"
	default:
		return op
	}
}
