package domain

// Condition is a recursive sum type: either a leaf {field, operator, value}
// or exactly one of the and/or/not combinators. Conditions are immutable once
// attached to a stored automation; evaluation never mutates them.
type Condition struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	And []Condition `json:"and,omitempty"`
	Or  []Condition `json:"or,omitempty"`
	Not *Condition  `json:"not,omitempty"`
}

// IsLeaf reports whether the condition is a field/operator/value leaf.
func (c *Condition) IsLeaf() bool {
	return c.Field != "" || c.Operator != ""
}

// ShapeCount returns how many of the four shapes (leaf, and, or, not) are
// populated. A well-formed condition has exactly one.
func (c *Condition) ShapeCount() int {
	n := 0
	if c.IsLeaf() {
		n++
	}
	if c.And != nil {
		n++
	}
	if c.Or != nil {
		n++
	}
	if c.Not != nil {
		n++
	}
	return n
}

// Leaf builds a field condition.
func Leaf(field, operator string, value any) Condition {
	return Condition{Field: field, Operator: operator, Value: value}
}

// AndOf combines conditions so that all must match.
func AndOf(conditions ...Condition) Condition {
	return Condition{And: conditions}
}

// OrOf combines conditions so that at least one must match.
func OrOf(conditions ...Condition) Condition {
	return Condition{Or: conditions}
}

// NotOf inverts a condition.
func NotOf(condition Condition) Condition {
	return Condition{Not: &condition}
}
