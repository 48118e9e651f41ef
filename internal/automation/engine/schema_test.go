package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

func newTestValidator() *Validator {
	return NewValidator(NewRegistry(nil))
}

func TestValidator_ValidTree(t *testing.T) {
	v := newTestValidator()

	cond := domain.AndOf(
		domain.Leaf("lead.score", "greater_than", float64(50)),
		domain.OrOf(
			domain.Leaf("lead.status", "equals", "qualified"),
			domain.NotOf(domain.Leaf("lead.tags", "contains_any", []any{"cold"})),
		),
	)
	report := v.Validate(&cond)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidator_NilCondition(t *testing.T) {
	v := newTestValidator()

	report := v.Validate(nil)
	assert.True(t, report.Valid)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "never match")
}

func TestValidator_LeafErrors(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		cond    domain.Condition
		wantErr string
	}{
		{"missing operator", domain.Condition{Field: "lead.score"}, "missing an operator"},
		{"unknown operator", domain.Leaf("lead.score", "approximately", float64(5)), "unknown operator"},
		{"binary operator without value", domain.Leaf("lead.score", "greater_than", nil), "requires a value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := v.Validate(&tt.cond)
			assert.False(t, report.Valid)
			require.NotEmpty(t, report.Errors)
			assert.Contains(t, report.Errors[0], tt.wantErr)
		})
	}
}

func TestValidator_UnaryOperatorNeedsNoValue(t *testing.T) {
	v := newTestValidator()

	cond := domain.Leaf("lead.email", "is_empty", nil)
	report := v.Validate(&cond)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
}

func TestValidator_AmbiguousShape(t *testing.T) {
	v := newTestValidator()

	cond := domain.Condition{
		Field:    "lead.score",
		Operator: "equals",
		Value:    float64(5),
		And:      []domain.Condition{domain.Leaf("lead.status", "equals", "new")},
	}
	report := v.Validate(&cond)
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "exactly one of field/and/or/not")
}

func TestValidator_Warnings(t *testing.T) {
	v := newTestValidator()

	cond := domain.AndOf(
		domain.Leaf("lead.nonexistent", "equals", "x"),
		domain.Leaf("lead.score", "contains", "5"),
		domain.Condition{Or: []domain.Condition{}},
	)
	report := v.Validate(&cond)
	assert.True(t, report.Valid, "warnings do not invalidate a condition")
	assert.Len(t, report.Warnings, 3)
	assert.Contains(t, report.Warnings[0], "not in the schema catalog")
	assert.Contains(t, report.Warnings[1], "unusual for number field")
	assert.Contains(t, report.Warnings[2], "never matches")
}

func TestValidator_ErrorPathsAreAddressable(t *testing.T) {
	v := newTestValidator()

	cond := domain.AndOf(
		domain.Leaf("lead.score", "greater_than", float64(1)),
		domain.NotOf(domain.Leaf("lead.status", "bogus_op", "x")),
	)
	report := v.Validate(&cond)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "$.and[1].not")
}

func TestKnownFields(t *testing.T) {
	fields := KnownFields()
	assert.Contains(t, fields, "lead.score")
	assert.Equal(t, FieldNumber, fields["lead.score"].Type)

	// Mutating the copy must not touch the catalog.
	delete(fields, "lead.score")
	assert.Contains(t, KnownFields(), "lead.score")
}
