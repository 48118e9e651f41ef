package engine

import (
	"fmt"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

// FieldType classifies what kind of value a schema field holds.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldDate    FieldType = "date"
	FieldObject  FieldType = "object"
)

// FieldSpec describes one addressable field in trigger payloads.
type FieldSpec struct {
	Type        FieldType
	Description string
}

// fieldCatalog enumerates the fields automations are expected to reference.
// Referencing a field outside the catalog is legal at runtime (payloads are
// open maps) but flagged as a warning at authoring time.
var fieldCatalog = map[string]FieldSpec{
	"trigger_type": {Type: FieldString, Description: "dotted trigger name, e.g. lead.created"},
	"event_type":   {Type: FieldString, Description: "create, update or delete"},
	"lead_id":      {Type: FieldString, Description: "lead identifier from the trigger event"},
	"property_id":  {Type: FieldString, Description: "property identifier from the trigger event"},

	"lead.name":        {Type: FieldString},
	"lead.email":       {Type: FieldString},
	"lead.phone":       {Type: FieldString},
	"lead.status":      {Type: FieldString},
	"lead.source":      {Type: FieldString},
	"lead.score":       {Type: FieldNumber},
	"lead.budget":      {Type: FieldNumber},
	"lead.tags":        {Type: FieldArray},
	"lead.assigned_to": {Type: FieldString},
	"lead.is_archived": {Type: FieldBoolean},
	"lead.created_at":  {Type: FieldDate},
	"lead.updated_at":  {Type: FieldDate},
	"lead.custom":      {Type: FieldObject},

	"property.name":       {Type: FieldString},
	"property.city":       {Type: FieldString},
	"property.type":       {Type: FieldString},
	"property.price":      {Type: FieldNumber},
	"property.bedrooms":   {Type: FieldNumber},
	"property.amenities":  {Type: FieldArray},
	"property.is_active":  {Type: FieldBoolean},
	"property.listed_at":  {Type: FieldDate},
	"property.updated_at": {Type: FieldDate},
}

// fieldOperatorCategories lists which operator categories make sense for each
// field type. Null and type checks apply everywhere.
var fieldOperatorCategories = map[FieldType][]string{
	FieldString:  {CategoryComparison, CategoryString, CategoryNull, CategoryType},
	FieldNumber:  {CategoryComparison, CategoryNumeric, CategoryNull, CategoryType},
	FieldBoolean: {CategoryComparison, CategoryNull, CategoryType},
	FieldArray:   {CategoryArray, CategoryNull, CategoryType},
	FieldDate:    {CategoryDate, CategoryComparison, CategoryNull, CategoryType},
	FieldObject:  {CategoryNull, CategoryType},
}

// Report is the outcome of validating a condition tree. Errors make the
// condition unusable; warnings flag constructs that evaluate but are almost
// certainly authoring mistakes.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator checks authored conditions against the operator registry and the
// field catalog before an automation is saved.
type Validator struct {
	registry *Registry
}

// NewValidator creates a condition validator.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate walks the condition tree and collects structural errors and
// suitability warnings. A nil condition is valid but warned about, since an
// automation without conditions never fires.
func (v *Validator) Validate(condition *domain.Condition) Report {
	report := Report{}
	if condition == nil {
		report.Valid = true
		report.Warnings = append(report.Warnings, "no trigger conditions: automation will never match")
		return report
	}
	v.walk(*condition, "", &report)
	report.Valid = len(report.Errors) == 0
	return report
}

func (v *Validator) walk(condition domain.Condition, path string, report *Report) {
	if path == "" {
		path = "$"
	}
	if n := condition.ShapeCount(); n != 1 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%s: condition must be exactly one of field/and/or/not, got %d shapes", path, n))
		return
	}

	switch {
	case condition.And != nil:
		if len(condition.And) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: empty 'and' always matches", path))
		}
		for i, child := range condition.And {
			v.walk(child, fmt.Sprintf("%s.and[%d]", path, i), report)
		}
	case condition.Or != nil:
		if len(condition.Or) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: empty 'or' never matches", path))
		}
		for i, child := range condition.Or {
			v.walk(child, fmt.Sprintf("%s.or[%d]", path, i), report)
		}
	case condition.Not != nil:
		v.walk(*condition.Not, path+".not", report)
	default:
		v.validateLeaf(condition, path, report)
	}
}

func (v *Validator) validateLeaf(condition domain.Condition, path string, report *Report) {
	if condition.Field == "" {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: leaf condition is missing a field", path))
		return
	}
	if condition.Operator == "" {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: field %q is missing an operator", path, condition.Field))
		return
	}
	if !v.registry.Has(condition.Operator) {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%s: unknown operator %q", path, condition.Operator))
		return
	}
	if !v.registry.IsUnary(condition.Operator) && condition.Value == nil {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%s: operator %q requires a value", path, condition.Operator))
	}

	spec, known := fieldCatalog[condition.Field]
	if !known {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s: field %q is not in the schema catalog", path, condition.Field))
		return
	}
	category, _ := v.registry.Category(condition.Operator)
	if !categoryAllowed(spec.Type, category) {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s: operator %q (%s) is unusual for %s field %q",
				path, condition.Operator, category, spec.Type, condition.Field))
	}
}

func categoryAllowed(fieldType FieldType, category string) bool {
	for _, allowed := range fieldOperatorCategories[fieldType] {
		if allowed == category {
			return true
		}
	}
	return false
}

// KnownFields returns the catalog for authoring surfaces.
func KnownFields() map[string]FieldSpec {
	out := make(map[string]FieldSpec, len(fieldCatalog))
	for name, spec := range fieldCatalog {
		out[name] = spec
	}
	return out
}
