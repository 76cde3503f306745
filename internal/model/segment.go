// internal/model/segment.go
package model

import (
	"database/sql/driver"
	"fmt"
)

type SegmentLogic string

const (
	LogicAnd SegmentLogic = "AND"
	LogicOr  SegmentLogic = "OR"
)

type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpContains  Operator = "contains"
	OpBetween   Operator = "between"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// SegmentCondition is one declarative predicate over a customer field.
// Value/Value2 come out of JSONB, so numbers are float64 and lists are
// []any.
type SegmentCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Value2   any      `json:"value2,omitempty"`
}

type SegmentDefinition struct {
	Logic                  SegmentLogic       `json:"logic"`
	Conditions             []SegmentCondition `json:"conditions"`
	ExcludeMarketingOptOut bool               `json:"exclude_marketing_opt_out"`
	// ExcludeRecentlyContactedDays drops customers contacted by any
	// campaign within the last N days. Zero disables it.
	ExcludeRecentlyContactedDays int `json:"exclude_recently_contacted_days,omitempty"`
	// RequireChannel drops customers lacking a valid contact method
	// for the channel.
	RequireChannel Channel `json:"require_channel,omitempty"`
}

// Validate checks structural rules only; field resolution happens at
// segment compile time.
func (d SegmentDefinition) Validate() error {
	if d.Logic != LogicAnd && d.Logic != LogicOr {
		return fmt.Errorf("unknown segment logic %q", d.Logic)
	}
	for i, c := range d.Conditions {
		switch c.Operator {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains:
			if c.Value == nil {
				return fmt.Errorf("condition %d (%s): operator %s requires a value", i, c.Field, c.Operator)
			}
		case OpBetween:
			if c.Value == nil || c.Value2 == nil {
				return fmt.Errorf("condition %d (%s): between requires value and value2", i, c.Field)
			}
		case OpIn, OpNotIn:
			if _, ok := c.Value.([]any); !ok {
				return fmt.Errorf("condition %d (%s): %s requires a list value", i, c.Field, c.Operator)
			}
		case OpIsNull, OpIsNotNull:
			// value ignored
		default:
			return fmt.Errorf("condition %d (%s): unknown operator %q", i, c.Field, c.Operator)
		}
	}
	return nil
}

func (d SegmentDefinition) Value() (driver.Value, error) { return jsonValue(d) }
func (d *SegmentDefinition) Scan(src any) error          { return jsonScan(src, d) }
