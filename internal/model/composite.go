package model

import (
	"fmt"
	"time"
)

// CompositeOperator determines how a composite pattern combines its conditions.
type CompositeOperator string

// Composite operator constants.
const (
	// OperatorAll requires every condition to match.
	OperatorAll CompositeOperator = "all"
	// OperatorAny requires at least one condition to match.
	OperatorAny CompositeOperator = "any"
)

// PatternCondition is one sub-condition of a composite pattern. It reuses
// the same matching primitives as standalone patterns.
type PatternCondition struct {
	Type  PatternType `json:"type"`
	Value string      `json:"value"`
}

// CompositePattern is a named, weighted combination of conditions with
// its own confidence weight. Lifecycle matches Pattern: usage recorded,
// deactivated rather than deleted.
type CompositePattern struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Name             string
	Category         string
	Operator         CompositeOperator
	Conditions       []PatternCondition
	ID               int64
	ConfidenceWeight float64
	UsageCount       int
	SuccessCount     int
	IsActive         bool
	UserCreated      bool
}

// SuccessRate returns the historical fraction of correct matches.
func (cp *CompositePattern) SuccessRate() float64 {
	if cp.UsageCount == 0 {
		return 0
	}
	return float64(cp.SuccessCount) / float64(cp.UsageCount)
}

// Validate ensures the composite pattern has valid data.
func (cp *CompositePattern) Validate() error {
	if cp.Name == "" {
		return fmt.Errorf("composite pattern name is required")
	}
	if cp.Category == "" {
		return fmt.Errorf("category is required")
	}
	if cp.Operator != OperatorAll && cp.Operator != OperatorAny {
		return fmt.Errorf("invalid operator: %s", cp.Operator)
	}
	if len(cp.Conditions) == 0 {
		return fmt.Errorf("at least one condition is required")
	}
	if cp.ConfidenceWeight < 0 || cp.ConfidenceWeight > 1 {
		return fmt.Errorf("confidence weight must be between 0 and 1")
	}
	for i, cond := range cp.Conditions {
		single := Pattern{Type: cond.Type, Value: cond.Value, Category: cp.Category, ConfidenceWeight: cp.ConfidenceWeight}
		if err := single.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}
