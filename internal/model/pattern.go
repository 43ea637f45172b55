package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PatternType represents the kind of condition a pattern tests.
type PatternType string

// Pattern type constants.
const (
	PatternTypeMerchant    PatternType = "merchant"
	PatternTypeDescription PatternType = "description"
	PatternTypeKeyword     PatternType = "keyword"
	PatternTypeRegex       PatternType = "regex"
	PatternTypeAmountRange PatternType = "amount_range"
	PatternTypeTime        PatternType = "time"
)

// Pattern represents a single-condition categorization rule.
// Patterns are never deleted, only deactivated, so usage history survives.
type Pattern struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Type             PatternType
	Value            string
	Category         string
	ID               int64
	ConfidenceWeight float64
	UsageCount       int
	SuccessCount     int
	IsActive         bool
	UserCreated      bool
}

// SuccessRate returns the historical fraction of correct matches.
// A pattern with no usage history reports 0.
func (p *Pattern) SuccessRate() float64 {
	if p.UsageCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.UsageCount)
}

// Name returns a stable identifier used in results and learning events.
func (p *Pattern) Name() string {
	return fmt.Sprintf("%s:%s", p.Type, p.Value)
}

// Validate ensures the pattern has valid data.
func (p *Pattern) Validate() error {
	if p.Value == "" {
		return fmt.Errorf("pattern value is required")
	}
	if p.Category == "" {
		return fmt.Errorf("category is required")
	}
	if p.ConfidenceWeight < 0 || p.ConfidenceWeight > 1 {
		return fmt.Errorf("confidence weight must be between 0 and 1")
	}

	switch p.Type {
	case PatternTypeMerchant, PatternTypeDescription, PatternTypeKeyword, PatternTypeRegex:
		return nil
	case PatternTypeAmountRange:
		if _, _, err := ParseAmountRange(p.Value); err != nil {
			return err
		}
		return nil
	case PatternTypeTime:
		if _, err := ParseTimeCondition(p.Value); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("invalid pattern type: %s", p.Type)
}

// ParseAmountRange parses an amount_range value of the form "min-max".
// Either bound may be omitted ("-50" or "10-").
func ParseAmountRange(value string) (minAmount, maxAmount *float64, err error) {
	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid amount range %q: expected min-max", value)
	}

	parse := func(s string) (*float64, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		f, parseErr := strconv.ParseFloat(s, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", s, parseErr)
		}
		return &f, nil
	}

	if minAmount, err = parse(parts[0]); err != nil {
		return nil, nil, err
	}
	if maxAmount, err = parse(parts[1]); err != nil {
		return nil, nil, err
	}
	if minAmount == nil && maxAmount == nil {
		return nil, nil, fmt.Errorf("amount range %q has no bounds", value)
	}
	if minAmount != nil && maxAmount != nil && *minAmount > *maxAmount {
		return nil, nil, fmt.Errorf("amount range min must not exceed max")
	}
	return minAmount, maxAmount, nil
}

// TimeCondition is a calendar predicate parsed from a time pattern value.
type TimeCondition struct {
	Weekday  *time.Weekday
	DayMin   int
	DayMax   int
	HasDays  bool
}

// Matches reports whether the given date satisfies the condition.
func (c TimeCondition) Matches(date time.Time) bool {
	if c.Weekday != nil && date.Weekday() != *c.Weekday {
		return false
	}
	if c.HasDays {
		day := date.Day()
		if day < c.DayMin || day > c.DayMax {
			return false
		}
	}
	return true
}

// ParseTimeCondition parses a time pattern value. Supported forms:
// "day:1-5" (day-of-month range), "day:15" (single day), and
// "weekday:monday".
func ParseTimeCondition(value string) (TimeCondition, error) {
	var cond TimeCondition

	kind, rest, found := strings.Cut(value, ":")
	if !found {
		return cond, fmt.Errorf("invalid time condition %q: expected day: or weekday: prefix", value)
	}

	switch kind {
	case "day":
		lo, hi, hasRange := strings.Cut(rest, "-")
		minDay, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return cond, fmt.Errorf("invalid day %q: %w", lo, err)
		}
		maxDay := minDay
		if hasRange {
			maxDay, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return cond, fmt.Errorf("invalid day %q: %w", hi, err)
			}
		}
		if minDay < 1 || maxDay > 31 || minDay > maxDay {
			return cond, fmt.Errorf("day range must be within 1-31")
		}
		cond.DayMin = minDay
		cond.DayMax = maxDay
		cond.HasDays = true
		return cond, nil

	case "weekday":
		weekdays := map[string]time.Weekday{
			"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
			"wednesday": time.Wednesday, "thursday": time.Thursday,
			"friday": time.Friday, "saturday": time.Saturday,
		}
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(rest))]
		if !ok {
			return cond, fmt.Errorf("invalid weekday %q", rest)
		}
		cond.Weekday = &wd
		return cond, nil
	}

	return cond, fmt.Errorf("invalid time condition kind %q", kind)
}
