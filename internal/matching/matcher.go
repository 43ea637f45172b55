package matching

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ledgerline/categorizer/internal/model"
)

// MatcherConfig bounds pattern evaluation and confidence adjustment.
type MatcherConfig struct {
	// RegexTimeout bounds regex compilation; patterns that cannot be
	// compiled within it are rejected.
	RegexTimeout time.Duration
	// MinWeight and MaxWeight clamp effective confidence.
	MinWeight float64
	MaxWeight float64
	// MinObservations is the usage count below which a pattern's
	// static weight is used unchanged.
	MinObservations int
}

// DefaultMatcherConfig returns the default matcher configuration.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		RegexTimeout:    100 * time.Millisecond,
		MinWeight:       0.05,
		MaxWeight:       0.95,
		MinObservations: 5,
	}
}

// Matcher evaluates transactions against stored patterns. Compiled
// regexes are cached; a pattern whose compilation exceeds the timeout
// is cached as rejected and never matches.
type Matcher struct {
	regexCache map[string]*regexp.Regexp
	config     MatcherConfig
	mu         sync.RWMutex
}

// NewMatcher creates a pattern matcher.
func NewMatcher(config MatcherConfig) *Matcher {
	if config.RegexTimeout <= 0 {
		config.RegexTimeout = DefaultMatcherConfig().RegexTimeout
	}
	if config.MinWeight <= 0 {
		config.MinWeight = DefaultMatcherConfig().MinWeight
	}
	if config.MaxWeight <= 0 {
		config.MaxWeight = DefaultMatcherConfig().MaxWeight
	}
	if config.MinObservations <= 0 {
		config.MinObservations = DefaultMatcherConfig().MinObservations
	}

	return &Matcher{
		config:     config,
		regexCache: make(map[string]*regexp.Regexp),
	}
}

// Matches reports whether a transaction satisfies a single pattern.
// Inactive patterns never match.
func (m *Matcher) Matches(p *model.Pattern, txn model.Transaction) bool {
	if !p.IsActive {
		return false
	}
	return m.matchesCondition(p.Type, p.Value, txn)
}

// MatchesComposite evaluates a composite pattern's conditions under its
// boolean operator.
func (m *Matcher) MatchesComposite(cp *model.CompositePattern, txn model.Transaction) bool {
	if !cp.IsActive || len(cp.Conditions) == 0 {
		return false
	}

	for _, cond := range cp.Conditions {
		matched := m.matchesCondition(cond.Type, cond.Value, txn)
		switch cp.Operator {
		case model.OperatorAll:
			if !matched {
				return false
			}
		case model.OperatorAny:
			if matched {
				return true
			}
		default:
			return false
		}
	}

	return cp.Operator == model.OperatorAll
}

func (m *Matcher) matchesCondition(patternType model.PatternType, value string, txn model.Transaction) bool {
	switch patternType {
	case model.PatternTypeMerchant:
		return containsNormalized(txn.MerchantName, value)
	case model.PatternTypeDescription:
		return containsNormalized(txn.Description, value)
	case model.PatternTypeKeyword:
		combined := txn.MerchantName + " " + txn.Description
		return containsNormalized(combined, value)
	case model.PatternTypeRegex:
		re := m.compiledRegex(value)
		if re == nil {
			return false
		}
		return re.MatchString(Normalize(txn.MerchantName)) || re.MatchString(Normalize(txn.Description))
	case model.PatternTypeAmountRange:
		minAmount, maxAmount, err := model.ParseAmountRange(value)
		if err != nil {
			return false
		}
		if minAmount != nil && txn.Amount < *minAmount {
			return false
		}
		if maxAmount != nil && txn.Amount > *maxAmount {
			return false
		}
		return true
	case model.PatternTypeTime:
		cond, err := model.ParseTimeCondition(value)
		if err != nil {
			return false
		}
		return cond.Matches(txn.Date)
	}

	return false
}

// containsNormalized reports whether text contains value after both are
// case-folded and diacritic-stripped. Empty text never matches.
func containsNormalized(text, value string) bool {
	text = Normalize(text)
	value = Normalize(value)
	if text == "" || value == "" {
		return false
	}
	return strings.Contains(text, value)
}

// compiledRegex returns the cached compiled form of a regex pattern, or
// nil when the pattern is invalid or compilation exceeded the timeout.
func (m *Matcher) compiledRegex(value string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.regexCache[value]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re = m.compileBounded(value)

	m.mu.Lock()
	m.regexCache[value] = re
	m.mu.Unlock()

	return re
}

// compileBounded compiles a regex on a separate goroutine so a
// pathological pattern cannot stall a categorization call. Patterns
// that miss the deadline are treated as rejected.
func (m *Matcher) compileBounded(value string) *regexp.Regexp {
	done := make(chan *regexp.Regexp, 1)
	go func() {
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			done <- nil
			return
		}
		done <- re
	}()

	select {
	case re := <-done:
		return re
	case <-time.After(m.config.RegexTimeout):
		return nil
	}
}

// EffectiveConfidence adjusts a pattern's static weight by its
// historical success rate. Patterns with few observations keep their
// static weight; the result is always clamped to the configured range.
func (m *Matcher) EffectiveConfidence(weight float64, usageCount, successCount int) float64 {
	effective := weight

	if usageCount >= m.config.MinObservations {
		successRate := float64(successCount) / float64(usageCount)
		effective = weight * (0.8 + 0.4*successRate)
	}

	if effective < m.config.MinWeight {
		effective = m.config.MinWeight
	}
	if effective > m.config.MaxWeight {
		effective = m.config.MaxWeight
	}
	return effective
}

// PatternConfidence is a convenience wrapper over EffectiveConfidence
// for stored patterns.
func (m *Matcher) PatternConfidence(p *model.Pattern) float64 {
	return m.EffectiveConfidence(p.ConfidenceWeight, p.UsageCount, p.SuccessCount)
}

// CompositeConfidence is the composite-pattern counterpart.
func (m *Matcher) CompositeConfidence(cp *model.CompositePattern) float64 {
	return m.EffectiveConfidence(cp.ConfidenceWeight, cp.UsageCount, cp.SuccessCount)
}
