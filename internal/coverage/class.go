// Package coverage describes how completely official trade statistics
// corroborate the import values for a commodity.
//
// A coverage percentage (years with statistics / years observed) is mapped to
// an ordinal Class. The class feeds both risk adjustment and the width of
// confidence bands.
package coverage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownClass is returned when a coverage label cannot be parsed.
var ErrUnknownClass = errors.New("coverage: unknown coverage class")

// Class is an ordinal coverage category. None < Low < Partial < High.
// The zero value is Unknown, which every consumer treats conservatively.
type Class int

const (
	Unknown Class = iota
	None
	Low
	Partial
	High
)

var classLabels = map[Class]string{
	None:    "No coverage",
	Low:     "Low coverage",
	Partial: "Partial coverage",
	High:    "High coverage",
}

// String returns the canonical label, e.g. "High coverage".
func (c Class) String() string {
	if s, ok := classLabels[c]; ok {
		return s
	}
	return "Unknown coverage"
}

// Valid reports whether c is one of the four known classes.
func (c Class) Valid() bool {
	_, ok := classLabels[c]
	return ok
}

// Reliable reports whether the statistics are good enough to leave a
// margin-based risk tier unchanged. Unknown is never reliable.
func (c Class) Reliable() bool {
	return c == Partial || c == High
}

// ParseClass parses a coverage label. Matching ignores case and accepts the
// short forms "none", "low", "partial" and "high".
func ParseClass(s string) (Class, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, " coverage")
	switch norm {
	case "no", "none":
		return None, nil
	case "low":
		return Low, nil
	case "partial":
		return Partial, nil
	case "high":
		return High, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownClass, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised labels
// decode to Unknown rather than failing, so a bad label can never skip
// the conservative path.
func (c *Class) UnmarshalText(text []byte) error {
	parsed, err := ParseClass(string(text))
	if err != nil {
		*c = Unknown
		return nil
	}
	*c = parsed
	return nil
}

// Breakpoints are the inclusive upper bounds of the Low and Partial classes.
type Breakpoints struct {
	LowMax     float64 `json:"low_max" yaml:"low_max"`
	PartialMax float64 `json:"partial_max" yaml:"partial_max"`
}

// DefaultBreakpoints: 0 → None, (0,40] → Low, (40,80] → Partial, >80 → High.
var DefaultBreakpoints = Breakpoints{LowMax: 40, PartialMax: 80}

// Validate checks the breakpoints are ordered within [0, 100].
func (b Breakpoints) Validate() error {
	if b.LowMax <= 0 || b.PartialMax <= b.LowMax || b.PartialMax > 100 {
		return fmt.Errorf("coverage: breakpoints must satisfy 0 < low_max < partial_max <= 100, got %v/%v",
			b.LowMax, b.PartialMax)
	}
	return nil
}

// Classify maps a coverage percentage to a Class. Zero (and anything below,
// which carries no evidence) is None.
func (b Breakpoints) Classify(pct float64) Class {
	switch {
	case pct <= 0:
		return None
	case pct <= b.LowMax:
		return Low
	case pct <= b.PartialMax:
		return Partial
	default:
		return High
	}
}

// Classify maps a coverage percentage using DefaultBreakpoints.
func Classify(pct float64) Class {
	return DefaultBreakpoints.Classify(pct)
}

// PercentFromYears returns covered/total × 100, or 0 when total is zero.
func PercentFromYears(covered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}
