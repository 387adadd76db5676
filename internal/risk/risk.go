// Package risk assigns a risk tier to a scenario margin and escalates it when
// the trade statistics behind the commodity are weak.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/coverage"
)

var (
	ErrUnknownTier       = errors.New("risk: unknown tier")
	ErrInvalidThresholds = errors.New("risk: invalid thresholds")
)

// Tier is an ordinal risk level. Low < Moderate < High. The zero value is
// Unknown and is escalated straight to High by Adjust.
type Tier int

const (
	Unknown Tier = iota
	Low
	Moderate
	High
)

func (t Tier) String() string {
	switch t {
	case Low:
		return "LOW"
	case Moderate:
		return "MODERATE"
	case High:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is Low, Moderate or High.
func (t Tier) Valid() bool {
	return t >= Low && t <= High
}

// ParseTier parses "LOW", "MODERATE" or "HIGH" (any case).
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return Low, nil
	case "MODERATE":
		return Moderate, nil
	case "HIGH":
		return High, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Thresholds are the margin percentages separating the tiers. A margin below
// HighBelow is High, below ModerateBelow is Moderate, anything else is Low.
type Thresholds struct {
	HighBelow     decimal.Decimal `json:"high_below" yaml:"high_below"`
	ModerateBelow decimal.Decimal `json:"moderate_below" yaml:"moderate_below"`
}

// DefaultThresholds: < 5% High, [5%, 10%) Moderate, >= 10% Low.
var DefaultThresholds = Thresholds{
	HighBelow:     decimal.NewFromInt(5),
	ModerateBelow: decimal.NewFromInt(10),
}

func (th Thresholds) Validate() error {
	if th.ModerateBelow.LessThan(th.HighBelow) {
		return fmt.Errorf("%w: moderate_below (%s) < high_below (%s)",
			ErrInvalidThresholds, th.ModerateBelow, th.HighBelow)
	}
	return nil
}

// Label returns the margin-based tier. An undefined margin is High.
func (th Thresholds) Label(margin decimal.NullDecimal) Tier {
	switch {
	case !margin.Valid:
		return High
	case margin.Decimal.LessThan(th.HighBelow):
		return High
	case margin.Decimal.LessThan(th.ModerateBelow):
		return Moderate
	default:
		return Low
	}
}

// Label applies DefaultThresholds.
func Label(margin decimal.NullDecimal) Tier {
	return DefaultThresholds.Label(margin)
}

// Adjust escalates t by one level when coverage is not reliable (None, Low or
// unrecognised). High never changes and an unrecognised tier becomes High.
// The result is never lower than t.
func Adjust(t Tier, c coverage.Class) Tier {
	switch t {
	case High:
		return High
	case Low, Moderate:
		if c.Reliable() {
			return t
		}
		return t + 1
	default:
		return High
	}
}

// Escalated reports whether Adjust raised the tier.
func Escalated(base, adjusted Tier) bool {
	return adjusted > base
}
