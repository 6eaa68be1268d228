/*
consumption.go - Reading deltas and derived volumes

PURPOSE:
  Computes consumed volume per meter and period. Metered services consume
  current-minus-previous counter values; derived services compute their
  volume from sibling services' volumes through an explicit, versionable
  DerivationTable keyed by service code.

KNOWN RISK:
  A meter's first-ever reading has no previous value. The previous value is
  treated as zero, so the full counter value bills as the first month's
  consumption. This matches the historical behavior and is deliberately
  preserved; operators seed a baseline reading in the prior period to avoid
  the overcharge.
*/
package billing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// INPUT MODE
// =============================================================================

// InputMode selects how reading values are interpreted. The historical
// variants split into reading-centric and volume-centric code paths; here
// it is a single flag on the engine.
type InputMode string

const (
	// InputCumulative treats reading values as counter states; volume is
	// the delta against the previous period, floored at zero.
	InputCumulative InputMode = "cumulative"

	// InputDirect treats reading values as the consumed volume itself.
	InputDirect InputMode = "direct"
)

// =============================================================================
// METERED VOLUME
// =============================================================================

// MeteredVolume computes the consumed volume for one meter and period.
//
// In cumulative mode the volume is reading(period) - reading(prev period),
// clamped at zero: a meter rollback or replacement must never produce
// negative consumption. A missing previous reading counts as zero (see the
// file header). A missing current reading yields zero volume.
func MeteredVolume(readings []Reading, meterID int, period Period, mode InputMode) decimal.Decimal {
	cur, ok := FindReading(readings, meterID, period)
	if !ok {
		return decimal.Zero
	}
	if mode == InputDirect {
		return clampZero(cur.Value)
	}
	prev := decimal.Zero
	if r, ok := FindReading(readings, meterID, period.Prev()); ok {
		prev = r.Value
	}
	return clampZero(cur.Value.Sub(prev))
}

// FindReading returns the reading for (meter, period), if any.
func FindReading(readings []Reading, meterID int, period Period) (Reading, bool) {
	for _, r := range readings {
		if r.MeterID == meterID && r.Period == period {
			return r, true
		}
	}
	return Reading{}, false
}

// LastReadingBefore returns the most recent reading strictly before period.
// Used by the readings-entry view to show the previous counter state.
func LastReadingBefore(readings []Reading, meterID int, period Period) (Reading, bool) {
	var best Reading
	found := false
	for _, r := range readings {
		if r.MeterID != meterID || !r.Period.Before(period) {
			continue
		}
		if !found || best.Period.Before(r.Period) {
			best = r
			found = true
		}
	}
	return best, found
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// DERIVATION TABLE
// =============================================================================

// DerivationOp combines source volumes into a derived volume.
type DerivationOp string

const (
	// OpScale multiplies the single source volume by Coefficient.
	OpScale DerivationOp = "scale"

	// OpSum adds all source volumes.
	OpSum DerivationOp = "sum"
)

// Derivation describes how one derived service's volume is computed from
// sibling services. Keys are stable service codes, never numeric ids, so
// the formulas survive id renumbering.
type Derivation struct {
	Sources     []string
	Op          DerivationOp
	Coefficient decimal.Decimal
}

// Combine applies the derivation to the source volumes, in Sources order.
func (d Derivation) Combine(volumes []decimal.Decimal) decimal.Decimal {
	switch d.Op {
	case OpScale:
		if len(volumes) == 0 {
			return decimal.Zero
		}
		return volumes[0].Mul(d.Coefficient)
	case OpSum:
		total := decimal.Zero
		for _, v := range volumes {
			total = total.Add(v)
		}
		return total
	}
	return decimal.Zero
}

// DerivationTable maps derived service codes to their formulas.
type DerivationTable map[string]Derivation

// DefaultDerivations returns the built-in formula set: common-area lighting
// as a tenth of electricity, sewer as hot plus cold water.
func DefaultDerivations() DerivationTable {
	return DerivationTable{
		"lighting_mop": {
			Sources:     []string{"electricity"},
			Op:          OpScale,
			Coefficient: decimal.RequireFromString("0.1"),
		},
		"sewer": {
			Sources: []string{"cold_water", "hot_water"},
			Op:      OpSum,
		},
	}
}

// LoadDerivations reads a DerivationTable from a YAML file, e.g.:
//
//	lighting_mop:
//	  sources: [electricity]
//	  op: scale
//	  coefficient: "0.1"
//	sewer:
//	  sources: [cold_water, hot_water]
//	  op: sum
func LoadDerivations(path string) (DerivationTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read derivations: %w", err)
	}

	// Coefficients arrive as YAML strings; decimal.Decimal has no YAML
	// unmarshaller, so decode through a raw shape first.
	var doc map[string]struct {
		Sources     []string `yaml:"sources"`
		Op          string   `yaml:"op"`
		Coefficient string   `yaml:"coefficient"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse derivations: %w", err)
	}

	table := make(DerivationTable, len(doc))
	for code, entry := range doc {
		d := Derivation{Sources: entry.Sources, Op: DerivationOp(entry.Op)}
		if entry.Coefficient != "" {
			coef, err := decimal.NewFromString(entry.Coefficient)
			if err != nil {
				return nil, fmt.Errorf("derivation %q: coefficient %q: %w", code, entry.Coefficient, ErrNonNumericInput)
			}
			d.Coefficient = coef
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("derivation %q: %w", code, err)
		}
		table[code] = d
	}
	return table, nil
}

func (d Derivation) validate() error {
	if len(d.Sources) == 0 {
		return fmt.Errorf("no source services")
	}
	switch d.Op {
	case OpScale:
		if len(d.Sources) != 1 {
			return fmt.Errorf("op scale takes exactly one source, got %d", len(d.Sources))
		}
		if d.Coefficient.IsZero() {
			return fmt.Errorf("op scale requires a non-zero coefficient")
		}
	case OpSum:
	default:
		return fmt.Errorf("unknown op %q", d.Op)
	}
	return nil
}
