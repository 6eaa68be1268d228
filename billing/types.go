/*
Package billing provides the core utility-billing computation engine.

PURPOSE:
  This package turns raw meter readings, tariff schedules, and per-apartment
  configuration into monthly charge statements. All record sets are loaded
  into a Session by the caller; every computation here is pure and operates
  on that session without touching I/O.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal monetary amount, always rounded to 2 places per line
  - Apartment/Service/Tariff/Meter: dictionary records
  - Reading/HeatingFlag/Adjustment/Override: period-keyed facts
  - CalcKind: the tag that drives all computation branching

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float arithmetic on money
  2. Explicit data flow: sessions are passed in, no package-level state
  3. Tolerance: dangling references are skipped and counted, never fatal

SEE ALSO:
  - tariff.go: effective-dated tariff resolution
  - consumption.go: reading deltas and derived volumes
  - charge.go: per-apartment statements
  - upsert.go: insert-or-update of period-keyed facts
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Two-decimal monetary amounts
// =============================================================================

// Money is a monetary amount. Line amounts are rounded to 2 decimal places
// at the point of computation; totals sum already-rounded lines. That
// ordering is load-bearing: summing raw values and rounding once can differ
// by a cent from the expected figures.
type Money = decimal.Decimal

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// CALCULATION KINDS
// =============================================================================

// CalcKind determines how a service is billed.
type CalcKind string

const (
	// CalcMetered bills consumption volume (reading delta) times tariff.
	CalcMetered CalcKind = "metered"

	// CalcDerived bills a volume computed from sibling services' volumes
	// via a DerivationTable formula.
	CalcDerived CalcKind = "derived"

	// CalcToggle bills the flat tariff only when the period's heating
	// flag (or other toggle fact) is enabled for the apartment.
	CalcToggle CalcKind = "toggle"

	// CalcFixed bills the flat tariff every period, unless an Override
	// row replaces it for that one period.
	CalcFixed CalcKind = "fixed"
)

// Valid reports whether k is one of the four known kinds.
func (k CalcKind) Valid() bool {
	switch k {
	case CalcMetered, CalcDerived, CalcToggle, CalcFixed:
		return true
	}
	return false
}

// =============================================================================
// DICTIONARY RECORDS
// =============================================================================

// ApartmentTypeAll is the tariff scope matching every apartment type.
const ApartmentTypeAll = "all"

// Apartment is a billable unit. The Type tag ("studio", "duplex", ...)
// selects apartment-type-specific tariffs; empty means untyped and matches
// only "all"-scoped tariffs.
type Apartment struct {
	ID    int
	Name  string
	Type  string
	Notes string
}

// Service is a billable utility. Code is the stable machine key
// ("electricity", "cold_water", ...); ids may be renumbered, codes may not.
type Service struct {
	ID   int
	Code string
	Name string
	Unit string
	Kind CalcKind
}

// Tariff is a unit price effective over [Start, End). End is empty for
// open-ended tariffs. ApartmentType narrows the tariff to one apartment
// type; ApartmentTypeAll (or empty) applies to every type.
type Tariff struct {
	ID            int
	ServiceID     int
	Price         Money
	Start         Period
	End           Period // empty = open-ended
	ApartmentType string
}

// AppliesTo reports whether the tariff's scope covers the apartment type.
func (t Tariff) AppliesTo(apartmentType string) bool {
	return t.ApartmentType == "" || t.ApartmentType == ApartmentTypeAll ||
		t.ApartmentType == apartmentType
}

// Meter couples an apartment with a metered service. At most one meter per
// (apartment, service) pair is expected.
type Meter struct {
	ID          int
	ApartmentID int
	ServiceID   int
	Serial      string
	Shared      bool
}

// =============================================================================
// PERIOD-KEYED FACTS
// =============================================================================

// Reading is a cumulative counter value for one meter and period.
// The value is the counter itself, not a delta. Unique per (meter, period).
type Reading struct {
	ID      int
	MeterID int
	Period  Period
	Value   decimal.Decimal
}

// HeatingFlag enables a toggle service for one apartment and period.
// Unique per (apartment, period).
type HeatingFlag struct {
	ID          int
	ApartmentID int
	Period      Period
	Enabled     bool
}

// Adjustment is a signed one-off amount added directly to an apartment's
// bill for a period, with no tariff involved. Append-only: an apartment may
// carry several adjustments in one period and they are summed.
type Adjustment struct {
	ID          int
	ApartmentID int
	Period      Period
	Amount      Money
	Comment     string
}

// Override replaces a fixed service's tariff for one apartment and period.
// Deleting it (or setting it equal to the tariff) reverts to the tariff.
// Unique per (apartment, service, period).
type Override struct {
	ID          int
	ApartmentID int
	ServiceID   int
	Period      Period
	Amount      Money
}
