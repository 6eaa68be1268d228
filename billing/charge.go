/*
charge.go - Per-apartment charge aggregation

PURPOSE:
  Combines volumes, resolved tariffs, toggle flags, overrides, and one-off
  adjustments into a monthly statement per apartment, and into 3-month and
  12-month history tables.

LINE SELECTION (by calc kind):
  metered:  included when the apartment has a meter for the service and a
            reading exists for the period; amount = volume x tariff.
  derived:  included when the derivation yields a positive volume; tariff
            falls back to the single source service's tariff when the
            derived service has none of its own.
  toggle:   always included; amount is the full tariff when the period's
            flag is enabled, zero otherwise.
  fixed:    always included; an Override row for (apartment, service,
            period) replaces the tariff for that one month.

ROUNDING:
  Every line amount is rounded to two decimals when the line is computed;
  the statement total sums the already-rounded lines plus the rounded
  adjustment sum. Summing raw amounts and rounding once can differ by a
  cent, so the order here must not change.
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Line is one service's charge within a statement.
type Line struct {
	ServiceID   int
	ServiceCode string
	ServiceName string
	Unit        string
	Kind        CalcKind

	// Volume is set for metered and derived lines only.
	Volume *decimal.Decimal

	// Reading and PrevReading are the raw counter states behind a metered
	// line, so report views can show how the volume was derived. PrevReading
	// is nil for a meter's first-ever reading.
	Reading     *decimal.Decimal
	PrevReading *decimal.Decimal

	UnitPrice Money
	Amount    Money // rounded to 2 decimals

	// Untariffed marks a line billed at zero because no tariff resolved.
	// Zero here is indistinguishable from "legitimately free", so the
	// presentation layer warns instead of showing a silent 0.
	Untariffed bool

	// Overridden marks a fixed line billed from an Override row.
	Overridden bool
}

// Statement is the charge breakdown for one apartment and period.
type Statement struct {
	ApartmentID   int
	ApartmentName string
	Period        Period

	Lines         []Line
	ServicesTotal Money // sum of rounded line amounts
	Adjustment    Money // rounded sum of the period's adjustments
	Total         Money

	// Untariffed counts lines billed at zero for lack of a tariff.
	Untariffed int

	// Skipped counts facts ignored because they referenced a missing
	// apartment, meter, or service.
	Skipped int
}

// ComputeBill builds the statement for one apartment and period. All input
// comes from the session; the function performs no I/O and is safe to call
// repeatedly with identical results.
func ComputeBill(s *Session, apartmentID int, period Period) (Statement, error) {
	apt, err := s.ApartmentByID(apartmentID)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{
		ApartmentID:   apt.ID,
		ApartmentName: apt.Name,
		Period:        period,
	}

	for _, svc := range s.Services {
		line, ok := s.computeLine(apt, svc, period, &st.Skipped)
		if !ok {
			continue
		}
		if line.Untariffed {
			st.Untariffed++
		}
		st.Lines = append(st.Lines, line)
		st.ServicesTotal = st.ServicesTotal.Add(line.Amount)
	}

	adj := decimal.Zero
	for _, a := range s.Adjustments {
		if a.ApartmentID == apt.ID && a.Period == period {
			adj = adj.Add(a.Amount)
		}
	}
	st.Adjustment = Round2(adj)
	st.Total = st.ServicesTotal.Add(st.Adjustment)
	return st, nil
}

func (s *Session) computeLine(apt Apartment, svc Service, period Period, skipped *int) (Line, bool) {
	line := Line{
		ServiceID:   svc.ID,
		ServiceCode: svc.Code,
		ServiceName: svc.Name,
		Unit:        svc.Unit,
		Kind:        svc.Kind,
	}

	switch svc.Kind {
	case CalcMetered:
		meter, ok := s.MeterFor(apt.ID, svc.ID)
		if !ok {
			return Line{}, false
		}
		cur, ok := FindReading(s.Readings, meter.ID, period)
		if !ok {
			return Line{}, false
		}
		vol := MeteredVolume(s.Readings, meter.ID, period, s.Mode)
		price, found := ResolveTariff(s.Tariffs, svc.ID, period, apt.Type)
		line.Volume = &vol
		line.Reading = &cur.Value
		if prev, ok := FindReading(s.Readings, meter.ID, period.Prev()); ok {
			line.PrevReading = &prev.Value
		}
		line.UnitPrice = price
		line.Untariffed = !found
		line.Amount = Round2(vol.Mul(price))
		return line, true

	case CalcDerived:
		vol, ok := s.derivedVolume(apt, svc, period, skipped)
		if !ok || !vol.IsPositive() {
			return Line{}, false
		}
		price, found := ResolveTariff(s.Tariffs, svc.ID, period, apt.Type)
		if !found {
			// Fall back to the single source service's tariff rather
			// than silently billing zero.
			price, found = s.sourceTariff(svc, period, apt.Type)
		}
		line.Volume = &vol
		line.UnitPrice = price
		line.Untariffed = !found
		line.Amount = Round2(vol.Mul(price))
		return line, true

	case CalcToggle:
		price, found := ResolveTariff(s.Tariffs, svc.ID, period, apt.Type)
		line.UnitPrice = price
		line.Untariffed = !found
		if s.toggleEnabled(apt.ID, period) {
			line.Amount = Round2(price)
		} else {
			line.Amount = decimal.Zero
		}
		return line, true

	case CalcFixed:
		price, found := ResolveTariff(s.Tariffs, svc.ID, period, apt.Type)
		line.UnitPrice = price
		line.Untariffed = !found
		if ov, ok := s.overrideFor(apt.ID, svc.ID, period); ok {
			line.Overridden = true
			line.Untariffed = false
			line.Amount = Round2(ov.Amount)
		} else {
			line.Amount = Round2(price)
		}
		return line, true
	}
	return Line{}, false
}

// derivedVolume computes a derived service's volume from its source
// services' metered volumes. A source code that resolves to no service is
// counted as skipped and contributes zero.
func (s *Session) derivedVolume(apt Apartment, svc Service, period Period, skipped *int) (decimal.Decimal, bool) {
	deriv, ok := s.Derivations[svc.Code]
	if !ok {
		return decimal.Zero, false
	}
	volumes := make([]decimal.Decimal, 0, len(deriv.Sources))
	for _, code := range deriv.Sources {
		src, err := s.ServiceByCode(code)
		if err != nil {
			*skipped++
			volumes = append(volumes, decimal.Zero)
			continue
		}
		vol := decimal.Zero
		if meter, ok := s.MeterFor(apt.ID, src.ID); ok {
			vol = MeteredVolume(s.Readings, meter.ID, period, s.Mode)
		}
		volumes = append(volumes, vol)
	}
	return deriv.Combine(volumes), true
}

// sourceTariff resolves the fallback tariff for a derived service with no
// tariff of its own. Only single-source derivations fall back; summing
// services (e.g. sewer over two waters) have no unambiguous source price.
func (s *Session) sourceTariff(svc Service, period Period, apartmentType string) (Money, bool) {
	deriv, ok := s.Derivations[svc.Code]
	if !ok || len(deriv.Sources) != 1 {
		return decimal.Zero, false
	}
	src, err := s.ServiceByCode(deriv.Sources[0])
	if err != nil {
		return decimal.Zero, false
	}
	return ResolveTariff(s.Tariffs, src.ID, period, apartmentType)
}

func (s *Session) toggleEnabled(apartmentID int, period Period) bool {
	for _, f := range s.Heating {
		if f.ApartmentID == apartmentID && f.Period == period {
			return f.Enabled
		}
	}
	return false
}

func (s *Session) overrideFor(apartmentID, serviceID int, period Period) (Override, bool) {
	for _, o := range s.Overrides {
		if o.ApartmentID == apartmentID && o.ServiceID == serviceID && o.Period == period {
			return o, true
		}
	}
	return Override{}, false
}

// =============================================================================
// MULTI-PERIOD AND MULTI-APARTMENT VIEWS
// =============================================================================

// ComputeHistory returns one statement per month for the n periods ending
// at end, oldest first. Each month is an independent ComputeBill; there is
// no separate aggregation algorithm.
func ComputeHistory(s *Session, apartmentID int, end Period, months int) ([]Statement, error) {
	periods := PeriodsEnding(end, months)
	out := make([]Statement, 0, len(periods))
	for _, p := range periods {
		st, err := ComputeBill(s, apartmentID, p)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", p, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// ComputeSummary bills every apartment for one period, ordered as the
// apartments record set is ordered.
func ComputeSummary(s *Session, period Period) ([]Statement, error) {
	out := make([]Statement, 0, len(s.Apartments))
	for _, apt := range s.Apartments {
		st, err := ComputeBill(s, apt.ID, period)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// DanglingReadings counts readings for a period whose meter no longer
// exists. Such rows are skipped by billing; the count lets the operator
// layer warn instead of losing them silently.
func DanglingReadings(s *Session, period Period) int {
	n := 0
	for _, r := range s.Readings {
		if r.Period != period {
			continue
		}
		if _, err := s.MeterByID(r.MeterID); err != nil {
			n++
		}
	}
	return n
}
