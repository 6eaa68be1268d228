/*
tariff.go - Effective-dated tariff resolution

PURPOSE:
  Answers "what does one unit of this service cost in this month, for this
  apartment type?". Tariffs are time-versioned rows with an effective start,
  an optional end, and an optional apartment-type scope.

RESOLUTION ORDER:
  1. Keep tariffs for the service whose start <= period and whose end date
     is empty or >= period. A schedule entry that has run out simply drops
     out of the candidate set; an older open-ended entry behind it still
     applies.
  2. Prefer apartment-type-specific rows over "all"-scoped rows.
  3. Among the remainder, latest start date wins.
  4. Ties on equal start dates break deterministically: most specific
     scope first, then highest id (the row entered last).

  No winner means price zero, not an error. Zero is indistinguishable from
  "legitimately free", so callers receive an ok flag and the aggregator tags
  the line as untariffed for the presentation layer to warn about.
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// ResolveTariff returns the unit price applicable to the service in the
// given period for the given apartment type, and whether any tariff row
// actually matched. Resolution is deterministic: identical inputs always
// yield the identical price.
func ResolveTariff(tariffs []Tariff, serviceID int, period Period, apartmentType string) (Money, bool) {
	var best *Tariff
	for i := range tariffs {
		t := &tariffs[i]
		if t.ServiceID != serviceID || !t.AppliesTo(apartmentType) {
			continue
		}
		if t.Start == "" || period.Before(t.Start) {
			continue
		}
		// Expired entries leave the candidate set entirely, so an older
		// still-open tariff behind them applies.
		if t.End != "" && t.End.Before(period) {
			continue
		}
		if best == nil || tariffLess(best, t, apartmentType) {
			best = t
		}
	}
	if best == nil {
		return decimal.Zero, false
	}
	return best.Price, true
}

// tariffLess reports whether b should be preferred over a.
func tariffLess(a, b *Tariff, apartmentType string) bool {
	if a.Start != b.Start {
		return a.Start.Before(b.Start)
	}
	as, bs := tariffSpecific(a, apartmentType), tariffSpecific(b, apartmentType)
	if as != bs {
		return bs
	}
	return a.ID < b.ID
}

func tariffSpecific(t *Tariff, apartmentType string) bool {
	return apartmentType != "" && t.ApartmentType == apartmentType
}
