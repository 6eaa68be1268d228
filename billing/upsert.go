/*
upsert.go - Insert-or-update of period-keyed facts

PURPOSE:
  Readings, heating flags, and overrides are unique on a natural key
  (entity refs + period) distinct from their surrogate id. Writing one is
  always search-then-replace-or-append: an existing row keeps its id and
  gets its non-key fields replaced; a new row gets id 1 + max(existing).

COPY-ON-WRITE:
  Upsert never mutates the input slice. It returns a fresh collection so
  that computations still holding the old slice are unaffected, and so the
  session can stage the result without committing it (persistence failure
  must not leave a half-applied collection behind other readers' backs).
*/
package billing

// Upsert inserts or updates row in rows, keyed by the natural key function.
// On update the existing row's id is preserved; on insert the row receives
// NextID. The returned slice is always a fresh copy; inserted reports which
// branch was taken. Applying the same upsert twice yields one row with the
// final value.
func Upsert[T any, K comparable](rows []T, key func(T) K, id func(T) int, withID func(T, int) T, row T) (out []T, inserted bool) {
	out = make([]T, len(rows), len(rows)+1)
	copy(out, rows)
	k := key(row)
	for i := range out {
		if key(out[i]) == k {
			out[i] = withID(row, id(out[i]))
			return out, false
		}
	}
	return append(out, withID(row, NextID(rows, id))), true
}

// NextID returns 1 + the highest id in rows, or 1 for an empty collection.
func NextID[T any](rows []T, id func(T) int) int {
	max := 0
	for _, r := range rows {
		if id(r) > max {
			max = id(r)
		}
	}
	return max + 1
}

// =============================================================================
// TYPED HELPERS - Natural keys per fact type
// =============================================================================

type readingKey struct {
	MeterID int
	Period  Period
}

// UpsertReading writes a reading keyed by (meter, period).
func UpsertReading(rows []Reading, row Reading) ([]Reading, bool) {
	return Upsert(rows,
		func(r Reading) readingKey { return readingKey{r.MeterID, r.Period} },
		func(r Reading) int { return r.ID },
		func(r Reading, id int) Reading { r.ID = id; return r },
		row)
}

type heatingKey struct {
	ApartmentID int
	Period      Period
}

// UpsertHeatingFlag writes a toggle fact keyed by (apartment, period).
func UpsertHeatingFlag(rows []HeatingFlag, row HeatingFlag) ([]HeatingFlag, bool) {
	return Upsert(rows,
		func(f HeatingFlag) heatingKey { return heatingKey{f.ApartmentID, f.Period} },
		func(f HeatingFlag) int { return f.ID },
		func(f HeatingFlag, id int) HeatingFlag { f.ID = id; return f },
		row)
}

type overrideKey struct {
	ApartmentID int
	ServiceID   int
	Period      Period
}

// UpsertOverride writes an override keyed by (apartment, service, period).
func UpsertOverride(rows []Override, row Override) ([]Override, bool) {
	return Upsert(rows,
		func(o Override) overrideKey { return overrideKey{o.ApartmentID, o.ServiceID, o.Period} },
		func(o Override) int { return o.ID },
		func(o Override, id int) Override { o.ID = id; return o },
		row)
}

// DeleteOverride removes the override for (apartment, service, period),
// reverting the fixed service to its tariff. Copy-on-write like Upsert.
func DeleteOverride(rows []Override, apartmentID, serviceID int, period Period) ([]Override, bool) {
	out := make([]Override, 0, len(rows))
	removed := false
	for _, o := range rows {
		if o.ApartmentID == apartmentID && o.ServiceID == serviceID && o.Period == period {
			removed = true
			continue
		}
		out = append(out, o)
	}
	return out, removed
}

// AppendAdjustment adds an adjustment with a fresh id. Adjustments are
// append-only: several may coexist for one (apartment, period) and are
// summed during aggregation.
func AppendAdjustment(rows []Adjustment, row Adjustment) []Adjustment {
	out := make([]Adjustment, len(rows), len(rows)+1)
	copy(out, rows)
	row.ID = NextID(rows, func(a Adjustment) int { return a.ID })
	return append(out, row)
}
