/*
session.go - The unit of work owning all loaded record sets

PURPOSE:
  A Session is an explicit, caller-owned snapshot of every record set,
  loaded through a RecordStore. All engine computations take the session as
  input; there is no ambient global state. Mutations stage fresh
  collections (copy-on-write via the upsert engine) and are persisted only
  by an explicit Commit.

COMMIT SEMANTICS:
  Commit writes each dirty set guarded by the revision read at load time.
  A set's staged rows are considered committed only once its write
  succeeds; on failure the set stays dirty so a retry (typically after a
  reload on revision conflict) does not double-apply.

OWNERSHIP:
  A session belongs to one caller at a time. Callers that share a session
  across goroutines must serialize access themselves; the engine performs
  no internal locking.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/recordset"
)

// Session holds one consistent snapshot of the flat-file database.
type Session struct {
	// Engine configuration; set after Load if the defaults don't fit.
	Mode        InputMode
	Derivations DerivationTable

	Apartments  []Apartment
	Services    []Service
	Tariffs     []Tariff
	Meters      []Meter
	Readings    []Reading
	Heating     []HeatingFlag
	Adjustments []Adjustment
	Overrides   []Override

	// Quarantined counts rows per set that failed validation on load.
	Quarantined map[string]int

	store     RecordStore
	revisions map[string]Revision
	dirty     map[string]bool
}

// NewSession returns an empty store-less session. Useful for fixtures and
// one-shot computations; Commit on such a session fails with
// ErrPersistenceFailure.
func NewSession() *Session {
	return &Session{
		Mode:        InputCumulative,
		Derivations: DefaultDerivations(),
		Quarantined: make(map[string]int),
		revisions:   make(map[string]Revision),
		dirty:       make(map[string]bool),
	}
}

// Load reads every record set through the store and decodes it. Sets are
// read sequentially; a missing set decodes as empty. Rows failing
// validation are quarantined and counted, never loaded.
func Load(ctx context.Context, store RecordStore) (*Session, error) {
	s := NewSession()
	s.store = store
	for _, name := range SetNames {
		set, rev, err := store.ReadSet(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		s.revisions[name] = rev
		var q int
		switch name {
		case SetApartments:
			s.Apartments, q = decodeApartments(set)
		case SetServices:
			s.Services, q = decodeServices(set)
		case SetTariffs:
			s.Tariffs, q = decodeTariffs(set)
		case SetMeters:
			s.Meters, q = decodeMeters(set)
		case SetReadings:
			s.Readings, q = decodeReadings(set)
		case SetHeating:
			s.Heating, q = decodeHeating(set)
		case SetAdjustments:
			s.Adjustments, q = decodeAdjustments(set)
		case SetOverrides:
			s.Overrides, q = decodeOverrides(set)
		}
		if q > 0 {
			s.Quarantined[name] = q
		}
	}
	return s, nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

// ApartmentByID returns the apartment, or ErrNotFound.
func (s *Session) ApartmentByID(id int) (Apartment, error) {
	for _, a := range s.Apartments {
		if a.ID == id {
			return a, nil
		}
	}
	return Apartment{}, fmt.Errorf("apartment %d: %w", id, ErrNotFound)
}

// ServiceByID returns the service, or ErrNotFound.
func (s *Session) ServiceByID(id int) (Service, error) {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("service %d: %w", id, ErrNotFound)
}

// ServiceByCode returns the service with the stable code, or ErrNotFound.
func (s *Session) ServiceByCode(code string) (Service, error) {
	for _, svc := range s.Services {
		if svc.Code == code {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("service %q: %w", code, ErrNotFound)
}

// MeterByID returns the meter, or ErrNotFound.
func (s *Session) MeterByID(id int) (Meter, error) {
	for _, m := range s.Meters {
		if m.ID == id {
			return m, nil
		}
	}
	return Meter{}, fmt.Errorf("meter %d: %w", id, ErrNotFound)
}

// MeterFor returns the apartment's meter for a service, if one exists.
func (s *Session) MeterFor(apartmentID, serviceID int) (Meter, bool) {
	for _, m := range s.Meters {
		if m.ApartmentID == apartmentID && m.ServiceID == serviceID {
			return m, true
		}
	}
	return Meter{}, false
}

// =============================================================================
// DICTIONARY MUTATIONS
// =============================================================================

// AddApartment appends a new apartment with a fresh id.
func (s *Session) AddApartment(name, aptType, notes string) Apartment {
	a := Apartment{
		ID:    NextID(s.Apartments, func(a Apartment) int { return a.ID }),
		Name:  name,
		Type:  aptType,
		Notes: notes,
	}
	s.Apartments = append(append([]Apartment{}, s.Apartments...), a)
	s.dirty[SetApartments] = true
	return a
}

// AddService appends a new service with a fresh id.
func (s *Session) AddService(code, name, unit string, kind CalcKind) (Service, error) {
	if !kind.Valid() {
		return Service{}, fmt.Errorf("unknown calc kind %q", kind)
	}
	svc := Service{
		ID:   NextID(s.Services, func(sv Service) int { return sv.ID }),
		Code: code,
		Name: name,
		Unit: unit,
		Kind: kind,
	}
	s.Services = append(append([]Service{}, s.Services...), svc)
	s.dirty[SetServices] = true
	return svc, nil
}

// AddTariff appends a new tariff row for a service.
func (s *Session) AddTariff(serviceID int, price Money, start, end Period, apartmentType string) (Tariff, error) {
	if _, err := s.ServiceByID(serviceID); err != nil {
		return Tariff{}, err
	}
	t := Tariff{
		ID:            NextID(s.Tariffs, func(t Tariff) int { return t.ID }),
		ServiceID:     serviceID,
		Price:         price,
		Start:         start,
		End:           end,
		ApartmentType: apartmentType,
	}
	s.Tariffs = append(append([]Tariff{}, s.Tariffs...), t)
	s.dirty[SetTariffs] = true
	return t, nil
}

// AddMeter appends a new meter for an apartment and service.
func (s *Session) AddMeter(apartmentID, serviceID int, serial string, shared bool) (Meter, error) {
	if _, err := s.ApartmentByID(apartmentID); err != nil {
		return Meter{}, err
	}
	if _, err := s.ServiceByID(serviceID); err != nil {
		return Meter{}, err
	}
	m := Meter{
		ID:          NextID(s.Meters, func(m Meter) int { return m.ID }),
		ApartmentID: apartmentID,
		ServiceID:   serviceID,
		Serial:      serial,
		Shared:      shared,
	}
	s.Meters = append(append([]Meter{}, s.Meters...), m)
	s.dirty[SetMeters] = true
	return m, nil
}

// =============================================================================
// FACT MUTATIONS
// =============================================================================

// PutReading upserts a meter reading for a period.
func (s *Session) PutReading(meterID int, period Period, value decimal.Decimal) (Reading, error) {
	if _, err := s.MeterByID(meterID); err != nil {
		return Reading{}, &MissingReferenceError{Set: SetReadings, Field: "meter_id", Ref: meterID}
	}
	rows, _ := UpsertReading(s.Readings, Reading{MeterID: meterID, Period: period, Value: value})
	s.Readings = rows
	s.dirty[SetReadings] = true
	r, _ := FindReading(rows, meterID, period)
	return r, nil
}

// PutHeating upserts an apartment's toggle flag for a period.
func (s *Session) PutHeating(apartmentID int, period Period, enabled bool) (HeatingFlag, error) {
	if _, err := s.ApartmentByID(apartmentID); err != nil {
		return HeatingFlag{}, &MissingReferenceError{Set: SetHeating, Field: "apartment_id", Ref: apartmentID}
	}
	rows, _ := UpsertHeatingFlag(s.Heating, HeatingFlag{ApartmentID: apartmentID, Period: period, Enabled: enabled})
	s.Heating = rows
	s.dirty[SetHeating] = true
	for _, f := range rows {
		if f.ApartmentID == apartmentID && f.Period == period {
			return f, nil
		}
	}
	return HeatingFlag{}, nil
}

// PutOverride upserts a one-period replacement for a fixed service's tariff.
func (s *Session) PutOverride(apartmentID, serviceID int, period Period, amount Money) (Override, error) {
	if _, err := s.ApartmentByID(apartmentID); err != nil {
		return Override{}, &MissingReferenceError{Set: SetOverrides, Field: "apartment_id", Ref: apartmentID}
	}
	if _, err := s.ServiceByID(serviceID); err != nil {
		return Override{}, &MissingReferenceError{Set: SetOverrides, Field: "service_id", Ref: serviceID}
	}
	rows, _ := UpsertOverride(s.Overrides, Override{
		ApartmentID: apartmentID, ServiceID: serviceID, Period: period, Amount: amount,
	})
	s.Overrides = rows
	s.dirty[SetOverrides] = true
	for _, o := range rows {
		if o.ApartmentID == apartmentID && o.ServiceID == serviceID && o.Period == period {
			return o, nil
		}
	}
	return Override{}, nil
}

// RemoveOverride deletes the override, reverting the line to its tariff.
func (s *Session) RemoveOverride(apartmentID, serviceID int, period Period) bool {
	rows, removed := DeleteOverride(s.Overrides, apartmentID, serviceID, period)
	if removed {
		s.Overrides = rows
		s.dirty[SetOverrides] = true
	}
	return removed
}

// AddAdjustment appends a signed one-off amount to an apartment's period.
func (s *Session) AddAdjustment(apartmentID int, period Period, amount Money, comment string) (Adjustment, error) {
	if _, err := s.ApartmentByID(apartmentID); err != nil {
		return Adjustment{}, &MissingReferenceError{Set: SetAdjustments, Field: "apartment_id", Ref: apartmentID}
	}
	rows := AppendAdjustment(s.Adjustments, Adjustment{
		ApartmentID: apartmentID, Period: period, Amount: amount, Comment: comment,
	})
	s.Adjustments = rows
	s.dirty[SetAdjustments] = true
	return rows[len(rows)-1], nil
}

// =============================================================================
// COMMIT
// =============================================================================

// Dirty lists the record sets with staged, unsaved changes.
func (s *Session) Dirty() []string {
	var names []string
	for _, name := range SetNames {
		if s.dirty[name] {
			names = append(names, name)
		}
	}
	return names
}

// Commit writes every dirty set back through the store, one sequential
// write per set, each guarded by the revision read at load. The first
// failure stops the commit; already-written sets are clean, the failed set
// and any after it stay dirty for retry. On ErrRevisionConflict the caller
// should reload the session and reapply before retrying.
func (s *Session) Commit(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("%w: session has no record store", ErrPersistenceFailure)
	}
	for _, name := range s.Dirty() {
		set := s.encode(name)
		rev, err := s.store.WriteSet(ctx, name, set, s.revisions[name])
		if err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
		s.revisions[name] = rev
		delete(s.dirty, name)
	}
	return nil
}

func (s *Session) encode(name string) recordset.Set {
	switch name {
	case SetApartments:
		return encodeApartments(s.Apartments)
	case SetServices:
		return encodeServices(s.Services)
	case SetTariffs:
		return encodeTariffs(s.Tariffs)
	case SetMeters:
		return encodeMeters(s.Meters)
	case SetReadings:
		return encodeReadings(s.Readings)
	case SetHeating:
		return encodeHeating(s.Heating)
	case SetAdjustments:
		return encodeAdjustments(s.Adjustments)
	case SetOverrides:
		return encodeOverrides(s.Overrides)
	}
	return recordset.Set{}
}
