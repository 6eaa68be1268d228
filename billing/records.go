/*
records.go - Typed decoding and encoding of record sets

PURPOSE:
  The wire model (recordset.Row) is stringly typed; this file is the typed
  boundary. Each entity has a fixed header, a decoder that validates and
  coerces fields, and an encoder that writes fields back in header order.

QUARANTINE:
  A row that fails validation (bad id, unparseable number, malformed
  period, unknown calc kind) is dropped and counted, never propagated into
  arithmetic as a zero-value surprise. Decoders return the quarantined
  count so sessions can surface it to the operator.
*/
package billing

import (
	"github.com/warp/billing-engine/recordset"
)

// Set headers fix on-disk field order. New fields append at the end so old
// files remain readable (missing fields decode as empty strings).
var setHeaders = map[string][]string{
	SetApartments:  {"id", "name", "type", "notes"},
	SetServices:    {"id", "code", "name", "unit", "kind"},
	SetTariffs:     {"id", "service_id", "price", "start_date", "end_date", "apartment_type"},
	SetMeters:      {"id", "apartment_id", "service_id", "serial", "is_shared"},
	SetReadings:    {"id", "meter_id", "period", "value"},
	SetHeating:     {"id", "apartment_id", "period", "enabled"},
	SetAdjustments: {"id", "apartment_id", "period", "amount", "comment"},
	SetOverrides:   {"id", "apartment_id", "service_id", "period", "amount"},
}

// =============================================================================
// DECODERS
// =============================================================================

func decodeApartments(set recordset.Set) (out []Apartment, quarantined int) {
	for _, row := range set.Rows {
		id, err := row.Int("id")
		if err != nil {
			quarantined++
			continue
		}
		out = append(out, Apartment{
			ID:    id,
			Name:  row.String("name"),
			Type:  row.String("type"),
			Notes: row.String("notes"),
		})
	}
	return out, quarantined
}

func decodeServices(set recordset.Set) (out []Service, quarantined int) {
	for _, row := range set.Rows {
		id, err := row.Int("id")
		if err != nil {
			quarantined++
			continue
		}
		kind := CalcKind(row.String("kind"))
		if kind == "" {
			// Legacy files predate the kind column; those services were
			// all reading-billed.
			kind = CalcMetered
		}
		if !kind.Valid() {
			quarantined++
			continue
		}
		out = append(out, Service{
			ID:   id,
			Code: row.String("code"),
			Name: row.String("name"),
			Unit: row.String("unit"),
			Kind: kind,
		})
	}
	return out, quarantined
}

func decodeTariffs(set recordset.Set) (out []Tariff, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		serviceID, err2 := row.Int("service_id")
		price, err3 := row.Decimal("price")
		start, err4 := ParsePeriod(row.String("start_date"))
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			quarantined++
			continue
		}
		var end Period
		if raw := row.String("end_date"); raw != "" {
			end, err4 = ParsePeriod(raw)
			if err4 != nil {
				quarantined++
				continue
			}
		}
		out = append(out, Tariff{
			ID:            id,
			ServiceID:     serviceID,
			Price:         price,
			Start:         start,
			End:           end,
			ApartmentType: row.String("apartment_type"),
		})
	}
	return out, quarantined
}

func decodeMeters(set recordset.Set) (out []Meter, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		apartmentID, err2 := row.Int("apartment_id")
		serviceID, err3 := row.Int("service_id")
		shared, err4 := row.Bool("is_shared")
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			quarantined++
			continue
		}
		out = append(out, Meter{
			ID:          id,
			ApartmentID: apartmentID,
			ServiceID:   serviceID,
			Serial:      row.String("serial"),
			Shared:      shared,
		})
	}
	return out, quarantined
}

func decodeReadings(set recordset.Set) (out []Reading, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		meterID, err2 := row.Int("meter_id")
		period, err3 := ParsePeriod(row.String("period"))
		value, err4 := row.Decimal("value")
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			quarantined++
			continue
		}
		out = append(out, Reading{ID: id, MeterID: meterID, Period: period, Value: value})
	}
	return out, quarantined
}

func decodeHeating(set recordset.Set) (out []HeatingFlag, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		apartmentID, err2 := row.Int("apartment_id")
		period, err3 := ParsePeriod(row.String("period"))
		enabled, err4 := row.Bool("enabled")
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			quarantined++
			continue
		}
		out = append(out, HeatingFlag{ID: id, ApartmentID: apartmentID, Period: period, Enabled: enabled})
	}
	return out, quarantined
}

func decodeAdjustments(set recordset.Set) (out []Adjustment, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		apartmentID, err2 := row.Int("apartment_id")
		period, err3 := ParsePeriod(row.String("period"))
		amount, err4 := row.Decimal("amount")
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			quarantined++
			continue
		}
		out = append(out, Adjustment{
			ID:          id,
			ApartmentID: apartmentID,
			Period:      period,
			Amount:      amount,
			Comment:     row.String("comment"),
		})
	}
	return out, quarantined
}

func decodeOverrides(set recordset.Set) (out []Override, quarantined int) {
	for _, row := range set.Rows {
		id, err1 := row.Int("id")
		apartmentID, err2 := row.Int("apartment_id")
		serviceID, err3 := row.Int("service_id")
		period, err4 := ParsePeriod(row.String("period"))
		amount, err5 := row.Decimal("amount")
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			quarantined++
			continue
		}
		out = append(out, Override{
			ID:          id,
			ApartmentID: apartmentID,
			ServiceID:   serviceID,
			Period:      period,
			Amount:      amount,
		})
	}
	return out, quarantined
}

// =============================================================================
// ENCODERS
// =============================================================================

func newSet(name string) recordset.Set {
	return recordset.New(setHeaders[name]...)
}

func encodeApartments(rows []Apartment) recordset.Set {
	set := newSet(SetApartments)
	for _, a := range rows {
		r := recordset.Row{"name": a.Name, "type": a.Type, "notes": a.Notes}
		r.SetInt("id", a.ID)
		set.Append(r)
	}
	return set
}

func encodeServices(rows []Service) recordset.Set {
	set := newSet(SetServices)
	for _, s := range rows {
		r := recordset.Row{"code": s.Code, "name": s.Name, "unit": s.Unit, "kind": string(s.Kind)}
		r.SetInt("id", s.ID)
		set.Append(r)
	}
	return set
}

func encodeTariffs(rows []Tariff) recordset.Set {
	set := newSet(SetTariffs)
	for _, t := range rows {
		r := recordset.Row{
			"price":          t.Price.String(),
			"start_date":     t.Start.String(),
			"end_date":       t.End.String(),
			"apartment_type": t.ApartmentType,
		}
		r.SetInt("id", t.ID)
		r.SetInt("service_id", t.ServiceID)
		set.Append(r)
	}
	return set
}

func encodeMeters(rows []Meter) recordset.Set {
	set := newSet(SetMeters)
	for _, m := range rows {
		r := recordset.Row{"serial": m.Serial}
		r.SetInt("id", m.ID)
		r.SetInt("apartment_id", m.ApartmentID)
		r.SetInt("service_id", m.ServiceID)
		r.SetBool("is_shared", m.Shared)
		set.Append(r)
	}
	return set
}

func encodeReadings(rows []Reading) recordset.Set {
	set := newSet(SetReadings)
	for _, rd := range rows {
		r := recordset.Row{"period": rd.Period.String(), "value": rd.Value.String()}
		r.SetInt("id", rd.ID)
		r.SetInt("meter_id", rd.MeterID)
		set.Append(r)
	}
	return set
}

func encodeHeating(rows []HeatingFlag) recordset.Set {
	set := newSet(SetHeating)
	for _, f := range rows {
		r := recordset.Row{"period": f.Period.String()}
		r.SetInt("id", f.ID)
		r.SetInt("apartment_id", f.ApartmentID)
		r.SetBool("enabled", f.Enabled)
		set.Append(r)
	}
	return set
}

func encodeAdjustments(rows []Adjustment) recordset.Set {
	set := newSet(SetAdjustments)
	for _, a := range rows {
		r := recordset.Row{"period": a.Period.String(), "amount": a.Amount.String(), "comment": a.Comment}
		r.SetInt("id", a.ID)
		r.SetInt("apartment_id", a.ApartmentID)
		set.Append(r)
	}
	return set
}

func encodeOverrides(rows []Override) recordset.Set {
	set := newSet(SetOverrides)
	for _, o := range rows {
		r := recordset.Row{"period": o.Period.String(), "amount": o.Amount.String()}
		r.SetInt("id", o.ID)
		r.SetInt("apartment_id", o.ApartmentID)
		r.SetInt("service_id", o.ServiceID)
		set.Append(r)
	}
	return set
}
