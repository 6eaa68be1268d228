/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain types.
  Monetary amounts serialize as fixed two-decimal strings; volumes keep
  their full precision; periods are canonical "YYYY-MM" strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers.
*/
package api

import (
	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// DICTIONARY TYPES
// =============================================================================

type ApartmentDTO struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Notes string `json:"notes,omitempty"`
}

type CreateApartmentRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Notes string `json:"notes"`
}

type ServiceDTO struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
	Kind string `json:"kind"`
}

type CreateServiceRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
	Kind string `json:"kind"`
}

type TariffDTO struct {
	ID            int    `json:"id"`
	ServiceID     int    `json:"service_id"`
	Price         string `json:"price"`
	Start         string `json:"start_date"`
	End           string `json:"end_date,omitempty"`
	ApartmentType string `json:"apartment_type,omitempty"`
}

type CreateTariffRequest struct {
	ServiceID     int    `json:"service_id"`
	Price         string `json:"price"`
	Start         string `json:"start_date"`
	End           string `json:"end_date"`
	ApartmentType string `json:"apartment_type"`
}

type MeterDTO struct {
	ID          int    `json:"id"`
	ApartmentID int    `json:"apartment_id"`
	ServiceID   int    `json:"service_id"`
	Serial      string `json:"serial,omitempty"`
	Shared      bool   `json:"is_shared"`
}

type CreateMeterRequest struct {
	ApartmentID int    `json:"apartment_id"`
	ServiceID   int    `json:"service_id"`
	Serial      string `json:"serial"`
	Shared      bool   `json:"is_shared"`
}

// =============================================================================
// FACT TYPES
// =============================================================================

// ReadingEntryDTO is one row of the readings-entry view: the meter joined
// with its apartment and service, the previous counter state, and the
// current period's value if already entered.
type ReadingEntryDTO struct {
	MeterID       int    `json:"meter_id"`
	ApartmentName string `json:"apartment_name"`
	ServiceName   string `json:"service_name"`
	Serial        string `json:"serial,omitempty"`
	PrevPeriod    string `json:"prev_period,omitempty"`
	PrevValue     string `json:"prev_value,omitempty"`
	Value         string `json:"value,omitempty"`
}

type UpsertReadingRequest struct {
	MeterID int    `json:"meter_id"`
	Period  string `json:"period"`
	Value   string `json:"value"`
}

type HeatingRequest struct {
	ApartmentID int    `json:"apartment_id"`
	Period      string `json:"period"`
	Enabled     bool   `json:"enabled"`
}

type AdjustmentDTO struct {
	ID          int    `json:"id"`
	ApartmentID int    `json:"apartment_id"`
	Period      string `json:"period"`
	Amount      string `json:"amount"`
	Comment     string `json:"comment,omitempty"`
}

type CreateAdjustmentRequest struct {
	ApartmentID int    `json:"apartment_id"`
	Period      string `json:"period"`
	Amount      string `json:"amount"`
	Comment     string `json:"comment"`
}

type OverrideRequest struct {
	ApartmentID int    `json:"apartment_id"`
	ServiceID   int    `json:"service_id"`
	Period      string `json:"period"`
	Amount      string `json:"amount"`
}

// =============================================================================
// STATEMENT TYPES
// =============================================================================

type LineDTO struct {
	ServiceID   int    `json:"service_id"`
	ServiceCode string `json:"service_code"`
	ServiceName string `json:"service_name"`
	Unit        string `json:"unit,omitempty"`
	Kind        string `json:"kind"`
	Volume      string `json:"volume,omitempty"`
	Reading     string `json:"reading,omitempty"`
	PrevReading string `json:"prev_reading,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
	Untariffed  bool   `json:"untariffed,omitempty"`
	Overridden  bool   `json:"overridden,omitempty"`
}

type StatementDTO struct {
	ApartmentID   int       `json:"apartment_id"`
	ApartmentName string    `json:"apartment_name"`
	Period        string    `json:"period"`
	Lines         []LineDTO `json:"lines"`
	ServicesTotal string    `json:"services_total"`
	Adjustment    string    `json:"adjustments"`
	Total         string    `json:"total"`
	Untariffed    int       `json:"untariffed,omitempty"`
	Skipped       int       `json:"skipped,omitempty"`
}

// SummaryDTO is the all-apartments report for one period.
type SummaryDTO struct {
	Period           string         `json:"period"`
	Bills            []StatementDTO `json:"bills"`
	DanglingReadings int            `json:"dangling_readings,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func apartmentDTO(a billing.Apartment) ApartmentDTO {
	return ApartmentDTO{ID: a.ID, Name: a.Name, Type: a.Type, Notes: a.Notes}
}

func serviceDTO(s billing.Service) ServiceDTO {
	return ServiceDTO{ID: s.ID, Code: s.Code, Name: s.Name, Unit: s.Unit, Kind: string(s.Kind)}
}

func tariffDTO(t billing.Tariff) TariffDTO {
	return TariffDTO{
		ID:            t.ID,
		ServiceID:     t.ServiceID,
		Price:         t.Price.StringFixed(2),
		Start:         t.Start.String(),
		End:           t.End.String(),
		ApartmentType: t.ApartmentType,
	}
}

func meterDTO(m billing.Meter) MeterDTO {
	return MeterDTO{ID: m.ID, ApartmentID: m.ApartmentID, ServiceID: m.ServiceID, Serial: m.Serial, Shared: m.Shared}
}

func adjustmentDTO(a billing.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:          a.ID,
		ApartmentID: a.ApartmentID,
		Period:      a.Period.String(),
		Amount:      a.Amount.StringFixed(2),
		Comment:     a.Comment,
	}
}

func lineDTO(l billing.Line) LineDTO {
	dto := LineDTO{
		ServiceID:   l.ServiceID,
		ServiceCode: l.ServiceCode,
		ServiceName: l.ServiceName,
		Unit:        l.Unit,
		Kind:        string(l.Kind),
		UnitPrice:   l.UnitPrice.StringFixed(2),
		Amount:      l.Amount.StringFixed(2),
		Untariffed:  l.Untariffed,
		Overridden:  l.Overridden,
	}
	if l.Volume != nil {
		dto.Volume = l.Volume.String()
	}
	if l.Reading != nil {
		dto.Reading = l.Reading.String()
	}
	if l.PrevReading != nil {
		dto.PrevReading = l.PrevReading.String()
	}
	return dto
}

func statementDTO(st billing.Statement) StatementDTO {
	lines := make([]LineDTO, 0, len(st.Lines))
	for _, l := range st.Lines {
		lines = append(lines, lineDTO(l))
	}
	return StatementDTO{
		ApartmentID:   st.ApartmentID,
		ApartmentName: st.ApartmentName,
		Period:        st.Period.String(),
		Lines:         lines,
		ServicesTotal: st.ServicesTotal.StringFixed(2),
		Adjustment:    st.Adjustment.StringFixed(2),
		Total:         st.Total.StringFixed(2),
		Untariffed:    st.Untariffed,
		Skipped:       st.Skipped,
	}
}
