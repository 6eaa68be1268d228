/*
handlers_test.go - End-to-end API tests against the in-memory store

Each test drives the full stack: router -> handlers -> session -> store.
The fixtures follow the standing example: electricity at 5.00/kWh from
2024-01, counter 100 in January and 142 in February, so February's
electricity line is 42 kWh = 210.00.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := api.NewHandler(memory.New())
	require.NoError(t, h.Reload(context.Background()))
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// seedBuilding creates one apartment with a metered electricity service,
// its tariff, meter, and two months of readings.
func seedBuilding(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/api/apartments",
		map[string]string{"name": "Unit 1"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/services",
		map[string]string{"code": "electricity", "name": "Electricity", "unit": "kWh", "kind": "metered"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/tariffs",
		map[string]any{"service_id": 1, "price": "5.00", "start_date": "2024-01"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/meters",
		map[string]any{"apartment_id": 1, "service_id": 1}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for period, value := range map[string]string{"2024-01": "100", "2024-02": "142"} {
		resp = doJSON(t, srv, http.MethodPut, "/api/readings",
			map[string]any{"meter_id": 1, "period": period, "value": value}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestStatement_MeteredCharge(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	var st struct {
		Total string `json:"total"`
		Lines []struct {
			ServiceCode string `json:"service_code"`
			Volume      string `json:"volume"`
			Reading     string `json:"reading"`
			PrevReading string `json:"prev_reading"`
			Amount      string `json:"amount"`
		} `json:"lines"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, st.Lines, 1)
	assert.Equal(t, "electricity", st.Lines[0].ServiceCode)
	assert.Equal(t, "42", st.Lines[0].Volume)
	assert.Equal(t, "142", st.Lines[0].Reading)
	assert.Equal(t, "100", st.Lines[0].PrevReading)
	assert.Equal(t, "210.00", st.Lines[0].Amount)
	assert.Equal(t, "210.00", st.Total)
}

func TestStatement_AdjustmentApplied(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/adjustments",
		map[string]any{"apartment_id": 1, "period": "2024-02", "amount": "-50", "comment": "goodwill"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var st struct {
		Adjustments string `json:"adjustments"`
		Total       string `json:"total"`
	}
	doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	assert.Equal(t, "-50.00", st.Adjustments)
	assert.Equal(t, "160.00", st.Total)
}

func TestHeatingToggle(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/services",
		map[string]string{"code": "heating", "name": "Heating", "kind": "toggle"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doJSON(t, srv, http.MethodPost, "/api/tariffs",
		map[string]any{"service_id": 2, "price": "1500", "start_date": "2024-01"}, nil)

	var st struct {
		Total string `json:"total"`
	}
	doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	assert.Equal(t, "210.00", st.Total, "toggle disabled adds nothing")

	resp = doJSON(t, srv, http.MethodPut, "/api/heating",
		map[string]any{"apartment_id": 1, "period": "2024-02", "enabled": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	assert.Equal(t, "1710.00", st.Total)
}

func TestOverrideLifecycle(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	doJSON(t, srv, http.MethodPost, "/api/services",
		map[string]string{"code": "maintenance", "name": "Maintenance", "kind": "fixed"}, nil)
	doJSON(t, srv, http.MethodPost, "/api/tariffs",
		map[string]any{"service_id": 2, "price": "300", "start_date": "2024-01"}, nil)

	resp := doJSON(t, srv, http.MethodPut, "/api/overrides",
		map[string]any{"apartment_id": 1, "service_id": 2, "period": "2024-02", "amount": "250"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st struct {
		Lines []struct {
			ServiceCode string `json:"service_code"`
			Amount      string `json:"amount"`
			Overridden  bool   `json:"overridden"`
		} `json:"lines"`
	}
	doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	for _, l := range st.Lines {
		if l.ServiceCode == "maintenance" {
			assert.Equal(t, "250.00", l.Amount)
			assert.True(t, l.Overridden)
		}
	}

	resp = doJSON(t, srv, http.MethodDelete,
		"/api/overrides?apartment_id=1&service_id=2&period=2024-02", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	st.Lines = nil
	doJSON(t, srv, http.MethodGet, "/api/reports/1?period=2024-02", nil, &st)
	for _, l := range st.Lines {
		if l.ServiceCode == "maintenance" {
			assert.Equal(t, "300.00", l.Amount)
			assert.False(t, l.Overridden)
		}
	}
}

func TestReadingEntries_ShowPrevious(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	var entries []struct {
		MeterID    int    `json:"meter_id"`
		PrevPeriod string `json:"prev_period"`
		PrevValue  string `json:"prev_value"`
		Value      string `json:"value"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/readings?period=2024-02", nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-01", entries[0].PrevPeriod)
	assert.Equal(t, "100", entries[0].PrevValue)
	assert.Equal(t, "142", entries[0].Value)
}

func TestSummaryExport_CSV(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	resp, err := srv.Client().Get(srv.URL + "/api/reports/export?period=2024-02")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "apartment_id,apartment_name,services_total,adjustments,total", lines[0])
	assert.Equal(t, "1,Unit 1,210.00,0.00,210.00", lines[1])
}

func TestSummaryExport_QuotesCommaInName(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	resp := doJSON(t, srv, http.MethodPost, "/api/apartments",
		map[string]string{"name": "Unit 2, rear wing"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := srv.Client().Get(srv.URL + "/api/reports/export?period=2024-02")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `2,"Unit 2, rear wing",0.00,0.00,0.00`, lines[2])
}

func TestHistory_MonthCount(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	var history []struct {
		Period string `json:"period"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/reports/1/history?period=2024-02&months=3", nil, &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history, 3)
	assert.Equal(t, "2023-12", history[0].Period)
	assert.Equal(t, "2024-02", history[2].Period)
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t)
	seedBuilding(t, srv)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad period", http.MethodGet, "/api/reports/1?period=last-month", nil, http.StatusBadRequest},
		{"unknown apartment", http.MethodGet, "/api/reports/99?period=2024-02", nil, http.StatusNotFound},
		{"non-numeric reading", http.MethodPut, "/api/readings",
			map[string]any{"meter_id": 1, "period": "2024-02", "value": "lots"}, http.StatusBadRequest},
		{"unknown meter", http.MethodPut, "/api/readings",
			map[string]any{"meter_id": 42, "period": "2024-02", "value": "1"}, http.StatusNotFound},
		{"missing override", http.MethodDelete,
			"/api/overrides?apartment_id=1&service_id=1&period=2024-02", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := doJSON(t, srv, tc.method, tc.path, tc.body, nil)
		assert.Equalf(t, tc.status, resp.StatusCode, "%s %s %s", tc.name, tc.method, tc.path)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
