package billing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMeteredVolume_Delta(t *testing.T) {
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2024-01", Value: num("100")},
		{ID: 2, MeterID: 1, Period: "2024-02", Value: num("142")},
	}

	got := billing.MeteredVolume(readings, 1, "2024-02", billing.InputCumulative)
	if !got.Equal(num("42")) {
		t.Errorf("volume = %s, want 42", got)
	}
}

func TestMeteredVolume_NegativeDeltaClampsToZero(t *testing.T) {
	// Meter replacement: the counter went backwards. Never bill negative.
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2024-01", Value: num("100")},
		{ID: 2, MeterID: 1, Period: "2024-02", Value: num("3")},
	}

	got := billing.MeteredVolume(readings, 1, "2024-02", billing.InputCumulative)
	if !got.IsZero() {
		t.Errorf("volume = %s, want 0", got)
	}
}

func TestMeteredVolume_FirstReadingBillsFullValue(t *testing.T) {
	// No previous reading: the whole counter value becomes the volume.
	// Known overcharge risk, deliberately preserved; operators seed a
	// baseline reading in the prior period to avoid it.
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2024-02", Value: num("58")},
	}

	got := billing.MeteredVolume(readings, 1, "2024-02", billing.InputCumulative)
	if !got.Equal(num("58")) {
		t.Errorf("volume = %s, want 58", got)
	}
}

func TestMeteredVolume_MissingCurrentReadingIsZero(t *testing.T) {
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2024-01", Value: num("100")},
	}

	got := billing.MeteredVolume(readings, 1, "2024-02", billing.InputCumulative)
	if !got.IsZero() {
		t.Errorf("volume = %s, want 0", got)
	}
}

func TestMeteredVolume_DirectMode(t *testing.T) {
	// Volume-centric input: the reading value is the volume itself.
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2024-01", Value: num("100")},
		{ID: 2, MeterID: 1, Period: "2024-02", Value: num("42")},
	}

	got := billing.MeteredVolume(readings, 1, "2024-02", billing.InputDirect)
	if !got.Equal(num("42")) {
		t.Errorf("volume = %s, want 42", got)
	}
}

func TestLastReadingBefore(t *testing.T) {
	readings := []billing.Reading{
		{ID: 1, MeterID: 1, Period: "2023-11", Value: num("80")},
		{ID: 2, MeterID: 1, Period: "2024-01", Value: num("100")},
		{ID: 3, MeterID: 2, Period: "2024-01", Value: num("999")},
	}

	prev, ok := billing.LastReadingBefore(readings, 1, "2024-02")
	if !ok || prev.Period != "2024-01" {
		t.Fatalf("got %+v ok=%v, want the 2024-01 reading", prev, ok)
	}
	if _, ok := billing.LastReadingBefore(readings, 1, "2023-11"); ok {
		t.Error("nothing exists before the first reading")
	}
}

func TestDerivation_Scale(t *testing.T) {
	d := billing.Derivation{
		Sources:     []string{"electricity"},
		Op:          billing.OpScale,
		Coefficient: num("0.1"),
	}

	got := d.Combine([]decimal.Decimal{num("42")})
	if !got.Equal(num("4.2")) {
		t.Errorf("got %s, want 4.2", got)
	}
}

func TestDerivation_Sum(t *testing.T) {
	d := billing.Derivation{
		Sources: []string{"cold_water", "hot_water"},
		Op:      billing.OpSum,
	}

	got := d.Combine([]decimal.Decimal{num("7.5"), num("3.5")})
	if !got.Equal(num("11")) {
		t.Errorf("got %s, want 11", got)
	}
}

func TestDefaultDerivations(t *testing.T) {
	table := billing.DefaultDerivations()
	if _, ok := table["lighting_mop"]; !ok {
		t.Error("lighting_mop formula missing")
	}
	if _, ok := table["sewer"]; !ok {
		t.Error("sewer formula missing")
	}
}

func TestLoadDerivations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derivations.yaml")
	doc := `
lighting_mop:
  sources: [electricity]
  op: scale
  coefficient: "0.15"
sewer:
  sources: [cold_water, hot_water]
  op: sum
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := billing.LoadDerivations(path)
	if err != nil {
		t.Fatalf("LoadDerivations: %v", err)
	}
	if !table["lighting_mop"].Coefficient.Equal(num("0.15")) {
		t.Errorf("coefficient = %s, want 0.15", table["lighting_mop"].Coefficient)
	}
	if table["sewer"].Op != billing.OpSum {
		t.Errorf("op = %q, want sum", table["sewer"].Op)
	}
}

func TestLoadDerivations_RejectsBadFormulas(t *testing.T) {
	cases := map[string]string{
		"no sources":   "x:\n  op: sum\n",
		"scale multi":  "x:\n  sources: [a, b]\n  op: scale\n  coefficient: \"0.5\"\n",
		"scale nocoef": "x:\n  sources: [a]\n  op: scale\n",
		"unknown op":   "x:\n  sources: [a]\n  op: multiply\n",
		"bad number":   "x:\n  sources: [a]\n  op: scale\n  coefficient: \"lots\"\n",
	}
	for name, doc := range cases {
		path := filepath.Join(t.TempDir(), "d.yaml")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := billing.LoadDerivations(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
