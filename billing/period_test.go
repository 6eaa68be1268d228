package billing_test

import (
	"sort"
	"testing"
	"time"

	"github.com/warp/billing-engine/billing"
)

func TestParsePeriod_Canonical(t *testing.T) {
	p, err := billing.ParsePeriod("2024-02")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if p.String() != "2024-02" {
		t.Errorf("got %q, want 2024-02", p)
	}
}

func TestParsePeriod_LegacyFirstOfMonth(t *testing.T) {
	// The legacy files store "YYYY-MM-01"; it normalizes to "YYYY-MM".
	p, err := billing.ParsePeriod("2024-02-01")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if p.String() != "2024-02" {
		t.Errorf("got %q, want 2024-02", p)
	}
}

func TestParsePeriod_Rejects(t *testing.T) {
	for _, raw := range []string{"", "2024", "2024-2", "2024-13", "2024-00", "2024-02-15", "24-02", "abcd-ef"} {
		if _, err := billing.ParsePeriod(raw); err == nil {
			t.Errorf("ParsePeriod(%q): expected error", raw)
		}
	}
}

func TestPeriod_PrevRollsYear(t *testing.T) {
	p := billing.NewPeriod(2024, time.January)
	if got := p.Prev(); got.String() != "2023-12" {
		t.Errorf("Prev(2024-01) = %q, want 2023-12", got)
	}
}

func TestPeriod_PrevWithinYear(t *testing.T) {
	p := billing.NewPeriod(2024, time.March)
	if got := p.Prev(); got.String() != "2024-02" {
		t.Errorf("Prev(2024-03) = %q, want 2024-02", got)
	}
}

func TestPeriod_NextRollsYear(t *testing.T) {
	p := billing.NewPeriod(2023, time.December)
	if got := p.Next(); got.String() != "2024-01" {
		t.Errorf("Next(2023-12) = %q, want 2024-01", got)
	}
}

func TestPeriod_LexicographicOrderIsChronological(t *testing.T) {
	periods := []billing.Period{"2024-02", "2023-12", "2024-01", "2023-02"}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	want := []billing.Period{"2023-02", "2023-12", "2024-01", "2024-02"}
	for i := range want {
		if periods[i] != want[i] {
			t.Fatalf("sorted[%d] = %q, want %q", i, periods[i], want[i])
		}
	}
}

func TestPeriodsEnding(t *testing.T) {
	got := billing.PeriodsEnding("2024-02", 3)
	want := []billing.Period{"2023-12", "2024-01", "2024-02"}
	if len(got) != len(want) {
		t.Fatalf("got %d periods, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("periods[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if billing.PeriodsEnding("2024-02", 0) != nil {
		t.Error("PeriodsEnding with n=0 should be nil")
	}
}
