package billing

import (
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// PERIOD - A calendar month identifying a billing cycle
// =============================================================================

// Period is a billing month in canonical "YYYY-MM" form.
//
// Periods are compared lexicographically, which is valid only because both
// components are zero-padded. The on-disk canonical form is "YYYY-MM";
// "YYYY-MM-01" (the legacy form) is accepted at every boundary and
// normalized on parse.
type Period string

var periodPattern = regexp.MustCompile(`^(\d{4})-(\d{2})(-01)?$`)

// ParsePeriod validates and normalizes a period literal.
// Accepts "YYYY-MM" and "YYYY-MM-01"; anything else is rejected.
func ParsePeriod(s string) (Period, error) {
	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: period %q (want YYYY-MM)", ErrInvalidPeriod, s)
	}
	p := Period(m[1] + "-" + m[2])
	if !p.Valid() {
		return "", fmt.Errorf("%w: period %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

// NewPeriod builds a period from a year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period(fmt.Sprintf("%04d-%02d", year, int(month)))
}

// Valid reports whether the period denotes a real calendar month.
func (p Period) Valid() bool {
	m := periodPattern.FindStringSubmatch(string(p))
	if m == nil || m[3] != "" {
		return false
	}
	month := int(p[5]-'0')*10 + int(p[6]-'0')
	return month >= 1 && month <= 12
}

// Date returns the first day of the period's month.
func (p Period) Date() time.Time {
	t, _ := time.Parse("2006-01", string(p))
	return t
}

// Prev returns the previous calendar month, rolling January back to the
// prior year's December. Pure function, no I/O.
func (p Period) Prev() Period {
	y, m := p.yearMonth()
	if m == time.January {
		return NewPeriod(y-1, time.December)
	}
	return NewPeriod(y, m-1)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	y, m := p.yearMonth()
	if m == time.December {
		return NewPeriod(y+1, time.January)
	}
	return NewPeriod(y, m+1)
}

// Before reports whether p sorts before other. Lexicographic comparison of
// the canonical form equals chronological comparison.
func (p Period) Before(other Period) bool { return p < other }

func (p Period) String() string { return string(p) }

func (p Period) yearMonth() (int, time.Month) {
	t := p.Date()
	return t.Year(), t.Month()
}

// PeriodsEnding returns the n periods ending at (and including) end, in
// chronological order. Used by the 3-month and 12-month report views.
func PeriodsEnding(end Period, n int) []Period {
	if n <= 0 {
		return nil
	}
	out := make([]Period, n)
	p := end
	for i := n - 1; i >= 0; i-- {
		out[i] = p
		p = p.Prev()
	}
	return out
}
