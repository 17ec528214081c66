// Package period models the YYYY-MM billing period used as the cycle
// unit across subscriptions, invoices, and reports. The string form must
// round-trip exactly because it is parsed and compared elsewhere.
package period

import (
	"fmt"
	"time"

	"github.com/baladiya/wastebilling/internal/fault"
)

// Month is a calendar month, the unit of one billing cycle.
type Month struct {
	Year  int
	Month time.Month
}

// Parse validates a strict YYYY-MM string. Malformed input is rejected
// rather than coerced.
func Parse(raw string) (Month, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Month{}, fault.Validationf("invalid period %q, want YYYY-MM", raw)
	}
	// time.Parse accepts e.g. "2025-1" for some layouts; re-render to be strict.
	m := Month{Year: t.Year(), Month: t.Month()}
	if m.String() != raw {
		return Month{}, fault.Validationf("invalid period %q, want YYYY-MM", raw)
	}
	return m, nil
}

func FromTime(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Index is the month-index comparison basis: year*12 + zero-based month.
// Recurrence arithmetic works on indices, not calendar days.
func (m Month) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

func (m Month) Compare(other Month) int {
	switch {
	case m.Index() < other.Index():
		return -1
	case m.Index() > other.Index():
		return 1
	default:
		return 0
	}
}

func (m Month) Before(other Month) bool { return m.Index() < other.Index() }

func (m Month) After(other Month) bool { return m.Index() > other.Index() }

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}
