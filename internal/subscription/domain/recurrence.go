package domain

import (
	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/baladiya/wastebilling/internal/period"
)

// IsDue reports whether the subscription bills in the given period.
// The decision is pure month-index arithmetic against the start period:
// no calendar-day math and no proration of partial final cycles.
func IsDue(m period.Month, sub Subscription) (bool, error) {
	start, err := period.Parse(sub.StartPeriod)
	if err != nil {
		return false, err
	}
	end := period.Month{Year: 9999, Month: 12}
	if sub.EndPeriod != "" {
		end, err = period.Parse(sub.EndPeriod)
		if err != nil {
			return false, err
		}
	}

	// Fail closed outside the inclusive [start, end] range.
	if m.Before(start) || m.After(end) {
		return false, nil
	}

	offset := m.Index() - start.Index()
	switch sub.Frequency {
	case FrequencyMonthly:
		return true, nil
	case FrequencyQuarterly:
		return offset%3 == 0, nil
	case FrequencyYearly:
		return offset%12 == 0, nil
	default:
		return false, fault.Validationf("unknown frequency %q", sub.Frequency)
	}
}
