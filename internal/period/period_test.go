package period_test

import (
	"testing"
	"time"

	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/baladiya/wastebilling/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, raw := range []string{"2025-01", "2025-12", "1999-06", "9999-12"} {
		m, err := period.Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, m.String())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "2025", "2025-13", "2025-00", "2025-1", "2025/01", "2025-01-01", "jan-2025"} {
		_, err := period.Parse(raw)
		require.Error(t, err, raw)
		assert.Equal(t, fault.KindValidation, fault.KindOf(err), raw)
	}
}

func TestIndexArithmetic(t *testing.T) {
	jan, err := period.Parse("2025-01")
	require.NoError(t, err)
	dec, err := period.Parse("2024-12")
	require.NoError(t, err)

	assert.Equal(t, 1, jan.Index()-dec.Index())
	assert.True(t, dec.Before(jan))
	assert.True(t, jan.After(dec))
	assert.Equal(t, jan, dec.Next())
}

func TestNextYearRollover(t *testing.T) {
	m := period.Month{Year: 2025, Month: time.December}
	assert.Equal(t, period.Month{Year: 2026, Month: time.January}, m.Next())
}

func TestFromTime(t *testing.T) {
	ts := time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2025-03", period.FromTime(ts).String())
}
