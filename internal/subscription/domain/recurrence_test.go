package domain_test

import (
	"testing"

	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/baladiya/wastebilling/internal/period"
	"github.com/baladiya/wastebilling/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sub(frequency domain.Frequency, start, end string) domain.Subscription {
	return domain.Subscription{
		Frequency:   frequency,
		StartPeriod: start,
		EndPeriod:   end,
	}
}

func mustMonth(t *testing.T, raw string) period.Month {
	t.Helper()
	m, err := period.Parse(raw)
	require.NoError(t, err)
	return m
}

func TestMonthlyDueEveryPeriodInRange(t *testing.T) {
	s := sub(domain.FrequencyMonthly, "2025-01", "2025-06")

	for _, raw := range []string{"2025-01", "2025-02", "2025-03", "2025-06"} {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.True(t, due, raw)
	}
}

func TestQuarterlyAnniversaries(t *testing.T) {
	s := sub(domain.FrequencyQuarterly, "2025-01", "9999-12")

	dueMonths := []string{"2025-01", "2025-04", "2025-07", "2025-10"}
	for _, raw := range dueMonths {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.True(t, due, raw)
	}

	notDue := []string{"2025-02", "2025-03", "2025-05"}
	for _, raw := range notDue {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.False(t, due, raw)
	}
}

func TestQuarterlyCrossesYearBoundary(t *testing.T) {
	s := sub(domain.FrequencyQuarterly, "2024-11", "9999-12")

	due, err := domain.IsDue(mustMonth(t, "2025-02"), s)
	require.NoError(t, err)
	assert.True(t, due)

	due, err = domain.IsDue(mustMonth(t, "2025-01"), s)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestYearlyAnniversaryOnly(t *testing.T) {
	s := sub(domain.FrequencyYearly, "2023-03", "9999-12")

	due, err := domain.IsDue(mustMonth(t, "2025-03"), s)
	require.NoError(t, err)
	assert.True(t, due)

	for _, raw := range []string{"2025-02", "2025-04", "2024-09"} {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.False(t, due, raw)
	}
}

func TestFailsClosedOutsideRange(t *testing.T) {
	s := sub(domain.FrequencyMonthly, "2025-03", "2025-05")

	for _, raw := range []string{"2025-02", "2025-06", "2024-12"} {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.False(t, due, raw)
	}

	// Inclusive bounds bill.
	for _, raw := range []string{"2025-03", "2025-05"} {
		due, err := domain.IsDue(mustMonth(t, raw), s)
		require.NoError(t, err)
		assert.True(t, due, raw)
	}
}

func TestYearlyEndingMidCycleHasNoProration(t *testing.T) {
	// Ends between anniversaries: the next anniversary falls outside the
	// range, so nothing further is billed.
	s := sub(domain.FrequencyYearly, "2024-01", "2025-06")

	due, err := domain.IsDue(mustMonth(t, "2025-01"), s)
	require.NoError(t, err)
	assert.True(t, due)

	due, err = domain.IsDue(mustMonth(t, "2025-06"), s)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestMalformedStoredPeriodRejected(t *testing.T) {
	s := sub(domain.FrequencyMonthly, "2025/01", "")

	_, err := domain.IsDue(mustMonth(t, "2025-01"), s)
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestUnknownFrequencyRejected(t *testing.T) {
	s := sub(domain.Frequency("WEEKLY"), "2025-01", "")

	_, err := domain.IsDue(mustMonth(t, "2025-01"), s)
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
}
