package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("month-to-date")
	require.NoError(t, err)
	require.Equal(t, RangeMonthToDate, r)

	_, err = ParseRange("fortnight")
	require.ErrorIs(t, err, ErrUnknownRange)
}

func TestResolve_Today(t *testing.T) {
	start, end, err := Resolve(RangeToday, 0, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), start.UTC())
	require.Equal(t, testNow, end)
}

func TestResolve_TodayWithOffset(t *testing.T) {
	// At 10:30 UTC a client at UTC+12 is already on March 16th.
	start, _, err := Resolve(RangeToday, 12*3600, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), start.UTC())
}

func TestResolve_Yesterday(t *testing.T) {
	start, end, err := Resolve(RangeYesterday, 0, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), start.UTC())
	require.Equal(t, time.Date(2024, 3, 14, 23, 59, 59, 999000000, time.UTC), end.UTC())
}

func TestResolve_MonthToDateDeterministic(t *testing.T) {
	// First-of-month local midnight for any plausible client offset.
	for offset := -12 * 3600; offset <= 14*3600; offset += 1800 {
		start, end, err := Resolve(RangeMonthToDate, offset, testNow)
		require.NoError(t, err)
		require.Equal(t, testNow, end)

		local := start.In(time.FixedZone("client", offset))
		require.Equal(t, 1, local.Day(), "offset %d", offset)
		require.Equal(t, 0, local.Hour(), "offset %d", offset)
		require.Equal(t, 0, local.Minute(), "offset %d", offset)
	}
}

func TestResolve_LastMonth(t *testing.T) {
	start, end, err := Resolve(RangeLastMonth, 0, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start.UTC())
	require.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC), end.UTC())
}

func TestResolve_TrailingWindows(t *testing.T) {
	cases := map[TimeRange]time.Duration{
		RangeWeek:         7 * 24 * time.Hour,
		RangeMonth:        30 * 24 * time.Hour,
		RangeLast90Days:   90 * 24 * time.Hour,
		RangeLast12Months: 365 * 24 * time.Hour,
	}
	for r, span := range cases {
		start, end, err := Resolve(r, 0, testNow)
		require.NoError(t, err)
		require.Equal(t, testNow, end)
		require.Equal(t, span, end.Sub(start), "range %s", r)
	}
}

func TestResolve_YearToDate(t *testing.T) {
	start, _, err := Resolve(RangeYearToDate, 0, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start.UTC())
}

func TestResolve_AllTimeFloor(t *testing.T) {
	start, end, err := Resolve(RangeAllTime, 3600, testNow)
	require.NoError(t, err)
	require.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, testNow, end)
}

func TestResolve_CustomRangeNeedsBounds(t *testing.T) {
	_, _, err := Resolve(RangeCustom, 0, testNow)
	require.ErrorIs(t, err, ErrCustomRangeBounds)
}
