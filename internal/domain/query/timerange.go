package query

import (
	"errors"
	"time"
)

// TimeRange is a symbolic query window.
type TimeRange string

const (
	RangeToday        TimeRange = "today"
	RangeYesterday    TimeRange = "yesterday"
	RangeWeek         TimeRange = "week"
	RangeMonth        TimeRange = "month"
	RangeMonthToDate  TimeRange = "month-to-date"
	RangeLastMonth    TimeRange = "last-month"
	RangeLast90Days   TimeRange = "last-90-days"
	RangeYearToDate   TimeRange = "year-to-date"
	RangeLast12Months TimeRange = "last-12-months"
	RangeAllTime      TimeRange = "all-time"
	RangeCustom       TimeRange = "custom-range"
)

var (
	// ErrUnknownRange indicates an unrecognized symbolic range.
	ErrUnknownRange = errors.New("unknown time range")
	// ErrCustomRangeBounds indicates a custom range without explicit bounds.
	ErrCustomRangeBounds = errors.New("custom range requires start and end")
)

// allTimeFloor is the fixed epoch floor for the all-time range.
var allTimeFloor = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseRange validates a symbolic range name.
func ParseRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case RangeToday, RangeYesterday, RangeWeek, RangeMonth, RangeMonthToDate,
		RangeLastMonth, RangeLast90Days, RangeYearToDate, RangeLast12Months,
		RangeAllTime, RangeCustom:
		return r, nil
	}
	return "", ErrUnknownRange
}

// Resolve maps a symbolic range plus the client's timezone offset to an
// absolute [start, end] window. Calendar boundaries (midnight, first of
// month, January 1st) are evaluated in the client's local frame.
func Resolve(r TimeRange, offsetSeconds int, now time.Time) (time.Time, time.Time, error) {
	loc := time.FixedZone("client", offsetSeconds)
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch r {
	case RangeToday:
		return midnight, now, nil
	case RangeYesterday:
		start := midnight.AddDate(0, 0, -1)
		return start, midnight.Add(-time.Millisecond), nil
	case RangeWeek:
		return now.AddDate(0, 0, -7), now, nil
	case RangeMonth:
		return now.AddDate(0, 0, -30), now, nil
	case RangeMonthToDate:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return start, now, nil
	case RangeLastMonth:
		firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return firstOfMonth.AddDate(0, -1, 0), firstOfMonth.Add(-time.Millisecond), nil
	case RangeLast90Days:
		return now.AddDate(0, 0, -90), now, nil
	case RangeYearToDate:
		start := time.Date(local.Year(), 1, 1, 0, 0, 0, 0, loc)
		return start, now, nil
	case RangeLast12Months:
		return now.AddDate(0, 0, -365), now, nil
	case RangeAllTime:
		return allTimeFloor, now, nil
	case RangeCustom:
		return time.Time{}, time.Time{}, ErrCustomRangeBounds
	}
	return time.Time{}, time.Time{}, ErrUnknownRange
}

// hasHourlyBreakdown reports whether the range carries the 24-bucket
// hourly breakdown in query responses.
func (r TimeRange) hasHourlyBreakdown() bool {
	return r == RangeToday || r == RangeYesterday
}
