package attendance

import "time"

// DayBucket truncates a timestamp to the operator-local calendar day
// (midnight to midnight in loc). Attendance cycles are keyed on this value,
// so an event just after midnight opens a new cycle rather than closing
// yesterday's.
func DayBucket(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
