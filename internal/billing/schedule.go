package billing

import "time"

// lastDayAnchor is the anchor day from which the due date snaps to the end of
// the month, so plans started late in a month never drift or skip February.
const lastDayAnchor = 28

// NextPaymentDate moves a due date forward one calendar month. When anchorDay
// is zero the current day-of-month is used. Anchors of 28 or later land on the
// last day of the target month; earlier anchors keep their day.
func NextPaymentDate(current time.Time, anchorDay int) time.Time {
	y, m, d := current.UTC().Date()
	if anchorDay <= 0 {
		anchorDay = d
	}
	targetYear, targetMonth := y, m+1
	if targetMonth > time.December {
		targetMonth = time.January
		targetYear++
	}
	last := daysIn(targetYear, targetMonth)
	day := anchorDay
	if anchorDay >= lastDayAnchor || day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, 0, 0, 0, 0, time.UTC)
}

// FirstPaymentDate is the first due date on or after start for anchorDay.
func FirstPaymentDate(start time.Time, anchorDay int) time.Time {
	start = DateOf(start, time.UTC)
	y, m, d := start.Date()
	if anchorDay <= 0 {
		return start
	}
	day := anchorDay
	last := daysIn(y, m)
	if anchorDay >= lastDayAnchor || day > last {
		day = last
	}
	if day >= d {
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}
	return NextPaymentDate(time.Date(y, m, day, 0, 0, 0, 0, time.UTC), anchorDay)
}

// DateOf returns the calendar date of t in loc, expressed as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
