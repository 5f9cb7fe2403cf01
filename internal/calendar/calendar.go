// Package calendar maps timestamps to business days.
// A business day starts at a configurable cutoff hour (default 04:00), so
// activity before the cutoff still belongs to the previous calendar date.
// Every check-in, check-out and ranking query resolves "today" through this
// package; it is the single source of truth for day boundaries.
package calendar

import (
	"fmt"
	"time"
)

// DefaultCutoffHour is the hour at which a new business day begins.
const DefaultCutoffHour = 4

// DayKeyLayout is the wire format of a business-day key.
const DayKeyLayout = "2006-01-02"

// timeLayout is the user-facing timestamp format.
const timeLayout = "2006-01-02 15:04:05"

// BusinessDayKey returns the business-day key for ts: the calendar date in
// ts's location, shifted back one day when the wall-clock hour is before
// cutoffHour.
func BusinessDayKey(ts time.Time, cutoffHour int) string {
	if ts.Hour() < cutoffHour {
		ts = ts.AddDate(0, 0, -1)
	}
	return ts.Format(DayKeyLayout)
}

// ParseDayKey parses a business-day key back into a date (UTC midnight).
func ParseDayKey(day string) (time.Time, error) {
	return time.Parse(DayKeyLayout, day)
}

// IsWeekday reports whether the business day falls on Monday..Friday.
// An unparseable key counts as a weekday.
func IsWeekday(day string) bool {
	d, err := ParseDayKey(day)
	if err != nil {
		return true
	}
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DayGap returns cur-prev in whole calendar days, or an error when either
// key does not parse. A gap of exactly 1 means consecutive business days.
func DayGap(prev, cur string) (int, error) {
	p, err := ParseDayKey(prev)
	if err != nil {
		return 0, err
	}
	c, err := ParseDayKey(cur)
	if err != nil {
		return 0, err
	}
	return int(c.Sub(p).Hours() / 24), nil
}

// FormatTime renders a timestamp for user-facing messages.
func FormatTime(ts time.Time) string {
	return ts.Format(timeLayout)
}

// FormatDuration renders a duration as 时/分/秒, clamping negatives to zero.
func FormatDuration(d time.Duration) string {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	h := sec / 3600
	m := sec % 3600 / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d小时%d分%d秒", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%d分%d秒", m, s)
	}
	return fmt.Sprintf("%d秒", s)
}
