package preview

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AgeBucket classifies a message's age for highlight styling.
type AgeBucket string

const (
	AgeToday  AgeBucket = "today"
	AgeRecent AgeBucket = "recent"
	AgeOld    AgeBucket = "old"
)

// TimestampTime converts a dotted wire timestamp ("seconds.microseconds")
// to a time.Time in the local zone.
func TimestampTime(ts string) (time.Time, bool) {
	dot := strings.IndexByte(ts, '.')
	if dot <= 0 || dot == len(ts)-1 {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(ts[:dot], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	frac := ts[dot+1:]
	if len(frac) != 6 {
		return time.Time{}, false
	}
	micros, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, micros*1000), true
}

// RelativeTime renders t relative to now: "just now" under a minute, then
// minutes, hours, and days, falling back to month/day beyond a week.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// AbsoluteTime renders t as a fixed local timestamp.
func AbsoluteTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// AgeOf buckets t against now by calendar day: the same day is "today",
// anything under seven days is "recent", the rest is "old". The calendar
// comparison means one minute past midnight can already leave "today".
func AgeOf(t, now time.Time) AgeBucket {
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return AgeToday
	}
	if now.Sub(t) < 7*24*time.Hour {
		return AgeRecent
	}
	return AgeOld
}

// DaysOld returns the age of t in whole days, never negative.
func DaysOld(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
