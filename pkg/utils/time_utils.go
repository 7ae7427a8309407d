package utils

import (
	"math"
	"time"
)

func NowUnixSeconds() int64 { return time.Now().Unix() }

// FromUnixSeconds returns zero time for t <= 0 so callers decide how to render.
func FromUnixSeconds(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).UTC()
}

func UnixPtr(t time.Time) *int64 {
	v := t.Unix()
	return &v
}

func FormatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("January 2, 2006")
}

// DaysUntil rounds up to whole days and never returns a negative count.
func DaysUntil(now, deadline time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
