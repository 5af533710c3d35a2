package timefmt

import (
	"fmt"
	"strconv"
	"time"
)

// Clock formats seconds as MM:SS, or HH:MM:SS from one hour up.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Hours renders an hour accumulator without trailing zeros, e.g. "1.5h".
func Hours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}

// WeekRange returns the Monday 00:00 and the Sunday 23:59:59 of the ISO week
// containing t, in t's location.
func WeekRange(t time.Time) (time.Time, time.Time) {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := t.AddDate(0, 0, -(wd - 1))
	monday = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
	sunday := monday.AddDate(0, 0, 6)
	sunday = time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 0, t.Location())
	return monday, sunday
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
