package chat

import (
	"fmt"
	"time"

	"github.com/zulandar/hoxy/internal/models"
)

var weekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// TimeLabel formats t as Korean 12-hour clock time, e.g. "오후 3:07".
// Noon is "오후 12" and midnight is "오전 12".
func TimeLabel(t time.Time) string {
	h := t.Hour()
	period := "오전"
	if h >= 12 {
		period = "오후"
	}
	switch {
	case h > 12:
		h -= 12
	case h == 0:
		h = 12
	}
	return fmt.Sprintf("%s %d:%02d", period, h, t.Minute())
}

// DateSeparator formats the day heading shown above each day's messages,
// e.g. "2025년 1월 5일 일요일".
func DateSeparator(t time.Time) string {
	return fmt.Sprintf("%d년 %d월 %d일 %s", t.Year(), int(t.Month()), t.Day(), weekdays[t.Weekday()])
}

// CandidateLabel formats a preferred reservation date, e.g. "2025. 1. 5(일)".
// Values that do not parse as a date are returned unchanged.
func CandidateLabel(date string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, date); err == nil {
			return fmt.Sprintf("%d. %d. %d(%s)", t.Year(), int(t.Month()), t.Day(), string([]rune(weekdays[t.Weekday()])[:1]))
		}
	}
	return date
}

// DaySection is one calendar day of visible messages.
type DaySection struct {
	Day      string           `json:"day"`
	Label    string           `json:"label"`
	Messages []models.Message `json:"messages"`
}

// GroupByDay splits the visible messages into consecutive day sections.
// msgs must already be sorted.
func GroupByDay(msgs []models.Message) []DaySection {
	var sections []DaySection
	for _, m := range msgs {
		if !m.Visible() {
			continue
		}
		key := m.DayKey()
		if n := len(sections); n == 0 || sections[n-1].Day != key {
			sections = append(sections, DaySection{Day: key, Label: DateSeparator(m.CreatedAt)})
		}
		last := &sections[len(sections)-1]
		last.Messages = append(last.Messages, m)
	}
	return sections
}

// ImageRow is one row of an image grid. Wide rows hold a single image
// spanning the full width.
type ImageRow struct {
	URLs []string `json:"urls"`
	Wide bool     `json:"wide"`
}

// ImageRows lays out image URLs: a lone image is shown on its own, the
// rest in pairs with a trailing odd image shown wide.
func ImageRows(urls []string) []ImageRow {
	switch len(urls) {
	case 0:
		return nil
	case 1:
		return []ImageRow{{URLs: urls[:1]}}
	}
	var rows []ImageRow
	for i := 0; i < len(urls); i += 2 {
		if i+1 < len(urls) {
			rows = append(rows, ImageRow{URLs: urls[i : i+2]})
		} else {
			rows = append(rows, ImageRow{URLs: urls[i:], Wide: true})
		}
	}
	return rows
}
