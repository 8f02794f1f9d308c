package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// parseDate normalizes a date phrase to an absolute timestamp resolved
// against now. Day-granular phrases land on end of day, since due dates
// mean "by the end of". When a phrase admits a past and a future
// reading, the future one wins.
func parseDate(phrase string, now time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	p = strings.TrimSuffix(p, ".")
	if p == "" {
		return time.Time{}, fmt.Errorf("empty date phrase")
	}

	switch p {
	case "today":
		return endOfDay(now), nil
	case "tomorrow":
		return endOfDay(now.AddDate(0, 0, 1)), nil
	case "next week":
		return endOfDay(now.AddDate(0, 0, 7)), nil
	case "end of week":
		return nextWeekdayIncluding(now, time.Friday), nil
	case "end of month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return endOfDay(first.AddDate(0, 1, -1)), nil
	}

	// "next friday", "this friday", "coming friday", bare "friday": all
	// normalize to the next strictly-future occurrence.
	day := p
	for _, prefix := range []string{"next ", "this ", "coming ", "on "} {
		day = strings.TrimPrefix(day, prefix)
	}
	if weekday, ok := weekdays[day]; ok {
		return nextWeekday(now, weekday), nil
	}

	if rest, ok := strings.CutPrefix(p, "in "); ok {
		return parseRelativeCount(rest, now)
	}

	if t, err := time.ParseInLocation("2006-01-02", p, now.Location()); err == nil {
		return endOfDay(t), nil
	}

	if t, err := parseMonthDay(p, now); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date phrase %q", phrase)
}

// parseRelativeCount handles "N days", "N weeks", "a week".
func parseRelativeCount(rest string, now time.Time) (time.Time, error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("unrecognized relative date %q", rest)
	}
	count := 1
	if fields[0] != "a" && fields[0] != "an" {
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("unrecognized relative date %q", rest)
		}
		count = n
	}
	switch strings.TrimSuffix(fields[1], "s") {
	case "day":
		return endOfDay(now.AddDate(0, 0, count)), nil
	case "week":
		return endOfDay(now.AddDate(0, 0, 7*count)), nil
	case "month":
		return endOfDay(now.AddDate(0, count, 0)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized relative date %q", rest)
}

// parseMonthDay handles "september 15" and "sep 15 2026". A month-day
// pair without a year that already passed this year rolls into next
// year rather than resolving to the past.
func parseMonthDay(p string, now time.Time) (time.Time, error) {
	fields := strings.Fields(p)
	if len(fields) < 2 || len(fields) > 3 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", p)
	}
	month, ok := months[fields[0]]
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized month %q", fields[0])
	}
	dayText := strings.TrimSuffix(fields[1], ",")
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		dayText = strings.TrimSuffix(dayText, suffix)
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("unrecognized day %q", fields[1])
	}

	year := now.Year()
	explicitYear := false
	if len(fields) == 3 {
		year, err = strconv.Atoi(fields[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized year %q", fields[2])
		}
		explicitYear = true
	}

	t := endOfDay(time.Date(year, month, day, 0, 0, 0, 0, now.Location()))
	if !explicitYear && t.Before(now) {
		t = endOfDay(time.Date(year+1, month, day, 0, 0, 0, 0, now.Location()))
	}
	return t, nil
}

// nextWeekday returns the next strictly-future occurrence of the weekday.
func nextWeekday(now time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return endOfDay(now.AddDate(0, 0, days))
}

// nextWeekdayIncluding is like nextWeekday but keeps today when it
// already is the target weekday.
func nextWeekdayIncluding(now time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	return endOfDay(now.AddDate(0, 0, days))
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
