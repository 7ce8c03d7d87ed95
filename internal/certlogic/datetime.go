// internal/certlogic/datetime.go
package certlogic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

/*
 * Date-time parsing and arithmetic.
 *
 * Accepted forms:
 *   - 2021-05-20                     date only, midnight UTC until anchored
 *   - 2021-05-20T10:12:22            no offset, read as UTC
 *   - 2021-05-20T10:12:22.123456Z    any number of fractional digits
 *   - offsets Z, +hh:mm, +hhmm, +hh
 *
 * The parsed offset is kept in the time.Location so that display code can
 * recover the calendar date as issued. A bare date names a calendar day, not
 * an instant: compared with a zoned value it is read as midnight in that
 * value's zone (see AnchorIn).
 *
 * Month and year arithmetic clamps the day of month to the last valid day
 * (Jan 31 + 1 month = Feb 28/29), unlike time.AddDate which normalizes into
 * the following month.
 */

var dateTimePattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})(?:[Tt ](\d{2}):(\d{2})(?::(\d{2})(?:\.(\d+))?)?([Zz]|[+-]\d{2}(?::?\d{2})?)?)?$`)

// ParseDateTime parses an ISO 8601 date or date-time.
func ParseDateTime(s string) (DateTime, error) {
	m := dateTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}

	if m[4] == "" {
		return DateTime{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), DateOnly: true}, nil
	}

	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}

	nanos := 0
	if frac := m[7]; frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		nanos, _ = strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
	}

	loc, err := parseOffset(m[8])
	if err != nil {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
	}

	return DateTime{Time: time.Date(year, time.Month(month), day, hour, minute, second, nanos, loc)}, nil
}

// parseOffset maps "", Z, +hh, +hhmm and +hh:mm to a location.
func parseOffset(s string) (*time.Location, error) {
	if s == "" || s == "Z" || s == "z" {
		return time.UTC, nil
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(s[1:], ":", "")
	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return nil, err
	}
	minutes := 0
	if len(digits) == 4 {
		if minutes, err = strconv.Atoi(digits[2:]); err != nil {
			return nil, err
		}
	}
	if hours > 18 || minutes > 59 {
		return nil, fmt.Errorf("offset out of range: %s", s)
	}
	offset := sign * (hours*3600 + minutes*60)
	if offset == 0 {
		return time.UTC, nil
	}
	return time.FixedZone("", offset), nil
}

// AnchorIn places a date-only value at midnight of the same calendar day in
// loc. Values carrying a time of day are returned unchanged.
func (d DateTime) AnchorIn(loc *time.Location) DateTime {
	if !d.DateOnly || loc == nil {
		return d
	}
	y, m, day := d.Time.Date()
	return DateTime{Time: time.Date(y, m, day, 0, 0, 0, 0, loc), DateOnly: true}
}

// FormatDateTime renders a DateTime the way it was parsed: a bare date for
// date-only values, RFC 3339 with the original offset otherwise.
func FormatDateTime(d DateTime) string {
	if d.DateOnly {
		return d.Time.Format("2006-01-02")
	}
	return d.Time.Format(time.RFC3339Nano)
}

// TimeUnit is a plusTime unit.
type TimeUnit string

const (
	UnitYear   TimeUnit = "year"
	UnitMonth  TimeUnit = "month"
	UnitDay    TimeUnit = "day"
	UnitHour   TimeUnit = "hour"
	UnitMinute TimeUnit = "minute"
	UnitSecond TimeUnit = "second"
)

// TimeUnits lists the accepted plusTime units.
var TimeUnits = []TimeUnit{UnitYear, UnitMonth, UnitDay, UnitHour, UnitMinute, UnitSecond}

// ParseTimeUnit matches a unit name case-insensitively.
func ParseTimeUnit(s string) (TimeUnit, bool) {
	for _, u := range TimeUnits {
		if strings.EqualFold(s, string(u)) {
			return u, true
		}
	}
	return "", false
}

// PlusTime shifts d by amount units. Calendar units keep date-only precision;
// clock units always produce a full date-time.
func PlusTime(d DateTime, amount int64, unit TimeUnit) DateTime {
	t := d.Time
	switch unit {
	case UnitYear:
		return DateTime{Time: addMonths(t, amount*12), DateOnly: d.DateOnly}
	case UnitMonth:
		return DateTime{Time: addMonths(t, amount), DateOnly: d.DateOnly}
	case UnitDay:
		return DateTime{Time: t.AddDate(0, 0, int(amount)), DateOnly: d.DateOnly}
	case UnitHour:
		return DateTime{Time: t.Add(time.Duration(amount) * time.Hour)}
	case UnitMinute:
		return DateTime{Time: t.Add(time.Duration(amount) * time.Minute)}
	case UnitSecond:
		return DateTime{Time: t.Add(time.Duration(amount) * time.Second)}
	default:
		return d
	}
}

// addMonths adds months and clamps the day to the end of the target month.
func addMonths(t time.Time, months int64) time.Time {
	total := int64(t.Year())*12 + int64(t.Month()-1) + months
	year := int(total / 12)
	month := time.Month(total%12 + 1)
	if total%12 < 0 {
		year--
		month = time.Month(total%12 + 13)
	}
	day := t.Day()
	if last := daysIn(month, year); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in month of year.
func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
