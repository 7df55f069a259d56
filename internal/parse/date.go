package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date rendering.
const DateLayout = "2006-01-02"

// DateHint tells Date how the raw string is laid out.
type DateHint string

const (
	// ISODate accepts ISO-8601 style timestamps and dates.
	ISODate DateHint = "iso"
	// DMYDate accepts hyphenated day-month-year dates such as "01-03-2024".
	DMYDate DateHint = "dmy"
)

// DateParseError is returned when a raw date cannot be turned into a calendar date.
type DateParseError struct {
	Raw    string
	Hint   DateHint
	Reason string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid %s date %q: %s", e.Hint, e.Raw, e.Reason)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
}

// Date parses raw into a calendar date at UTC midnight.
func Date(raw string, hint DateHint) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &DateParseError{Raw: raw, Hint: hint, Reason: "empty"}
	}

	switch hint {
	case ISODate:
		return parseISO(raw, s)
	case DMYDate:
		return parseDMY(raw, s)
	default:
		return time.Time{}, &DateParseError{Raw: raw, Hint: hint, Reason: "unknown date hint"}
	}
}

// Timestamps without a zone are read as UTC; zoned ones are converted to UTC
// before truncation.
func parseISO(raw, s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Truncate(t), nil
		}
	}
	return time.Time{}, &DateParseError{Raw: raw, Hint: ISODate, Reason: "unrecognised layout"}
}

func parseDMY(raw, s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, &DateParseError{Raw: raw, Hint: DMYDate, Reason: "expected day-month-year"}
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, &DateParseError{Raw: raw, Hint: DMYDate, Reason: fmt.Sprintf("non-numeric component %q", p)}
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if year < 1000 || year > 9999 {
		return time.Time{}, &DateParseError{Raw: raw, Hint: DMYDate, Reason: "year must have four digits"}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow (Feb 30 -> Mar 1), so the components must survive.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, &DateParseError{Raw: raw, Hint: DMYDate, Reason: "not a calendar date"}
	}
	return t, nil
}

// Truncate drops the time of day from t after converting it to UTC.
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
