// Package parse converts bank statement amount and date strings into canonical values.
package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountEpsilon is the tolerance under which two amounts are considered equal
// during duplicate detection.
var AmountEpsilon = decimal.RequireFromString("0.001")

// NumberStyle selects which separator is the fractional one.
type NumberStyle int

const (
	// PointDecimal treats '.' as the fractional separator and ',' as grouping ("1,234.56").
	PointDecimal NumberStyle = iota
	// CommaDecimal treats ',' as the fractional separator and '.' as grouping ("1.234,56").
	CommaDecimal
	// AutoDecimal treats whichever separator appears last as the fractional one.
	AutoDecimal
)

func (s NumberStyle) String() string {
	switch s {
	case PointDecimal:
		return "point"
	case CommaDecimal:
		return "comma"
	case AutoDecimal:
		return "auto"
	default:
		return fmt.Sprintf("NumberStyle(%d)", int(s))
	}
}

// Money is a parsed signed amount with the currency code found next to it, if any.
type Money struct {
	Value    decimal.Decimal
	Currency string // empty when the raw string carried no code
}

// AmountParseError is returned when no numeric value can be extracted.
type AmountParseError struct {
	Raw    string
	Reason string
}

func (e *AmountParseError) Error() string {
	return fmt.Sprintf("invalid amount %q: %s", e.Raw, e.Reason)
}

// amountPattern captures sign, number body and an optional trailing ISO 4217 code.
var amountPattern = regexp.MustCompile(`^([+-]?)([0-9][0-9.,]*)([A-Z]{3})?$`)

// Amount parses a signed amount such as "-4.50", "1.234,56 EUR" or "+10,50EUR".
func Amount(raw string, style NumberStyle) (Money, error) {
	compact := stripSpaces(raw)
	if compact == "" {
		return Money{}, &AmountParseError{Raw: raw, Reason: "empty"}
	}

	m := amountPattern.FindStringSubmatch(compact)
	if m == nil {
		return Money{}, &AmountParseError{Raw: raw, Reason: "no numeric value"}
	}
	sign, body, currency := m[1], m[2], m[3]

	normalized, err := normalizeSeparators(body, style)
	if err != nil {
		return Money{}, &AmountParseError{Raw: raw, Reason: err.Error()}
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, &AmountParseError{Raw: raw, Reason: err.Error()}
	}
	if sign == "-" {
		value = value.Neg()
	}

	return Money{Value: value, Currency: currency}, nil
}

// stripSpaces removes ASCII and non-breaking whitespace anywhere in s.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
}

// groupedInteger matches an integer part written in three-digit groups.
var groupedInteger = map[string]*regexp.Regexp{
	",": regexp.MustCompile(`^[0-9]{1,3}(,[0-9]{3})+$`),
	".": regexp.MustCompile(`^[0-9]{1,3}(\.[0-9]{3})+$`),
}

// normalizeSeparators rewrites body into a plain "1234.56" form. Grouping
// separators are only accepted between three-digit groups. Under CommaDecimal
// a single point that is not followed by exactly three digits is read as the
// decimal separator, so "10.50" is 10.5 while "10.500" is ten thousand five hundred.
func normalizeSeparators(body string, style NumberStyle) (string, error) {
	if style == AutoDecimal {
		style = detectStyle(body)
	}

	var group, frac string
	switch style {
	case PointDecimal:
		group, frac = ",", "."
	case CommaDecimal:
		group, frac = ".", ","
	default:
		return "", fmt.Errorf("unknown number style %v", style)
	}

	intPart, fracPart, hasFrac := strings.Cut(body, frac)
	if strings.Contains(fracPart, frac) {
		return "", fmt.Errorf("more than one decimal separator")
	}
	if strings.Contains(fracPart, group) {
		return "", fmt.Errorf("grouping separator after decimal separator")
	}

	if strings.Contains(intPart, group) {
		switch {
		case !hasFrac && style == CommaDecimal && loneFraction(intPart, group):
			intPart, fracPart, _ = strings.Cut(intPart, group)
		case !groupedInteger[group].MatchString(intPart):
			return "", fmt.Errorf("misplaced grouping separator")
		default:
			intPart = strings.ReplaceAll(intPart, group, "")
		}
	}

	if intPart == "" {
		return "", fmt.Errorf("no digits")
	}
	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}

// loneFraction reports whether s holds one sep that cannot be a grouping separator.
func loneFraction(s, sep string) bool {
	if strings.Count(s, sep) != 1 {
		return false
	}
	_, after, _ := strings.Cut(s, sep)
	return len(after) != 3
}

// detectStyle picks the separator that appears last as the fractional one.
func detectStyle(body string) NumberStyle {
	lastComma := strings.LastIndex(body, ",")
	lastPoint := strings.LastIndex(body, ".")
	if lastComma > lastPoint {
		return CommaDecimal
	}
	return PointDecimal
}
