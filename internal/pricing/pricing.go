// Package pricing parses and compares marketplace price strings.
package pricing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberRun matches the first run of digits with embedded grouping or decimal marks
var numberRun = regexp.MustCompile(`\d(?:[\d.,'\x{00a0}\x{202f} ]*\d)?`)

// Parse extracts the numeric amount from a display price such as "$1,299.99",
// "1.299,99 €" or "¥12,800". The last separator is the decimal mark only when it is
// followed by one or two digits; every other separator is a thousands separator.
func Parse(text string) (decimal.Decimal, bool) {
	run := numberRun.FindString(text)
	if run == "" {
		return decimal.Zero, false
	}

	run = strings.NewReplacer(" ", "", "'", "", "\u00a0", "", "\u202f", "").Replace(run)

	lastSep := strings.LastIndexAny(run, ".,")
	intPart, fracPart := run, ""
	if lastSep >= 0 {
		tail := run[lastSep+1:]
		if len(tail) == 1 || len(tail) == 2 {
			intPart, fracPart = run[:lastSep], tail
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	s := intPart
	if fracPart != "" {
		s += "." + fracPart
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseFloat is Parse converted for the float-typed listing fields
func ParseFloat(text string) (float64, bool) {
	d, ok := Parse(text)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Compose builds a display price from the marketplace's split whole/fraction markup
func Compose(symbol, whole, fraction string) string {
	whole = digitsOnly(whole)
	fraction = digitsOnly(fraction)
	if fraction == "" {
		fraction = "00"
	}
	return symbol + whole + "." + fraction
}

// AtOrBelow reports whether current <= target, compared as decimals rounded to 4 places
func AtOrBelow(current, target float64) bool {
	c := decimal.NewFromFloat(current).Round(4)
	t := decimal.NewFromFloat(target).Round(4)
	return c.LessThanOrEqual(t)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
