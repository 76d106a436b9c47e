package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Fold returns the caseless form of a label for comparisons.
// A Caser is stateful, so one is built per call to stay goroutine-safe.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NumberFormat pins the decimal and thousands separators used in exports.
// Zero values auto-detect per cell.
type NumberFormat struct {
	DecimalSeparator   rune
	ThousandsSeparator rune
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(time.RFC3339)
	case interface{ String() string }:
		return strings.TrimSpace(x.String())
	default:
		return ""
	}
}

// scalarFloat coerces a raw cell into a number. ok is false for blanks and junk.
func scalarFloat(v any, nf NumberFormat) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		return parseAmount(x, nf)
	default:
		return 0, false
	}
}

var currencyMarks = []string{"USD", "INR", "EUR", "GBP", "Rs.", "Rs", "$", "€", "£", "₹"}

// parseAmount parses currency-like text: "$1,200.50", "1.200,50 €", "(50)", "-50".
func parseAmount(s string, nf NumberFormat) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		neg = true
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	}
	for _, m := range currencyMarks {
		raw = strings.ReplaceAll(raw, m, "")
	}
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-") {
		neg = !neg
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "-"))
	}
	dec := nf.DecimalSeparator
	thou := nf.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			// "1,000" is a thousands group, "12,5" a decimal comma.
			if len(raw)-cpos-1 == 3 {
				dec, thou = '.', ','
			} else {
				dec = ','
			}
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
		raw = strings.ReplaceAll(raw, "\u00A0", "")
		raw = strings.ReplaceAll(raw, " ", "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

func scalarBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	switch Fold(scalarString(v)) {
	case "true", "yes", "y", "1", "refunded", "refund":
		return true
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006, 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"01/02/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"1/2/2006",
	"02-01-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// ParseDate parses the date formats found in studio exports. Day-first
// layouts are tried before month-first ones. ok is false for blanks and junk.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func scalarDate(v any) (time.Time, string, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), t.Format(time.RFC3339), !t.IsZero()
	}
	raw := scalarString(v)
	t, ok := ParseDate(raw)
	return t, raw, ok
}
