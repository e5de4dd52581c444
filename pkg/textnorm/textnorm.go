package textnorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericRe = regexp.MustCompile(`[^0-9.]`)
	soldOutRe    = regexp.MustCompile(`(?i)SOLD\s*OUT|SOLDOUT|売り切れ|在庫切れ`)
)

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims both ends.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParsePrice accepts numbers and strings like "1,980円" or "¥2,500". The
// second return value is false when no price can be recovered.
func ParsePrice(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		digits := nonNumericRe.ReplaceAllString(v, "")
		if digits == "" {
			return 0, false
		}
		price, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return 0, false
		}
		return price, true
	default:
		return 0, false
	}
}

// ParseStockFlag defaults to in stock unless the value says otherwise.
func ParseStockFlag(value any) bool {
	if value == nil {
		return true
	}
	text := fmt.Sprint(value)
	if strings.Contains(text, "OutOfStock") {
		return false
	}
	if strings.Contains(text, "InStock") {
		return true
	}
	return true
}

// IsSoldOut reports whether the page text carries a sold out marker. It wins
// over whatever the structured data claims.
func IsSoldOut(markup string) bool {
	return soldOutRe.MatchString(markup)
}
