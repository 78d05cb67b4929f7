// Package sanitize provides pure, stateless normalization of untrusted
// scalar and array input. Every function fails closed: input that cannot
// be made safe collapses to an empty or neutral value instead of raising
// an error.
package sanitize

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Default length caps.
const (
	DefaultMaxStringLength = 1000
	MaxEmailLength         = 254
	MaxPhoneLength         = 20
	MaxURLLength           = 2048
	MaxFilenameLength      = 255
	arrayItemCap           = 200
)

var (
	// Dangerous scheme prefixes and inline event handlers. Removal runs to a
	// fixpoint so that overlapping fragments cannot reassemble a payload.
	schemeRe  = regexp.MustCompile(`(?i)(javascript|data|vbscript|file)\s*:`)
	handlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=`)

	emailCharsRe   = regexp.MustCompile(`[^\w@.\-+]`)
	emailRe        = regexp.MustCompile(`^[a-z0-9][a-z0-9._%+\-]*@[a-z0-9][a-z0-9.\-]*\.[a-z]{2,}$`)
	phoneCharsRe   = regexp.MustCompile(`[^0-9+().\-\s]`)
	phoneRe        = regexp.MustCompile(`^\+?[0-9().\-\s]{6,19}[0-9]$`)
	phoneDigitRe   = regexp.MustCompile(`[0-9]`)
	filenameRe     = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)
	repeatedDotsRe = regexp.MustCompile(`\.{2,}`)
)

// String normalizes free-form text: control characters and angle brackets
// are dropped, dangerous scheme prefixes and on*= handler patterns are
// removed until none remain, and the result is trimmed and truncated to
// maxLen. The transformation is idempotent and its output never contains
// '<', '>' or a javascript: substring.
func String(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 || r == 127 || r == '<' || r == '>' {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()

	// Removing one match can splice a new one together, so re-scan until
	// the text stops changing.
	for {
		next := schemeRe.ReplaceAllString(out, "")
		next = handlerRe.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}

	out = strings.TrimSpace(out)
	if runes := []rune(out); len(runes) > maxLen {
		out = string(runes[:maxLen])
	}
	return strings.TrimSpace(out)
}

// Email lowercases and normalizes an email address, returning the empty
// string unless the result is syntactically valid.
func Email(s string) string {
	cleaned := emailCharsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	if len(cleaned) > MaxEmailLength {
		cleaned = cleaned[:MaxEmailLength]
	}
	if strings.Count(cleaned, "@") != 1 || strings.Contains(cleaned, "..") {
		return ""
	}
	if !emailRe.MatchString(cleaned) {
		return ""
	}
	return cleaned
}

// Phone strips everything but digits and common phone punctuation,
// returning the empty string unless a 7-20 character phone-shaped value
// with at least seven digits remains.
func Phone(s string) string {
	cleaned := strings.TrimSpace(phoneCharsRe.ReplaceAllString(s, ""))
	if len(cleaned) > MaxPhoneLength {
		cleaned = cleaned[:MaxPhoneLength]
	}
	if !phoneRe.MatchString(cleaned) {
		return ""
	}
	if len(phoneDigitRe.FindAllString(cleaned, -1)) < 7 {
		return ""
	}
	return cleaned
}

// Number parses value as a floating point number and clamps it to
// [min, max]. Unparsable or non-finite input yields min.
func Number(value interface{}, min, max float64) float64 {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return min
		}
		n = parsed
	default:
		return min
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return min
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// ItemValidator normalizes a single non-string array item. A nil return
// drops the item.
type ItemValidator func(interface{}) interface{}

// Array truncates arr to maxLen and normalizes its items: strings run
// through String with a shorter cap, non-string items run through the
// optional validator. Items that come back nil are dropped, as are
// non-string items when no validator is supplied.
func Array(arr []interface{}, maxLen int, validator ItemValidator) []interface{} {
	if arr == nil {
		return []interface{}{}
	}
	if maxLen <= 0 {
		maxLen = len(arr)
	}
	if len(arr) > maxLen {
		arr = arr[:maxLen]
	}

	out := make([]interface{}, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case string:
			out = append(out, String(v, arrayItemCap))
		default:
			if validator == nil {
				continue
			}
			if cleaned := validator(v); cleaned != nil {
				out = append(out, cleaned)
			}
		}
	}
	return out
}

// URL returns the input truncated to 2048 characters when it is a
// well-formed absolute http or https URL, and the empty string otherwise.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > MaxURLLength {
		s = s[:MaxURLLength]
	}
	parsed, err := url.ParseRequestURI(s)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	return s
}

// Filename keeps only filesystem-safe characters and collapses repeated
// dots, defeating path traversal sequences.
func Filename(s string) string {
	cleaned := filenameRe.ReplaceAllString(s, "")
	cleaned = repeatedDotsRe.ReplaceAllString(cleaned, ".")
	if len(cleaned) > MaxFilenameLength {
		cleaned = cleaned[:MaxFilenameLength]
	}
	return cleaned
}
