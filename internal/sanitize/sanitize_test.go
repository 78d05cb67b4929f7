package sanitize

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_StripsMarkupAndSchemes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "hello world", "hello world"},
		{"script tag", "<script>alert(1)</script>", "scriptalert(1)/script"},
		{"javascript scheme", "javascript:alert(1)", "alert(1)"},
		{"data scheme", "data:text/html,payload", "text/html,payload"},
		{"event handler", `img onerror=alert(1)`, "img alert(1)"},
		{"control characters", "line1\x00\x07line2", "line1line2"},
		{"whitespace trimmed", "   padded   ", "padded"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, String(tt.input, 0))
		})
	}
}

func TestString_RemovesSplicedPayloads(t *testing.T) {
	// Removing the inner javascript: must not leave an outer one behind.
	out := String("javajavascript:script:alert(1)", 0)
	assert.NotContains(t, strings.ToLower(out), "javascript:")

	out = String("jAvAsCrIpT:alert(1)", 0)
	assert.NotContains(t, strings.ToLower(out), "javascript:")
}

func TestString_Idempotent(t *testing.T) {
	inputs := []string{
		"hello world",
		"<script>javascript:alert(1)</script>",
		"javajavascript:script:payload",
		"a onclick = foo onload=bar",
		"   <b>bold</b> & <i>italic</i>   ",
		strings.Repeat("x", 2000),
		"data:data:text/html",
	}

	for _, in := range inputs {
		once := String(in, 0)
		twice := String(once, 0)
		assert.Equal(t, once, twice, "sanitizing twice changed the output for %q", in)
	}
}

func TestString_OutputNeverContainsDangerousFragments(t *testing.T) {
	inputs := []string{
		"<script>alert(1)</script>",
		"<<>>",
		"javascript:javascript:alert(1)",
		"<img src=x onerror=alert(1)>",
	}

	for _, in := range inputs {
		out := strings.ToLower(String(in, 0))
		assert.NotContains(t, out, "<")
		assert.NotContains(t, out, ">")
		assert.NotContains(t, out, "javascript:")
	}
}

func TestString_Truncates(t *testing.T) {
	out := String(strings.Repeat("a", 50), 10)
	assert.Len(t, out, 10)

	// Truncation must not leave trailing whitespace behind.
	out = String("aaaaaaaaa b", 10)
	assert.Equal(t, "aaaaaaaaa", out)
}

func TestEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "user@example.com", "user@example.com"},
		{"uppercased", "User@Example.COM", "user@example.com"},
		{"padded", "  user@example.com  ", "user@example.com"},
		{"plus alias", "user+tag@example.com", "user+tag@example.com"},
		{"two at signs", "a@b@example.com", ""},
		{"no at sign", "userexample.com", ""},
		{"double dots", "user..name@example.com", ""},
		{"missing tld", "user@example", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.input))
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"international", "+1 (555) 123-4567", "+1 (555) 123-4567"},
		{"digits only", "5551234567", "5551234567"},
		{"letters stripped", "call 555-123-4567 now", " 555-123-4567 "},
		{"too few digits", "12345", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Phone(tt.input)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, strings.TrimSpace(tt.want), strings.TrimSpace(got))
		})
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, 5.0, Number(5, 0, 10))
	assert.Equal(t, 5.5, Number("5.5", 0, 10))
	assert.Equal(t, 10.0, Number(42, 0, 10), "values above max clamp to max")
	assert.Equal(t, 0.0, Number(-3, 0, 10), "values below min clamp to min")
	assert.Equal(t, 0.0, Number("not a number", 0, 10))
	assert.Equal(t, 0.0, Number(math.NaN(), 0, 10))
	assert.Equal(t, 0.0, Number(math.Inf(1), 0, 10))
	assert.Equal(t, 0.0, Number(struct{}{}, 0, 10))
	assert.Equal(t, 7.0, Number(int64(7), 0, 10))
}

func TestArray(t *testing.T) {
	in := []interface{}{"ok", "<script>x</script>", 42, "fine"}

	out := Array(in, 10, nil)
	assert.Equal(t, []interface{}{"ok", "scriptx/script", "fine"}, out, "non-strings drop without a validator")

	out = Array(in, 10, func(v interface{}) interface{} {
		if n, ok := v.(int); ok && n > 0 {
			return n
		}
		return nil
	})
	assert.Equal(t, []interface{}{"ok", "scriptx/script", 42, "fine"}, out)
}

func TestArray_Truncates(t *testing.T) {
	in := []interface{}{"a", "b", "c", "d"}
	out := Array(in, 2, nil)
	assert.Len(t, out, 2)

	assert.Equal(t, []interface{}{}, Array(nil, 5, nil))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://example.com/path?q=1", URL("https://example.com/path?q=1"))
	assert.Equal(t, "http://example.com", URL("  http://example.com  "))
	assert.Empty(t, URL("javascript:alert(1)"))
	assert.Empty(t, URL("ftp://example.com/file"))
	assert.Empty(t, URL("not a url"))
	assert.Empty(t, URL("/relative/only"))
	assert.Empty(t, URL(""))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"traversal", "../../etc/passwd", ".etcpasswd"},
		{"separators stripped", "dir/sub\\file.txt", "dirsubfile.txt"},
		{"spaces stripped", "my file.txt", "myfile.txt"},
		{"repeated dots collapse", "a....b..c.txt", "a.b.c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filename(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, "..")
		})
	}
}
