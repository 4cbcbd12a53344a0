package transform

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/StinkyLord/gh-sbom-export/internal/model"
)

// SanitizeVersion cleans a manifest version into its display form.
// An absent version yields model.UnknownVersion.
func SanitizeVersion(v model.RawVersion) string {
	if !v.Valid {
		return model.UnknownVersion
	}
	return Sanitize(v.Value)
}

// Sanitize cleans a raw version string:
//   - escaped unicode sequences (\uXXXX, \UXXXXXXXX, \xNN) are decoded
//   - the leading run of non-alphanumeric ASCII is stripped ("^1.2" -> "1.2")
//   - trailing whitespace and quotes are trimmed
//   - a comma directly followed by a comparison operator gets one space
//     ("9,<10" -> "9, <10"); the operators are <, <=, >, >= and also the
//     pip forms ==, != (anything starting with <, >, = or !)
//
// Empty or undecodable input yields model.UnknownVersion.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(raw string) string {
	s := decodeEscapes(raw)
	if !utf8.ValidString(s) {
		return model.UnknownVersion
	}

	s = strings.TrimLeftFunc(s, func(r rune) bool { return !isASCIIAlnum(r) })
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\''
	})
	s = spaceAfterComma(s)

	if s == "" {
		return model.UnknownVersion
	}
	return s
}

// RootVersion turns a release tag into the version of the root component.
func RootVersion(tag *string) string {
	if tag == nil {
		return model.UnknownVersion
	}
	t := strings.TrimSpace(*tag)
	if len(t) > 0 && (t[0] == 'v' || t[0] == 'V') {
		t = t[1:]
	}
	return Sanitize(t)
}

func isASCIIAlnum(r rune) bool {
	return r < utf8.RuneSelf && (r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
}

func isComparison(b byte) bool {
	switch b {
	case '<', '>', '=', '!':
		return true
	}
	return false
}

func spaceAfterComma(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		b.WriteByte(s[i])
		if s[i] == ',' && i+1 < len(s) && isComparison(s[i+1]) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// decodeEscapes decodes escape sequences until none are left. Every pass
// that changes the string makes it shorter, so the loop terminates.
func decodeEscapes(s string) string {
	for strings.Contains(s, `\`) {
		next := decodeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func decodeOnce(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		r, n := decodeEscapeAt(s[i:])
		if n == 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteRune(r)
		i += n
	}
	return b.String()
}

// decodeEscapeAt decodes the escape at the start of s. n is 0 when s does
// not start with a decodable escape.
func decodeEscapeAt(s string) (r rune, n int) {
	switch s[1] {
	case 'x':
		if v, ok := parseHex(s, 2, 2); ok {
			return rune(v), 4
		}
	case 'U':
		if v, ok := parseHex(s, 2, 8); ok && utf8.ValidRune(rune(v)) {
			return rune(v), 10
		}
	case 'u':
		v, ok := parseHex(s, 2, 4)
		if !ok {
			return 0, 0
		}
		r := rune(v)
		if utf16.IsSurrogate(r) {
			// A surrogate only decodes as part of a \uHIGH\uLOW pair.
			if len(s) >= 12 && s[6] == '\\' && s[7] == 'u' {
				if lo, ok := parseHex(s, 8, 4); ok {
					if pair := utf16.DecodeRune(r, rune(lo)); pair != utf8.RuneError {
						return pair, 12
					}
				}
			}
			return 0, 0
		}
		return r, 6
	}
	return 0, 0
}

func parseHex(s string, from, width int) (uint64, bool) {
	if len(s) < from+width {
		return 0, false
	}
	v, err := strconv.ParseUint(s[from:from+width], 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
