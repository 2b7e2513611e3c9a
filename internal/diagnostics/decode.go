package diagnostics

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// decode turns raw command output into trimmed, valid UTF-8. Invalid byte
// sequences become U+FFFD instead of failing.
func decode(raw string) string {
	if utf8.ValidString(raw) {
		return strings.TrimSpace(raw)
	}

	b, err := unicode.UTF8.NewDecoder().Bytes([]byte(raw))
	if err != nil {
		return strings.TrimSpace(strings.ToValidUTF8(raw, string(utf8.RuneError)))
	}
	return strings.TrimSpace(string(b))
}
