package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Display name limits, counted in runes after normalization.
const (
	MinNameLength = 3
	MaxNameLength = 24
	DefaultName   = "Player"
)

var folder = cases.Fold() //nolint:gochecknoglobals // stateless caser shared by all calls

// NormalizeDisplayName trims and NFKC-normalizes name, rejecting control
// characters and lengths outside [MinNameLength, MaxNameLength].
func NormalizeDisplayName(name string) (string, bool) {
	n := strings.TrimSpace(norm.NFKC.String(name))
	n = strings.Join(strings.Fields(n), " ")
	count := utf8.RuneCountInString(n)
	if count < MinNameLength || count > MaxNameLength {
		return "", false
	}
	for _, r := range n {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return n, true
}

// Canonicalize returns the key used for discriminator uniqueness. Names
// that differ only in case, width or accents share a canonical form.
func Canonicalize(display string) string {
	c := slug.Make(folder.String(norm.NFKC.String(display)))
	if c == "" {
		return slug.Make(DefaultName)
	}
	return c
}
