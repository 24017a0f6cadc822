package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// ShortLength is the number of leading characters of a full id used as the
// human facing correlation id.
const ShortLength = 8

// NewFunc returns a new globally unique identifier as string. It is
// implemented as a variable so tests can stub it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// Short derives the correlation alias of a full id: the first ShortLength
// characters, lower-cased, with separators removed.
func Short(fullID string) string {
	alias := strings.ToLower(strings.ReplaceAll(fullID, "-", ""))
	if len(alias) > ShortLength {
		alias = alias[:ShortLength]
	}
	return alias
}

// Pair returns a new full id together with its short alias.
func Pair() (full, short string) {
	full = New()
	return full, Short(full)
}

// IsShort reports whether alias has the shape produced by Short: ShortLength
// lower-case hexadecimal characters.
func IsShort(alias string) bool {
	if len(alias) != ShortLength {
		return false
	}
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
