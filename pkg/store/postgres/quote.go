package postgres

import (
	"fmt"
	"strings"
)

// QuoteLiteral renders s as a single-quoted SQL string literal with embedded
// single quotes doubled. It rejects control characters outright: substring
// predicates are built from user-supplied query text, and a control character
// in a name is never legitimate input.
func QuoteLiteral(s string) (string, error) {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("literal contains control character %q", r)
		}
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// EscapeLike escapes the LIKE metacharacters %, _ and the escape character
// itself so that s matches literally inside a LIKE pattern. Patterns built
// from it must carry ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// likePattern builds a quoted "contains" LIKE pattern for s, escaping both
// literal quoting and LIKE metacharacters.
func likePattern(s string) (string, error) {
	return QuoteLiteral("%" + EscapeLike(s) + "%")
}
