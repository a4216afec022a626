package emit

import "strings"

// ShellQuote escapes s for safe inclusion as a single POSIX sh argument,
// using the standard single-quote technique: wrap in single quotes and
// replace every embedded single quote with '\'' (close quote, escaped
// literal quote, reopen quote). Source file paths, regex patterns, the
// AWK and jq programs (which carry column names and filter values), and
// the sort temp directory all go through it, so they are safe regardless
// of their contents. Written without it: the resolved tool paths, a glob
// Source appended without Parallel (it must expand in the shell), and
// the sort delimiter.
//
// No third-party shell-quoting library appears anywhere in the reference
// corpus; this is a short, well-known, pure-function algorithm, so it is
// implemented directly against the standard library rather than adding a
// dependency for it.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String()
}
