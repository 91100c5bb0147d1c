package activity

import (
	"fmt"
	"strings"
)

// Filter keeps the entries of one scope; an empty scope keeps everything.
func Filter(entries []Entry, scope Scope) []Entry {
	if scope == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out
}

// Line renders one entry as "HH:MM:SS LEVEL SCOPE   message".
func Line(e Entry) string {
	return fmt.Sprintf("%s %-5s %-7s %s",
		e.Time.Local().Format("15:04:05"),
		strings.ToUpper(string(e.Level)),
		strings.ToUpper(string(e.Scope)),
		e.Message,
	)
}

// Text renders entries one per line, suitable for copying out of the app.
func Text(entries []Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = Line(e)
	}
	return strings.Join(lines, "\n")
}
