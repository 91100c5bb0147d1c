package console

import (
	"fmt"
	"io"
	"strings"

	"msmanager/internal/output"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

const (
	labelWidth = 20
	noteWidth  = 40
)

// Print renders the report to the writer in a compact format.
func Print(w io.Writer, r output.Report) {
	fmt.Fprintf(w, "%s■ MS MANAGER REPORT%s %s\n", colorCyan, colorReset, marker(r.Overall))

	for _, sec := range r.Sections {
		fmt.Fprintf(w, "%s─ %s%s\n", colorCyan, sec.Title, colorReset)

		for _, it := range sec.Items {
			label := clip(it.Label, labelWidth)

			valStr := ""
			switch {
			case it.Unit != "":
				valStr = fmt.Sprintf("%.0f%s", it.Value, it.Unit)
			case it.Note != "":
				valStr = clip(it.Note, noteWidth)
			case it.Value != 0:
				valStr = fmt.Sprintf("%.0f", it.Value)
			}

			dots := strings.Repeat("·", labelWidth+2-len([]rune(label)))
			fmt.Fprintf(w, "  %s%s %s%s\n", label, colorCyan+dots+colorReset, valStr, marker(it.Status))
		}
	}

	if r.Now != "" {
		fmt.Fprintf(w, "%s─ Now%s: %s\n", colorCyan, colorReset, r.Now)
	}
	if r.AppUpdate != "" {
		fmt.Fprintf(w, "%s─ Update%s: %s\n", colorCyan, colorReset, r.AppUpdate)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "%s─ Error%s: %s%s%s\n", colorCyan, colorReset, colorRed, r.Error, colorReset)
	}
	fmt.Fprintln(w)
}

func marker(status string) string {
	color := colorFor(status)
	switch status {
	case "OK":
		return fmt.Sprintf(" %s✓%s", color, colorReset)
	case "WARN":
		return fmt.Sprintf(" %s!%s", color, colorReset)
	case "CRIT":
		return fmt.Sprintf(" %sX%s", color, colorReset)
	}
	return ""
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func colorFor(status string) string {
	switch status {
	case "WARN":
		return colorYellow
	case "CRIT":
		return colorRed
	default:
		return colorGreen
	}
}
