// Package progress turns raw flash-tool output lines into a short narration
// string and, when the line carries one, a completion percentage.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// MaxTextLen caps the narration taken verbatim from an unrecognized line.
const MaxTextLen = 80

const ellipsis = "…"

const (
	TextWaiting = "Waiting for controller…"
	TextLoaded  = "Firmware loaded…"
)

// Reading is the decoded form of one output line. Percent is meaningful only
// when HasPercent is set, and is then always in [1,100].
type Reading struct {
	Text       string
	Percent    int
	HasPercent bool
}

// match is the three-way result every parser in the chain returns.
type match int

const (
	unmatched match = iota
	matchedEmpty
	matchedValue
)

type percentParser func(fields map[string]any) (float64, match)

// percentChain is consulted in order; the first matchedValue wins.
var percentChain = []percentParser{
	blockPercent,
	fieldPercent,
	nestedPercent,
}

var percentKeys = []string{"percent", "percent_complete", "progress_percent", "pct"}

// Decode never fails: anything it cannot interpret becomes plain text.
func Decode(line string) Reading {
	trimmed := strings.TrimSpace(line)
	fields, ok := parseObject(trimmed)
	if ok {
		if pct, found := Percent(fields); found {
			return Reading{
				Text:       fmt.Sprintf("Flashing… %d%%", pct),
				Percent:    pct,
				HasPercent: true,
			}
		}
		if text, m := semanticText(fields); m == matchedValue {
			return Reading{Text: text}
		}
	}
	return Reading{Text: Truncate(trimmed, MaxTextLen)}
}

// Percent runs the percentage chain over an already-decoded object. A zero
// reading counts as no progress yet.
func Percent(fields map[string]any) (int, bool) {
	for _, p := range percentChain {
		v, m := p(fields)
		if m != matchedValue {
			continue
		}
		if v <= 0 {
			return 0, false
		}
		return clampRound(v), true
	}
	return 0, false
}

// Truncate shortens s to max runes, appending an ellipsis when it cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + ellipsis
}

func parseObject(line string) (map[string]any, bool) {
	if line == "" || line[0] != '{' {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// blockPercent models the loader's {"event":"block","i":k,"n":total} frames.
func blockPercent(fields map[string]any) (float64, match) {
	if ev, _ := fields["event"].(string); ev != "block" {
		return 0, unmatched
	}
	i, iok := number(fields["i"])
	n, nok := number(fields["n"])
	if !iok || !nok || n <= 0 {
		return 0, matchedEmpty
	}
	pct := (i + 1) / n * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, matchedEmpty
	}
	return pct, matchedValue
}

func fieldPercent(fields map[string]any) (float64, match) {
	for _, k := range percentKeys {
		if v, ok := number(fields[k]); ok && v >= 0 && v <= 100 {
			return v, matchedValue
		}
	}
	return 0, unmatched
}

func nestedPercent(fields map[string]any) (float64, match) {
	p, ok := fields["progress"].(map[string]any)
	if !ok {
		return 0, unmatched
	}
	if v, ok := number(p["percent"]); ok && v >= 0 && v <= 100 {
		return v, matchedValue
	}
	return 0, matchedEmpty
}

func semanticText(fields map[string]any) (string, match) {
	ev, ok := fields["event"].(string)
	if !ok {
		return "", unmatched
	}
	switch ev {
	case "discover_start":
		return TextWaiting, matchedValue
	case "discover_done":
		if count, ok := number(fields["count"]); ok && count == 0 {
			return TextWaiting, matchedValue
		}
		return "", matchedEmpty
	case "hex_loaded":
		return TextLoaded, matchedValue
	}
	return "", unmatched
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampRound(v float64) int {
	p := int(math.Round(v))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}
