// Package codegen assembles and repairs marker-delimited analysis scripts.
//
// Each step's generated code lives between "# <step> code start" and
// "# <step> code end" comment markers. The markers are the unit of blame:
// execution errors name a step, and repairs touch only that step's region.
package codegen

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	blockRe       = regexp.MustCompile(`(?i)#[ \t]+(\w+)[ \t]+code[ \t]+start[\s\S]*?#[ \t]+\w+[ \t]+code[ \t]+end`)
	startMarkerRe = regexp.MustCompile(`(?i)#[ \t]+\w+[ \t]+code[ \t]+start`)
	endMarkerRe   = regexp.MustCompile(`(?i)#[ \t]+\w+[ \t]+code[ \t]+end`)
	innerRe       = regexp.MustCompile(`(?i)#[ \t]+\w+[ \t]+code[ \t]+start[ \t]*\n([\s\S]*?)#[ \t]+\w+[ \t]+code[ \t]+end`)
	importRe      = regexp.MustCompile(`(?m)^\s*(import\s+[^\n]+|from\s+[^\n]+import\s+[^\n]+)`)
	importLineRe  = regexp.MustCompile(`(?m)^\s*(import\s+[^\n]+|from\s+[^\n]+import\s+[^\n]+)\n?`)
)

// StepCode is one step's contribution to the combined script.
type StepCode struct {
	Step string
	Code string
}

// WrapBlock fences a step's code with its start and end markers.
func WrapBlock(step, code string) string {
	name := normalizeStepName(step)
	return fmt.Sprintf("# %s code start\n\n%s\n\n# %s code end", name, strings.TrimSpace(code), name)
}

// normalizeStepName reduces a step name to the single marker token: the
// "_agent" suffix is dropped and the rest lowercased, so
// "planner_data_viz_agent" marks its block as "planner_data_viz".
func normalizeStepName(step string) string {
	name := strings.ToLower(strings.TrimSpace(step))
	name = strings.TrimSuffix(name, "_agent")
	return name
}

// Combine merges per-step code into one marker-tagged script: every step's
// code wrapped in its markers, imports hoisted above all blocks, and a
// trailing fig.show() when the script builds a figure but never displays it.
func Combine(parts []StepCode) string {
	blocks := make([]string, 0, len(parts))
	var imports []string
	for _, p := range parts {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			continue
		}
		imports = append(imports, importRe.FindAllString(code, -1)...)
		code = strings.TrimSpace(importLineRe.ReplaceAllString(code, ""))
		blocks = append(blocks, WrapBlock(p.Step, code))
	}

	var b strings.Builder
	if len(imports) > 0 {
		b.WriteString(strings.Join(dedupeSorted(imports), "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(blocks, "\n\n"))

	combined := b.String()
	if strings.Contains(combined, "fig") && !strings.Contains(combined, "fig.show()") {
		combined += "\n\nfig.show()"
	}
	return combined
}

// ExtractBlocks returns the marker-delimited blocks keyed by step name,
// markers included. Code without markers is returned whole under "main".
func ExtractBlocks(code string) map[string]string {
	matches := blockRe.FindAllStringSubmatch(code, -1)
	if len(matches) == 0 {
		return map[string]string{"main": code}
	}

	result := make(map[string]string, len(matches))
	for _, m := range matches {
		result[strings.ToLower(m[1])] = strings.TrimSpace(m[0])
	}
	return result
}

// InnerCode returns the code between a block's markers.
func InnerCode(block string) (string, bool) {
	m := innerRe.FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// MarkerCount returns the number of start and end markers in the code. A
// repair must leave both counts unchanged.
func MarkerCount(code string) (starts, ends int) {
	return len(startMarkerRe.FindAllString(code, -1)), len(endMarkerRe.FindAllString(code, -1))
}

// MoveImportsToTop hoists all import statements above the rest of the code,
// deduplicated and sorted.
func MoveImportsToTop(code string) string {
	imports := importRe.FindAllString(code, -1)
	if len(imports) == 0 {
		return code
	}

	rest := strings.TrimSpace(importLineRe.ReplaceAllString(code, ""))
	return strings.Join(dedupeSorted(imports), "\n") + "\n\n" + rest
}

// FormatCode cleans a script: imports hoisted, marker blocks separated by
// blank lines, trailing unmarked code kept as-is.
func FormatCode(code string) string {
	code = MoveImportsToTop(code)

	locs := blockRe.FindAllStringIndex(code, -1)
	if len(locs) == 0 {
		return code
	}

	var pieces []string
	prev := 0
	for _, loc := range locs {
		if lead := strings.TrimSpace(code[prev:loc[0]]); lead != "" {
			pieces = append(pieces, lead)
		}
		pieces = append(pieces, strings.TrimSpace(code[loc[0]:loc[1]]))
		prev = loc[1]
	}
	if tail := strings.TrimSpace(code[prev:]); tail != "" {
		pieces = append(pieces, tail)
	}

	return strings.Join(pieces, "\n\n")
}

func dedupeSorted(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
