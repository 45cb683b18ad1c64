package capability

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:[a-zA-Z]*)\\s*\n(.*?)```")
	planLineRe  = regexp.MustCompile(`(?mi)^plan:?\s*(.*)$`)
)

// parseCodeSummary splits a response into its Code and Summary sections.
// Code fences inside the code section are stripped.
func parseCodeSummary(content string) (code, summary string) {
	lower := strings.ToLower(content)

	codeIdx := indexOfSection(lower, "code:")
	summaryIdx := indexOfSection(lower, "summary:")

	switch {
	case codeIdx >= 0 && summaryIdx > codeIdx:
		code = content[codeIdx+len("code:") : summaryIdx]
		summary = content[summaryIdx+len("summary:"):]
	case codeIdx >= 0:
		code = content[codeIdx+len("code:"):]
	case summaryIdx >= 0:
		summary = content[summaryIdx+len("summary:"):]
	default:
		// No section headers; treat a fenced block as code, the rest as summary.
		if m := codeFenceRe.FindStringSubmatch(content); m != nil {
			code = m[1]
			summary = codeFenceRe.ReplaceAllString(content, "")
		} else {
			summary = content
		}
	}

	return strings.TrimSpace(stripCodeFence(code)), strings.TrimSpace(summary)
}

// indexOfSection finds a section header at the start of a line.
func indexOfSection(lower, header string) int {
	if strings.HasPrefix(lower, header) {
		return 0
	}
	idx := strings.Index(lower, "\n"+header)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// parsePlanResponse extracts the plan line and the raw instruction payload
// from a planner response. The plan line starts with "Plan:"; everything
// after the "Plan Instructions:" header (or the first JSON object when the
// header is missing) is the instruction payload.
func parsePlanResponse(content string) (planText, rawInstructions string) {
	for _, m := range planLineRe.FindAllStringSubmatch(content, -1) {
		line := strings.TrimSpace(m[1])
		// Skip the "Plan Instructions:" header; it matches the same prefix.
		if strings.HasPrefix(strings.ToLower(line), "instructions") {
			continue
		}
		planText = line
		break
	}

	lower := strings.ToLower(content)
	if idx := strings.Index(lower, "plan instructions:"); idx >= 0 {
		rawInstructions = strings.TrimSpace(content[idx+len("plan instructions:"):])
	} else if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			rawInstructions = content[start : end+1]
		}
	}

	rawInstructions = stripCodeFence(rawInstructions)
	return planText, rawInstructions
}
