package codegen

import (
	"context"
	"regexp"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/capability"
)

var (
	errorHeaderRe = regexp.MustCompile(`(?i)===\s+ERROR\s+IN\s+([A-Za-z0-9_]+)\s+===`)
	errorTypeRe   = regexp.MustCompile(`(TypeError|ValueError|AttributeError|IndexError|KeyError|NameError):\s*([^\n]+)`)
	problemRe     = regexp.MustCompile(`(?s)Problem at this location:(.*?)(\n\n|$)`)
	finalErrorRe  = regexp.MustCompile(`^(TypeError|ValueError|AttributeError):`)
)

// Fixer produces corrected code for a faulty fragment. Satisfied by
// capability.Invoker.
type Fixer interface {
	Fix(ctx context.Context, datasetContext, faultyCode, errorMsg string) (string, capability.Usage, error)
}

// FaultyBlock pairs a marker block with the error execution attributed to it.
type FaultyBlock struct {
	Step  string
	Block string
	Error string
}

// IdentifyErrorBlocks matches "=== ERROR IN <STEP> ===" sections of the
// execution output against the code's marker blocks. Step names from the
// error output are normalized (lowercased, "_agent" suffix dropped) and
// fall back to substring matching when no block matches exactly.
func IdentifyErrorBlocks(code, errorOutput string) []FaultyBlock {
	headers := errorHeaderRe.FindAllStringSubmatchIndex(errorOutput, -1)
	if len(headers) == 0 {
		return nil
	}

	blocks := make(map[string]string)
	var blockOrder []string
	for _, m := range blockRe.FindAllStringSubmatch(code, -1) {
		name := strings.ToLower(m[1])
		if _, ok := blocks[name]; !ok {
			blockOrder = append(blockOrder, name)
		}
		blocks[name] = m[0]
	}

	var faulty []FaultyBlock
	matched := make(map[string]bool)
	for i, h := range headers {
		name := errorOutput[h[2]:h[3]]
		msgStart := h[1]
		msgEnd := len(errorOutput)
		if i+1 < len(headers) {
			msgEnd = headers[i+1][0]
		}
		message := strings.TrimSpace(errorOutput[msgStart:msgEnd])

		normalized := strings.ToLower(name)
		normalized = strings.TrimSuffix(normalized, "_agent")

		if block, ok := blocks[normalized]; ok {
			faulty = append(faulty, FaultyBlock{
				Step:  normalized,
				Block: block,
				Error: extractRelevantErrorSection(message),
			})
			matched[normalized] = true
			continue
		}

		for _, blockName := range blockOrder {
			if matched[blockName] {
				continue
			}
			if strings.Contains(blockName, normalized) || strings.Contains(normalized, blockName) {
				faulty = append(faulty, FaultyBlock{
					Step:  blockName,
					Block: blocks[blockName],
					Error: extractRelevantErrorSection(message),
				})
				matched[blockName] = true
				break
			}
		}
	}
	return faulty
}

// extractRelevantErrorSection compresses an error message to its most useful
// part: the "Problem at this location:" section plus the final error type
// line when present, otherwise the first and last few lines of a long trace.
func extractRelevantErrorSection(message string) string {
	lines := strings.Split(strings.TrimSpace(message), "\n")

	if strings.Contains(message, "Problem at this location:") {
		problemIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "Problem at this location:") {
				problemIdx = i
				break
			}
		}
		if problemIdx >= 0 {
			end := problemIdx + 10
			if end > len(lines) {
				end = len(lines)
			}
			section := append([]string{}, lines[problemIdx:end]...)

			for i := len(lines) - 1; i >= 0; i-- {
				if finalErrorRe.MatchString(lines[i]) {
					section = append(section, lines[i])
					break
				}
			}
			return strings.Join(section, "\n")
		}
	}

	if len(lines) > 10 {
		return strings.Join(append(append([]string{}, lines[:3]...), lines[len(lines)-3:]...), "\n")
	}
	return message
}

// narrowError focuses a block's error for the fixer: the bare error type and
// message when recognizable, plus the problem location when present.
func narrowError(specific string) string {
	msg := specific
	if m := errorTypeRe.FindStringSubmatch(specific); m != nil {
		msg = m[1] + ": " + m[2]
	}
	if strings.Contains(specific, "Problem at this location:") {
		if m := problemRe.FindStringSubmatch(specific); m != nil {
			msg = msg + "\n\nProblem at: " + strings.TrimSpace(m[1])
		}
	}
	return msg
}

// Repairer runs the repair loop over a combined script.
type Repairer struct {
	fixer  Fixer
	logger *logging.Logger
}

// NewRepairer creates a repairer over the given fixer.
func NewRepairer(fixer Fixer) *Repairer {
	return &Repairer{
		fixer:  fixer,
		logger: logging.New().WithComponent("repair"),
	}
}

// Repair fixes the regions of a combined script blamed by the execution
// error output. Only the interior of each faulty block is rewritten; its
// markers and every byte outside the faulty blocks are preserved. When no
// block can be blamed, the whole script is handed to the fixer.
func (r *Repairer) Repair(ctx context.Context, code, errorOutput, datasetContext string) (string, error) {
	faulty := IdentifyErrorBlocks(code, errorOutput)
	if len(faulty) == 0 {
		fixed, _, err := r.fixer.Fix(ctx, datasetContext, code, errorOutput)
		if err != nil {
			return "", err
		}
		return fixed, nil
	}

	result := strings.ReplaceAll(code, "```python", "")
	result = strings.ReplaceAll(result, "```", "")

	for _, fb := range faulty {
		inner, ok := InnerCode(fb.Block)
		if !ok {
			r.logger.Warn("could not extract inner code", map[string]interface{}{
				"step": fb.Step,
			})
			continue
		}

		startMarker := startMarkerRe.FindString(fb.Block)
		endMarker := endMarkerRe.FindString(fb.Block)
		if startMarker == "" || endMarker == "" {
			r.logger.Warn("could not find block markers", map[string]interface{}{
				"step": fb.Step,
			})
			continue
		}

		fixed, _, err := r.fixer.Fix(ctx, datasetContext, inner, narrowError(fb.Error))
		if err != nil {
			// A failed fix leaves the block as it was; other blocks still get fixed.
			r.logger.Error("block fix failed", map[string]interface{}{
				"step":  fb.Step,
				"error": err.Error(),
			})
			continue
		}

		fixed = strings.TrimSpace(fixed)
		// The fixer sometimes echoes the markers back; keep only the interior.
		if strings.HasPrefix(fixed, "#") && strings.Contains(fixed, "code start") {
			if inner, ok := InnerCode(fixed); ok {
				fixed = inner
			}
		}

		fixedBlock := startMarker + "\n\n" + fixed + "\n\n" + endMarker
		result = strings.Replace(result, fb.Block, fixedBlock, 1)

		r.logger.Info("block repaired", map[string]interface{}{"step": fb.Step})
	}

	return result, nil
}
