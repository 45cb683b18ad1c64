// Package plan defines analysis plans and their parsing.
package plan

import (
	"encoding/json"
	"strings"
)

// StepInstruction carries the per-step variable contract the planner emits:
// which variables the step creates, which it consumes, and a free-text
// instruction tying them to the goal.
type StepInstruction struct {
	Create      []string `json:"create"`
	Use         []string `json:"use"`
	Instruction string   `json:"instruction"`
}

// Plan is an ordered sequence of step names plus per-step instructions.
// Once built it is never mutated; executors read it concurrently.
type Plan struct {
	Steps        []string
	Instructions map[string]StepInstruction
	RawPlan      string // Planner output before parsing, kept for diagnostics
}

// Empty reports whether the plan names no steps.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// InstructionFor returns the instruction block for a step, or a zero-valued
// block when the planner produced none for it.
func (p *Plan) InstructionFor(step string) StepInstruction {
	if instr, ok := p.Instructions[strings.TrimSpace(step)]; ok {
		return instr
	}
	return StepInstruction{}
}

// ParseStepList parses the planner's plan line into an ordered list of step
// names. The line may carry a "Plan" prefix and colons, and separates steps
// with "->". Blank segments are dropped.
func ParseStepList(planText string) []string {
	cleaned := strings.ReplaceAll(planText, "Plan", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.TrimSpace(cleaned)

	var steps []string
	for _, part := range strings.Split(cleaned, "->") {
		if s := strings.TrimSpace(part); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// ParseInstructions parses the planner's instruction payload. The payload
// arrives either as a JSON string or as an already-structured map; anything
// unparseable degrades to an empty map rather than failing the plan.
func ParseInstructions(raw interface{}) map[string]StepInstruction {
	out := make(map[string]StepInstruction)

	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return out
		}
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return make(map[string]StepInstruction)
		}
	case map[string]StepInstruction:
		for k, instr := range v {
			out[k] = instr
		}
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return out
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return make(map[string]StepInstruction)
		}
	}
	return out
}

// New assembles a plan from the planner's raw plan line and instruction
// payload.
func New(planText string, rawInstructions interface{}) *Plan {
	return &Plan{
		Steps:        ParseStepList(planText),
		Instructions: ParseInstructions(rawInstructions),
		RawPlan:      planText,
	}
}
