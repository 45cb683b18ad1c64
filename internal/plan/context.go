package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContextFor renders the instruction payload a step receives: its own
// contract under "your_task", plus the free-text instruction of the adjacent
// steps so it knows what it inherits and what it must hand off. Key order is
// fixed so the rendered payload is stable across runs.
func (p *Plan) ContextFor(idx int) string {
	if idx < 0 || idx >= len(p.Steps) {
		return "{}"
	}

	step := strings.TrimSpace(p.Steps[idx])

	var b strings.Builder
	b.WriteString("{")
	writeKey(&b, "your_task", p.InstructionFor(step))

	if idx > 0 {
		prev := strings.TrimSpace(p.Steps[idx-1])
		b.WriteString(", ")
		writeKey(&b, fmt.Sprintf("Previous Agent %s", prev), p.InstructionFor(prev).Instruction)
	}
	if idx < len(p.Steps)-1 {
		next := strings.TrimSpace(p.Steps[idx+1])
		b.WriteString(", ")
		writeKey(&b, fmt.Sprintf("Next Agent %s", next), p.InstructionFor(next).Instruction)
	}

	b.WriteString("}")
	return b.String()
}

func writeKey(b *strings.Builder, key string, value interface{}) {
	k, _ := json.Marshal(key)
	v, _ := json.Marshal(value)
	b.Write(k)
	b.WriteString(": ")
	b.Write(v)
}
