package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/codegen"
	"github.com/mondweep/Auto-Analyst/internal/pipeline"
	"github.com/mondweep/Auto-Analyst/internal/plan"
	"github.com/mondweep/Auto-Analyst/internal/session"
	"github.com/mondweep/Auto-Analyst/internal/usage"
)

// Event is one newline-delimited streaming message: which step produced it,
// its markdown content, and whether it succeeded.
type Event struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"

	plannerAgent  = "Analytical Planner"
	combinerAgent = "code_combiner_agent"

	noPlanContent = "**No plan found**\n\nPlease try rephrasing your query or " +
		"providing more details about the analysis you need."
	timeoutContent = "The request timed out. Please try a simpler query."
)

// flusher is the subset of http.Flusher the stream needs.
type flusher interface {
	Flush()
}

// writeEvent emits one event as a JSON line, flushing when the writer
// supports it so clients see steps as they complete.
func writeEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding stream event: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing stream event: %w", err)
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}

// Run drives one analysis request end to end: plan the goal, execute every
// step concurrently, and stream each result to w as it completes. Events
// arrive in completion order, one JSON object per line. The request deadline
// stops the stream without interrupting in-flight steps; abandoned steps run
// to completion in the background and their output is discarded.
func (a *Analyst) Run(ctx context.Context, w io.Writer, sessionID, goal string, userID, chatID int) error {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return err
	}
	sess.BindUser(userID, chatID)

	caps, err := a.capabilitiesFor(sess)
	if err != nil {
		return err
	}

	started := time.Now()
	deadline := time.NewTimer(a.cfg.RequestTimeout())
	defer deadline.Stop()

	var pending []usage.Record
	model := sess.Model().Model

	// Plan phase. The planner call is bounded by the same request deadline
	// as the steps; on timeout the call is abandoned, not cancelled.
	type planOutcome struct {
		plan  *plan.Plan
		usage capability.Usage
		err   error
	}
	planCh := make(chan planOutcome, 1)
	go func() {
		p, u, perr := a.PlanGoal(ctx, sess, goal)
		planCh <- planOutcome{p, u, perr}
	}()

	var p *plan.Plan
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return writeEvent(w, Event{Agent: "planner", Content: timeoutContent, Status: StatusError})
	case o := <-planCh:
		if o.err != nil {
			a.logger.Warn("planning failed", map[string]interface{}{
				"session_id": sess.ID,
				"error":      o.err.Error(),
			})
			return writeEvent(w, Event{Agent: plannerAgent, Content: noPlanContent, Status: StatusError})
		}
		p = o.plan
		if o.usage.Model != "" || o.usage.InputTokens > 0 {
			pending = append(pending, a.buildRecord(sess, model, o.usage, goal, p.RawPlan, time.Since(started), true))
		}
	}

	if !p.Empty() {
		planContent := fmt.Sprintf("Analyzing your goal with the plan: %s", strings.Join(p.Steps, " -> "))
		if err := writeEvent(w, Event{Agent: plannerAgent, Content: planContent, Status: StatusSuccess}); err != nil {
			return err
		}
	}

	executor := pipeline.NewExecutor(caps, a.planner, a.cfg.StepTimeout(), a.cfg.Pipeline.MaxWorkers)
	styleIndex, dataIndex := sess.Indices()
	events := executor.Execute(ctx, p, goal, styleIndex, dataIndex)

	var completed []pipeline.StepEvent
	timedOut := false

stream:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			timedOut = true
			if err := writeEvent(w, Event{Agent: "planner", Content: timeoutContent, Status: StatusError}); err != nil {
				return err
			}
			break stream
		case ev, ok := <-events:
			if !ok {
				break stream
			}
			if ev.Err == nil && ev.Step != pipeline.SentinelPlanNotFound {
				completed = append(completed, ev)
			}
			out, rec := a.stepEvent(sess, model, goal, started, ev)
			if rec != nil {
				pending = append(pending, *rec)
			}
			if err := writeEvent(w, out); err != nil {
				return err
			}
		}
	}

	// Multi-step results get one final pass merging the per-step code into a
	// single runnable script.
	if !timedOut && len(completed) > 1 {
		out, rec := a.combineEvent(ctx, caps, sess, model, goal, started, completed)
		if rec != nil {
			pending = append(pending, *rec)
		}
		if err := writeEvent(w, out); err != nil {
			return err
		}
	}

	for _, rec := range pending {
		a.meter.Track(rec)
	}
	return nil
}

// combineEvent merges the completed steps' code in plan order and asks the
// model to refine the result. A refinement that loses the per-step markers is
// discarded in favor of the mechanically assembled script, so repair keeps
// working on the combined output.
func (a *Analyst) combineEvent(ctx context.Context, caps Capabilities, sess *session.Session, model, goal string, started time.Time, completed []pipeline.StepEvent) (Event, *usage.Record) {
	sort.Slice(completed, func(i, j int) bool { return completed[i].Index < completed[j].Index })

	parts := make([]codegen.StepCode, len(completed))
	blocks := make([]string, len(completed))
	for i, ev := range completed {
		parts[i] = codegen.StepCode{Step: ev.Step, Code: ev.Code}
		blocks[i] = codegen.WrapBlock(ev.Step, ev.Code)
	}
	assembled := codegen.Combine(parts)

	result, err := caps.Combine(ctx, a.datasetContext(sess), blocks)
	if err != nil {
		a.logger.Warn("code combination failed", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		return Event{Agent: combinerAgent, Content: err.Error(), Status: StatusError}, nil
	}

	refined := strings.TrimSpace(result.Code)
	if refined == "" || len(codegen.ExtractBlocks(refined)) < len(parts) {
		refined = assembled
	}

	content := stepContent(codegen.FormatCode(refined), result.Summary)
	combinerModel := result.Usage.Model
	if combinerModel == "" {
		combinerModel = model
	}
	rec := a.buildRecord(sess, combinerModel, result.Usage, goal, content, time.Since(started), true)
	return Event{Agent: combinerAgent, Content: content, Status: StatusSuccess}, &rec
}

// stepEvent converts an executor event into its client-facing form, plus a
// usage record for successful steps.
func (a *Analyst) stepEvent(sess *session.Session, model, goal string, started time.Time, ev pipeline.StepEvent) (Event, *usage.Record) {
	if ev.Step == pipeline.SentinelPlanNotFound {
		return Event{Agent: plannerAgent, Content: noPlanContent, Status: StatusError}, nil
	}
	if ev.Err != nil {
		return Event{Agent: ev.Step, Content: ev.Err.Error(), Status: StatusError}, nil
	}

	content := stepContent(ev.Code, ev.Summary)
	stepModel := ev.Usage.Model
	if stepModel == "" {
		stepModel = model
	}
	rec := a.buildRecord(sess, stepModel, ev.Usage, goal, content, time.Since(started), true)
	return Event{Agent: ev.Step, Content: content, Status: StatusSuccess}, &rec
}

// stepContent renders a step result as fenced code plus its summary.
func stepContent(code, summary string) string {
	return fmt.Sprintf("```python\n%s\n```\n\n%s", code, summary)
}

// buildRecord assembles one usage record, preferring provider-reported token
// counts over tokenizer estimates.
func (a *Analyst) buildRecord(sess *session.Session, model string, u capability.Usage, input, output string, elapsed time.Duration, streaming bool) usage.Record {
	userID, chatID := sess.User()
	rec := a.meter.NewRecord(sess.ID, userID, chatID, model, input, output, elapsed, streaming)
	if u.InputTokens > 0 {
		rec.PromptTokens = u.InputTokens
	}
	if u.OutputTokens > 0 {
		rec.CompletionTokens = u.OutputTokens
	}
	if u.InputTokens > 0 || u.OutputTokens > 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
		rec.Cost = usage.Cost(model, rec.PromptTokens, rec.CompletionTokens)
	}
	return rec
}
