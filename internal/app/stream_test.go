package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/steps"
)

func decodeEvents(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestRunStreamsPlanThenSteps(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{
				PlanText: "Plan: planner_preprocessing_agent -> planner_data_viz_agent",
				Usage:    capability.Usage{Model: "gpt-4o-mini", InputTokens: 90, OutputTokens: 30},
			}, nil
		},
		runFn: func(def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
			return &capability.StepResult{
				Code:    "df = pd.read_csv('vehicles.csv')",
				Summary: "Loaded the data.",
				Usage:   capability.Usage{Model: "gpt-4o-mini", InputTokens: 200, OutputTokens: 150},
			}, nil
		},
	}
	a, recorder := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 7, 3); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	if len(events) != 4 {
		t.Fatalf("expected plan, 2 step, and combiner events, got %d: %+v", len(events), events)
	}

	first := events[0]
	if first.Agent != "Analytical Planner" || first.Status != StatusSuccess {
		t.Errorf("first event must be the planner announcement, got %+v", first)
	}
	if !strings.Contains(first.Content, "Analyzing your goal with the plan: planner_preprocessing_agent -> planner_data_viz_agent") {
		t.Errorf("plan announcement missing step list: %s", first.Content)
	}

	stepsSeen := make(map[string]bool)
	for _, ev := range events[1:3] {
		if ev.Status != StatusSuccess {
			t.Errorf("step %s should succeed, got %+v", ev.Agent, ev)
		}
		if !strings.Contains(ev.Content, "```python\n") || !strings.Contains(ev.Content, "Loaded the data.") {
			t.Errorf("step content should carry fenced code and summary: %s", ev.Content)
		}
		stepsSeen[ev.Agent] = true
	}
	if !stepsSeen["planner_preprocessing_agent"] || !stepsSeen["planner_data_viz_agent"] {
		t.Errorf("missing step events: %v", stepsSeen)
	}

	last := events[3]
	if last.Agent != "code_combiner_agent" || last.Status != StatusSuccess {
		t.Errorf("final event must be the combined code, got %+v", last)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.meter.Drain(ctx)

	saved := recorder.saved()
	if len(saved) != 4 {
		t.Fatalf("expected planner, 2 step, and combiner usage records, got %d", len(saved))
	}
	for _, rec := range saved {
		if rec.SessionID != "s1" {
			t.Errorf("record bound to wrong session: %s", rec.SessionID)
		}
		if rec.UserID != 7 || rec.ChatID != 3 {
			t.Errorf("record should carry the bound user/chat, got user=%d chat=%d", rec.UserID, rec.ChatID)
		}
		if !rec.IsStreaming {
			t.Error("streaming records must be flagged as such")
		}
		if rec.PromptTokens == 0 || rec.Cost == 0 {
			t.Errorf("provider token counts should drive accounting: %+v", rec)
		}
	}
}

func TestRunPlannerFailureEmitsNoPlan(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	if len(events) != 1 {
		t.Fatalf("expected a single no-plan event, got %d", len(events))
	}
	ev := events[0]
	if ev.Agent != "Analytical Planner" || ev.Status != StatusError {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !strings.Contains(ev.Content, "No plan found") {
		t.Errorf("expected the no-plan message, got: %s", ev.Content)
	}
}

func TestRunEmptyPlanEmitsNoPlan(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{PlanText: "Plan:"}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	if len(events) != 1 {
		t.Fatalf("expected only the no-plan event, got %d: %+v", len(events), events)
	}
	if events[0].Agent != "Analytical Planner" || events[0].Status != StatusError {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if !strings.Contains(events[0].Content, "No plan found") {
		t.Errorf("expected the no-plan message, got: %s", events[0].Content)
	}
}

func TestRunAttributeBypassSkipsPlanner(t *testing.T) {
	caps := &fakeCaps{
		runFn: func(def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
			return &capability.StepResult{Code: "fig = px.bar(df)", Summary: "Counted green vehicles."}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "show me green vehicles", 0, 0); err != nil {
		t.Fatal(err)
	}

	if caps.planCallCount() != 0 {
		t.Error("attribute queries must bypass the planner model")
	}

	events := decodeEvents(t, &buf)
	if len(events) != 2 {
		t.Fatalf("expected plan announcement plus one step event, got %d", len(events))
	}
	if events[1].Agent != "planner_data_viz_agent" || events[1].Status != StatusSuccess {
		t.Errorf("expected the viz step to run, got %+v", events[1])
	}

	instr := caps.inputsFor("planner_data_viz_agent")[steps.InputPlanInstructions]
	if !strings.Contains(instr, "color='green'") {
		t.Errorf("bypass instruction should reach the step, got: %s", instr)
	}
}

func TestRunCombinedCodePreservesMarkers(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{
				PlanText: "Plan: planner_preprocessing_agent -> planner_data_viz_agent",
			}, nil
		},
		runFn: func(def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
			if def.Name == "planner_preprocessing_agent" {
				return &capability.StepResult{Code: "import pandas as pd\ndf_clean = df.dropna()", Summary: "Cleaned."}, nil
			}
			return &capability.StepResult{Code: "import plotly.express as px\nfig = px.bar(df_clean)", Summary: "Plotted."}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	combined := events[len(events)-1]
	if combined.Agent != "code_combiner_agent" || combined.Status != StatusSuccess {
		t.Fatalf("expected a trailing combined-code event, got %+v", combined)
	}
	for _, marker := range []string{
		"# planner_preprocessing code start",
		"# planner_preprocessing code end",
		"# planner_data_viz code start",
		"# planner_data_viz code end",
	} {
		if !strings.Contains(combined.Content, marker) {
			t.Errorf("combined code missing marker %q:\n%s", marker, combined.Content)
		}
	}
	// Imports are hoisted above the first block.
	body := combined.Content
	if strings.Index(body, "import pandas as pd") > strings.Index(body, "# planner_preprocessing code start") {
		t.Errorf("imports should be hoisted to the top:\n%s", body)
	}
}

func TestRunCombinerDropsMarkerlessRefinement(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{
				PlanText: "Plan: planner_preprocessing_agent -> planner_data_viz_agent",
			}, nil
		},
		combineFn: func(codeList []string) (*capability.StepResult, error) {
			return &capability.StepResult{Code: "print('rewritten from scratch')", Summary: "Rewrote it."}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	combined := events[len(events)-1]
	if combined.Agent != "code_combiner_agent" {
		t.Fatalf("expected a trailing combined-code event, got %+v", combined)
	}
	if strings.Contains(combined.Content, "rewritten from scratch") {
		t.Error("a refinement that loses the step markers must be discarded")
	}
	if !strings.Contains(combined.Content, "# planner_preprocessing code start") {
		t.Errorf("fallback should keep the assembled marker blocks:\n%s", combined.Content)
	}
}

func TestRunCombinerErrorStreamsErrorEvent(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{
				PlanText: "Plan: planner_preprocessing_agent -> planner_data_viz_agent",
			}, nil
		},
		combineFn: func(codeList []string) (*capability.StepResult, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	last := events[len(events)-1]
	if last.Agent != "code_combiner_agent" || last.Status != StatusError {
		t.Errorf("combiner failure should stream an error event, got %+v", last)
	}
}

func TestRunSingleStepSkipsCombiner(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{PlanText: "Plan: planner_data_viz_agent"}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	if len(events) != 2 {
		t.Fatalf("expected plan announcement plus one step event only, got %d: %+v", len(events), events)
	}
	for _, ev := range events {
		if ev.Agent == "code_combiner_agent" {
			t.Error("single-step results must not be combined")
		}
	}
}

func TestRunStepErrorStreamsErrorEvent(t *testing.T) {
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			return &capability.PlanResult{
				PlanText: "Plan: planner_preprocessing_agent -> planner_data_viz_agent",
			}, nil
		},
		runFn: func(def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
			if def.Name == "planner_data_viz_agent" {
				return nil, context.DeadlineExceeded
			}
			return &capability.StepResult{Code: "x = 1", Summary: "ok"}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0); err != nil {
		t.Fatal(err)
	}

	events := decodeEvents(t, &buf)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	var succeeded, failed bool
	for _, ev := range events[1:] {
		switch ev.Status {
		case StatusSuccess:
			succeeded = true
		case StatusError:
			failed = true
			if ev.Agent != "planner_data_viz_agent" {
				t.Errorf("wrong step blamed: %s", ev.Agent)
			}
		}
	}
	if !succeeded || !failed {
		t.Errorf("one step should succeed and one fail, got: %+v", events[1:])
	}
}

func TestRunRequestTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			<-block
			return &capability.PlanResult{PlanText: "Plan:"}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)
	a.cfg.Pipeline.RequestTimeoutSeconds = 0 // deadline fires immediately

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 0, 0)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the request deadline")
	}

	events := decodeEvents(t, &buf)
	if len(events) != 1 {
		t.Fatalf("expected a single timeout event, got %d", len(events))
	}
	ev := events[0]
	if ev.Agent != "planner" || ev.Status != StatusError {
		t.Errorf("unexpected timeout event: %+v", ev)
	}
	if ev.Content != "The request timed out. Please try a simpler query." {
		t.Errorf("unexpected timeout message: %s", ev.Content)
	}
}

func TestRunCancelledContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	caps := &fakeCaps{
		planFn: func(goal string) (*capability.PlanResult, error) {
			<-block
			return &capability.PlanResult{PlanText: "Plan:"}, nil
		},
	}
	a, _ := newTestAnalyst(t, caps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := a.Run(ctx, &buf, "s1", "summarize quarterly trends", 0, 0); err == nil {
		t.Fatal("expected context cancellation to surface")
	}
}

func TestRunBindsUserToSession(t *testing.T) {
	caps := &fakeCaps{}
	a, _ := newTestAnalyst(t, caps)

	var buf bytes.Buffer
	if err := a.Run(context.Background(), &buf, "s1", "summarize quarterly trends", 42, 9); err != nil {
		t.Fatal(err)
	}

	sess, err := a.Sessions().Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	userID, chatID := sess.User()
	if userID != 42 || chatID != 9 {
		t.Errorf("expected user binding 42/9, got %d/%d", userID, chatID)
	}
}
