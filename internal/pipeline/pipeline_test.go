package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/plan"
	"github.com/mondweep/Auto-Analyst/internal/retrieval"
	"github.com/mondweep/Auto-Analyst/internal/steps"
)

// fakeRunner executes steps with a configurable per-step behavior and
// records the inputs each step received.
type fakeRunner struct {
	mu     sync.Mutex
	inputs map[string]map[string]string
	run    func(def steps.Definition) (*capability.StepResult, error)
}

func newFakeRunner(run func(def steps.Definition) (*capability.StepResult, error)) *fakeRunner {
	return &fakeRunner{inputs: make(map[string]map[string]string), run: run}
}

func (f *fakeRunner) RunStep(ctx context.Context, def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
	f.mu.Lock()
	copied := make(map[string]string, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	f.inputs[def.Name] = copied
	f.mu.Unlock()

	if f.run != nil {
		return f.run(def)
	}
	return &capability.StepResult{Code: "x = 1", Summary: "ok"}, nil
}

func (f *fakeRunner) inputsFor(step string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[step]
}

func testRegistry() *steps.Registry {
	return steps.NewRegistry(
		steps.Definition{
			Name:   "stepA",
			Inputs: []string{steps.InputDataset, steps.InputGoal, steps.InputPlanInstructions},
			Prompt: "a",
		},
		steps.Definition{
			Name:   "stepB",
			Inputs: []string{steps.InputDataset, steps.InputGoal, steps.InputPlanInstructions},
			Prompt: "b",
		},
		steps.Definition{
			Name:   "stepC",
			Inputs: []string{steps.InputGoal, steps.InputStylingIndex},
			Prompt: "c",
		},
	)
}

func collect(t *testing.T, ch <-chan StepEvent) []StepEvent {
	t.Helper()
	var events []StepEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out collecting events")
		}
	}
}

func TestExecuteYieldsOneEventPerStep(t *testing.T) {
	runner := newFakeRunner(nil)
	exec := NewExecutor(runner, testRegistry(), 0, 0)

	p := plan.New("stepA -> stepB -> stepC", nil)
	events := collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))

	if len(events) != 3 {
		t.Fatalf("expected 3 events for 3 steps, got %d", len(events))
	}
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.Err != nil {
			t.Errorf("unexpected error for %s: %v", ev.Step, ev.Err)
		}
		seen[ev.Step] = true
	}
	for _, step := range p.Steps {
		if !seen[step] {
			t.Errorf("no event for step %s", step)
		}
	}
}

func TestExecuteEmptyPlanSentinel(t *testing.T) {
	exec := NewExecutor(newFakeRunner(nil), testRegistry(), 0, 0)

	events := collect(t, exec.Execute(context.Background(), plan.New("Plan:", nil), "goal", nil, nil))
	if len(events) != 1 {
		t.Fatalf("expected single sentinel event, got %d", len(events))
	}
	if events[0].Step != SentinelPlanNotFound {
		t.Errorf("expected %s sentinel, got %s", SentinelPlanNotFound, events[0].Step)
	}
	if !errors.Is(events[0].Err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", events[0].Err)
	}
}

func TestExecuteStepErrorIsolation(t *testing.T) {
	runner := newFakeRunner(func(def steps.Definition) (*capability.StepResult, error) {
		if def.Name == "stepB" {
			return nil, errors.New("model exploded")
		}
		return &capability.StepResult{Code: "x = 1", Summary: "ok"}, nil
	})
	exec := NewExecutor(runner, testRegistry(), 0, 0)

	p := plan.New("stepA -> stepB -> stepC", nil)
	events := collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	failures := 0
	for _, ev := range events {
		if ev.Err != nil {
			failures++
			if ev.Step != "stepB" {
				t.Errorf("unexpected failure for %s", ev.Step)
			}
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly 1 failure, got %d", failures)
	}
}

func TestExecuteUnknownStepReported(t *testing.T) {
	exec := NewExecutor(newFakeRunner(nil), testRegistry(), 0, 0)

	p := plan.New("stepA -> made_up_step", nil)
	events := collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	var unknownErr error
	for _, ev := range events {
		if ev.Step == "made_up_step" {
			unknownErr = ev.Err
		}
	}
	if unknownErr == nil || !strings.Contains(unknownErr.Error(), "unknown step") {
		t.Errorf("expected unknown step error, got %v", unknownErr)
	}
}

func TestExecuteAdjacentInstructionContext(t *testing.T) {
	runner := newFakeRunner(nil)
	exec := NewExecutor(runner, testRegistry(), 0, 0)

	p := plan.New("stepA -> stepB", `{
		"stepA": {"create": ["df_clean"], "use": ["df"], "instruction": "clean the frame"},
		"stepB": {"create": ["fig"], "use": ["df_clean"], "instruction": "plot the frame"}
	}`)
	collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))

	inputsA := runner.inputsFor("stepA")
	if inputsA == nil {
		t.Fatal("stepA never ran")
	}
	ctxA := inputsA[steps.InputPlanInstructions]
	if !strings.Contains(ctxA, `"Next Agent stepB"`) || !strings.Contains(ctxA, "plot the frame") {
		t.Errorf("stepA should see stepB as next agent, got: %s", ctxA)
	}

	ctxB := runner.inputsFor("stepB")[steps.InputPlanInstructions]
	if !strings.Contains(ctxB, `"Previous Agent stepA"`) || !strings.Contains(ctxB, "clean the frame") {
		t.Errorf("stepB should see stepA as previous agent, got: %s", ctxB)
	}
	if !strings.Contains(ctxB, `"your_task"`) {
		t.Errorf("step context should carry its own task, got: %s", ctxB)
	}
}

func TestExecuteBindsRetrievedSnippets(t *testing.T) {
	styleIdx, err := retrieval.New([]string{"always label the axes"})
	if err != nil {
		t.Fatal(err)
	}
	defer styleIdx.Close()
	dataIdx, err := retrieval.New([]string{"Dataset: vehicles with price and color"})
	if err != nil {
		t.Fatal(err)
	}
	defer dataIdx.Close()

	runner := newFakeRunner(nil)
	exec := NewExecutor(runner, testRegistry(), 0, 0)

	p := plan.New("stepA -> stepC", nil)
	collect(t, exec.Execute(context.Background(), p, "vehicles price", styleIdx, dataIdx))

	if got := runner.inputsFor("stepA")[steps.InputDataset]; !strings.Contains(got, "vehicles") {
		t.Errorf("stepA should receive the dataset snippet, got: %q", got)
	}
	if got := runner.inputsFor("stepC")[steps.InputStylingIndex]; !strings.Contains(got, "label the axes") {
		t.Errorf("stepC should receive the styling snippet, got: %q", got)
	}
	if _, ok := runner.inputsFor("stepC")[steps.InputDataset]; ok {
		t.Error("stepC does not declare the dataset input and should not receive it")
	}
}

func TestExecuteCompletionOrder(t *testing.T) {
	// stepA finishes last; its event must arrive last even though it is
	// first in the plan.
	release := make(chan struct{})
	runner := newFakeRunner(func(def steps.Definition) (*capability.StepResult, error) {
		if def.Name == "stepA" {
			<-release
		}
		return &capability.StepResult{Code: "x = 1", Summary: def.Name}, nil
	})
	exec := NewExecutor(runner, testRegistry(), 0, 0)

	p := plan.New("stepA -> stepB", nil)
	ch := exec.Execute(context.Background(), p, "goal", nil, nil)

	first := <-ch
	if first.Step != "stepB" {
		t.Errorf("expected stepB to complete first, got %s", first.Step)
	}
	close(release)
	second := <-ch
	if second.Step != "stepA" {
		t.Errorf("expected stepA second, got %s", second.Step)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should close after all steps report")
	}
}

func TestExecuteStepTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	runner := newFakeRunner(func(def steps.Definition) (*capability.StepResult, error) {
		if def.Name == "stepA" {
			<-block
		}
		return &capability.StepResult{Code: "x = 1", Summary: "ok"}, nil
	})
	exec := NewExecutor(runner, testRegistry(), 50*time.Millisecond, 0)

	p := plan.New("stepA -> stepB", nil)
	events := collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Step == "stepA" {
			if ev.Err == nil || !strings.Contains(ev.Err.Error(), "timed out") {
				t.Errorf("expected timeout error for stepA, got %v", ev.Err)
			}
		}
		if ev.Step == "stepB" && ev.Err != nil {
			t.Errorf("stepB should succeed, got %v", ev.Err)
		}
	}
}

func TestWorkerLimit(t *testing.T) {
	exec := NewExecutor(newFakeRunner(nil), testRegistry(), 0, 4)

	if got := exec.workerLimit(1); got < 1 {
		t.Errorf("limit must be at least 1, got %d", got)
	}
	if got := exec.workerLimit(100); got > 4 {
		t.Errorf("configured cap should bound the pool, got %d", got)
	}
}

func TestExecuteManySteps(t *testing.T) {
	defs := make([]steps.Definition, 12)
	names := make([]string, 12)
	for i := range defs {
		names[i] = fmt.Sprintf("bulk%d", i)
		defs[i] = steps.Definition{Name: names[i], Inputs: []string{steps.InputGoal}, Prompt: "p"}
	}
	exec := NewExecutor(newFakeRunner(nil), steps.NewRegistry(defs...), 0, 3)

	p := plan.New(strings.Join(names, " -> "), nil)
	events := collect(t, exec.Execute(context.Background(), p, "goal", nil, nil))
	if len(events) != 12 {
		t.Errorf("expected 12 events, got %d", len(events))
	}
}
