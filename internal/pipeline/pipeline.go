// Package pipeline executes analysis plans: it binds each planned step's
// inputs, fans the steps out over a bounded worker pool, and streams results
// back in completion order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/plan"
	"github.com/mondweep/Auto-Analyst/internal/retrieval"
	"github.com/mondweep/Auto-Analyst/internal/steps"
)

// SentinelPlanNotFound is the step name of the single event emitted when a
// plan names no steps.
const SentinelPlanNotFound = "plan_not_found"

// ErrPlanNotFound reports an empty or unparsable plan. It is informational:
// callers surface it to the user instead of failing the request.
var ErrPlanNotFound = errors.New("no plan could be derived for the goal")

// Runner executes one analysis step. capability.Invoker is the production
// implementation.
type Runner interface {
	RunStep(ctx context.Context, def steps.Definition, inputs map[string]string) (*capability.StepResult, error)
}

// StepEvent is the outcome of one step. Err is set when the step failed;
// other steps are unaffected.
type StepEvent struct {
	Step    string
	Index   int
	Code    string
	Summary string
	Usage   capability.Usage
	Err     error
}

// Executor runs plans against a step registry.
type Executor struct {
	runner      Runner
	registry    *steps.Registry
	stepTimeout time.Duration
	maxWorkers  int
	logger      *logging.Logger
}

// NewExecutor creates an executor. stepTimeout bounds each step's model call;
// zero disables the per-step deadline. maxWorkers caps the pool; zero uses
// the computed default.
func NewExecutor(runner Runner, registry *steps.Registry, stepTimeout time.Duration, maxWorkers int) *Executor {
	return &Executor{
		runner:      runner,
		registry:    registry,
		stepTimeout: stepTimeout,
		maxWorkers:  maxWorkers,
		logger:      logging.New().WithComponent("pipeline"),
	}
}

// workerLimit sizes the pool for n steps. Steps are I/O-bound model calls so
// the pool oversubscribes CPUs, within bounds.
func (e *Executor) workerLimit(n int) int {
	limit := n + 2
	if max := runtime.NumCPU() * 2; limit > max {
		limit = max
	}
	if e.maxWorkers > 0 && limit > e.maxWorkers {
		limit = e.maxWorkers
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Execute runs every step of the plan and returns a channel of events in
// completion order. The channel is closed once all steps have reported.
// Dataset and styling snippets are retrieved once, against the goal, and
// shared by all steps.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, goal string, styleIndex, dataIndex *retrieval.Index) <-chan StepEvent {
	out := make(chan StepEvent, len(p.Steps)+1)
	if p.Empty() {
		out <- StepEvent{Step: SentinelPlanNotFound, Err: ErrPlanNotFound}
		close(out)
		return out
	}

	datasetContext := e.retrieve(dataIndex, goal, "dataset")
	styling := e.retrieve(styleIndex, goal, "styling")

	runOne := func(idx int, name string) StepEvent {
		def, err := e.registry.Get(name)
		if err != nil {
			return StepEvent{Step: name, Index: idx, Err: err}
		}

		inputs := make(map[string]string, len(def.Inputs))
		for _, field := range def.Inputs {
			switch field {
			case steps.InputDataset:
				inputs[field] = datasetContext
			case steps.InputGoal:
				inputs[field] = goal
			case steps.InputStylingIndex:
				inputs[field] = styling
			case steps.InputPlanInstructions:
				inputs[field] = p.ContextFor(idx)
			}
		}

		started := time.Now()
		result, err := e.runStep(ctx, def, inputs)
		if err != nil {
			e.logger.Warn("step failed", map[string]interface{}{
				"step":  name,
				"error": err.Error(),
			})
			return StepEvent{Step: name, Index: idx, Err: fmt.Errorf("executing %s: %w", name, err)}
		}

		e.logger.Debug("step finished", map[string]interface{}{
			"step":        name,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		return StepEvent{
			Step:    name,
			Index:   idx,
			Code:    result.Code,
			Summary: result.Summary,
			Usage:   result.Usage,
		}
	}

	// Single-step plans skip the pool.
	if len(p.Steps) == 1 {
		go func() {
			out <- runOne(0, p.Steps[0])
			close(out)
		}()
		return out
	}

	go func() {
		sem := make(chan struct{}, e.workerLimit(len(p.Steps)))
		done := make(chan struct{}, len(p.Steps))

		for i, name := range p.Steps {
			go func(idx int, step string) {
				sem <- struct{}{}
				defer func() { <-sem }()

				out <- runOne(idx, step)
				done <- struct{}{}
			}(i, name)
		}

		for range p.Steps {
			<-done
		}
		close(out)
	}()

	return out
}

// runStep invokes the runner, bounded by the step timeout. On timeout the
// call is abandoned, not cancelled: the in-flight model call runs to
// completion in its goroutine and its result is discarded.
func (e *Executor) runStep(ctx context.Context, def steps.Definition, inputs map[string]string) (*capability.StepResult, error) {
	if e.stepTimeout <= 0 {
		return e.runner.RunStep(ctx, def, inputs)
	}

	type outcome struct {
		result *capability.StepResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := e.runner.RunStep(ctx, def, inputs)
		ch <- outcome{result, err}
	}()

	timer := time.NewTimer(e.stepTimeout)
	defer timer.Stop()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("step %s timed out after %s", def.Name, e.stepTimeout)
	}
}

// retrieve queries an index, degrading to "" on failure so a retrieval error
// never blocks execution.
func (e *Executor) retrieve(idx *retrieval.Index, query, kind string) string {
	if idx == nil {
		return ""
	}
	text, err := idx.Retrieve(query)
	if err != nil {
		e.logger.Warn("snippet retrieval failed", map[string]interface{}{
			"index": kind,
			"error": err.Error(),
		})
		return ""
	}
	return text
}
