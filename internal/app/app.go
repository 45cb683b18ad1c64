// Package app wires the analysis components into one service. Every
// collaborator is held by an explicit context constructed at startup; there
// is no package-level mutable state.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/capability"
	"github.com/mondweep/Auto-Analyst/internal/codegen"
	"github.com/mondweep/Auto-Analyst/internal/config"
	"github.com/mondweep/Auto-Analyst/internal/dataset"
	"github.com/mondweep/Auto-Analyst/internal/pipeline"
	"github.com/mondweep/Auto-Analyst/internal/plan"
	"github.com/mondweep/Auto-Analyst/internal/session"
	"github.com/mondweep/Auto-Analyst/internal/steps"
	"github.com/mondweep/Auto-Analyst/internal/usage"
)

// ErrUnknownAgent reports a direct-invocation request for a step that is not
// in the standalone registry.
var ErrUnknownAgent = errors.New("unknown agent")

// Capabilities is the set of model-backed calls the service makes.
// capability.Invoker is the production implementation; tests substitute
// fakes.
type Capabilities interface {
	Plan(ctx context.Context, goal, datasetContext, catalog string) (*capability.PlanResult, error)
	RunStep(ctx context.Context, def steps.Definition, inputs map[string]string) (*capability.StepResult, error)
	Combine(ctx context.Context, datasetContext string, codeList []string) (*capability.StepResult, error)
	Fix(ctx context.Context, datasetContext, faultyCode, errorMsg string) (string, capability.Usage, error)
	Edit(ctx context.Context, datasetContext, originalCode, userPrompt string) (string, capability.Usage, error)
	DescribeDataset(ctx context.Context, datasetInfo, existing string) (string, capability.Usage, error)
	NameChat(ctx context.Context, query string) (string, capability.Usage, error)
}

// InvokerFactory builds the capabilities for a model configuration. Sessions
// carry their own configuration, so the factory runs per request.
type InvokerFactory func(cfg capability.ModelConfig) (Capabilities, error)

func defaultInvokerFactory(cfg capability.ModelConfig) (Capabilities, error) {
	provider, err := cfg.NewProvider()
	if err != nil {
		return nil, err
	}
	return capability.NewInvoker(provider), nil
}

// AppContext holds the service-wide collaborators, assembled once in cmd/.
type AppContext struct {
	Config   *config.Config
	Sessions *session.Store
	Meter    *usage.Meter
	Logger   *logging.Logger
}

// Analyst is the analysis service: planning, execution, repair, and the
// session-scoped operations around them.
type Analyst struct {
	cfg        *config.Config
	sessions   *session.Store
	meter      *usage.Meter
	planner    *steps.Registry
	standalone *steps.Registry
	factory    InvokerFactory
	logger     *logging.Logger
}

// New creates the analyst service over an app context.
func New(appCtx *AppContext) *Analyst {
	return &Analyst{
		cfg:        appCtx.Config,
		sessions:   appCtx.Sessions,
		meter:      appCtx.Meter,
		planner:    steps.Planner(),
		standalone: steps.Standalone(),
		factory:    defaultInvokerFactory,
		logger:     logging.New().WithComponent("analyst"),
	}
}

// SetInvokerFactory overrides capability construction. Used in tests.
func (a *Analyst) SetInvokerFactory(f InvokerFactory) {
	a.factory = f
}

// Sessions exposes the session store for request wiring.
func (a *Analyst) Sessions() *session.Store {
	return a.sessions
}

// StepCatalog lists the planner-visible steps and their descriptions.
func (a *Analyst) StepCatalog() string {
	return a.planner.Catalog()
}

// capabilitiesFor builds the model capabilities from the session's own
// configuration.
func (a *Analyst) capabilitiesFor(sess *session.Session) (Capabilities, error) {
	caps, err := a.factory(sess.Model())
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return caps, nil
}

// smallCapabilities builds capabilities on the cheap/fast model used for
// naming and descriptions.
func (a *Analyst) smallCapabilities() (Capabilities, error) {
	return a.factory(ModelConfigFrom(a.cfg.SmallLLM))
}

// ModelConfigFrom resolves an LLM config section into a runnable model
// configuration, pulling the API key from the environment.
func ModelConfigFrom(llmCfg config.LLMConfig) capability.ModelConfig {
	envVar := llmCfg.APIKeyEnv
	if envVar == "" {
		envVar = config.DefaultAPIKeyEnv(llmCfg.Provider)
	}
	apiKey := ""
	if envVar != "" {
		apiKey = os.Getenv(envVar)
	}
	return capability.ModelConfig{
		Provider:     llmCfg.Provider,
		Model:        llmCfg.Model,
		APIKey:       apiKey,
		MaxTokens:    llmCfg.MaxTokens,
		BaseURL:      llmCfg.BaseURL,
		Thinking:     llmCfg.Thinking,
		MaxRetries:   llmCfg.MaxRetries,
		RetryBackoff: llmCfg.RetryBackoff,
	}
}

// PlanGoal derives a plan for a goal. High-confidence attribute queries
// bypass the model entirely; everything else goes through the planner call,
// degrading to an empty plan rather than failing when the model output is
// unusable.
func (a *Analyst) PlanGoal(ctx context.Context, sess *session.Session, goal string) (*plan.Plan, capability.Usage, error) {
	if plan.IsAttributeQuery(goal) {
		if p := plan.AttributePlan(goal); p != nil {
			a.logger.Debug("attribute bypass produced plan", map[string]interface{}{
				"session_id": sess.ID,
				"steps":      p.Steps,
			})
			return p, capability.Usage{}, nil
		}
	}

	caps, err := a.capabilitiesFor(sess)
	if err != nil {
		return nil, capability.Usage{}, err
	}

	_, dataIndex := sess.Indices()
	datasetContext := ""
	if dataIndex != nil {
		if text, rerr := dataIndex.Retrieve(goal); rerr == nil {
			datasetContext = text
		}
	}

	result, err := caps.Plan(ctx, goal, datasetContext, a.planner.Catalog())
	if err != nil {
		return nil, capability.Usage{}, fmt.Errorf("planning goal: %w", err)
	}
	return plan.New(result.PlanText, result.RawInstructions), result.Usage, nil
}

// AgentNames lists the steps that can be invoked directly, without a plan.
func (a *Analyst) AgentNames() []string {
	return a.standalone.Names()
}

// RunAgent invokes one standalone step directly against the session dataset.
// The goal goes to the step verbatim; no planner call is made.
func (a *Analyst) RunAgent(ctx context.Context, sessionID, agent, goal string, userID, chatID int) (string, error) {
	agent = strings.TrimSpace(agent)
	if !a.standalone.Has(agent) {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}

	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	sess.BindUser(userID, chatID)
	caps, err := a.capabilitiesFor(sess)
	if err != nil {
		return "", err
	}

	started := time.Now()
	executor := pipeline.NewExecutor(caps, a.standalone, a.cfg.StepTimeout(), a.cfg.Pipeline.MaxWorkers)
	styleIndex, dataIndex := sess.Indices()
	ev := <-executor.Execute(ctx, plan.New(agent, nil), goal, styleIndex, dataIndex)
	if ev.Err != nil {
		return "", fmt.Errorf("running %s: %w", agent, ev.Err)
	}

	content := stepContent(ev.Code, ev.Summary)
	a.track(sess, sess.Model().Model, ev.Usage, goal, content, time.Since(started), false)
	return content, nil
}

// FixCode repairs a combined script that failed at execution, rewriting only
// the faulty marker-delimited regions.
func (a *Analyst) FixCode(ctx context.Context, sessionID, code, errorOutput string) (string, error) {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	caps, err := a.capabilitiesFor(sess)
	if err != nil {
		return "", err
	}

	started := time.Now()
	fixed, err := codegen.NewRepairer(caps).Repair(ctx, code, errorOutput, a.datasetContext(sess))
	if err != nil {
		return "", fmt.Errorf("repairing code: %w", err)
	}

	a.track(sess, sess.Model().Model, capability.Usage{}, code+"\n"+errorOutput, fixed, time.Since(started), false)
	return codegen.MoveImportsToTop(fixed), nil
}

// EditCode applies a user-requested modification to existing code.
func (a *Analyst) EditCode(ctx context.Context, sessionID, code, userPrompt string) (string, error) {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	caps, err := a.capabilitiesFor(sess)
	if err != nil {
		return "", err
	}

	started := time.Now()
	edited, u, err := caps.Edit(ctx, a.datasetContext(sess), code, userPrompt)
	if err != nil {
		return "", fmt.Errorf("editing code: %w", err)
	}

	a.track(sess, sess.Model().Model, u, code+"\n"+userPrompt, edited, time.Since(started), false)
	return codegen.MoveImportsToTop(edited), nil
}

// DescribeDataset generates or enhances the session dataset's description.
func (a *Analyst) DescribeDataset(ctx context.Context, sessionID string) (string, error) {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	caps, err := a.smallCapabilities()
	if err != nil {
		return "", err
	}

	existing := ""
	if ds := sess.Dataset(); ds != nil {
		existing = ds.Description
	}

	started := time.Now()
	desc, u, err := caps.DescribeDataset(ctx, a.datasetContext(sess), existing)
	if err != nil {
		return "", fmt.Errorf("describing dataset: %w", err)
	}

	a.track(sess, a.cfg.SmallLLM.Model, u, existing, desc, time.Since(started), false)
	return desc, nil
}

// NameChat derives a short display name for a chat from its first query.
func (a *Analyst) NameChat(ctx context.Context, query string) (string, error) {
	caps, err := a.smallCapabilities()
	if err != nil {
		return "", err
	}
	name, _, err := caps.NameChat(ctx, query)
	if err != nil {
		return "", fmt.Errorf("naming chat: %w", err)
	}
	return name, nil
}

// ModelSettings is a session's model configuration as clients see it.
type ModelSettings struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key,omitempty"`
	MaxTokens int    `json:"max_tokens"`
}

// UpdateModelSettings replaces a session's model configuration. A missing
// API key falls back to the provider's conventional environment variable so
// clients can switch providers without resending credentials.
func (a *Analyst) UpdateModelSettings(sessionID string, settings ModelSettings) error {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return err
	}

	apiKey := settings.APIKey
	if apiKey == "" {
		if envVar := config.DefaultAPIKeyEnv(strings.ToLower(settings.Provider)); envVar != "" {
			apiKey = os.Getenv(envVar)
		}
	}

	m := sess.Model()
	m.Provider = settings.Provider
	m.Model = settings.Model
	m.APIKey = apiKey
	m.MaxTokens = settings.MaxTokens
	sess.SetModel(m)

	a.logger.Info("model settings updated", map[string]interface{}{
		"session_id": sessionID,
		"model":      settings.Model,
	})
	return nil
}

// CurrentModelSettings returns a session's model configuration without the
// credential.
func (a *Analyst) CurrentModelSettings(sessionID string) (ModelSettings, error) {
	sess, err := a.sessions.GetOrCreate(sessionID)
	if err != nil {
		return ModelSettings{}, err
	}
	m := sess.Model()
	return ModelSettings{
		Provider:  m.Provider,
		Model:     m.Model,
		MaxTokens: m.MaxTokens,
	}, nil
}

// ResetSession rebuilds a session from defaults, optionally keeping its
// model configuration.
func (a *Analyst) ResetSession(sessionID string, preserveModel bool) error {
	return a.sessions.Reset(sessionID, preserveModel)
}

// UpdateDataset swaps the session's dataset for a freshly loaded descriptor.
func (a *Analyst) UpdateDataset(sessionID string, desc *dataset.Descriptor) error {
	return a.sessions.UpdateDataset(sessionID, desc)
}

// datasetContext renders the session dataset's context block, or "" when no
// dataset is loaded.
func (a *Analyst) datasetContext(sess *session.Session) string {
	if ds := sess.Dataset(); ds != nil {
		return ds.Context()
	}
	return ""
}

// track submits one usage record. Token counts come from the provider when
// reported, otherwise from the meter's tokenizer over the raw text.
func (a *Analyst) track(sess *session.Session, model string, u capability.Usage, input, output string, elapsed time.Duration, streaming bool) {
	a.meter.Track(a.buildRecord(sess, model, u, input, output, elapsed, streaming))
}
