// Package capability wraps the model provider behind typed analysis calls.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/steps"
)

// ModelConfig is the per-session model configuration. Each session owns a
// copy; changing one session's settings never affects another.
type ModelConfig struct {
	Provider     string
	Model        string
	APIKey       string
	MaxTokens    int
	BaseURL      string
	Thinking     string
	MaxRetries   int
	RetryBackoff string
}

// NewProvider builds a model provider from the config. The provider name is
// inferred from the model when unset.
func (c ModelConfig) NewProvider() (llm.Provider, error) {
	providerName := c.Provider
	if providerName == "" {
		providerName = llm.InferProviderFromModel(c.Model)
	}
	if providerName == "" && c.Model == "" {
		return nil, fmt.Errorf("model not configured")
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    providerName,
		Model:       c.Model,
		APIKey:      c.APIKey,
		MaxTokens:   c.MaxTokens,
		BaseURL:     c.BaseURL,
		Thinking:    llm.ThinkingConfig{Level: llm.ThinkingLevel(c.Thinking)},
		RetryConfig: parseRetryConfig(c.MaxRetries, c.RetryBackoff),
	})
	if err != nil {
		return nil, fmt.Errorf("creating model provider: %w", err)
	}
	return provider, nil
}

// parseRetryConfig converts the config fields into the provider's retry
// settings. An unparseable backoff leaves the provider default in place.
func parseRetryConfig(maxRetries int, backoff string) llm.RetryConfig {
	cfg := llm.RetryConfig{MaxRetries: maxRetries}
	if backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			cfg.MaxBackoff = d
		}
	}
	return cfg
}

// Usage reports the token footprint of one model call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// StepResult is the outcome of one code-generating step call.
type StepResult struct {
	Code    string
	Summary string
	Usage   Usage
}

// PlanResult is the planner's raw output before plan parsing.
type PlanResult struct {
	PlanText        string
	RawInstructions string
	Usage           Usage
}

// Invoker runs analysis capabilities against a model provider.
type Invoker struct {
	provider llm.Provider
	logger   *logging.Logger
}

// NewInvoker creates an invoker over the given provider.
func NewInvoker(provider llm.Provider) *Invoker {
	return &Invoker{
		provider: provider,
		logger:   logging.New().WithComponent("capability"),
	}
}

// chat issues one system+user exchange and returns the response.
func (inv *Invoker) chat(ctx context.Context, system, user string) (*llm.ChatResponse, error) {
	resp, err := inv.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func usageOf(resp *llm.ChatResponse) Usage {
	return Usage{
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
}

// RunStep executes one analysis step: the step prompt plus the bound input
// fields, parsed into code and summary sections.
func (inv *Invoker) RunStep(ctx context.Context, def steps.Definition, inputs map[string]string) (*StepResult, error) {
	var b strings.Builder
	for _, field := range def.Inputs {
		fmt.Fprintf(&b, "%s:\n%s\n\n", field, inputs[field])
	}
	b.WriteString("Respond with exactly two sections:\nCode:\n<python code>\n\nSummary:\n<summary>\n")

	resp, err := inv.chat(ctx, def.Prompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", def.Name, err)
	}

	code, summary := parseCodeSummary(resp.Content)
	if code == "" {
		return nil, fmt.Errorf("step %s returned no code section", def.Name)
	}

	inv.logger.Debug("step completed", map[string]interface{}{
		"step":          def.Name,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})

	return &StepResult{Code: code, Summary: summary, Usage: usageOf(resp)}, nil
}

// Plan asks the planner for a step sequence and per-step instructions.
func (inv *Invoker) Plan(ctx context.Context, goal, datasetContext, catalog string) (*PlanResult, error) {
	user := fmt.Sprintf("dataset:\n%s\n\nAgent_desc:\n%s\n\ngoal:\n%s\n\n"+
		"Respond with a line starting with \"Plan:\" listing the steps joined by \"->\", "+
		"followed by a section starting with \"Plan Instructions:\" containing a JSON object "+
		"keyed by step name with create, use, and instruction fields.\n",
		datasetContext, catalog, goal)

	resp, err := inv.chat(ctx, plannerPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	planText, rawInstr := parsePlanResponse(resp.Content)
	return &PlanResult{PlanText: planText, RawInstructions: rawInstr, Usage: usageOf(resp)}, nil
}

// Combine merges per-step code fragments into one refined script.
func (inv *Invoker) Combine(ctx context.Context, datasetContext string, codeList []string) (*StepResult, error) {
	user := fmt.Sprintf("dataset:\n%s\n\nagent_code_list:\n%s\n\n"+
		"Respond with exactly two sections:\nCode:\n<refined complete code>\n\nSummary:\n<summary>\n",
		datasetContext, strings.Join(codeList, "\n\n"))

	resp, err := inv.chat(ctx, combinerPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("code combiner: %w", err)
	}

	code, summary := parseCodeSummary(resp.Content)
	return &StepResult{Code: code, Summary: summary, Usage: usageOf(resp)}, nil
}

// Fix repairs a faulty code fragment given the runtime error it produced.
// The response is the corrected code only.
func (inv *Invoker) Fix(ctx context.Context, datasetContext, faultyCode, errorMsg string) (string, Usage, error) {
	user := fmt.Sprintf("dataset_context:\n%s\n\nfaulty_code:\n%s\n\nerror:\n%s\n",
		datasetContext, faultyCode, errorMsg)

	resp, err := inv.chat(ctx, fixerPrompt, user)
	if err != nil {
		return "", Usage{}, fmt.Errorf("code fix: %w", err)
	}
	return stripCodeFence(resp.Content), usageOf(resp), nil
}

// Edit applies a user-requested modification to existing code.
func (inv *Invoker) Edit(ctx context.Context, datasetContext, originalCode, userPrompt string) (string, Usage, error) {
	user := fmt.Sprintf("dataset_context:\n%s\n\noriginal_code:\n%s\n\nuser_prompt:\n%s\n",
		datasetContext, originalCode, userPrompt)

	resp, err := inv.chat(ctx, editorPrompt, user)
	if err != nil {
		return "", Usage{}, fmt.Errorf("code edit: %w", err)
	}
	return stripCodeFence(resp.Content), usageOf(resp), nil
}

// DescribeDataset generates a dataset description with technical guidance,
// optionally enhancing an existing one.
func (inv *Invoker) DescribeDataset(ctx context.Context, datasetInfo, existing string) (string, Usage, error) {
	user := fmt.Sprintf("dataset:\n%s\n\nexisting_description:\n%s\n", datasetInfo, existing)

	resp, err := inv.chat(ctx, describePrompt, user)
	if err != nil {
		return "", Usage{}, fmt.Errorf("dataset description: %w", err)
	}
	return strings.TrimSpace(resp.Content), usageOf(resp), nil
}

// NameChat returns a short display name for a chat, derived from its first query.
func (inv *Invoker) NameChat(ctx context.Context, query string) (string, Usage, error) {
	resp, err := inv.chat(ctx, chatNamePrompt, "query:\n"+query)
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat naming: %w", err)
	}
	name := strings.TrimSpace(resp.Content)
	name = strings.Trim(name, `"`)
	return name, usageOf(resp), nil
}
