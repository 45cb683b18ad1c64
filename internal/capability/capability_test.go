package capability

import (
	"context"
	"errors"
	"strings"
	"time"
	"testing"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/mondweep/Auto-Analyst/internal/steps"
)

func TestRunStepParsesCodeAndSummary(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Content:      "Code:\ndf = df.dropna()\n\nSummary:\nDropped missing rows.",
			Model:        "gpt-4o-mini",
			InputTokens:  120,
			OutputTokens: 30,
		}, nil
	}

	inv := NewInvoker(provider)
	def := steps.Definition{
		Name:   "preprocessing_agent",
		Inputs: []string{steps.InputDataset, steps.InputGoal},
		Prompt: "You clean data.",
	}

	result, err := inv.RunStep(context.Background(), def, map[string]string{
		steps.InputDataset: "Dataset context: 10 rows",
		steps.InputGoal:    "clean the data",
	})
	if err != nil {
		t.Fatalf("RunStep failed: %v", err)
	}
	if result.Code != "df = df.dropna()" {
		t.Errorf("unexpected code: %q", result.Code)
	}
	if result.Summary != "Dropped missing rows." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if result.Usage.InputTokens != 120 || result.Usage.OutputTokens != 30 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
}

func TestRunStepBindsInputsInOrder(t *testing.T) {
	var captured string
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		for _, msg := range req.Messages {
			if msg.Role == "user" {
				captured = msg.Content
			}
		}
		return &llm.ChatResponse{Content: "Code:\nx = 1\n\nSummary:\nok"}, nil
	}

	inv := NewInvoker(provider)
	def := steps.Definition{
		Name:   "viz",
		Inputs: []string{steps.InputGoal, steps.InputDataset, steps.InputStylingIndex},
		Prompt: "p",
	}

	_, err := inv.RunStep(context.Background(), def, map[string]string{
		steps.InputGoal:         "plot prices",
		steps.InputDataset:      "ctx",
		steps.InputStylingIndex: "use line charts",
	})
	if err != nil {
		t.Fatalf("RunStep failed: %v", err)
	}

	goalIdx := strings.Index(captured, "goal:")
	dsIdx := strings.Index(captured, "dataset:")
	styleIdx := strings.Index(captured, "styling_index:")
	if goalIdx < 0 || dsIdx < 0 || styleIdx < 0 {
		t.Fatalf("missing input fields in request: %s", captured)
	}
	if !(goalIdx < dsIdx && dsIdx < styleIdx) {
		t.Errorf("inputs should render in declared order, got: %s", captured)
	}
}

func TestRunStepNoCodeIsError(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "I cannot produce code for this."}, nil
	}

	inv := NewInvoker(provider)
	def := steps.Definition{Name: "stepA", Inputs: []string{steps.InputGoal}, Prompt: "p"}

	if _, err := inv.RunStep(context.Background(), def, map[string]string{steps.InputGoal: "g"}); err == nil {
		t.Error("expected error when the response has no code section")
	}
}

func TestRunStepProviderError(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, errors.New("rate limited")
	}

	inv := NewInvoker(provider)
	def := steps.Definition{Name: "stepA", Inputs: []string{steps.InputGoal}, Prompt: "p"}

	_, err := inv.RunStep(context.Background(), def, map[string]string{steps.InputGoal: "g"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected wrapped provider error, got: %v", err)
	}
}

func TestPlanCall(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Content: "Plan: planner_preprocessing_agent -> planner_data_viz_agent\n" +
				"Plan Instructions: {\"planner_preprocessing_agent\": {\"instruction\": \"clean\"}}",
			Model: "gpt-4o-mini",
		}, nil
	}

	inv := NewInvoker(provider)
	result, err := inv.Plan(context.Background(), "show price trends", "Dataset context", "catalog")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !strings.Contains(result.PlanText, "planner_preprocessing_agent") {
		t.Errorf("unexpected plan text: %q", result.PlanText)
	}
	if !strings.Contains(result.RawInstructions, "clean") {
		t.Errorf("unexpected instructions: %q", result.RawInstructions)
	}
}

func TestFixStripsFence(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "```python\ndf['price'] = df['price'].fillna(0)\n```"}, nil
	}

	inv := NewInvoker(provider)
	fixed, _, err := inv.Fix(context.Background(), "ctx", "df['price'].fllna(0)", "AttributeError: fllna")
	if err != nil {
		t.Fatalf("Fix failed: %v", err)
	}
	if fixed != "df['price'] = df['price'].fillna(0)" {
		t.Errorf("fence should be stripped, got: %q", fixed)
	}
}

func TestNameChatTrimsQuotes(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "\"Vehicle Price Analysis\"\n"}, nil
	}

	inv := NewInvoker(provider)
	name, _, err := inv.NameChat(context.Background(), "what drives vehicle prices?")
	if err != nil {
		t.Fatalf("NameChat failed: %v", err)
	}
	if name != "Vehicle Price Analysis" {
		t.Errorf("unexpected name: %q", name)
	}
}

func TestParseRetryConfig(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		backoff    string
		want       llm.RetryConfig
	}{
		{"both set", 3, "30s", llm.RetryConfig{MaxRetries: 3, MaxBackoff: 30 * time.Second}},
		{"empty backoff", 5, "", llm.RetryConfig{MaxRetries: 5}},
		{"invalid backoff ignored", 2, "not-a-duration", llm.RetryConfig{MaxRetries: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRetryConfig(tt.maxRetries, tt.backoff)
			if got != tt.want {
				t.Errorf("parseRetryConfig(%d, %q) = %+v, want %+v", tt.maxRetries, tt.backoff, got, tt.want)
			}
		})
	}
}
