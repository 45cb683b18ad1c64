// Package steps defines the catalog of analysis steps the pipeline can run.
// The catalog is fixed at compile time; the planner chooses from it but can
// never invent a step that is not registered here.
package steps

import (
	"fmt"
	"sort"
	"strings"
)

// Input field names a step may declare. The pipeline binds values to these
// names when building a step invocation.
const (
	InputDataset          = "dataset"
	InputGoal             = "goal"
	InputPlanInstructions = "plan_instructions"
	InputStylingIndex     = "styling_index"
)

// Definition describes one analysis step: its identity, the inputs it
// consumes, and the prompt that drives its code generation.
type Definition struct {
	Name        string
	Description string
	Inputs      []string
	Prompt      string
}

// Uses reports whether the step declares the named input field.
func (d Definition) Uses(field string) bool {
	for _, in := range d.Inputs {
		if in == field {
			return true
		}
	}
	return false
}

// Registry holds a fixed set of step definitions keyed by name.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; !dup {
			r.order = append(r.order, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r
}

// Get returns the definition for a step name.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[strings.TrimSpace(name)]
	if !ok {
		return Definition{}, fmt.Errorf("unknown step: %s", name)
	}
	return d, nil
}

// Has reports whether the registry contains the named step.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[strings.TrimSpace(name)]
	return ok
}

// Names returns the registered step names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Catalog renders the step descriptions the planner is shown, one line per
// step, in a stable order.
func (r *Registry) Catalog() string {
	names := r.Names()
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, r.defs[name].Description)
	}
	return b.String()
}

// Description returns the step description, or a placeholder for unknown names.
func (r *Registry) Description(name string) string {
	if d, ok := r.defs[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d.Description
	}
	return "No description available for this step"
}

// Planner returns the registry of planner-orchestrated steps. These carry
// plan instructions and hand variables to one another.
func Planner() *Registry {
	return NewRegistry(
		Definition{
			Name: "planner_preprocessing_agent",
			Description: "Cleans and prepares a DataFrame using Pandas and NumPy—" +
				"handles missing values, detects column types, and converts date strings to datetime. " +
				"Outputs a cleaned DataFrame for the planner_statistical_analytics_agent.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: preprocessingPrompt,
		},
		Definition{
			Name: "planner_statistical_analytics_agent",
			Description: "Takes the cleaned DataFrame from preprocessing, performs statistical analysis " +
				"(e.g., regression, seasonal decomposition) using statsmodels with proper handling " +
				"of categorical data and remaining missing values. " +
				"Produces summary statistics and model diagnostics for the planner_sk_learn_agent.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: statisticalPrompt,
		},
		Definition{
			Name: "planner_sk_learn_agent",
			Description: "Receives summary statistics and the cleaned data, trains and evaluates machine " +
				"learning models using scikit-learn (classification, regression, clustering), " +
				"and generates performance metrics and feature importance. " +
				"Passes the trained models and evaluation results to the planner_data_viz_agent.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: mlPrompt,
		},
		Definition{
			Name: "planner_data_viz_agent",
			Description: "Consumes trained models and evaluation results to create interactive visualizations " +
				"with Plotly—selects the best chart type, applies styling, and annotates insights. " +
				"Delivers ready-to-share figures that communicate model performance and key findings.",
			Inputs: []string{InputGoal, InputDataset, InputStylingIndex, InputPlanInstructions},
			Prompt: vizPrompt,
		},
	)
}

// Standalone returns the registry of directly-invokable steps, used when a
// query names a step explicitly rather than going through the planner.
func Standalone() *Registry {
	return NewRegistry(
		Definition{
			Name: "preprocessing_agent",
			Description: "Cleans and prepares a DataFrame using Pandas and NumPy—handles missing values, " +
				"detects column types, and converts date strings to datetime.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: preprocessingPrompt,
		},
		Definition{
			Name: "statistical_analytics_agent",
			Description: "Performs statistical analysis (e.g., regression, seasonal decomposition) using " +
				"statsmodels, with proper handling of categorical data and missing values.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: statisticalPrompt,
		},
		Definition{
			Name: "sk_learn_agent",
			Description: "Trains and evaluates machine learning models using scikit-learn, including " +
				"classification, regression, and clustering with feature importance insights.",
			Inputs: []string{InputDataset, InputGoal, InputPlanInstructions},
			Prompt: mlPrompt,
		},
		Definition{
			Name: "data_viz_agent",
			Description: "Generates interactive visualizations with Plotly, selecting the best chart type " +
				"to reveal trends, comparisons, and insights based on the analysis goal.",
			Inputs: []string{InputGoal, InputDataset, InputStylingIndex},
			Prompt: vizStandalonePrompt,
		},
	)
}
