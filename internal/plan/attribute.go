package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Lexical bypass for narrow attribute queries. Queries like "how many green
// vehicles do we have" don't need a model round-trip; a one-step
// visualization plan with a precise filter instruction answers them.

var attributePatterns = []*regexp.Regexp{
	// Color-based queries
	regexp.MustCompile(`how many (green|red|blue|black|white|silver|gray|yellow|orange|purple|pink|brown) vehicles`),
	regexp.MustCompile(`count of (green|red|blue|black|white|silver|gray|yellow|orange|purple|pink|brown) (cars|vehicles)`),
	regexp.MustCompile(`show me (green|red|blue|black|white|silver|gray|yellow|orange|purple|pink|brown) (cars|vehicles)`),

	// Price-based queries
	regexp.MustCompile(`how many (cars|vehicles) (cost|are|priced) (less|more|under|over) than \$?\d+`),
	regexp.MustCompile(`vehicles (under|over) \$\d+`),

	// Make-based queries
	regexp.MustCompile(`how many (toyota|honda|ford|bmw|mercedes|audi|tesla|hyundai|kia|nissan|chevrolet) (cars|vehicles)`),
	regexp.MustCompile(`count of (toyota|honda|ford|bmw|mercedes|audi|tesla|hyundai|kia|nissan|chevrolet)`),

	// Condition-based queries
	regexp.MustCompile(`how many (excellent|good|fair|poor) condition (cars|vehicles)`),

	// Year-based queries
	regexp.MustCompile(`how many (cars|vehicles) from (year|\d{4})`),
	regexp.MustCompile(`how many (cars|vehicles) (made|manufactured) in (\d{4})`),
}

var (
	colorRe     = regexp.MustCompile(`how many (\w+) vehicles|show me (\w+) vehicles|count of (\w+) (vehicles|cars)`)
	makeRe      = regexp.MustCompile(`how many (\w+) (vehicles|cars)`)
	conditionRe = regexp.MustCompile(`(excellent|good|fair|poor) condition`)
	yearRe      = regexp.MustCompile(`from (\d{4})|made in (\d{4})|manufactured in (\d{4})`)
	priceRe     = regexp.MustCompile(`(under|over) \$?(\d+)`)
)

var knownColors = map[string]bool{
	"green": true, "red": true, "blue": true, "black": true, "white": true,
	"silver": true, "gray": true, "yellow": true, "orange": true,
	"purple": true, "pink": true, "brown": true,
}

var knownMakes = map[string]bool{
	"toyota": true, "honda": true, "ford": true, "bmw": true, "mercedes": true,
	"audi": true, "tesla": true, "hyundai": true, "kia": true,
	"nissan": true, "chevrolet": true,
}

// vizStep is the single step attribute plans dispatch to.
const vizStep = "planner_data_viz_agent"

// IsAttributeQuery reports whether a query matches one of the narrow
// attribute filter patterns the bypass handles.
func IsAttributeQuery(query string) bool {
	q := strings.ToLower(query)
	for _, re := range attributePatterns {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}

// AttributePlan builds a one-step visualization plan for an attribute query.
// Returns nil when no attribute and value can be extracted; the caller falls
// back to the model planner.
func AttributePlan(query string) *Plan {
	q := strings.ToLower(query)

	var attrType, attrValue string

	if m := colorRe.FindStringSubmatch(q); m != nil {
		for _, group := range m[1:] {
			if group != "" && group != "vehicles" && group != "cars" && knownColors[group] {
				attrType, attrValue = "color", group
				break
			}
		}
	}

	if attrType == "" {
		if m := makeRe.FindStringSubmatch(q); m != nil && knownMakes[m[1]] {
			attrType, attrValue = "make", m[1]
		}
	}

	if attrType == "" {
		if m := conditionRe.FindStringSubmatch(q); m != nil {
			attrType, attrValue = "condition", m[1]
		}
	}

	if attrType == "" {
		if m := yearRe.FindStringSubmatch(q); m != nil {
			for _, group := range m[1:] {
				if group != "" {
					attrType, attrValue = "year", group
					break
				}
			}
		}
	}

	// Price carries a comparison operator, so it builds its own instruction.
	if attrType == "" {
		if m := priceRe.FindStringSubmatch(q); m != nil {
			op := "<"
			if m[1] == "over" {
				op = ">"
			}
			return singleStepPlan(
				"price_filtered_chart: PlotlyFigure - chart showing vehicles filtered by price",
				"df: DataFrame - the vehicles dataset with price information",
				fmt.Sprintf("Filter the dataset for vehicles where price %s %s and create a visualization "+
					"showing the count and percentage of total. Make sure to explicitly state the count "+
					"in the chart title.", op, m[2]),
			)
		}
	}

	if attrType == "" || attrValue == "" {
		return nil
	}

	return singleStepPlan(
		fmt.Sprintf("%s_filtered_chart: PlotlyFigure - chart showing count of vehicles filtered by %s", attrType, attrType),
		"df: DataFrame - the vehicles dataset with attribute information",
		fmt.Sprintf("Filter the dataset to count vehicles where %s='%s' (case-insensitive) and create "+
			"a visualization showing the count and percentage of total. Make sure to explicitly state "+
			"the count in the chart title and use case-insensitive matching by converting values to "+
			"lowercase before comparing.", attrType, attrValue),
	)
}

func singleStepPlan(create, use, instruction string) *Plan {
	return &Plan{
		Steps: []string{vizStep},
		Instructions: map[string]StepInstruction{
			vizStep: {
				Create:      []string{create},
				Use:         []string{use},
				Instruction: instruction,
			},
		},
		RawPlan: vizStep,
	}
}
