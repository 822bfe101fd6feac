package domain

// Rubric categories. Each is scored out of CategoryMax.
const (
	CategoryArchitecture  = "Component Architecture"
	CategoryPatterns      = "React Patterns & Hooks"
	CategoryCodeQuality   = "Code Quality"
	CategoryFunctionality = "Functionality & Requirements"
	CategoryUI            = "UI & Accessibility"

	CategoryMax = 20
	MaxScore    = 100
)

// Categories lists the rubric in display order.
var Categories = []string{
	CategoryArchitecture,
	CategoryPatterns,
	CategoryCodeQuality,
	CategoryFunctionality,
	CategoryUI,
}

// CategoryScore is one weighted line of the rubric.
type CategoryScore struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Max      int    `json:"max"`
	Feedback string `json:"feedback,omitempty"`
}

// Evaluation is the result of grading a submission. It is not persisted;
// only OverallScore is applied to the session.
type Evaluation struct {
	OverallScore      int             `json:"overall_score"`
	Categories        []CategoryScore `json:"categories"`
	Summary           string          `json:"summary,omitempty"`
	Strengths         []string        `json:"strengths,omitempty"`
	Improvements      []string        `json:"improvements,omitempty"`
	RequirementsMet   []string        `json:"requirements_met"`
	RequirementsUnmet []string        `json:"requirements_unmet"`
	IsComplete        bool            `json:"is_complete"`
}

// Normalize clamps category and overall scores into range. When hasOverall
// is false the overall score is the category sum.
func (e *Evaluation) Normalize(hasOverall bool) {
	sum := 0
	for i := range e.Categories {
		c := &e.Categories[i]
		if c.Max <= 0 {
			c.Max = CategoryMax
		}
		c.Score = clamp(c.Score, 0, c.Max)
		sum += c.Score
	}
	if !hasOverall {
		e.OverallScore = sum
	}
	e.OverallScore = clamp(e.OverallScore, 0, MaxScore)
	if e.RequirementsMet == nil {
		e.RequirementsMet = []string{}
	}
	if e.RequirementsUnmet == nil {
		e.RequirementsUnmet = []string{}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
