package domain

// Problem is the prompt a participant builds against. It is passed to the
// hint and evaluation services as context.
type Problem struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Difficulty   string     `json:"difficulty,omitempty"`
	Requirements []string   `json:"requirements,omitempty"`
	StarterCode  string     `json:"starter_code,omitempty"`
	TestCases    []TestCase `json:"test_cases,omitempty"`
}

// TestCase is one input/expected-output pair for the sandbox.
type TestCase struct {
	Name     string `json:"name,omitempty"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}
