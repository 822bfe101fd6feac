// Package sandbox runs participant code against a problem's test cases.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// DefaultTimeLimit bounds a single script execution.
const DefaultTimeLimit = 5 * time.Second

var (
	// ErrUnsupportedLanguage is returned for languages without a harness.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrTimeout is reported when a script exceeds its time limit.
	ErrTimeout = errors.New("execution timed out")
)

// Request is a run of code, optionally against test cases.
type Request struct {
	Code      string            `json:"code"`
	Language  string            `json:"language,omitempty"`
	TestCases []domain.TestCase `json:"test_cases,omitempty"`
	TimeLimit time.Duration     `json:"-"`
}

// Result is the outcome of a Request. Tests is empty for a plain run.
type Result struct {
	Output     string              `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS int64               `json:"duration_ms"`
	Tests      []domain.TestResult `json:"tests,omitempty"`
	Passed     int                 `json:"passed"`
	Total      int                 `json:"total"`
}

// HasTests reports whether the result came from a test run.
func (r *Result) HasTests() bool { return r.Total > 0 }

// Output of a single script execution.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes one self-contained script in isolation.
type Runner interface {
	Run(ctx context.Context, lang Language, script string, limit time.Duration) (*Output, error)
}

// Executor drives a Runner over a request's test cases.
type Executor struct {
	runner Runner
}

// NewExecutor creates an executor on top of runner.
func NewExecutor(runner Runner) *Executor {
	return &Executor{runner: runner}
}

// Execute runs req. Script failures are reported in the result; the error
// return is reserved for problems reaching the runner at all.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	lang, err := ParseLanguage(req.Language)
	if err != nil {
		return nil, err
	}
	limit := req.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}

	if len(req.TestCases) == 0 {
		out, err := e.runner.Run(ctx, lang, wrapPlain(lang, req.Code), limit)
		if err != nil && !errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("run code: %w", err)
		}
		res := &Result{}
		if errors.Is(err, ErrTimeout) {
			res.Error = fmt.Sprintf("%s (%s)", ErrTimeout, limit)
			res.DurationMS = limit.Milliseconds()
			return res, nil
		}
		res.Output = out.Stdout
		res.Error = strings.TrimSpace(out.Stderr)
		res.DurationMS = out.Duration.Milliseconds()
		return res, nil
	}

	res := &Result{Total: len(req.TestCases), Tests: make([]domain.TestResult, 0, len(req.TestCases))}
	for i, tc := range req.TestCases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr := domain.TestResult{
			Name:     tc.Name,
			Expected: tc.Expected,
		}
		if tr.Name == "" {
			tr.Name = fmt.Sprintf("test %d", i+1)
		}

		out, err := e.runner.Run(ctx, lang, wrapTest(lang, req.Code, tc.Input), limit)
		switch {
		case errors.Is(err, ErrTimeout):
			tr.Error = fmt.Sprintf("%s (%s)", ErrTimeout, limit)
			tr.TimeMS = limit.Milliseconds()
		case err != nil:
			return nil, fmt.Errorf("run test %q: %w", tr.Name, err)
		default:
			tr.TimeMS = out.Duration.Milliseconds()
			tr.Actual, tr.Error = parseHarness(out)
			tr.Passed = tr.Error == "" && strings.TrimSpace(tr.Actual) == strings.TrimSpace(tc.Expected)
		}

		if tr.Passed {
			res.Passed++
		}
		res.DurationMS += tr.TimeMS
		res.Tests = append(res.Tests, tr)
	}
	return res, nil
}

type harnessLine struct {
	Output string  `json:"output"`
	Error  *string `json:"error"`
}

// parseHarness reads the last JSON line printed by the harness.
func parseHarness(out *Output) (actual, errMsg string) {
	lines := strings.Split(strings.TrimSpace(out.Stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	var line harnessLine
	if err := json.Unmarshal([]byte(last), &line); err != nil {
		msg := "failed to parse output"
		if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
			msg = stderr
		}
		return out.Stdout, msg
	}
	if line.Error != nil {
		return line.Output, *line.Error
	}
	return line.Output, ""
}
