package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// scriptedRunner answers each Run from a function of the script.
type scriptedRunner struct {
	scripts []string
	answer  func(script string) (*Output, error)
}

func (r *scriptedRunner) Run(_ context.Context, _ Language, script string, _ time.Duration) (*Output, error) {
	r.scripts = append(r.scripts, script)
	return r.answer(script)
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	tests := map[string]Language{
		"":           JavaScript,
		"jsx":        JavaScript,
		"TSX":        TypeScript,
		"typescript": TypeScript,
		"py":         Python,
	}
	for in, want := range tests {
		got, err := ParseLanguage(in)
		if err != nil || got != want {
			t.Errorf("ParseLanguage(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseLanguage("cobol"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestExecuteScoresTestCases(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{answer: func(script string) (*Output, error) {
		switch {
		case strings.Contains(script, `testSolution("2")`):
			return &Output{Stdout: `{"output":"4","error":null}`, Duration: 12 * time.Millisecond}, nil
		case strings.Contains(script, `testSolution("3")`):
			return &Output{Stdout: `{"output":"","error":"TypeError: boom"}`, Duration: 8 * time.Millisecond}, nil
		default:
			return &Output{Stdout: "garbage", Stderr: "SyntaxError"}, nil
		}
	}}

	res, err := NewExecutor(runner).Execute(context.Background(), Request{
		Code:     "function testSolution(x) { return x * 2 }",
		Language: "jsx",
		TestCases: []domain.TestCase{
			{Name: "doubles", Input: "2", Expected: "4"},
			{Input: "3", Expected: "6"},
			{Input: "4", Expected: "8"},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Total != 3 || res.Passed != 1 {
		t.Fatalf("passed %d of %d, want 1 of 3", res.Passed, res.Total)
	}
	if !res.Tests[0].Passed || res.Tests[0].Name != "doubles" || res.Tests[0].TimeMS != 12 {
		t.Fatalf("first test = %+v", res.Tests[0])
	}
	if res.Tests[1].Error != "TypeError: boom" || res.Tests[1].Name != "test 2" {
		t.Fatalf("second test = %+v", res.Tests[1])
	}
	if res.Tests[2].Error != "SyntaxError" {
		t.Fatalf("third test = %+v", res.Tests[2])
	}
	if res.DurationMS != 20 {
		t.Fatalf("duration = %d, want 20", res.DurationMS)
	}
	if !strings.Contains(runner.scripts[0], "function testSolution") {
		t.Fatalf("harness dropped user code:\n%s", runner.scripts[0])
	}
}

func TestExecuteTimeoutIsAFailedTest(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{answer: func(string) (*Output, error) { return nil, ErrTimeout }}
	res, err := NewExecutor(runner).Execute(context.Background(), Request{
		Code:      "while(true){}",
		TestCases: []domain.TestCase{{Input: "1", Expected: "1"}},
		TimeLimit: time.Second,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Passed != 0 || !strings.Contains(res.Tests[0].Error, "timed out") || res.Tests[0].TimeMS != 1000 {
		t.Fatalf("result = %+v", res.Tests[0])
	}
}

func TestExecutePlainRun(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{answer: func(script string) (*Output, error) {
		if script != "console.log(1)" {
			t.Errorf("plain run wrapped the script: %q", script)
		}
		return &Output{Stdout: "1\n", Duration: 30 * time.Millisecond}, nil
	}}
	res, err := NewExecutor(runner).Execute(context.Background(), Request{Code: "console.log(1)"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.HasTests() || res.Output != "1\n" || res.DurationMS != 30 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteRunnerFailure(t *testing.T) {
	t.Parallel()

	down := errors.New("docker daemon unreachable")
	runner := &scriptedRunner{answer: func(string) (*Output, error) { return nil, down }}
	if _, err := NewExecutor(runner).Execute(context.Background(), Request{Code: "x"}); !errors.Is(err, down) {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestWrapTestPython(t *testing.T) {
	t.Parallel()

	script := wrapTest(Python, "def test_solution(x):\n    return x", "hi")
	if !strings.Contains(script, "    def test_solution(x):\n        return x") {
		t.Fatalf("code not indented into try block:\n%s", script)
	}
	if !strings.Contains(script, `test_solution("hi")`) {
		t.Fatalf("input not passed:\n%s", script)
	}
}
