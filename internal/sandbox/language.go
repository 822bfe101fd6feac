package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Language is a supported script language.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Python     Language = "python"
)

// ParseLanguage maps editor language ids onto a Language. React sources
// written as jsx/tsx run under their base language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "javascript", "js", "jsx":
		return JavaScript, nil
	case "typescript", "ts", "tsx":
		return TypeScript, nil
	case "python", "py":
		return Python, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, s)
	}
}

// command returns the interpreter invocation for a script file.
func (l Language) command(path string) []string {
	switch l {
	case TypeScript:
		return []string{"npx", "--yes", "tsx", path}
	case Python:
		return []string{"python3", path}
	default:
		return []string{"node", path}
	}
}

// extension returns the script file suffix.
func (l Language) extension() string {
	switch l {
	case TypeScript:
		return ".ts"
	case Python:
		return ".py"
	default:
		return ".js"
	}
}

const jsHarness = `async function __run() {
  try {
%s
    const result = await testSolution(%s);
    console.log(JSON.stringify({ output: String(result), error: null }));
  } catch (e) {
    console.log(JSON.stringify({ output: "", error: String(e) }));
  }
}
__run();
`

const pyHarness = `import json, traceback
try:
%s
    result = test_solution(%s)
    print(json.dumps({"output": str(result), "error": None}))
except Exception as e:
    print(json.dumps({"output": "", "error": str(e) + "\n" + traceback.format_exc()}))
`

// wrapTest embeds code in a harness that calls the solution entry point
// with input and prints one JSON result line.
func wrapTest(lang Language, code, input string) string {
	arg, _ := json.Marshal(input)
	if lang == Python {
		return fmt.Sprintf(pyHarness, indent(code, "    "), arg)
	}
	return fmt.Sprintf(jsHarness, indent(code, "    "), arg)
}

// wrapPlain returns code unchanged for a free run.
func wrapPlain(_ Language, code string) string {
	return code
}

func indent(code, prefix string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
