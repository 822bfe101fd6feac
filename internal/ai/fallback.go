package ai

import "github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"

var fallbackHints = [...]HintResponse{
	domain.HintNudge: {
		Hint: "You're on the right track. Re-read the requirements and pick the smallest piece you can make work first.",
	},
	domain.HintGuidance: {
		Hint: "Think about component decomposition. Which pieces of this UI hold state, and which only render what they are given?",
	},
	domain.HintPattern: {
		Hint:        "A controlled input keeps its value in state and updates it from onChange.",
		CodeSnippet: "const [value, setValue] = useState('');\n<input value={value} onChange={e => setValue(e.target.value)} />",
	},
	domain.HintStructure: {
		Hint: "Sketch the component tree before writing logic: a container that owns state, and presentational children that receive props and callbacks.",
		CodeSnippet: "function App() {\n  // state lives here\n  return (\n    <Layout>\n      {/* child components receive props */}\n    </Layout>\n  );\n}",
	},
}

// FallbackHint returns canned hint text for a level. Out-of-range levels
// get the nudge.
func FallbackHint(level domain.HintLevel) HintResponse {
	if level < domain.HintNudge || level > domain.MaxHintLevel {
		level = domain.HintNudge
	}
	return fallbackHints[level]
}
