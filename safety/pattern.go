package safety

import (
	"fmt"
	"regexp"
)

// defaultPatterns is the denylist applied by PatternGate
var defaultPatterns = map[string][]string{
	"python": {
		`\bimport\s+os\b`,
		`\bimport\s+subprocess\b`,
		`\bimport\s+shutil\b`,
		`\bimport\s+socket\b`,
		`\bimport\s+ctypes\b`,
		`\bimport\s+pathlib\b`,
		`\bfrom\s+os\b`,
		`\bopen\s*\(`,
	},
	"c": {
		`#\s*include\s*<unistd\.h>`,
		`#\s*include\s*<sys/`,
		`#\s*include\s*<dlfcn\.h>`,
		`system\s*\(`,
		`popen\s*\(`,
		`fork\s*\(`,
		`exec`,
	},
	"c++": {
		`#\s*include\s*<unistd\.h>`,
		`#\s*include\s*<sys/`,
		`#\s*include\s*<dlfcn\.h>`,
		`system\s*\(`,
		`popen\s*\(`,
		`fork\s*\(`,
		`exec`,
		`#\s*include\s*<filesystem>`,
	},
}

// PatternGate rejects sources matching any regular expression registered for
// their language. Languages without rules are allowed.
type PatternGate struct {
	rules map[string][]*regexp.Regexp
}

// NewPatternGate compiles the default denylist plus the extra patterns
func NewPatternGate(extra map[string][]string) (*PatternGate, error) {
	g := &PatternGate{rules: make(map[string][]*regexp.Regexp)}

	for lang, patterns := range defaultPatterns {
		if err := g.add(lang, patterns); err != nil {
			return nil, err
		}
	}
	for lang, patterns := range extra {
		if err := g.add(normalizeLanguage(lang), patterns); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (g *PatternGate) add(lang string, patterns []string) error {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid safety pattern %q for %s: %w", p, lang, err)
		}
		g.rules[lang] = append(g.rules[lang], re)
	}
	return nil
}

// Check implements Gate
func (g *PatternGate) Check(source, language string) Verdict {
	rules, ok := g.rules[normalizeLanguage(language)]
	if !ok {
		return Verdict{Allowed: true, Reason: "language not checked"}
	}

	for _, re := range rules {
		if re.MatchString(source) {
			return rejected("blocked keyword matched: %s", re.String())
		}
	}

	return allowed()
}
