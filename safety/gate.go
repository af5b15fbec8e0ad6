package safety

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of a static source check
type Verdict struct {
	Allowed bool
	Reason  string
}

// Gate defines the interface for pre-execution source checks
type Gate interface {
	Check(source, language string) Verdict
}

// Gate modes accepted by New
const (
	ModePattern = "pattern"
	ModeLexical = "lexical"
	ModeNone    = "none"
)

// New creates the gate selected by mode. Extra patterns only apply to the
// pattern gate and are keyed by language.
func New(mode string, extra map[string][]string) (Gate, error) {
	switch mode {
	case ModePattern:
		return NewPatternGate(extra)
	case ModeLexical:
		return NewLexicalGate(), nil
	case ModeNone:
		return Permissive{}, nil
	default:
		return nil, fmt.Errorf("unsupported safety mode: %s", mode)
	}
}

// Permissive allows every submission
type Permissive struct{}

// Check implements Gate
func (Permissive) Check(_, _ string) Verdict {
	return Verdict{Allowed: true, Reason: "static check disabled"}
}

func allowed() Verdict {
	return Verdict{Allowed: true, Reason: "code passed static check"}
}

func rejected(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}
