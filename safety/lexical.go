package safety

import (
	"strings"
	"text/scanner"
	"unicode"
)

var (
	bannedPythonModules = map[string]bool{
		"os": true, "subprocess": true, "shutil": true,
		"socket": true, "ctypes": true, "pathlib": true,
	}
	bannedPythonCalls = map[string]bool{
		"open": true, "__import__": true,
	}

	bannedHeaders = map[string]bool{
		"unistd.h": true, "dlfcn.h": true,
	}
	bannedCxxHeaders = map[string]bool{
		"filesystem": true,
	}
	bannedCalls = map[string]bool{
		"system": true, "popen": true, "fork": true, "vfork": true,
		"execl": true, "execlp": true, "execle": true, "execv": true,
		"execve": true, "execvp": true, "execvpe": true,
	}
)

// LexicalGate checks the token stream of a source instead of its raw text
type LexicalGate struct{}

// NewLexicalGate creates a LexicalGate
func NewLexicalGate() *LexicalGate {
	return &LexicalGate{}
}

// Check implements Gate
func (*LexicalGate) Check(source, language string) Verdict {
	switch lang := normalizeLanguage(language); lang {
	case "python":
		return checkPython(pythonTokens(source))
	case "c", "c++":
		return checkC(cTokens(source), lang == "c++")
	default:
		return Verdict{Allowed: true, Reason: "language not checked"}
	}
}

func cTokens(source string) []string {
	var s scanner.Scanner
	s.Init(strings.NewReader(source))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanChars | scanner.ScanStrings | scanner.ScanComments | scanner.SkipComments
	s.Error = func(*scanner.Scanner, string) {}

	var tokens []string
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		tokens = append(tokens, s.TokenText())
	}
	return tokens
}

func checkC(tokens []string, cxx bool) Verdict {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok == "#" && i+1 < len(tokens) && tokens[i+1] == "include" {
			header, next := includedHeader(tokens, i+2)
			if bannedHeaders[header] || strings.HasPrefix(header, "sys/") || (cxx && bannedCxxHeaders[header]) {
				return rejected("blocked header: %s", header)
			}
			i = next - 1
			continue
		}

		if bannedCalls[tok] && i+1 < len(tokens) && tokens[i+1] == "(" {
			return rejected("blocked call: %s", tok)
		}
	}
	return allowed()
}

// includedHeader reassembles the header name following #include and returns
// the index after it.
func includedHeader(tokens []string, i int) (string, int) {
	if i >= len(tokens) {
		return "", i
	}
	if strings.HasPrefix(tokens[i], `"`) {
		return strings.Trim(tokens[i], `"`), i + 1
	}
	if tokens[i] != "<" {
		return "", i
	}

	var b strings.Builder
	for i++; i < len(tokens) && tokens[i] != ">"; i++ {
		b.WriteString(tokens[i])
	}
	return b.String(), i + 1
}

// pythonTokens splits a Python source into identifiers and punctuation.
// Comments and string literals are dropped; line ends become ";".
//
//nolint:gocyclo // Single-pass scanner
func pythonTokens(source string) []string {
	src := []rune(source)
	var tokens []string

	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case r == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case r == '\n':
			tokens = append(tokens, ";")
			i++
		case r == '\'' || r == '"':
			i = skipPythonString(src, i)
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) && (src[i] == '_' || unicode.IsLetter(src[i]) || unicode.IsDigit(src[i])) {
				i++
			}
			tokens = append(tokens, string(src[start:i]))
		case unicode.IsDigit(r):
			for i < len(src) && (unicode.IsDigit(src[i]) || unicode.IsLetter(src[i]) || src[i] == '.') {
				i++
			}
		case unicode.IsSpace(r):
			i++
		default:
			tokens = append(tokens, string(r))
			i++
		}
	}
	return tokens
}

func skipPythonString(src []rune, i int) int {
	quote := src[i]
	triple := i+2 < len(src) && src[i+1] == quote && src[i+2] == quote
	if triple {
		i += 3
	} else {
		i++
	}

	for i < len(src) {
		switch {
		case src[i] == '\\':
			i += 2
		case triple && src[i] == quote && i+2 < len(src) && src[i+1] == quote && src[i+2] == quote:
			return i + 3
		case !triple && (src[i] == quote || src[i] == '\n'):
			return i + 1
		default:
			i++
		}
	}
	return len(src)
}

//nolint:gocyclo // Statement-level dispatch
func checkPython(tokens []string) Verdict {
	for i := 0; i < len(tokens); i++ {
		switch tok := tokens[i]; {
		case tok == "from":
			if i+1 < len(tokens) && bannedPythonModules[tokens[i+1]] {
				return rejected("blocked module: %s", tokens[i+1])
			}
			for i < len(tokens) && tokens[i] != ";" {
				i++
			}
		case tok == "import":
			for i++; i < len(tokens) && tokens[i] != ";"; i++ {
				if bannedPythonModules[tokens[i]] && (tokens[i-1] == "import" || tokens[i-1] == ",") {
					return rejected("blocked module: %s", tokens[i])
				}
			}
		case bannedPythonCalls[tok]:
			if i+1 < len(tokens) && tokens[i+1] == "(" && (i == 0 || tokens[i-1] != "def") {
				return rejected("blocked call: %s", tok)
			}
		}
	}
	return allowed()
}
