package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Language identifies a supported source language
type Language string

// Supported languages
const (
	Python Language = "python"
	C      Language = "c"
	CPP    Language = "c++"
)

// ErrUnsupportedLanguage is returned when no profile is registered for a language
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Placeholders recognized in command templates
const (
	SourcePlaceholder = "{source}"
	BinaryPlaceholder = "{binary}"
)

const binaryFileName = "main"

var languageAliases = map[string]Language{
	"python":  Python,
	"python3": Python,
	"py":      Python,
	"c":       C,
	"c++":     CPP,
	"cpp":     CPP,
	"cxx":     CPP,
}

// ParseLanguage normalizes a language name, accepting common aliases
func ParseLanguage(s string) (Language, error) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
	return lang, nil
}

// Profile describes how one language is compiled and run inside a session
type Profile struct {
	Language    Language
	Extension   string
	SourceFile  string
	BinaryFile  string
	CompileArgs []string
	RunArgs     []string
}

// Compiled reports whether the language has a compile stage
func (p Profile) Compiled() bool {
	return len(p.CompileArgs) > 0
}

func (p Profile) clone() Profile {
	p.CompileArgs = append([]string(nil), p.CompileArgs...)
	p.RunArgs = append([]string(nil), p.RunArgs...)
	return p
}

// LanguageTemplate holds the compile and run command templates of a language
type LanguageTemplate struct {
	CompileCmd string
	RunCmd     string
}

var extensions = map[Language]string{
	Python: "py",
	C:      "c",
	CPP:    "cpp",
}

// DefaultTemplates returns the built-in command templates
func DefaultTemplates() map[Language]LanguageTemplate {
	return map[Language]LanguageTemplate{
		Python: {RunCmd: "python3 {source}"},
		C:      {CompileCmd: "gcc {source} -o {binary}", RunCmd: "./{binary}"},
		CPP:    {CompileCmd: "g++ {source} -o {binary}", RunCmd: "./{binary}"},
	}
}

// Profiles is an immutable lookup table of language profiles
type Profiles struct {
	byLang map[Language]Profile
}

// NewProfiles builds the profile table. Templates override the defaults for
// the languages they name; unknown language keys are rejected.
func NewProfiles(templates map[string]LanguageTemplate) (*Profiles, error) {
	merged := DefaultTemplates()
	for name, tmpl := range templates {
		lang, err := ParseLanguage(name)
		if err != nil {
			return nil, err
		}
		merged[lang] = tmpl
	}

	p := &Profiles{byLang: make(map[Language]Profile, len(merged))}
	for lang, tmpl := range merged {
		profile, err := buildProfile(lang, tmpl)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", lang, err)
		}
		p.byLang[lang] = profile
	}

	return p, nil
}

// DefaultProfiles returns the table built from the default templates
func DefaultProfiles() *Profiles {
	p, err := NewProfiles(nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup returns a copy of the profile registered for lang
func (p *Profiles) Lookup(lang Language) (Profile, bool) {
	profile, ok := p.byLang[lang]
	if !ok {
		return Profile{}, false
	}
	return profile.clone(), true
}

// Languages returns the registered languages in sorted order
func (p *Profiles) Languages() []Language {
	langs := make([]Language, 0, len(p.byLang))
	for lang := range p.byLang {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

func buildProfile(lang Language, tmpl LanguageTemplate) (Profile, error) {
	ext := extensions[lang]
	profile := Profile{
		Language:   lang,
		Extension:  ext,
		SourceFile: "main." + ext,
	}

	if strings.TrimSpace(tmpl.CompileCmd) != "" {
		profile.BinaryFile = binaryFileName
		args, err := expandTemplate(tmpl.CompileCmd, profile)
		if err != nil {
			return Profile{}, fmt.Errorf("compile command: %w", err)
		}
		profile.CompileArgs = args
	}

	args, err := expandTemplate(tmpl.RunCmd, profile)
	if err != nil {
		return Profile{}, fmt.Errorf("run command: %w", err)
	}
	if len(args) == 0 {
		return Profile{}, fmt.Errorf("run command is empty")
	}
	profile.RunArgs = args

	return profile, nil
}

// expandTemplate splits first and substitutes afterwards, so a file name can
// never introduce extra arguments.
func expandTemplate(tmpl string, profile Profile) ([]string, error) {
	tokens, err := shlex.Split(tmpl)
	if err != nil {
		return nil, err
	}

	replacer := strings.NewReplacer(
		SourcePlaceholder, profile.SourceFile,
		BinaryPlaceholder, profile.BinaryFile,
	)
	for i, tok := range tokens {
		tokens[i] = replacer.Replace(tok)
	}
	return tokens, nil
}
