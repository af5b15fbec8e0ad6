// Package safety provides the static source check run before any execution.
//
// A Gate inspects submitted source text and returns a Verdict. Gates are a
// best-effort filter, not a security boundary: isolation comes from the
// container runtime. Three interchangeable gates are provided:
//
//   - PatternGate matches per-language regular expressions against raw text.
//   - LexicalGate tokenizes the source first, so banned names inside comments
//     and string literals do not reject a program.
//   - Permissive allows everything.
//
// Usage:
//
//	gate, err := safety.New("lexical", nil)
//	verdict := gate.Check(code, "c++")
//	if !verdict.Allowed {
//	    fmt.Println(verdict.Reason)
//	}
package safety
