// Package preprocess implements the Script Preprocessor (SP, spec.md
// §4.1): a lightweight textual split of BEGIN {...}! / END {...}! blocks
// out of a single source string — not a parse of the embedded language,
// by design (spec.md §9).
package preprocess

import (
	"fmt"
	"os"
	"strings"
)

// Fragments holds the three script pieces SP produces.
type Fragments struct {
	Begin string
	Main  string
	End   string
}

// Load resolves a CLI-supplied script argument into source text: a
// "file:" prefix (or a bare path ending in .luau/.lua that exists on
// disk, per spec.md §4.1's convenience rule) is read from disk; anything
// else is the literal script source.
func Load(arg string) (string, error) {
	if strings.HasPrefix(arg, "file:") {
		path := strings.TrimPrefix(arg, "file:")
		return readFile(path)
	}
	lower := strings.ToLower(arg)
	if strings.HasSuffix(lower, ".luau") || strings.HasSuffix(lower, ".lua") {
		if _, err := os.Stat(arg); err == nil {
			return readFile(arg)
		}
	}
	return arg, nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script file %s: %w", path, err)
	}
	return string(b), nil
}

// Parse splits source into begin/main/end fragments, then applies CLI
// overrides (explicitBegin/explicitEnd win when non-empty, per spec.md
// §4.1's precedence rule).
func Parse(source, explicitBegin, explicitEnd string) (Fragments, error) {
	begin, main, end, err := splitBlocks(source)
	if err != nil {
		return Fragments{}, err
	}
	if explicitBegin != "" {
		begin = explicitBegin
	}
	if explicitEnd != "" {
		end = explicitEnd
	}
	return Fragments{Begin: begin, Main: main, End: end}, nil
}

// splitBlocks extracts at most one BEGIN {...}! and one END {...}! block,
// respecting brace nesting; the closing marker is a '}' immediately
// followed by '!'. Everything outside the two blocks is concatenated, in
// source order, as main.
func splitBlocks(source string) (begin, main, end string, err error) {
	var mainParts []string
	i := 0
	foundBegin, foundEnd := false, false

	for i < len(source) {
		if rest := source[i:]; strings.HasPrefix(rest, "BEGIN {") {
			if foundBegin {
				return "", "", "", fmt.Errorf("preprocess: more than one BEGIN block")
			}
			body, next, perr := extractBlock(source, i+len("BEGIN {"))
			if perr != nil {
				return "", "", "", fmt.Errorf("preprocess: BEGIN block: %w", perr)
			}
			begin = body
			foundBegin = true
			i = next
			continue
		}
		if rest := source[i:]; strings.HasPrefix(rest, "END {") {
			if foundEnd {
				return "", "", "", fmt.Errorf("preprocess: more than one END block")
			}
			body, next, perr := extractBlock(source, i+len("END {"))
			if perr != nil {
				return "", "", "", fmt.Errorf("preprocess: END block: %w", perr)
			}
			end = body
			foundEnd = true
			i = next
			continue
		}
		mainParts = append(mainParts, string(source[i]))
		i++
	}

	main = strings.Join(mainParts, "")
	return begin, main, end, nil
}

// extractBlock scans from just after the opening "{" (start) for the
// matching "}!" that closes it, respecting nested braces. It returns the
// block body (braces excluded) and the index just past the closing "}!".
func extractBlock(source string, start int) (body string, next int, err error) {
	depth := 1
	i := start
	for i < len(source) {
		switch source[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				if i+1 < len(source) && source[i+1] == '!' {
					return source[start:i], i + 2, nil
				}
				return "", 0, fmt.Errorf("closing '}' at offset %d not followed by '!'", i)
			}
		}
		i++
	}
	return "", 0, fmt.Errorf("unbalanced braces: block starting at offset %d never closes", start)
}
