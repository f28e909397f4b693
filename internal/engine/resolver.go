// Property name resolution across naming-convention drift.

package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vibevesselio/snapsync/internal/models"
)

// DefaultResolveAttempts caps the generated-variant attempts tried after
// the exact and case-insensitive strategies.
const DefaultResolveAttempts = 3

// Resolution is the outcome of resolving a proposed property name
// against a live schema.
type Resolution struct {
	Matched    bool
	ActualName string
	Strategy   string
	Attempts   int
}

// ResolveProperty finds the live schema property best matching proposed.
//
// Strategies, stopping at the first hit: exact match; case-insensitive
// match; then each generated variant of the proposed name (snake_case,
// kebab-case, camelCase, PascalCase, whitespace-collapsed), tried exact,
// case-insensitive, against each schema name with its parenthetical
// suffix stripped, and finally separator-agnostic against each schema
// name. Duplicate variants are skipped; at most maxAttempts distinct
// variants are tried. Schema evolution (manual renames, differing
// conventions) must not silently drop data, so callers log every
// non-exact match.
func ResolveProperty(proposed string, schema map[string]models.PropertyType, maxAttempts int) Resolution {
	if maxAttempts <= 0 {
		maxAttempts = DefaultResolveAttempts
	}

	if _, ok := schema[proposed]; ok {
		return Resolution{Matched: true, ActualName: proposed, Strategy: "exact"}
	}

	if name, ok := findFold(proposed, schema); ok {
		return Resolution{Matched: true, ActualName: name, Strategy: "case_insensitive"}
	}

	attempts := 0
	tried := map[string]bool{proposed: true}
	candidates := append([]string{proposed}, nameVariants(proposed)...)
	for i, variant := range candidates {
		if i > 0 {
			if tried[variant] {
				continue
			}
			tried[variant] = true
			if attempts >= maxAttempts {
				break
			}
			attempts++

			if _, ok := schema[variant]; ok {
				return Resolution{Matched: true, ActualName: variant, Strategy: "variant", Attempts: attempts}
			}
			if name, ok := findFold(variant, schema); ok {
				return Resolution{Matched: true, ActualName: name, Strategy: "variant_fold", Attempts: attempts}
			}
		}
		for name := range schema {
			if stripped := stripParenSuffix(name); stripped != name && strings.EqualFold(variant, stripped) {
				return Resolution{Matched: true, ActualName: name, Strategy: "paren_stripped", Attempts: attempts}
			}
		}
		for name := range schema {
			if stripSeparators(variant) == stripSeparators(name) {
				return Resolution{Matched: true, ActualName: name, Strategy: "separator_agnostic", Attempts: attempts}
			}
		}
	}

	return Resolution{Attempts: attempts}
}

// findFold looks up a case-insensitive match in the schema.
func findFold(proposed string, schema map[string]models.PropertyType) (string, bool) {
	for name := range schema {
		if strings.EqualFold(proposed, name) {
			return name, true
		}
	}
	return "", false
}

// splitWords breaks a name on separators and camelCase boundaries.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// nameVariants generates the ordered normalized forms of a name.
func nameVariants(s string) []string {
	words := splitWords(s)
	if len(words) == 0 {
		return nil
	}
	lower := make([]string, len(words))
	title := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(w)
		title[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}

	camel := make([]string, len(words))
	copy(camel, title)
	camel[0] = lower[0]

	return []string{
		strings.Join(lower, "_"), // snake_case
		strings.Join(lower, "-"), // kebab-case
		strings.Join(camel, ""),  // camelCase
		strings.Join(title, ""),  // PascalCase
		strings.Join(words, " "), // whitespace-collapsed
	}
}

// stripParenSuffix removes a trailing parenthetical, e.g. "Duration (s)"
// becomes "Duration".
func stripParenSuffix(s string) string {
	trimmed := strings.TrimRight(s, " ")
	if !strings.HasSuffix(trimmed, ")") {
		return s
	}
	open := strings.LastIndex(trimmed, "(")
	if open <= 0 {
		return s
	}
	return strings.TrimRight(trimmed[:open], " ")
}

// stripSeparators lowers a name and removes separator characters so
// "Script_Name_AI" and "Script Name-AI" compare equal.
func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '-', ' ':
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
