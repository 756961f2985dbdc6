package domain

import (
	"strings"
	"unicode"
)

// Role suffixes appended to derived service names.
const (
	suffixService   = "Service"
	suffixProcessor = "Processor"
	suffixManager   = "Manager"
)

// CanonicalServiceName derives the normalized worker identity from a
// human-readable step name: separators and case are normalized into
// CamelCase tokens and a role suffix is inferred from free-text hints
// ("process" family -> Processor, "manage" family -> Manager, anything
// else -> Service).
func CanonicalServiceName(stepName string) string {
	tokens := tokenize(stepName)
	if len(tokens) == 0 {
		return suffixService
	}

	suffix := suffixService
	last := strings.ToLower(tokens[len(tokens)-1])
	switch {
	case strings.HasPrefix(last, "process"):
		suffix = suffixProcessor
		tokens = tokens[:len(tokens)-1]
	case strings.HasPrefix(last, "manage"):
		suffix = suffixManager
		tokens = tokens[:len(tokens)-1]
	case last == "service" || last == "services":
		tokens = tokens[:len(tokens)-1]
	}

	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(titleCase(tok))
	}
	b.WriteString(suffix)
	return b.String()
}

// tokenize splits on separators and camelCase boundaries.
func tokenize(name string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// A lower-to-upper transition starts a new token.
			if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func titleCase(tok string) string {
	if tok == "" {
		return tok
	}
	runes := []rune(strings.ToLower(tok))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
