package query

import "strings"

// ValidateQueryText runs the pre-flight checks on query text: non-empty and
// balanced quoting. Single quotes follow SQL doubling rules (a doubled quote
// escapes one inside a literal); square brackets delimit identifiers. Text in
// -- line comments and /* */ block comments is skipped, so an apostrophe in
// a comment does not open a literal.
func ValidateQueryText(q string) error {
	if strings.TrimSpace(q) == "" {
		return ErrValidation(ValidationEmptyQuery, "query is required")
	}

	inString := false
	var stringChar rune
	inBracket := false
	inLineComment := false
	blockDepth := 0 // T-SQL block comments nest

	runes := []rune(q)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inString:
			if ch == stringChar {
				if next == stringChar {
					i++
					continue
				}
				inString = false
			}
		case inBracket:
			if ch == ']' {
				inBracket = false
			}
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
		case blockDepth > 0:
			if ch == '*' && next == '/' {
				blockDepth--
				i++
			} else if ch == '/' && next == '*' {
				blockDepth++
				i++
			}
		case ch == '-' && next == '-':
			inLineComment = true
			i++
		case ch == '/' && next == '*':
			blockDepth++
			i++
		case ch == '\'' || ch == '"':
			inString = true
			stringChar = ch
		case ch == '[':
			inBracket = true
		}
	}

	if inString {
		return ErrValidation(ValidationUnbalancedQuote, "unterminated %c-quoted literal", stringChar)
	}
	if inBracket {
		return ErrValidation(ValidationUnbalancedQuote, "unterminated [bracketed] identifier")
	}
	return nil
}

// ValidateSelection rejects empty selections and duplicate target ids.
// Duplicates are an error, never silently deduplicated.
func ValidateSelection(targets []Target) error {
	if len(targets) == 0 {
		return ErrValidation(ValidationNoTargetSelected, "no targets selected")
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.ID]; ok {
			return ErrValidation(ValidationDuplicateTarget, "target %q selected more than once", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
