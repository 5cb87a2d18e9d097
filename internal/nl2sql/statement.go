package nl2sql

import (
	"regexp"
	"strings"
	"unicode"
)

// Statement is a SQL string that passed extraction or validation. The zero
// value never escapes ExtractSQL or ParseSelect with ok == true.
type Statement string

func (s Statement) String() string { return string(s) }

var selectPattern = regexp.MustCompile(`(?is)(\bselect\s.+?)(?:;|\z)`)

// ExtractSQL finds the first select statement in free-form model output.
// Markdown fences are removed first, and the statement runs up to the first
// ';' or the end of the text.
func ExtractSQL(output string) (Statement, bool) {
	text := stripMarkdownSQL(output)
	match := selectPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	sql := strings.TrimSpace(match[1])
	if sql == "" {
		return "", false
	}
	return Statement(sql), true
}

// ParseSelect accepts text only if, once trimmed, it begins with the
// keyword select. It is the validation applied to rewrite output.
func ParseSelect(text string) (Statement, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len("select") || !strings.EqualFold(trimmed[:len("select")], "select") {
		return "", false
	}
	if rest := trimmed[len("select"):]; rest != "" {
		r := []rune(rest)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return "", false
		}
	}
	return Statement(trimmed), true
}

func stripMarkdownSQL(value string) string {
	text := value
	if i := strings.Index(strings.ToLower(text), "```sql"); i >= 0 {
		text = text[i+len("```sql"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+len("```"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
}
