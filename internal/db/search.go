package db

import "strings"

type termKind int

const (
	termWord termKind = iota
	termPhrase
	termNot
	termOr
)

type queryTerm struct {
	kind termKind
	text string
}

func (t queryTerm) match() string {
	if t.kind == termPhrase {
		return `"` + strings.ReplaceAll(t.text, `"`, `""`) + `"`
	}
	return t.text + "*"
}

// EscapeFTS5Query turns search box input into an FTS5 MATCH expression that
// always parses. Words become prefix matches and adjacent terms are ANDed.
//
//	pub             pub*
//	cat OR dog      cat* OR dog*
//	"hello world"   "hello world"
//	rust -spam      rust* NOT spam*
//
// FTS5's NOT is binary, so an exclusion that opens a group (the start of the
// query, or just after OR) is kept as a positive match.
func EscapeFTS5Query(query string) string {
	var out []string
	positive := false
	for _, t := range splitSearch(query) {
		switch {
		case t.kind == termOr:
			if len(out) > 0 && out[len(out)-1] != "OR" {
				out = append(out, "OR")
				positive = false
			}
		case t.kind == termNot && positive:
			out = append(out, "NOT "+t.match())
		default:
			out = append(out, t.match())
			positive = true
		}
	}
	if n := len(out); n > 0 && out[n-1] == "OR" {
		out = out[:n-1]
	}
	return strings.Join(out, " ")
}

// splitSearch tokenizes input on blanks, keeping quoted phrases whole. An
// unclosed quote runs to the end. Terms with nothing searchable are dropped.
func splitSearch(input string) []queryTerm {
	var terms []queryTerm
	rest := strings.ReplaceAll(input, "\x00", "")
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return terms
		}
		if rest[0] == '"' {
			var phrase string
			phrase, rest, _ = strings.Cut(rest[1:], `"`)
			if searchable(phrase) != "" {
				terms = append(terms, queryTerm{kind: termPhrase, text: phrase})
			}
			continue
		}
		end := strings.IndexAny(rest, " \t\"")
		if end < 0 {
			end = len(rest)
		}
		word := rest[:end]
		rest = rest[end:]
		switch {
		case strings.EqualFold(word, "OR"):
			terms = append(terms, queryTerm{kind: termOr})
		case len(word) > 1 && word[0] == '-':
			if clean := searchable(word[1:]); clean != "" {
				terms = append(terms, queryTerm{kind: termNot, text: clean})
			}
		default:
			if clean := searchable(word); clean != "" {
				terms = append(terms, queryTerm{kind: termWord, text: clean})
			}
		}
	}
}

// searchable lowercases word and keeps letters, digits, underscore and
// non-ASCII runes.
func searchable(word string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r > 127 {
			return r
		}
		return -1
	}, word))
}
