package queryparse

import (
	"strconv"
	"strings"
	"unicode"
)

// maxNameWords caps how many words one extracted name may span.
const maxNameWords = 3

// extractPersonName returns the name span following the first person
// marker, or "". Markers may be standalone words or the morphological glue
// prefixes מ and מא attached to the name itself. Context-only tokens such
// as "בקשות" gate the person intent but never introduce a name.
func (p *Parser) extractPersonName(words []string) string {
	markers := p.cfg.IntentTriggers["person"]

	for i, w := range words {
		next := i + 1
		match := wordMatchesAny(w, markers)
		if !match && i+1 < len(words) {
			// Multiword markers such as "על ידי".
			bigram := trimWord(w) + " " + trimWord(words[i+1])
			for _, m := range markers {
				if bigram == m {
					match = true
					next = i + 2
					break
				}
			}
		}
		if match {
			if name := p.nameSpan(words, next, ""); name != "" {
				return name
			}
		}
	}

	// Glued forms only when no explicit marker introduced a name: a מ
	// prefix on an arbitrary Hebrew word is too ambiguous otherwise.
	for i, w := range words {
		if first, ok := p.splitGluedName(w); ok {
			if name := p.nameSpan(words, i+1, first); name != "" {
				return name
			}
		}
	}
	return ""
}

// extractProjectName returns the name span following the first project
// marker, or "".
func (p *Parser) extractProjectName(words []string) string {
	for i, w := range words {
		if wordMatchesAny(w, p.cfg.IntentTriggers["project"]) {
			if name := p.nameSpan(words, i+1, ""); name != "" {
				return name
			}
		}
	}
	return ""
}

// nameSpan collects the longest run of Hebrew words starting at index
// start, breaking at the first stop word, marker, or non-Hebrew token.
// firstWord, when non-empty, is a pre-extracted leading word from a glued
// marker and occupies the position start-1.
func (p *Parser) nameSpan(words []string, start int, firstWord string) string {
	var parts []string
	if firstWord != "" {
		parts = append(parts, firstWord)
	}

	for i := start; i < len(words) && len(parts) < maxNameWords; i++ {
		w := words[i]
		if p.isNameStop(w) {
			break
		}
		// Fillers and repeated markers before the name are skipped; after
		// the name has begun they end it.
		if wordMatchesAny(w, p.cfg.FillerWords) || wordMatchesAny(w, p.cfg.IntentTriggers["person"]) {
			if len(parts) > 0 {
				break
			}
			continue
		}
		if !isHebrewWord(w) {
			break
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " ")
}

// isNameStop reports whether w must terminate a name span.
func (p *Parser) isNameStop(w string) bool {
	if wordMatchesAny(w, p.cfg.StopWordsForNameExtraction) {
		return true
	}
	if wordMatchesAny(w, p.cfg.IntentTriggers["type"]) || wordMatchesAny(w, p.cfg.IntentTriggers["status"]) {
		return true
	}
	if wordMatchesAny(w, p.cfg.IntentTriggers["project"]) || wordMatchesAny(w, p.cfg.ProjectsEntityTriggers) {
		return true
	}
	for _, list := range p.cfg.QueryTypeTriggers {
		if wordMatchesAny(w, list) {
			return true
		}
	}
	return wordMatchesAny(w, p.cfg.UrgencyTriggers)
}

// splitGluedName recognises the glue prefixes on a Hebrew word and returns
// the remainder as the first name word.
//
// The glue מא keeps its א: in "מאבי" the marker is the bare מ and the name
// is "אבי". A bare מ before any other consonant is stripped: "מדוד" yields
// "דוד". Short or recognised words are left alone.
func (p *Parser) splitGluedName(w string) (string, bool) {
	runes := []rune(w)
	if len(runes) < 4 || runes[0] != 'מ' {
		return "", false
	}
	if !isHebrewWord(w) {
		return "", false
	}
	if wordMatchesAny(w, p.cfg.StopWordsForNameExtraction) || p.isNameStop(w) {
		return "", false
	}
	rest := string(runes[1:])
	if wordMatchesAny(rest, p.cfg.FillerWords) || wordMatchesAny(rest, p.cfg.StopWordsForNameExtraction) {
		return "", false
	}
	return rest, true
}

// normalize strips bidirectional control marks and collapses whitespace.
// User queries pasted from RTL contexts routinely carry invisible marks in
// the middle of digit runs.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isBidiMark(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isBidiMark reports whether r is a Unicode bidirectional control mark or a
// BOM.
func isBidiMark(r rune) bool {
	switch {
	case r == '\u200e' || r == '\u200f': // LRM, RLM
		return true
	case r >= '\u202a' && r <= '\u202e': // embeddings and overrides
		return true
	case r >= '\u2066' && r <= '\u2069': // isolates
		return true
	case r == '\ufeff': // BOM
		return true
	}
	return false
}

// containsAnyToken reports whether q contains any of the tokens at word
// boundaries. Tokens may span multiple words.
func containsAnyToken(q string, tokens []string) bool {
	return firstTokenIndex(q, tokens) >= 0
}

// firstTokenIndex returns the byte index of the earliest boundary-respecting
// occurrence of any token in q, or -1.
func firstTokenIndex(q string, tokens []string) int {
	first := -1
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		idx := indexToken(q, tok)
		if idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	return first
}

// indexToken finds tok in q at word boundaries.
func indexToken(q, tok string) int {
	from := 0
	for {
		i := strings.Index(q[from:], tok)
		if i < 0 {
			return -1
		}
		i += from
		if boundaryBefore(q, i) && boundaryAfter(q, i+len(tok)) {
			return i
		}
		from = i + len(tok)
		if from >= len(q) {
			return -1
		}
	}
}

func boundaryBefore(q string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRuneBefore(q, i)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(q string, i int) bool {
	if i >= len(q) {
		return true
	}
	r, _ := firstRune(q[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func lastRuneBefore(q string, i int) rune {
	r := rune(0)
	for _, rr := range q[:i] {
		r = rr
	}
	return r
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

// wordMatchesAny reports whether the single word w equals any token. Tokens
// containing spaces never match a single word.
func wordMatchesAny(w string, tokens []string) bool {
	w = trimWord(w)
	for _, tok := range tokens {
		if w == tok {
			return true
		}
	}
	return false
}

// isHebrewWord reports whether every letter of w is Hebrew. Punctuation at
// the edges is tolerated.
func isHebrewWord(w string) bool {
	w = trimWord(w)
	if w == "" {
		return false
	}
	for _, r := range w {
		if r >= 0x0590 && r <= 0x05FF {
			continue
		}
		if r == '\'' || r == '"' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// digitRun extracts a leading digit run from w as an int.
func digitRun(w string) (int, bool) {
	s, ok := digitRunString(w)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// digitRunString extracts the first maximal digit run inside w. Hyphens and
// leftover punctuation around the digits are ignored.
func digitRunString(w string) (string, bool) {
	start := -1
	for i, r := range w {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return w[start:i], true
		}
	}
	if start >= 0 {
		return w[start:], true
	}
	return "", false
}
