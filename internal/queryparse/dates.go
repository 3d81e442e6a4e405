package queryparse

import (
	"strings"
	"time"

	"github.com/MrWong99/reqrag/pkg/store"
)

// dateLayouts are the calendar-date forms accepted inside queries.
var dateLayouts = []string{
	"02/01/2006",
	"02.01.2006",
	"02-01-2006",
	"2006-01-02",
	"02/01/06",
}

// relative phrases for the week/month shorthand forms.
var (
	lastWeekPhrases  = []string{"בשבוע האחרון", "השבוע האחרון", "שבוע אחרון"}
	lastMonthPhrases = []string{"בחודש האחרון", "החודש האחרון", "חודש אחרון"}

	lastNDaysUnits = map[string]int{
		"ימים":    1,
		"יום":     1,
		"שבועות":  7,
		"חודשים":  30,
	}
	lastNDaysSuffixes = []string{"האחרונים", "אחרונים", "האחרונות", "אחרונות"}
)

// extractDateRange recognises the temporal expressions of a query, in
// precedence order: explicit calendar dates, numeric last-N forms, then the
// week/month shorthands.
func (p *Parser) extractDateRange(q string, words []string) *store.DateRange {
	if dr := extractCalendarRange(words); dr != nil {
		return dr
	}
	if dr := extractLastN(words); dr != nil {
		return dr
	}
	if containsAnyToken(q, lastWeekPhrases) {
		return &store.DateRange{Kind: store.DateLastWeek, Days: 7}
	}
	if containsAnyToken(q, lastMonthPhrases) {
		return &store.DateRange{Kind: store.DateLastMonth, Days: 30}
	}
	return nil
}

// extractCalendarRange handles "from DATE to DATE", "from DATE" and
// "until DATE" forms. Two dates make a range regardless of the particles;
// one date is bounded on the side its particle names.
func extractCalendarRange(words []string) *store.DateRange {
	type hit struct {
		t   time.Time
		idx int
	}
	var hits []hit
	for i, w := range words {
		if t, ok := parseDateWord(w); ok {
			hits = append(hits, hit{t: t, idx: i})
		}
	}

	switch len(hits) {
	case 0:
		return nil
	case 1:
		h := hits[0]
		dr := &store.DateRange{Kind: store.DateSingle}
		if precededByUntil(words, h.idx) {
			dr.End = h.t
		} else {
			dr.Start = h.t
		}
		return dr
	default:
		start, end := hits[0].t, hits[1].t
		if end.Before(start) {
			start, end = end, start
		}
		return &store.DateRange{Kind: store.DateRangeFull, Start: start, End: end}
	}
}

// extractLastN handles "last N days/weeks/months" numeric forms, e.g.
// "ב-30 הימים האחרונים".
func extractLastN(words []string) *store.DateRange {
	for i, w := range words {
		n, ok := digitRun(w)
		if !ok || n <= 0 {
			continue
		}
		for j := i + 1; j < len(words) && j <= i+2; j++ {
			unit, isUnit := lastNDaysUnits[trimWord(words[j])]
			if !isUnit {
				unit, isUnit = lastNDaysUnits[strings.TrimPrefix(trimWord(words[j]), "ה")]
			}
			if !isUnit {
				continue
			}
			if hasSuffixWithin(words, j+1) {
				return &store.DateRange{Kind: store.DateLastNDays, Days: n * unit}
			}
		}
	}
	return nil
}

// hasSuffixWithin reports whether one of the "last" suffixes follows at
// index i or i+1.
func hasSuffixWithin(words []string, i int) bool {
	for j := i; j < len(words) && j <= i+1; j++ {
		for _, s := range lastNDaysSuffixes {
			if trimWord(words[j]) == s {
				return true
			}
		}
	}
	return false
}

// precededByUntil reports whether the word at idx is introduced by an
// "until" particle, either standalone or glued onto the date itself.
func precededByUntil(words []string, idx int) bool {
	if strings.HasPrefix(words[idx], "עד") {
		return true
	}
	for j := idx - 1; j >= 0 && j >= idx-2; j-- {
		w := trimWord(words[j])
		if w == "עד" {
			return true
		}
		if w == "מתאריך" || w == "מ" || strings.HasPrefix(w, "מה") {
			return false
		}
	}
	return false
}

// parseDateWord parses a calendar date, tolerating glued particles such as
// "מ-01/02/2026" and "עד01/02/2026".
func parseDateWord(w string) (time.Time, bool) {
	w = trimWord(w)
	for _, prefix := range []string{"מתאריך", "מ-", "עד-", "עד", "מ"} {
		if rest := strings.TrimPrefix(w, prefix); rest != w && len(rest) >= 6 {
			w = rest
			break
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, w); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func trimWord(w string) string {
	return strings.Trim(w, ".,;:!?()\"'")
}
