// Package queryparse turns a raw Hebrew user query into a structured
// [store.ParsedQuery] using a configurable pattern set.
//
// The parser is rule-based and deterministic. It never fails: unrecognised
// input yields intent=general, query_type=find and empty entities.
package queryparse

import (
	"slices"
	"sort"
	"strings"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/pkg/store"
)

// Parser extracts structured queries from raw user text. It is immutable
// after construction and safe for concurrent use.
type Parser struct {
	cfg config.QueryConfig
}

// New builds a Parser over the given pattern set.
func New(cfg config.QueryConfig) *Parser {
	return &Parser{cfg: cfg}
}

// Parse extracts a [store.ParsedQuery] from raw. It always succeeds.
func (p *Parser) Parse(raw string) store.ParsedQuery {
	q := normalize(raw)
	words := strings.Fields(q)

	pq := store.ParsedQuery{
		Intent:    store.IntentGeneral,
		QueryType: store.QueryFind,
	}
	pq.QueryType = p.queryType(q)
	pq.Entities = p.extractEntities(q, words, pq.QueryType)
	pq.Intent = p.intent(q, words, &pq.Entities)

	if fields, ok := p.cfg.TargetFieldsByIntent[pq.Intent]; ok {
		pq.TargetFields = append([]string(nil), fields...)
	}
	for _, label := range p.fieldLabels(q) {
		if !slices.Contains(pq.TargetFields, label) {
			pq.TargetFields = append(pq.TargetFields, label)
		}
	}
	return pq
}

// fieldLabels resolves every field keyword the query names to its chunk
// label, ordered by first appearance so the boost ranking stays stable.
func (p *Parser) fieldLabels(q string) []string {
	type hit struct {
		idx   int
		label string
	}
	var hits []hit
	for kw, label := range p.cfg.FieldLabelMap {
		if idx := indexToken(q, kw); idx >= 0 {
			hits = append(hits, hit{idx: idx, label: label})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].idx != hits[j].idx {
			return hits[i].idx < hits[j].idx
		}
		return hits[i].label < hits[j].label
	})
	labels := make([]string, 0, len(hits))
	for _, h := range hits {
		labels = append(labels, h.label)
	}
	return labels
}

// queryType picks the action verb by trigger priority. Urgency outranks
// everything, then answer retrieval, similarity, counting, and summarising;
// find is the default.
func (p *Parser) queryType(q string) store.QueryType {
	if containsAnyToken(q, p.cfg.UrgencyTriggers) || containsAnyToken(q, p.cfg.QueryTypeTriggers[store.QueryUrgent]) {
		return store.QueryUrgent
	}
	if containsAnyToken(q, p.cfg.AnswerRetrievalTriggers) {
		return store.QueryAnswerRetrieval
	}
	for _, qt := range []store.QueryType{store.QuerySimilar, store.QueryCount, store.QuerySummarize} {
		if containsAnyToken(q, p.cfg.QueryTypeTriggers[qt]) {
			return qt
		}
	}
	return store.QueryFind
}

// intent picks the query subject by scanning markers specific to general.
// When both a person and a project marker match, the one appearing earlier
// in the query wins.
func (p *Parser) intent(q string, words []string, ents *store.Entities) store.Intent {
	if ents.TypeID != nil {
		return store.IntentType
	}
	if ents.StatusID != nil {
		return store.IntentStatus
	}

	personIdx := -1
	if ents.PersonName != "" && containsAnyToken(q, p.cfg.PersonContextTokens) {
		personIdx = firstTokenIndex(q, p.cfg.IntentTriggers[store.IntentPerson])
		if personIdx < 0 {
			personIdx = firstTokenIndex(q, p.cfg.PersonContextTokens)
		}
	}
	projectIdx := -1
	if ents.ProjectName != "" || containsAnyToken(q, p.cfg.IntentTriggers[store.IntentProject]) {
		projectIdx = firstTokenIndex(q, p.cfg.IntentTriggers[store.IntentProject])
	}

	switch {
	case personIdx >= 0 && projectIdx >= 0:
		if personIdx <= projectIdx {
			return store.IntentPerson
		}
		return store.IntentProject
	case personIdx >= 0:
		return store.IntentPerson
	case projectIdx >= 0:
		return store.IntentProject
	}
	return store.IntentGeneral
}

// extractEntities pulls every recognisable entity out of the query,
// regardless of which intent is eventually chosen.
func (p *Parser) extractEntities(q string, words []string, qt store.QueryType) store.Entities {
	ents := store.Entities{
		Urgency: containsAnyToken(q, p.cfg.UrgencyTriggers),
	}

	ents.TypeID = p.intAfterMarkers(words, p.cfg.IntentTriggers[store.IntentType])
	ents.StatusID = p.intAfterMarkers(words, p.cfg.IntentTriggers[store.IntentStatus])
	ents.DateRange = p.extractDateRange(q, words)
	ents.PersonName = p.extractPersonName(words)
	ents.ProjectName = p.extractProjectName(words)
	ents.RequestID = p.extractRequestID(q, words, qt)

	if qt == store.QueryCount && containsAnyToken(q, p.cfg.ProjectsEntityTriggers) {
		ents.ProjectsQuery = true
	}
	return ents
}

// intAfterMarkers returns the integer immediately following the first
// occurrence of any marker, or nil.
func (p *Parser) intAfterMarkers(words []string, markers []string) *int {
	for i, w := range words {
		if !wordMatchesAny(w, markers) {
			continue
		}
		for j := i + 1; j < len(words) && j <= i+2; j++ {
			if n, ok := digitRun(words[j]); ok {
				return &n
			}
		}
	}
	return nil
}

// extractRequestID returns the digit run following an answer-retrieval or
// similarity marker. For similar queries any digit run in the query serves.
func (p *Parser) extractRequestID(q string, words []string, qt store.QueryType) string {
	markers := append(append([]string(nil), p.cfg.AnswerRetrievalTriggers...), p.cfg.QueryTypeTriggers[store.QuerySimilar]...)
	for i, w := range words {
		if !wordMatchesAny(w, markers) {
			continue
		}
		for j := i + 1; j < len(words); j++ {
			if s, ok := digitRunString(words[j]); ok {
				return s
			}
		}
	}
	if qt == store.QuerySimilar {
		for _, w := range words {
			if s, ok := digitRunString(w); ok {
				return s
			}
		}
	}
	return ""
}
