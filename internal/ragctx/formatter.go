// Package ragctx renders retrieval results into the textual context the
// prompt builder hands to the LLM.
//
// The structure of the output is fixed; the human-language labels around it
// come from configuration so deployments can localise without code changes.
package ragctx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/retrieve"
	"github.com/MrWong99/reqrag/pkg/store"
)

// summarySampleSize bounds the enumerated sample inside a summarize context.
const summarySampleSize = 10

// statusDateMatchWindow is how close two status dates must be to count as
// matching in a similar-by-id comparison.
const statusDateMatchWindow = 30 * 24 * time.Hour

// Formatter renders retrieval results. It is immutable and safe for
// concurrent use.
type Formatter struct {
	labels      config.LabelsConfig
	horizonDays int
	now         func() time.Time
}

// New builds a Formatter. now may be nil outside of tests.
func New(labels config.LabelsConfig, horizonDays int, now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{labels: labels, horizonDays: horizonDays, now: now}
}

// Format renders the context block for one retrieval result.
func (f *Formatter) Format(pq store.ParsedQuery, res *retrieve.Result) string {
	switch pq.QueryType {
	case store.QueryUrgent:
		return f.formatList(res, true)
	case store.QuerySimilar:
		return f.formatSimilar(res)
	case store.QuerySummarize:
		return f.formatSummary(res)
	default:
		return f.formatList(res, false)
	}
}

// formatList renders the enumerated one-line-per-request form used by find,
// count, general and answer-retrieval queries. withDeadline appends the
// days-to-deadline tail used for urgent queries.
func (f *Formatter) formatList(res *retrieve.Result, withDeadline bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d\n", f.labels.TotalFound, res.TotalCount)

	for i, r := range res.Requests {
		fmt.Fprintf(&b, "%d. %s %s", i+1, f.labels.Request, r.RequestID)
		writeFields(&b, r)
		if withDeadline {
			if days, ok := f.daysToDeadline(r); ok {
				fmt.Fprintf(&b, " | %s: %d %s", f.labels.Deadline, days, f.labels.Days)
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSimilar renders the source block followed by its neighbours, each
// with a similarity percentage and check marks for attributes shared with
// the source.
func (f *Formatter) formatSimilar(res *retrieve.Result) string {
	var b strings.Builder
	if src := res.Source; src != nil {
		fmt.Fprintf(&b, "%s: %s %s", f.labels.SourceRequest, f.labels.Request, src.RequestID)
		writeFields(&b, *src)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s: %d\n", f.labels.SimilarTo, res.TotalCount)

	for i, r := range res.Requests {
		fmt.Fprintf(&b, "%d. %s %s (similarity: %.0f%%)", i+1, f.labels.Request, r.RequestID, r.Similarity*100)
		writeFields(&b, r)
		b.WriteByte('\n')
		if res.Source != nil {
			for _, m := range matchedAttributes(*res.Source, r) {
				fmt.Fprintf(&b, "   ✓ %s\n", m)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSummary renders per-project, per-status and per-type tallies over
// the returned page, plus a bounded enumerated sample.
func (f *Formatter) formatSummary(res *retrieve.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d\n", f.labels.TotalFound, res.TotalCount)

	writeTally(&b, store.LabelProject, res.Requests, func(r store.RequestView) string {
		return r.ProjectName
	})
	writeTally(&b, store.LabelStatus, res.Requests, func(r store.RequestView) string {
		return intKey(r.StatusID)
	})
	writeTally(&b, store.LabelType, res.Requests, func(r store.RequestView) string {
		return intKey(r.TypeID)
	})

	sample := res.Requests
	if len(sample) > summarySampleSize {
		sample = sample[:summarySampleSize]
	}
	b.WriteByte('\n')
	for i, r := range sample {
		fmt.Fprintf(&b, "%d. %s %s", i+1, f.labels.Request, r.RequestID)
		writeFields(&b, r)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// daysToDeadline computes whole days from today to the request's status
// date. Requests without a date, or already past it, carry no deadline tail.
func (f *Formatter) daysToDeadline(r store.RequestView) (int, bool) {
	if r.StatusDate == nil {
		return 0, false
	}
	today := f.now().Truncate(24 * time.Hour)
	days := int(r.StatusDate.Sub(today).Hours() / 24)
	if days < 0 || days > f.horizonDays {
		return 0, false
	}
	return days, true
}

// writeFields appends the non-empty attributes of r in the fixed label
// order shared with the chunk serialiser.
func writeFields(b *strings.Builder, r store.RequestView) {
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(b, " | %s: %s", label, value)
		}
	}
	write(store.LabelProject, r.ProjectName)
	write(store.LabelUpdatedBy, r.UpdatedBy)
	write(store.LabelResponsibleEmployee, r.ResponsibleEmployee)
	write(store.LabelType, intKey(r.TypeID))
	write(store.LabelStatus, intKey(r.StatusID))
	if r.StatusDate != nil {
		write("Status Date", r.StatusDate.Format("2006-01-02"))
	}
}

// matchedAttributes lists the attributes a candidate shares with the source
// request of a similar-by-id query.
func matchedAttributes(src, r store.RequestView) []string {
	var out []string
	if src.ProjectName != "" && src.ProjectName == r.ProjectName {
		out = append(out, store.LabelProject)
	}
	if src.TypeID != nil && r.TypeID != nil && *src.TypeID == *r.TypeID {
		out = append(out, store.LabelType)
	}
	if src.StatusID != nil && r.StatusID != nil && *src.StatusID == *r.StatusID {
		out = append(out, store.LabelStatus)
	}
	if src.UpdatedBy != "" && src.UpdatedBy == r.UpdatedBy {
		out = append(out, store.LabelUpdatedBy)
	}
	if src.StatusDate != nil && r.StatusDate != nil {
		diff := src.StatusDate.Sub(*r.StatusDate)
		if diff < 0 {
			diff = -diff
		}
		if diff <= statusDateMatchWindow {
			out = append(out, "Status Date")
		}
	}
	return out
}

// writeTally appends a "<label>: key=count, key=count" line grouped over
// the page, counts descending.
func writeTally(b *strings.Builder, label string, requests []store.RequestView, key func(store.RequestView) string) {
	counts := map[string]int{}
	for _, r := range requests {
		if k := key(r); k != "" {
			counts[k]++
		}
	}
	if len(counts) == 0 {
		return
	}

	type kv struct {
		k string
		n int
	}
	ordered := make([]kv, 0, len(counts))
	for k, n := range counts {
		ordered = append(ordered, kv{k, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].n != ordered[j].n {
			return ordered[i].n > ordered[j].n
		}
		return ordered[i].k < ordered[j].k
	})

	parts := make([]string, len(ordered))
	for i, e := range ordered {
		parts[i] = fmt.Sprintf("%s=%d", e.k, e.n)
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(parts, ", "))
}

func intKey(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
