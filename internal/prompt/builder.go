// Package prompt assembles the two-segment chat prompt handed to the LLM
// gateway: a fixed system role plus a user segment combining instructions,
// the applied filters, the retrieval context, and the original question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/reqrag/pkg/store"
)

// systemRole is the assistant role statement. Answers follow the language
// of the question, which in practice is Hebrew.
const systemRole = "You are an assistant answering questions about a corpus of work requests. " +
	"Answer in the language of the question, based only on the context provided. " +
	"If the context does not contain the answer, say so."

// instructionByType carries the per-query-type directive placed at the top
// of the user segment.
var instructionByType = map[store.QueryType]string{
	store.QueryCount:           "State the number of matching requests first, then break the result down briefly.",
	store.QueryUrgent:          "List the requests ordered by days remaining until their deadline, most urgent first.",
	store.QuerySimilar:         "Explain what the listed requests share with the source request.",
	store.QuerySummarize:       "Summarise the set. Include the per-project, per-status and per-type tallies from the context.",
	store.QueryFind:            "Summarise the matching requests briefly.",
	store.QueryAnswerRetrieval: "Quote the answer recorded on the source request if the context contains one; otherwise say it is not recorded.",
}

// Input is everything the builder needs for one prompt.
type Input struct {
	Query   string
	Parsed  store.ParsedQuery
	Context string
}

// Prompt is the assembled two-segment prompt.
type Prompt struct {
	System string
	User   string
}

// Build assembles the prompt. The user segment is wrapped in an
// <instruction> bracket per the chat template convention of the
// instruction-tuned models this service targets; providers applying their
// own chat template receive the segments separately.
func Build(in Input) Prompt {
	var b strings.Builder

	b.WriteString("<instruction>\n")
	b.WriteString(instructionByType[in.Parsed.QueryType])
	if filters := describeFilters(in.Parsed.Entities); filters != "" {
		b.WriteString("\n")
		b.WriteString(filters)
	}
	b.WriteString("\n</instruction>\n\n")

	if in.Context != "" {
		b.WriteString(in.Context)
		b.WriteString("\n\n")
	}
	b.WriteString(in.Query)

	return Prompt{System: systemRole, User: b.String()}
}

// describeFilters states, in prose, which filters produced the context, so
// the model never guesses at constraints it cannot see.
func describeFilters(e store.Entities) string {
	var parts []string
	if e.PersonName != "" {
		parts = append(parts, fmt.Sprintf("person %q", e.PersonName))
	}
	if e.ProjectName != "" {
		parts = append(parts, fmt.Sprintf("project %q", e.ProjectName))
	}
	if e.TypeID != nil {
		parts = append(parts, fmt.Sprintf("type %d", *e.TypeID))
	}
	if e.StatusID != nil {
		parts = append(parts, fmt.Sprintf("status %d", *e.StatusID))
	}
	if e.DateRange != nil {
		parts = append(parts, describeDateRange(e.DateRange))
	}
	if e.Urgency {
		parts = append(parts, "urgent deadlines only")
	}
	if len(parts) == 0 {
		return ""
	}
	return "The context was filtered by: " + strings.Join(parts, ", ") + "."
}

func describeDateRange(dr *store.DateRange) string {
	switch dr.Kind {
	case store.DateLastNDays:
		return fmt.Sprintf("last %d days", dr.Days)
	case store.DateLastWeek:
		return "last week"
	case store.DateLastMonth:
		return "last month"
	case store.DateRangeFull:
		return fmt.Sprintf("dates %s to %s", dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
	default:
		switch {
		case !dr.Start.IsZero():
			return "dates from " + dr.Start.Format("2006-01-02")
		case !dr.End.IsZero():
			return "dates until " + dr.End.Format("2006-01-02")
		}
	}
	return "a date window"
}
