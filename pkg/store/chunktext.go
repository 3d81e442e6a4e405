package store

import (
	"strconv"
	"strings"
)

// Field labels used inside text_chunk. The embedding pipeline writes them and
// the retriever keys on them for field-specific boosting, so they are a wire
// contract: changing one silently breaks boosts on existing corpora.
const (
	LabelProject             = "Project"
	LabelProjectDescription  = "Project Description"
	LabelArea                = "Area"
	LabelRemarks             = "Remarks"
	LabelUpdatedBy           = "Updated By"
	LabelCreatedBy           = "Created By"
	LabelResponsibleEmployee = "Responsible Employee"
	LabelContactFirstName    = "Contact First Name"
	LabelContactLastName     = "Contact Last Name"
	LabelYazamContactName    = "Yazam Contact Name"
	LabelType                = "Type"
	LabelStatus              = "Status"
)

// chunkFieldSep separates labelled fields inside a text chunk.
const chunkFieldSep = " | "

// ChunkField is one labelled value inside a serialised text chunk. Weight
// repeats the field to bias the embedding towards it; 0 is treated as 1.
type ChunkField struct {
	Label  string
	Value  string
	Weight int
}

// SerializeChunkText renders fields into the canonical "Label: value | …"
// form stored in text_chunk. Fields with an empty value are skipped entirely
// (missing attributes are absent, not empty strings). A field with Weight n
// is emitted n times consecutively.
func SerializeChunkText(fields []ChunkField) string {
	var parts []string
	for _, f := range fields {
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		n := f.Weight
		if n < 1 {
			n = 1
		}
		for range n {
			parts = append(parts, f.Label+": "+v)
		}
	}
	return strings.Join(parts, chunkFieldSep)
}

// ChunkFieldsFor builds the weighted field list for one request, in the
// order the embedding pipeline serialises them. Project fields are repeated
// to bias similarity towards project matches.
func ChunkFieldsFor(r RequestView) []ChunkField {
	return []ChunkField{
		{Label: LabelProject, Value: r.ProjectName, Weight: 2},
		{Label: LabelProjectDescription, Value: r.ProjectDescription},
		{Label: LabelArea, Value: r.AreaDescription},
		{Label: LabelRemarks, Value: r.Remarks},
		{Label: LabelUpdatedBy, Value: r.UpdatedBy},
		{Label: LabelCreatedBy, Value: r.CreatedBy},
		{Label: LabelResponsibleEmployee, Value: r.ResponsibleEmployee},
		{Label: LabelContactFirstName, Value: r.ContactFirstName},
		{Label: LabelContactLastName, Value: r.ContactLastName},
		{Label: LabelType, Value: intLabel(r.TypeID)},
		{Label: LabelStatus, Value: intLabel(r.StatusID)},
	}
}

// ContainsLabelled reports whether chunkText contains value under the given
// label, i.e. the literal "Label: value" sequence.
func ContainsLabelled(chunkText, label, value string) bool {
	if value == "" {
		return false
	}
	return strings.Contains(chunkText, label+": "+value)
}

func intLabel(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
