package store

import (
	"strings"
	"testing"
)

func TestSerializeChunkText_SkipsEmptyFields(t *testing.T) {
	got := SerializeChunkText([]ChunkField{
		{Label: LabelProject, Value: "שיקום"},
		{Label: LabelRemarks, Value: ""},
		{Label: LabelArea, Value: "   "},
		{Label: LabelCreatedBy, Value: "דוד"},
	})
	want := "Project: שיקום | Created By: דוד"
	if got != want {
		t.Fatalf("serialized = %q, want %q", got, want)
	}
}

func TestSerializeChunkText_WeightRepeatsField(t *testing.T) {
	got := SerializeChunkText([]ChunkField{
		{Label: LabelProject, Value: "תאורה", Weight: 3},
	})
	if n := strings.Count(got, "Project: תאורה"); n != 3 {
		t.Fatalf("project field emitted %d times, want 3 (%q)", n, got)
	}
}

func TestSerializeChunkText_ZeroWeightMeansOnce(t *testing.T) {
	got := SerializeChunkText([]ChunkField{
		{Label: LabelStatus, Value: "4"},
	})
	if got != "Status: 4" {
		t.Fatalf("serialized = %q, want %q", got, "Status: 4")
	}
}

func TestChunkFieldsFor(t *testing.T) {
	typeID, statusID := 2, 7
	r := RequestView{
		ProjectName:         "שיקום תשתיות",
		ProjectDescription:  "שדרוג קו ביוב",
		AreaDescription:     "רובע הצפון",
		Remarks:             "דחוף",
		CreatedBy:           "רונית",
		ResponsibleEmployee: "יוסי",
		TypeID:              &typeID,
		StatusID:            &statusID,
	}

	text := SerializeChunkText(ChunkFieldsFor(r))

	if n := strings.Count(text, "Project: שיקום תשתיות"); n != 2 {
		t.Errorf("project repeated %d times, want 2", n)
	}
	for _, want := range []string{
		"Project Description: שדרוג קו ביוב",
		"Area: רובע הצפון",
		"Remarks: דחוף",
		"Created By: רונית",
		"Responsible Employee: יוסי",
		"Type: 2",
		"Status: 7",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("chunk text missing %q", want)
		}
	}
	if strings.Contains(text, LabelContactFirstName+":") {
		t.Errorf("empty contact field serialized: %q", text)
	}
}

func TestContainsLabelled(t *testing.T) {
	chunk := "Project: שיקום | Created By: דוד כהן | Status: 4"

	if !ContainsLabelled(chunk, LabelCreatedBy, "דוד כהן") {
		t.Error("expected labelled match for created_by")
	}
	if ContainsLabelled(chunk, LabelProject, "דוד כהן") {
		t.Error("value must match under its own label")
	}
	if ContainsLabelled(chunk, LabelRemarks, "") {
		t.Error("empty value must never match")
	}
}
