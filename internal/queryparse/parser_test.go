package queryparse_test

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/queryparse"
	"github.com/MrWong99/reqrag/pkg/store"
)

func newParser(t *testing.T) *queryparse.Parser {
	t.Helper()
	return queryparse.New(config.DefaultQueryConfig())
}

func TestParse_QueryTypePriority(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	cases := []struct {
		query string
		want  store.QueryType
	}{
		{"אילו בקשות דחופות יש", store.QueryUrgent},
		{"מה התשובה לבקשה 789", store.QueryAnswerRetrieval},
		{"בקשות דומות לבקשה 4521", store.QuerySimilar},
		{"כמה בקשות יש מסוג 5", store.QueryCount},
		{"תסכם את הבקשות מהשבוע האחרון", store.QuerySummarize},
		{"תביא בקשות של דוד", store.QueryFind},
		{"", store.QueryFind},
	}
	for _, tc := range cases {
		if got := p.Parse(tc.query).QueryType; got != tc.want {
			t.Errorf("Parse(%q).QueryType = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestParse_CountWithType(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("כמה בקשות יש מסוג 5")
	if pq.QueryType != store.QueryCount {
		t.Errorf("QueryType = %q, want count", pq.QueryType)
	}
	if pq.Intent != store.IntentType {
		t.Errorf("Intent = %q, want type", pq.Intent)
	}
	if pq.Entities.TypeID == nil || *pq.Entities.TypeID != 5 {
		t.Errorf("TypeID = %v, want 5", pq.Entities.TypeID)
	}
	if pq.Entities.ProjectsQuery {
		t.Error("ProjectsQuery should be false without a projects marker")
	}
}

func TestParse_PersonName(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	cases := []struct {
		query    string
		wantName string
	}{
		{"תביא לי את הבקשות של דוד כהן", "דוד כהן"},
		{"בקשות מדוד", "דוד"},
		{"בקשות מאבי", "אבי"},
		{"בקשות על ידי משה לוי", "משה לוי"},
		{"בקשות של דוד מסוג 3", "דוד"},
		{"בקשות של דוד בפרויקט שיקום", "דוד"},
	}
	for _, tc := range cases {
		pq := p.Parse(tc.query)
		if pq.Entities.PersonName != tc.wantName {
			t.Errorf("Parse(%q).PersonName = %q, want %q", tc.query, pq.Entities.PersonName, tc.wantName)
		}
		if pq.Intent != store.IntentPerson && pq.Entities.TypeID == nil {
			t.Errorf("Parse(%q).Intent = %q, want person", tc.query, pq.Intent)
		}
	}
}

func TestParse_PersonIntentRequiresContext(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	// Two Hebrew words without a person-context token stay general.
	pq := p.Parse("תיאום תכנון")
	if pq.Intent != store.IntentGeneral {
		t.Errorf("Intent = %q, want general", pq.Intent)
	}
	if pq.Entities.PersonName != "" {
		t.Errorf("PersonName = %q, want empty", pq.Entities.PersonName)
	}
}

func TestParse_FillerNeverInName(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("תביא לי בקשות של לי דוד")
	if pq.Entities.PersonName != "דוד" {
		t.Errorf("PersonName = %q, want %q", pq.Entities.PersonName, "דוד")
	}
}

func TestParse_ProjectName(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("בקשות בפרויקט שיקום העיר")
	if pq.Entities.ProjectName != "שיקום העיר" {
		t.Errorf("ProjectName = %q, want %q", pq.Entities.ProjectName, "שיקום העיר")
	}
	if pq.Intent != store.IntentProject {
		t.Errorf("Intent = %q, want project", pq.Intent)
	}
	if got := pq.TargetFields; len(got) == 0 || got[0] != store.LabelProject {
		t.Errorf("TargetFields = %v, want leading %q", got, store.LabelProject)
	}
}

func TestParse_PersonBeforeProjectWins(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("בקשות של דוד בפרויקט שיקום")
	if pq.Intent != store.IntentPerson {
		t.Errorf("Intent = %q, want person", pq.Intent)
	}
	if pq.Entities.ProjectName != "שיקום" {
		t.Errorf("ProjectName = %q, want independently extracted %q", pq.Entities.ProjectName, "שיקום")
	}
}

func TestParse_StatusID(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("בקשות בסטטוס 2")
	if pq.Entities.StatusID == nil || *pq.Entities.StatusID != 2 {
		t.Fatalf("StatusID = %v, want 2", pq.Entities.StatusID)
	}
	if pq.Intent != store.IntentStatus {
		t.Errorf("Intent = %q, want status", pq.Intent)
	}
	if len(pq.TargetFields) != 1 || pq.TargetFields[0] != store.LabelStatus {
		t.Errorf("TargetFields = %v, want [Status]", pq.TargetFields)
	}
}

func TestParse_Urgency(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("אילו בקשות דחופות יש")
	if !pq.Entities.Urgency {
		t.Error("Urgency = false, want true")
	}
	if pq.QueryType != store.QueryUrgent {
		t.Errorf("QueryType = %q, want urgent", pq.QueryType)
	}

	pq = p.Parse("בקשות של דוד")
	if pq.Entities.Urgency {
		t.Error("Urgency should default to false, not missing")
	}
}

func TestParse_DateRanges(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	mustDate := func(s string) time.Time {
		t.Helper()
		d, err := time.Parse("02/01/2006", s)
		if err != nil {
			t.Fatalf("bad test date %q: %v", s, err)
		}
		return d
	}

	t.Run("explicit range", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות מתאריך 01/02/2026 עד 15/02/2026")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateRangeFull {
			t.Fatalf("DateRange = %+v, want range", dr)
		}
		if !dr.Start.Equal(mustDate("01/02/2026")) || !dr.End.Equal(mustDate("15/02/2026")) {
			t.Errorf("bounds = %v..%v", dr.Start, dr.End)
		}
	})

	t.Run("until only", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות עד 15/03/2026")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateSingle {
			t.Fatalf("DateRange = %+v, want single", dr)
		}
		if !dr.Start.IsZero() || dr.End.IsZero() {
			t.Errorf("want end-bounded single, got start=%v end=%v", dr.Start, dr.End)
		}
	})

	t.Run("from only", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות מתאריך 01/03/2026")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateSingle {
			t.Fatalf("DateRange = %+v, want single", dr)
		}
		if dr.Start.IsZero() || !dr.End.IsZero() {
			t.Errorf("want start-bounded single, got start=%v end=%v", dr.Start, dr.End)
		}
	})

	t.Run("last n days", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות מה-30 הימים האחרונים")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateLastNDays || dr.Days != 30 {
			t.Fatalf("DateRange = %+v, want last_n_days 30", dr)
		}
	})

	t.Run("last week", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות בשבוע האחרון")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateLastWeek || dr.Days != 7 {
			t.Fatalf("DateRange = %+v, want last_week", dr)
		}
	})

	t.Run("last month", func(t *testing.T) {
		t.Parallel()
		pq := p.Parse("בקשות בחודש האחרון")
		dr := pq.Entities.DateRange
		if dr == nil || dr.Kind != store.DateLastMonth || dr.Days != 30 {
			t.Fatalf("DateRange = %+v, want last_month", dr)
		}
	})
}

func TestParse_RequestID(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("מה התשובה לבקשה 789")
	if pq.Entities.RequestID != "789" {
		t.Errorf("RequestID = %q, want 789", pq.Entities.RequestID)
	}

	// Digit runs carrying bidi marks still extract for similar queries,
	// even when the number precedes the marker.
	pq = p.Parse("בקשה ‏4521‏ מה דומה לה")
	if pq.QueryType != store.QuerySimilar {
		t.Fatalf("QueryType = %q, want similar", pq.QueryType)
	}
	if pq.Entities.RequestID != "4521" {
		t.Errorf("RequestID = %q, want 4521", pq.Entities.RequestID)
	}
}

func TestParse_ProjectsCount(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("כמה בקשות יש לפי פרויקטים")
	if pq.QueryType != store.QueryCount {
		t.Fatalf("QueryType = %q, want count", pq.QueryType)
	}
	if !pq.Entities.ProjectsQuery {
		t.Error("ProjectsQuery = false, want true")
	}
}

func TestParse_NeverFails(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	for _, q := range []string{"", "   ", "?!", "hello world", "שלום", "123 456 789"} {
		pq := p.Parse(q)
		if pq.Intent != store.IntentGeneral {
			t.Errorf("Parse(%q).Intent = %q, want general", q, pq.Intent)
		}
		if pq.QueryType != store.QueryFind {
			t.Errorf("Parse(%q).QueryType = %q, want find", q, pq.QueryType)
		}
	}
}

func TestParse_FieldKeywordsSelectTargetFields(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	pq := p.Parse("בקשות בסטטוס 2 עם הערות")
	want := []string{store.LabelStatus, store.LabelRemarks}
	if !reflect.DeepEqual(pq.TargetFields, want) {
		t.Errorf("TargetFields = %v, want %v", pq.TargetFields, want)
	}

	// Keywords rank after the intent's fields, in query order.
	pq = p.Parse("הצג הערות וגם תיאור לבקשות מסוג 3")
	want = []string{store.LabelType, store.LabelRemarks, store.LabelProjectDescription}
	if !reflect.DeepEqual(pq.TargetFields, want) {
		t.Errorf("TargetFields = %v, want %v", pq.TargetFields, want)
	}

	// A keyword whose label the intent already selected is not repeated.
	pq = p.Parse("תיאור הבקשות בפרויקט שיקום")
	want = []string{store.LabelProject, store.LabelProjectDescription}
	if !reflect.DeepEqual(pq.TargetFields, want) {
		t.Errorf("TargetFields = %v, want %v", pq.TargetFields, want)
	}
}

// renderQuery writes a parsed query back as Hebrew text, one canonical
// phrasing per extracted element.
func renderQuery(pq store.ParsedQuery) string {
	var parts []string
	switch pq.QueryType {
	case store.QueryAnswerRetrieval:
		return "מה התשובה לבקשה " + pq.Entities.RequestID
	case store.QuerySimilar:
		return "בקשות דומות לבקשה " + pq.Entities.RequestID
	case store.QueryCount:
		parts = append(parts, "כמה")
	case store.QuerySummarize:
		parts = append(parts, "תסכם")
	case store.QueryFind:
		parts = append(parts, "תביא")
	}
	parts = append(parts, "בקשות")
	if pq.Entities.Urgency {
		parts = append(parts, "דחופות")
	}
	if pq.Entities.PersonName != "" {
		parts = append(parts, "של", pq.Entities.PersonName)
	}
	if pq.Entities.ProjectName != "" {
		parts = append(parts, "בפרויקט", pq.Entities.ProjectName)
	}
	if pq.Entities.TypeID != nil {
		parts = append(parts, "מסוג", strconv.Itoa(*pq.Entities.TypeID))
	}
	if pq.Entities.StatusID != nil {
		parts = append(parts, "בסטטוס", strconv.Itoa(*pq.Entities.StatusID))
	}
	if pq.Entities.ProjectsQuery {
		parts = append(parts, "לפי פרויקטים")
	}
	if dr := pq.Entities.DateRange; dr != nil {
		switch dr.Kind {
		case store.DateLastWeek:
			parts = append(parts, "בשבוע האחרון")
		case store.DateLastMonth:
			parts = append(parts, "בחודש האחרון")
		case store.DateLastNDays:
			parts = append(parts, fmt.Sprintf("ב-%d הימים האחרונים", dr.Days))
		default:
			if !dr.Start.IsZero() {
				parts = append(parts, "מתאריך", dr.Start.Format("02/01/2006"))
			}
			if !dr.End.IsZero() {
				parts = append(parts, "עד", dr.End.Format("02/01/2006"))
			}
		}
	}
	return strings.Join(parts, " ")
}

func TestParse_RoundTripStable(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	queries := []string{
		"כמה בקשות יש מסוג 5",
		"תביא בקשות של דוד כהן",
		"אילו בקשות דחופות יש",
		"בקשות בפרויקט שיקום",
		"תסכם בקשות בשבוע האחרון",
		"בקשות בסטטוס 2",
		"כמה בקשות יש לפי פרויקטים",
		"בקשות מתאריך 01/02/2026 עד 15/02/2026",
		"מה התשובה לבקשה 789",
		"בקשות דומות לבקשה 4521",
	}
	for _, q := range queries {
		first := p.Parse(q)
		again := p.Parse(renderQuery(first))
		if !reflect.DeepEqual(first, again) {
			t.Errorf("Parse(%q) changed across a render round trip:\nfirst: %+v\nagain: %+v", q, first, again)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()
	p := newParser(t)

	const q = "כמה בקשות דחופות יש של דוד כהן מסוג 2 בשבוע האחרון"
	first := p.Parse(q)
	for range 10 {
		if got := p.Parse(q); got.Intent != first.Intent || got.QueryType != first.QueryType ||
			got.Entities.PersonName != first.Entities.PersonName {
			t.Fatal("Parse is not deterministic")
		}
	}
}
