package store

import "time"

// Intent is the broad subject of a parsed query: who the user is asking
// about, which project, which classifier, or nothing specific at all.
type Intent string

const (
	IntentPerson  Intent = "person"
	IntentProject Intent = "project"
	IntentType    Intent = "type"
	IntentStatus  Intent = "status"
	IntentGeneral Intent = "general"
)

// IsValid reports whether i is a recognised intent.
func (i Intent) IsValid() bool {
	switch i {
	case IntentPerson, IntentProject, IntentType, IntentStatus, IntentGeneral:
		return true
	}
	return false
}

// QueryType is the action verb of a query: what the user wants done with the
// matching requests.
type QueryType string

const (
	QueryFind            QueryType = "find"
	QueryCount           QueryType = "count"
	QuerySummarize       QueryType = "summarize"
	QuerySimilar         QueryType = "similar"
	QueryUrgent          QueryType = "urgent"
	QueryAnswerRetrieval QueryType = "answer_retrieval"
)

// IsValid reports whether q is a recognised query type.
func (q QueryType) IsValid() bool {
	switch q {
	case QueryFind, QueryCount, QuerySummarize, QuerySimilar, QueryUrgent, QueryAnswerRetrieval:
		return true
	}
	return false
}

// DateRangeKind tags which form of temporal expression produced a [DateRange].
type DateRangeKind string

const (
	DateLastNDays DateRangeKind = "last_n_days"
	DateLastWeek  DateRangeKind = "last_week"
	DateLastMonth DateRangeKind = "last_month"
	DateRangeFull DateRangeKind = "range"
	DateSingle    DateRangeKind = "single"
)

// DateRange is a temporal filter extracted from a query. Depending on Kind,
// either Days is set (relative forms) or Start/End are set (absolute forms).
// A zero Start or End means that bound is open.
type DateRange struct {
	Kind  DateRangeKind
	Days  int
	Start time.Time
	End   time.Time
}

// Entities holds every entity the parser recognised in a query. All fields
// are extracted independently of the chosen intent so the retriever can
// AND-compose them. Pointer fields are nil when absent; Urgency is always
// set explicitly (false when no urgency marker was seen).
type Entities struct {
	PersonName    string
	ProjectName   string
	TypeID        *int
	StatusID      *int
	DateRange     *DateRange
	Urgency       bool
	RequestID     string
	ProjectsQuery bool
}

// Empty reports whether no entity at all was extracted.
func (e Entities) Empty() bool {
	return e.PersonName == "" && e.ProjectName == "" && e.TypeID == nil &&
		e.StatusID == nil && e.DateRange == nil && !e.Urgency &&
		e.RequestID == "" && !e.ProjectsQuery
}

// HasStructured reports whether any entity translates to an exact SQL
// predicate on the requests table.
func (e Entities) HasStructured() bool {
	return e.TypeID != nil || e.StatusID != nil || e.DateRange != nil || e.Urgency
}

// HasText reports whether any entity translates to a substring predicate
// against chunk text.
func (e Entities) HasText() bool {
	return e.PersonName != "" || e.ProjectName != ""
}

// ParsedQuery is the structured interpretation of a free-text question.
// It lives for the duration of one request and owns its strings.
type ParsedQuery struct {
	Intent       Intent    `json:"intent"`
	QueryType    QueryType `json:"query_type"`
	Entities     Entities  `json:"entities"`
	TargetFields []string  `json:"target_fields"`
}

// RequestView is the trimmed projection of a work request returned to
// callers. Similarity is in [0,1]; Boost is the ranking multiplier that was
// applied (1.0 when no lexical match contributed).
type RequestView struct {
	RequestID           string     `json:"request_id"`
	ProjectName         string     `json:"project_name,omitempty"`
	ProjectDescription  string     `json:"project_description,omitempty"`
	AreaDescription     string     `json:"area_description,omitempty"`
	Remarks             string     `json:"remarks,omitempty"`
	UpdatedBy           string     `json:"updated_by,omitempty"`
	CreatedBy           string     `json:"created_by,omitempty"`
	ResponsibleEmployee string     `json:"responsible_employee,omitempty"`
	ContactFirstName    string     `json:"contact_first_name,omitempty"`
	ContactLastName     string     `json:"contact_last_name,omitempty"`
	TypeID              *int       `json:"type_id,omitempty"`
	StatusID            *int       `json:"status_id,omitempty"`
	SourceID            *int       `json:"source_id,omitempty"`
	StatusDate          *time.Time `json:"status_date,omitempty"`
	CreatedDate         *time.Time `json:"created_date,omitempty"`
	Similarity          float64    `json:"similarity"`
	Boost               float64    `json:"boost"`
}

// RetrievalResult is the outcome of one hybrid retrieval: the ranked page of
// requests plus the accurate total count of distinct requests matching the
// same predicates.
type RetrievalResult struct {
	Requests   []RequestView      `json:"requests"`
	TotalCount int                `json:"total_count"`
	Scores     map[string]float64 `json:"-"`
}

// ChunkHit is one request_embeddings row matched by a chunk-level search,
// carrying the request projection it belongs to, the chunk text (needed for
// boosting) and the cosine similarity to the query vector.
type ChunkHit struct {
	Request    RequestView
	ChunkIndex int
	ChunkText  string
	Similarity float64
}

// Chunk is one embedded segment of a request's serialised text, as written
// by the embedding pipeline and read by the retriever.
type Chunk struct {
	RequestID  string
	ChunkIndex int
	Text       string
	Embedding  []float32
	Metadata   map[string]string
}

// RequestFilters are the exact SQL predicates derived from structured
// entities. Nil pointer fields are absent. UrgentWithinDays > 0 narrows to
// requests whose status date falls between today and today+N days inclusive.
type RequestFilters struct {
	TypeID           *int
	StatusID         *int
	DateRange        *DateRange
	UrgentWithinDays int
}

// Empty reports whether no structured predicate is present.
func (f RequestFilters) Empty() bool {
	return f.TypeID == nil && f.StatusID == nil && f.DateRange == nil && f.UrgentWithinDays == 0
}

// ChunkQuery describes one chunk-level search against the store. The count
// query and the page query are both derived from the same ChunkQuery so they
// can never disagree on predicates.
type ChunkQuery struct {
	// Vector is the query embedding. Nil disables semantic ordering and the
	// similarity threshold (only valid when Filters or Substrings are set).
	Vector []float32

	// Filters are exact predicates on the requests table.
	Filters RequestFilters

	// Substrings are matched against text_chunk with AND semantics.
	// Patterns are escaped by the store; callers pass raw entity strings.
	Substrings []string

	// Threshold gates chunks by similarity. Zero means no gate.
	Threshold float64

	// Limit caps the number of chunk rows fetched.
	Limit int

	// ExcludeRequestID removes one request from the result set (used by
	// similar-by-id so the source does not match itself).
	ExcludeRequestID string
}
