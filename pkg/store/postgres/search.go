package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/reqrag/pkg/store"
)

// requestColumns is the trimmed projection selected for every request row.
const requestColumns = `r.request_id, r.project_name, r.project_description,
       r.area_description, r.remarks, r.updated_by, r.created_by,
       r.responsible_employee, r.contact_first_name, r.contact_last_name,
       r.type_id, r.status_id, r.source_id, r.status_date, r.created_date`

// statusDateLayout is the ISO form expected inside the TEXT status_date
// column. Anything else fails the ::date cast at query time.
const statusDateLayout = "2006-01-02"

// builtQuery carries the two SQL statements derived from one [store.ChunkQuery].
// Both are produced by the same predicate construction pass: the count and
// the page can never disagree on filters.
type builtQuery struct {
	searchSQL string
	countSQL  string

	// args and countArgs hold the bound parameters of each statement. They
	// differ when the count runs against requests alone: that statement never
	// references the query vector, and a bound parameter no statement text
	// references is a postgres error. In temp-vector mode both are empty; the
	// vector travels through the transient query_vec table instead.
	args      []any
	countArgs []any

	// useTempVec is set when substring predicates are present: those force
	// a literal (non-parameterised) statement build, so the query vector
	// must not be bound as a parameter of the same statement.
	useTempVec bool
}

// condBuilder accumulates WHERE conditions in either parameter-binding or
// literal mode.
type condBuilder struct {
	literal bool
	conds   []string
	args    []any
}

func (b *condBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

// bindInt renders an integer value for the current mode.
func (b *condBuilder) bindInt(v int) string {
	if b.literal {
		return fmt.Sprintf("%d", v)
	}
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// bindString renders a string value for the current mode. In literal mode a
// control character in v is an error.
func (b *condBuilder) bindString(v string) (string, error) {
	if b.literal {
		return QuoteLiteral(v)
	}
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args)), nil
}

func (b *condBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, "\n  AND ")
}

// buildChunkSQL translates q into the count and search statements.
// dimensions is the vector column dimension, needed for the transient table
// DDL referenced by the caller.
func buildChunkSQL(q store.ChunkQuery) (*builtQuery, error) {
	useTempVec := len(q.Substrings) > 0 && q.Vector != nil
	literal := len(q.Substrings) > 0

	vectorExpr := ""
	b := &condBuilder{literal: literal}
	if q.Vector != nil {
		if useTempVec {
			vectorExpr = "qv.embedding"
		} else {
			b.args = append(b.args, pgvector.NewVector(q.Vector))
			vectorExpr = fmt.Sprintf("$%d", len(b.args))
		}
	}

	// Chunk-level conditions only exist when the statement reads the
	// embeddings table.
	chunkConds := &condBuilder{literal: literal, args: b.args}
	chunkConds.add("e.embedding IS NOT NULL")
	for _, sub := range q.Substrings {
		pat, err := likePattern(sub)
		if err != nil {
			return nil, err
		}
		chunkConds.add(fmt.Sprintf(`e.text_chunk LIKE %s ESCAPE '\'`, pat))
	}
	if q.Threshold > 0 {
		if q.Vector == nil {
			return nil, fmt.Errorf("threshold %v requires a query vector", q.Threshold)
		}
		chunkConds.add(fmt.Sprintf("(1 - (e.embedding <=> %s)) >= %v", vectorExpr, q.Threshold))
	}

	// Request-level conditions apply to both statements.
	reqConds := &condBuilder{literal: literal, args: chunkConds.args}
	if err := appendRequestConds(reqConds, q); err != nil {
		return nil, err
	}

	simExpr := "0"
	if q.Vector != nil {
		simExpr = fmt.Sprintf("1 - (e.embedding <=> %s)", vectorExpr)
	}

	joinFrom := "FROM request_embeddings e\nJOIN requests r ON r.request_id = e.request_id"
	if useTempVec {
		joinFrom += "\nCROSS JOIN query_vec qv"
	}

	allConds := append(append([]string{}, chunkConds.conds...), reqConds.conds...)
	whereAll := ""
	if len(allConds) > 0 {
		whereAll = "WHERE " + strings.Join(allConds, "\n  AND ")
	}

	limit := q.Limit
	if limit < 0 {
		limit = 0
	}

	searchSQL := fmt.Sprintf(`
SELECT %s,
       e.chunk_index, e.text_chunk,
       %s AS similarity
%s
%s
ORDER BY similarity DESC, r.request_id ASC, e.chunk_index ASC
LIMIT %d`, requestColumns, simExpr, joinFrom, whereAll, limit)

	// The count joins the chunk table only when a chunk-level predicate
	// beyond embedding presence exists. For purely structured queries the
	// count runs against requests alone, so a request whose chunks are still
	// pending embedding is counted exactly as raw SQL would count it. That
	// statement gets its own predicate pass: its placeholders start at $1 and
	// the query vector is never bound to it.
	var (
		countSQL  string
		countArgs []any
	)
	if len(q.Substrings) > 0 || q.Threshold > 0 {
		countSQL = fmt.Sprintf(`
SELECT COUNT(DISTINCT e.request_id)
%s
%s`, joinFrom, whereAll)
		countArgs = reqConds.args
	} else {
		countConds := &condBuilder{literal: literal}
		if err := appendRequestConds(countConds, q); err != nil {
			return nil, err
		}
		countSQL = fmt.Sprintf(`
SELECT COUNT(*)
FROM requests r
%s`, countConds.where())
		countArgs = countConds.args
	}

	args := reqConds.args
	if useTempVec {
		args = nil
		countArgs = nil
	}
	return &builtQuery{
		searchSQL:  searchSQL,
		countSQL:   countSQL,
		args:       args,
		countArgs:  countArgs,
		useTempVec: useTempVec,
	}, nil
}

// appendRequestConds adds the structured predicates derived from
// [store.RequestFilters] plus the exclusion filter. All date comparisons
// cast the TEXT status_date column with ::date.
func appendRequestConds(b *condBuilder, q store.ChunkQuery) error {
	f := q.Filters
	if f.TypeID != nil {
		b.add("r.type_id = " + b.bindInt(*f.TypeID))
	}
	if f.StatusID != nil {
		b.add("r.status_id = " + b.bindInt(*f.StatusID))
	}
	if dr := f.DateRange; dr != nil {
		switch dr.Kind {
		case store.DateLastNDays, store.DateLastWeek, store.DateLastMonth:
			b.add(fmt.Sprintf("r.status_date::date >= CURRENT_DATE - %s", b.bindInt(dr.Days)))
		default:
			if !dr.Start.IsZero() {
				v, err := b.bindString(dr.Start.Format(statusDateLayout))
				if err != nil {
					return err
				}
				b.add(fmt.Sprintf("r.status_date::date >= %s::date", v))
			}
			if !dr.End.IsZero() {
				v, err := b.bindString(dr.End.Format(statusDateLayout))
				if err != nil {
					return err
				}
				b.add(fmt.Sprintf("r.status_date::date <= %s::date", v))
			}
		}
	}
	if f.UrgentWithinDays > 0 {
		b.add(fmt.Sprintf(
			"r.status_date::date BETWEEN CURRENT_DATE AND CURRENT_DATE + %s",
			b.bindInt(f.UrgentWithinDays)))
	}
	if q.ExcludeRequestID != "" {
		v, err := b.bindString(q.ExcludeRequestID)
		if err != nil {
			return err
		}
		b.add("r.request_id <> " + v)
	}
	return nil
}

// SearchChunks implements [store.Store].
func (s *Store) SearchChunks(ctx context.Context, q store.ChunkQuery) ([]store.ChunkHit, error) {
	built, err := buildChunkSQL(q)
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}

	var rows pgx.Rows
	if built.useTempVec {
		rows, err = s.queryWithTempVec(ctx, built.searchSQL, q.Vector)
	} else {
		rows, err = s.pool.Query(ctx, built.searchSQL, built.args...)
	}
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}

	hits, err := pgx.CollectRows(rows, scanChunkHit)
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}
	if hits == nil {
		hits = []store.ChunkHit{}
	}
	return hits, nil
}

// CountRequests implements [store.Store].
func (s *Store) CountRequests(ctx context.Context, q store.ChunkQuery) (int, error) {
	built, err := buildChunkSQL(q)
	if err != nil {
		return 0, &store.BackendError{Kind: store.QueryKindCount, Err: err}
	}

	var rows pgx.Rows
	if built.useTempVec {
		rows, err = s.queryWithTempVec(ctx, built.countSQL, q.Vector)
	} else {
		rows, err = s.pool.Query(ctx, built.countSQL, built.countArgs...)
	}
	if err != nil {
		return 0, &store.BackendError{Kind: store.QueryKindCount, Err: err}
	}

	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, &store.BackendError{Kind: store.QueryKindCount, Err: err}
	}
	return count, nil
}

// queryWithTempVec runs sql inside a transaction after staging the query
// vector in a single-row transient table. The statement itself carries no
// placeholders (substring literals are escaped in code), so LIKE patterns
// can never collide with parameter syntax; the vector is bound only on the
// INSERT, which contains no pattern text.
func (s *Store) queryWithTempVec(ctx context.Context, sql string, vec []float32) (pgx.Rows, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	ddl := fmt.Sprintf(
		"CREATE TEMP TABLE query_vec (embedding vector(%d)) ON COMMIT DROP", s.dimensions)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO query_vec (embedding) VALUES ($1)", pgvector.NewVector(vec)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return &txRows{Rows: rows, ctx: ctx, tx: tx}, nil
}

// txRows closes the surrounding transaction when the row stream is done.
type txRows struct {
	pgx.Rows
	ctx context.Context
	tx  pgx.Tx
}

func (r *txRows) Close() {
	r.Rows.Close()
	if r.Rows.Err() != nil {
		_ = r.tx.Rollback(r.ctx)
		return
	}
	_ = r.tx.Commit(r.ctx)
}

// scanChunkHit scans one search row into a [store.ChunkHit].
func scanChunkHit(row pgx.CollectableRow) (store.ChunkHit, error) {
	var (
		hit        store.ChunkHit
		projName   *string
		projDesc   *string
		area       *string
		remarks    *string
		updatedBy  *string
		createdBy  *string
		respEmp    *string
		contactFN  *string
		contactLN  *string
		statusDate *string
	)
	err := row.Scan(
		&hit.Request.RequestID,
		&projName, &projDesc, &area, &remarks,
		&updatedBy, &createdBy, &respEmp, &contactFN, &contactLN,
		&hit.Request.TypeID, &hit.Request.StatusID, &hit.Request.SourceID,
		&statusDate, &hit.Request.CreatedDate,
		&hit.ChunkIndex, &hit.ChunkText,
		&hit.Similarity,
	)
	if err != nil {
		return store.ChunkHit{}, err
	}
	hit.Request.ProjectName = deref(projName)
	hit.Request.ProjectDescription = deref(projDesc)
	hit.Request.AreaDescription = deref(area)
	hit.Request.Remarks = deref(remarks)
	hit.Request.UpdatedBy = deref(updatedBy)
	hit.Request.CreatedBy = deref(createdBy)
	hit.Request.ResponsibleEmployee = deref(respEmp)
	hit.Request.ContactFirstName = deref(contactFN)
	hit.Request.ContactLastName = deref(contactLN)
	hit.Request.StatusDate = parseStatusDate(statusDate)
	return hit, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseStatusDate converts the TEXT status_date column into a time value.
// Unparseable text is treated as absent; the SQL layer is where bad dates
// are meant to surface, via the ::date cast.
func parseStatusDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(statusDateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}
