// Package rag orchestrates the full question-answering pipeline:
// parse, retrieve, format, prompt, generate. It owns the degradation
// policy: the caller always receives retrieval output, even when
// generation is unavailable or out of time.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/llmgate"
	"github.com/MrWong99/reqrag/internal/observe"
	"github.com/MrWong99/reqrag/internal/prompt"
	"github.com/MrWong99/reqrag/internal/queryparse"
	"github.com/MrWong99/reqrag/internal/ragctx"
	"github.com/MrWong99/reqrag/internal/retrieve"
	"github.com/MrWong99/reqrag/pkg/store"
)

// ErrEmptyQuery is returned when the request carries no query text.
var ErrEmptyQuery = errors.New("rag: query must not be empty")

// SearchResult is the retrieval-only response shape shared by /search and
// the degraded /rag paths.
type SearchResult struct {
	Requests   []store.RequestView `json:"requests"`
	TotalCount int                 `json:"total_count"`
	Parsed     store.ParsedQuery   `json:"parsed"`
}

// Answer is the full /rag response.
type Answer struct {
	SearchResult

	// Text is the generated (or canned) answer. Empty when generation was
	// skipped or degraded away.
	Text string `json:"answer,omitempty"`

	// Degraded is true when the caller asked for an LLM answer but only
	// retrieval output could be produced.
	Degraded bool `json:"degraded,omitempty"`

	// Device and GenerationMS describe the generation call when one ran.
	Device       string `json:"device,omitempty"`
	GenerationMS int64  `json:"generation_ms,omitempty"`
}

// Service is the orchestrator. One instance serves all requests.
type Service struct {
	parser    *queryparse.Parser
	retriever *retrieve.Retriever
	formatter *ragctx.Formatter
	gateway   *llmgate.Gateway
	labels    config.LabelsConfig
	timeouts  config.TimeoutsConfig
	log       *slog.Logger
	metrics   *observe.Metrics
}

// New builds the Service. gateway may be nil when no LLM is configured;
// every /rag call then degrades to retrieval-only.
func New(
	parser *queryparse.Parser,
	retriever *retrieve.Retriever,
	formatter *ragctx.Formatter,
	gateway *llmgate.Gateway,
	labels config.LabelsConfig,
	timeouts config.TimeoutsConfig,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		parser:    parser,
		retriever: retriever,
		formatter: formatter,
		gateway:   gateway,
		labels:    labels,
		timeouts:  timeouts,
		log:       log,
		metrics:   observe.DefaultMetrics(),
	}
}

// Search runs parse + retrieve without any LLM involvement.
func (s *Service) Search(ctx context.Context, query string, topK int) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	ctx, cancel := s.withTotalDeadline(ctx)
	defer cancel()

	pq := s.parser.Parse(query)
	s.metrics.RecordQuery(ctx, string(pq.QueryType), string(pq.Intent))
	res, err := s.retriever.Retrieve(ctx, query, pq, topK)
	if errors.Is(err, retrieve.ErrSourceNotFound) {
		return &SearchResult{Requests: []store.RequestView{}, Parsed: pq}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SearchResult{
		Requests:   res.Requests,
		TotalCount: res.TotalCount,
		Parsed:     pq,
	}, nil
}

// Ask runs the full pipeline. useLLM=false behaves exactly like Search.
func (s *Service) Ask(ctx context.Context, query string, topK int, useLLM bool) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	ctx, cancel := s.withTotalDeadline(ctx)
	defer cancel()

	pq := s.parser.Parse(query)
	s.metrics.RecordQuery(ctx, string(pq.QueryType), string(pq.Intent))
	res, err := s.retriever.Retrieve(ctx, query, pq, topK)
	if errors.Is(err, retrieve.ErrSourceNotFound) {
		return &Answer{
			SearchResult: SearchResult{Requests: []store.RequestView{}, Parsed: pq},
			Text:         s.labels.NotFoundAnswer,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	ans := &Answer{SearchResult: SearchResult{
		Requests:   res.Requests,
		TotalCount: res.TotalCount,
		Parsed:     pq,
	}}
	if !useLLM {
		return ans, nil
	}

	// Deterministic project tallies never involve the model.
	if pq.QueryType == store.QueryCount && pq.Entities.ProjectsQuery {
		ans.Text = s.projectCounts(res.Requests)
		return ans, nil
	}

	if len(res.Requests) == 0 {
		ans.Text = s.labels.NoResultsAnswer
		return ans, nil
	}

	if s.gateway == nil {
		ans.Degraded = true
		s.metrics.RecordDegraded(ctx)
		return ans, nil
	}

	p := prompt.Build(prompt.Input{
		Query:   query,
		Parsed:  pq,
		Context: s.formatter.Format(pq, res),
	})

	genCtx := ctx
	if s.timeouts.GenerateMS > 0 {
		var genCancel context.CancelFunc
		genCtx, genCancel = context.WithTimeout(ctx, time.Duration(s.timeouts.GenerateMS)*time.Millisecond)
		defer genCancel()
	}

	gen, err := s.gateway.Generate(genCtx, p.System, p.User)
	switch {
	case err == nil:
		ans.Text = gen.Text
		ans.Device = string(gen.Device)
		ans.GenerationMS = gen.Duration.Milliseconds()
	case errors.Is(err, llmgate.ErrOverloaded):
		return nil, err
	case errors.Is(err, llmgate.ErrUnavailable):
		s.log.Warn("generation unavailable, serving retrieval only", "error", err)
		ans.Degraded = true
		s.metrics.RecordDegraded(ctx)
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("generation timed out, serving retrieval only",
			"generate_ms", s.timeouts.GenerateMS)
		ans.Degraded = true
		ans.Text = s.labels.TimeoutAnswer
		s.metrics.RecordDegraded(ctx)
	default:
		s.log.Error("generation failed, serving retrieval only", "error", err)
		ans.Degraded = true
		s.metrics.RecordDegraded(ctx)
	}
	return ans, nil
}

// projectCounts renders the deterministic count-by-project block.
func (s *Service) projectCounts(requests []store.RequestView) string {
	counts := map[string]int{}
	for _, r := range requests {
		name := r.ProjectName
		if name == "" {
			continue
		}
		counts[name]++
	}

	type kv struct {
		name string
		n    int
	}
	ordered := make([]kv, 0, len(counts))
	for name, n := range counts {
		ordered = append(ordered, kv{name, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].n != ordered[j].n {
			return ordered[i].n > ordered[j].n
		}
		return ordered[i].name < ordered[j].name
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d\n", s.labels.TotalProjects, len(ordered))
	b.WriteString(s.labels.ProjectsCountHeader)
	b.WriteString(":\n")
	for _, e := range ordered {
		fmt.Fprintf(&b, "%s: %d\n", e.name, e.n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) withTotalDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeouts.TotalMS <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.timeouts.TotalMS)*time.Millisecond)
}
