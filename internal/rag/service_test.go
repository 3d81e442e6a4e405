package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/llmgate"
	"github.com/MrWong99/reqrag/internal/queryparse"
	"github.com/MrWong99/reqrag/internal/rag"
	"github.com/MrWong99/reqrag/internal/ragctx"
	"github.com/MrWong99/reqrag/internal/retrieve"
	embedmock "github.com/MrWong99/reqrag/pkg/provider/embeddings/mock"
	"github.com/MrWong99/reqrag/pkg/provider/llm"
	llmmock "github.com/MrWong99/reqrag/pkg/provider/llm/mock"
	"github.com/MrWong99/reqrag/pkg/store"
	storemock "github.com/MrWong99/reqrag/pkg/store/mock"
)

func newService(t *testing.T, st store.Store, p llm.Provider) *rag.Service {
	t.Helper()
	qcfg := config.DefaultQueryConfig()

	var gateway *llmgate.Gateway
	if p != nil {
		gateway = llmgate.New(func(context.Context) (llm.Provider, llmgate.Device, error) {
			return p, llmgate.DeviceCPU, nil
		}, config.DefaultGeneration(), nil)
	}

	return rag.New(
		queryparse.New(qcfg),
		retrieve.New(st, embedmock.New(8), qcfg, nil),
		ragctx.New(qcfg.Labels, qcfg.UrgencyHorizonDays, nil),
		gateway,
		qcfg.Labels,
		config.DefaultTimeouts(),
		nil,
	)
}

func storeWith(requests ...store.RequestView) *storemock.Store {
	return &storemock.Store{
		SearchChunksFunc: func(context.Context, store.ChunkQuery) ([]store.ChunkHit, error) {
			hits := make([]store.ChunkHit, len(requests))
			for i, r := range requests {
				hits[i] = store.ChunkHit{Request: r, Similarity: 0.9}
			}
			return hits, nil
		},
		CountRequestsFunc: func(context.Context, store.ChunkQuery) (int, error) {
			return len(requests), nil
		},
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()
	s := newService(t, &storemock.Store{}, nil)

	if _, err := s.Search(context.Background(), "  ", 10); !errors.Is(err, rag.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestSearch_NoLLMInvolved(t *testing.T) {
	t.Parallel()
	p := llmmock.New("must not be called")
	s := newService(t, storeWith(store.RequestView{RequestID: "R1"}), p)

	res, err := s.Search(context.Background(), "בקשות של דוד", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Requests) != 1 || res.TotalCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Parsed.Intent != store.IntentPerson {
		t.Errorf("parsed intent = %q, want person", res.Parsed.Intent)
	}
	if len(p.Calls()) != 0 {
		t.Error("search must never call the LLM")
	}
}

func TestAsk_GeneratesAnswer(t *testing.T) {
	t.Parallel()
	p := llmmock.New("נמצאו שתי בקשות של דוד")
	s := newService(t, storeWith(
		store.RequestView{RequestID: "R1", UpdatedBy: "דוד"},
		store.RequestView{RequestID: "R2", UpdatedBy: "דוד"},
	), p)

	ans, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "נמצאו שתי בקשות של דוד" {
		t.Errorf("answer = %q", ans.Text)
	}
	if ans.Degraded {
		t.Error("answer should not be degraded")
	}
	if ans.Device != "cpu" {
		t.Errorf("device = %q, want cpu", ans.Device)
	}
	if len(ans.Requests) != 2 {
		t.Errorf("requests = %d, want 2", len(ans.Requests))
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].UserPrompt, "R1") {
		t.Error("prompt must carry the formatted context")
	}
	if !strings.HasSuffix(calls[0].UserPrompt, "בקשות של דוד") {
		t.Error("prompt must end with the original query")
	}
}

func TestAsk_UseLLMFalseIsSearch(t *testing.T) {
	t.Parallel()
	p := llmmock.New("must not be called")
	s := newService(t, storeWith(store.RequestView{RequestID: "R1"}), p)

	ans, err := s.Ask(context.Background(), "בקשות של דוד", 10, false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "" || ans.Degraded {
		t.Errorf("retrieval-only answer should carry no text, got %+v", ans)
	}
	if len(p.Calls()) != 0 {
		t.Error("use_llm=false must not call the LLM")
	}
}

func TestAsk_ProjectsCountShortCircuit(t *testing.T) {
	t.Parallel()
	p := llmmock.New("must not be called")
	s := newService(t, storeWith(
		store.RequestView{RequestID: "R1", ProjectName: "שיקום"},
		store.RequestView{RequestID: "R2", ProjectName: "שיקום"},
		store.RequestView{RequestID: "R3", ProjectName: "תאורה"},
	), p)

	ans, err := s.Ask(context.Background(), "כמה בקשות יש לפי פרויקטים", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.HasPrefix(ans.Text, "סהכ פרויקטים: 2") {
		t.Errorf("distinct-project total missing, got:\n%s", ans.Text)
	}
	lines := strings.Split(ans.Text, "\n")
	if len(lines) != 4 || lines[1] != "מספר בקשות לפי פרויקט:" ||
		lines[2] != "שיקום: 2" || lines[3] != "תאורה: 1" {
		t.Errorf("tallies wrong or unordered, got:\n%s", ans.Text)
	}
	if len(p.Calls()) != 0 {
		t.Error("projects count must not call the LLM")
	}
}

func TestAsk_SimilarNotFound(t *testing.T) {
	t.Parallel()
	p := llmmock.New("must not be called")
	s := newService(t, &storemock.Store{}, p)

	ans, err := s.Ask(context.Background(), "בקשות דומות לבקשה 999", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "לא נמצאה בקשה עם המזהה שצוין" {
		t.Errorf("answer = %q, want canned not-found", ans.Text)
	}
	if len(ans.Requests) != 0 {
		t.Errorf("requests = %d, want 0", len(ans.Requests))
	}
	if len(p.Calls()) != 0 {
		t.Error("not-found must not call the LLM")
	}
}

func TestAsk_NoResultsCannedAnswer(t *testing.T) {
	t.Parallel()
	p := llmmock.New("must not be called")
	s := newService(t, &storemock.Store{}, p)

	ans, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "לא נמצאו בקשות התואמות את החיפוש" {
		t.Errorf("answer = %q, want canned no-results", ans.Text)
	}
	if len(p.Calls()) != 0 {
		t.Error("empty retrieval must not call the LLM")
	}
}

func TestAsk_UnavailableDegrades(t *testing.T) {
	t.Parallel()
	qcfg := config.DefaultQueryConfig()
	st := storeWith(store.RequestView{RequestID: "R1"})
	gateway := llmgate.New(func(context.Context) (llm.Provider, llmgate.Device, error) {
		return nil, "", errors.New("weights missing")
	}, config.DefaultGeneration(), nil)

	s := rag.New(
		queryparse.New(qcfg),
		retrieve.New(st, embedmock.New(8), qcfg, nil),
		ragctx.New(qcfg.Labels, qcfg.UrgencyHorizonDays, nil),
		gateway,
		qcfg.Labels,
		config.DefaultTimeouts(),
		nil,
	)

	ans, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Degraded {
		t.Error("answer must be degraded when the model is unavailable")
	}
	if len(ans.Requests) != 1 {
		t.Error("retrieval output must survive degradation")
	}
}

func TestAsk_OverloadedPropagates(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)

	blocking := &llmmock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	gcfg := config.DefaultGeneration()
	gcfg.QueueDepth = 1
	gateway := llmgate.New(func(context.Context) (llm.Provider, llmgate.Device, error) {
		return blocking, llmgate.DeviceCPU, nil
	}, gcfg, nil)

	qcfg := config.DefaultQueryConfig()
	st := storeWith(store.RequestView{RequestID: "R1"})
	s := rag.New(
		queryparse.New(qcfg),
		retrieve.New(st, embedmock.New(8), qcfg, nil),
		ragctx.New(qcfg.Labels, qcfg.UrgencyHorizonDays, nil),
		gateway,
		qcfg.Labels,
		config.DefaultTimeouts(),
		nil,
	)

	started := make(chan struct{})
	go func() {
		close(started)
		s.Ask(context.Background(), "בקשות של דוד", 10, true) //nolint:errcheck
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first call occupy the queue

	_, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	if !errors.Is(err, llmgate.ErrOverloaded) {
		t.Fatalf("err = %v, want ErrOverloaded", err)
	}
}

func TestAsk_GenerationTimeoutReturnsRetrieval(t *testing.T) {
	t.Parallel()
	slow := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	gateway := llmgate.New(func(context.Context) (llm.Provider, llmgate.Device, error) {
		return slow, llmgate.DeviceCPU, nil
	}, config.DefaultGeneration(), nil)

	qcfg := config.DefaultQueryConfig()
	st := storeWith(store.RequestView{RequestID: "R1"})
	timeouts := config.TimeoutsConfig{TotalMS: 5000, GenerateMS: 30}
	s := rag.New(
		queryparse.New(qcfg),
		retrieve.New(st, embedmock.New(8), qcfg, nil),
		ragctx.New(qcfg.Labels, qcfg.UrgencyHorizonDays, nil),
		gateway,
		qcfg.Labels,
		timeouts,
		nil,
	)

	ans, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Degraded {
		t.Error("timeout must degrade the answer")
	}
	if ans.Text != "לא ניתן היה להפיק תשובה בזמן, מוחזרות הבקשות שאותרו" {
		t.Errorf("answer = %q, want timeout message", ans.Text)
	}
	if len(ans.Requests) != 1 {
		t.Error("retrieval output must survive the timeout")
	}
}

func TestAsk_BackendErrorAborts(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{
		SearchChunksFunc: func(context.Context, store.ChunkQuery) ([]store.ChunkHit, error) {
			return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: errors.New("down")}
		},
	}
	p := llmmock.New("must not be called")
	s := newService(t, st, p)

	_, err := s.Ask(context.Background(), "בקשות של דוד", 10, true)
	var be *store.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if len(p.Calls()) != 0 {
		t.Error("backend error must abort before generation")
	}
}
