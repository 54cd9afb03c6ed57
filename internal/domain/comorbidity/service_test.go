package comorbidity

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestService(t *testing.T) (*Service, *mockProvider) {
	t.Helper()
	mock := newMockProvider(
		mustRuleSet(t, "charlson", "icd10gm", 2024, sampleRules()),
		mustRuleSet(t, "charlson", "icd10gm", 2020, singleCategory("old", 1, "I21")),
	)
	return NewService(mock, zerolog.Nop()), mock
}

func TestService_Score(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Score(context.Background(), Request{Codes: []string{"E10.0", "E10.2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Score != 2 {
		t.Errorf("expected score 2, got %d", a.Score)
	}
	if a.Scheme != "charlson" || a.Version != "icd10gm" || a.Year != 2024 {
		t.Errorf("expected charlson/icd10gm/2024, got %s/%s/%d", a.Scheme, a.Version, a.Year)
	}
}

func TestService_SetDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetDefaults("", "", 2021)

	a, err := svc.Score(context.Background(), Request{Codes: "I21.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Year != 2020 {
		t.Errorf("expected fallback to 2020 table, got %d", a.Year)
	}
	if len(a.Categories) != 1 || a.Categories[0] != "old" {
		t.Errorf("expected [old], got %v", a.Categories)
	}
}

func TestService_Explain(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Explain(context.Background(), Request{Codes: []string{"I98.2", "K74.4"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Score != 3 {
		t.Errorf("expected score 3, got %d", a.Score)
	}
	if len(a.Suppressed) != 1 || a.Suppressed[0].Name != "liver_mild" {
		t.Errorf("expected liver_mild suppressed, got %+v", a.Suppressed)
	}
}

func TestService_ScoreDoesNotLogResults(t *testing.T) {
	mock := newMockProvider(mustRuleSet(t, "charlson", "icd10gm", 2024, sampleRules()))
	var buf bytes.Buffer
	svc := NewService(mock, zerolog.New(&buf).Level(zerolog.DebugLevel))

	if _, err := svc.Score(context.Background(), Request{Codes: "C78.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "charlson/icd10gm/2024") {
		t.Errorf("expected table in log, got %s", out)
	}
	for _, leaked := range []string{"C78.1", "cancer_metastatic", `"score"`} {
		if strings.Contains(out, leaked) {
			t.Errorf("log leaked %q: %s", leaked, out)
		}
	}
}

func TestService_ScoreBatch(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBatchConcurrency(2)

	items := []BatchItem{
		{ID: "p1", Request: Request{Codes: []string{"E10.0", "E10.2"}}},
		{ID: "p2", Request: Request{Codes: 42}},
		{ID: "p3", Request: Request{Codes: "B18.2"}},
		{ID: "p4", Request: Request{Codes: "I21", Scheme: "elixhauser"}},
		{ID: "p5", Request: Request{Codes: "I21", Year: 1990}},
	}
	results, err := svc.ScoreBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}

	for i, r := range results {
		if r.Index != i || r.ID != items[i].ID {
			t.Errorf("result %d out of order: %+v", i, r)
		}
	}
	if results[0].Result == nil || results[0].Result.Score != 2 {
		t.Errorf("expected p1 score 2, got %+v", results[0])
	}
	if !errors.Is(results[1].Err(), ErrInvalidCodes) || results[1].Error == "" {
		t.Errorf("expected p2 invalid codes, got %+v", results[1])
	}
	if results[2].Result == nil || results[2].Result.Score != 1 {
		t.Errorf("expected p3 score 1, got %+v", results[2])
	}
	if !errors.Is(results[3].Err(), ErrUnknownScheme) {
		t.Errorf("expected p4 unknown scheme, got %+v", results[3])
	}
	if !errors.Is(results[4].Err(), ErrUnknownYear) {
		t.Errorf("expected p5 unknown year, got %+v", results[4])
	}
}

func TestService_ScoreBatch_Cancelled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ScoreBatch(ctx, []BatchItem{{Request: Request{Codes: "I21"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_ListRuleSets(t *testing.T) {
	svc, _ := newTestService(t)

	infos, err := svc.ListRuleSets(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 rule sets, got %d", len(infos))
	}
	if infos[0].Year != 2020 || infos[1].Year != 2024 {
		t.Errorf("expected years [2020 2024], got [%d %d]", infos[0].Year, infos[1].Year)
	}
	if infos[1].MaxScore != 12 {
		t.Errorf("expected max score 12, got %d", infos[1].MaxScore)
	}
}

func TestService_ImportRuleSet(t *testing.T) {
	svc, _ := newTestService(t)
	rs := mustRuleSet(t, "charlson", "icd10gm", 2025, singleCategory("x", 1, "A"))

	if err := svc.ImportRuleSet(context.Background(), rs); !errors.Is(err, ErrReadOnlyRules) {
		t.Errorf("expected ErrReadOnlyRules, got %v", err)
	}

	store := &mockStore{mockProvider: newMockProvider()}
	svc = NewService(store, zerolog.Nop())
	if err := svc.ImportRuleSet(context.Background(), rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.imported) != 1 || store.imported[0] != "charlson/icd10gm/2025" {
		t.Errorf("expected import of charlson/icd10gm/2025, got %v", store.imported)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	scores  []string
	batches [][2]int
}

func (o *recordingObserver) ObserveScore(scheme, version, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scores = append(o.scores, scheme+"/"+version+":"+outcome)
}

func (o *recordingObserver) ObserveBatch(items, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, [2]int{items, failed})
}

func TestService_Observer(t *testing.T) {
	svc, _ := newTestService(t)
	obs := &recordingObserver{}
	svc.SetObserver(obs)
	ctx := context.Background()

	svc.Score(ctx, Request{Codes: "I21"})
	svc.Score(ctx, Request{Codes: "I21", Scheme: "made-up"})
	svc.Explain(ctx, Request{Codes: 3})

	want := []string{
		"charlson/icd10gm:ok",
		"unknown/unknown:unknown_table",
		"unknown/unknown:invalid_input",
	}
	if len(obs.scores) != len(want) {
		t.Fatalf("expected %d observations, got %v", len(want), obs.scores)
	}
	for i := range want {
		if obs.scores[i] != want[i] {
			t.Errorf("observation %d: expected %s, got %s", i, want[i], obs.scores[i])
		}
	}

	if _, err := svc.ScoreBatch(ctx, []BatchItem{{Request: Request{Codes: "I21"}}, {Request: Request{Codes: 1}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs.batches) != 1 || obs.batches[0] != [2]int{2, 1} {
		t.Errorf("expected batch observation [2 1], got %v", obs.batches)
	}
}

func TestService_ObserverLabelsResolvedTable(t *testing.T) {
	svc, _ := newTestService(t)
	obs := &recordingObserver{}
	svc.SetObserver(obs)
	ctx := context.Background()

	for _, scheme := range []string{"charlson", " charlson", "  CHARLSON", "charlson\t"} {
		if _, err := svc.Score(ctx, Request{Codes: "I21", Scheme: scheme, Version: " ICD10GM "}); err != nil {
			t.Fatalf("scheme %q: unexpected error: %v", scheme, err)
		}
	}
	if _, err := svc.Explain(ctx, Request{Codes: "I21", Scheme: "Charlson "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ScoreBatch(ctx, []BatchItem{{Request: Request{Codes: "I21", Version: "\ticd10gm"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(obs.scores) != 6 {
		t.Fatalf("expected 6 observations, got %v", obs.scores)
	}
	for i, got := range obs.scores {
		if got != "charlson/icd10gm:ok" {
			t.Errorf("observation %d: expected charlson/icd10gm:ok, got %q", i, got)
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := map[error]string{
		nil:                "ok",
		ErrInvalidCodes:    "invalid_input",
		ErrUnknownYear:     "unknown_table",
		errors.New("boom"): "error",
	}
	for err, want := range tests {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}
