package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/llm"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func numeric(id, topic string, d question.Difficulty, v float64) question.Question {
	return question.Question{
		ID:         id,
		Prompt:     "What is the answer?",
		Numeric:    &question.NumericKey{Value: v},
		Difficulty: d,
		SubjectID:  "math",
		TopicID:    topic,
		Provenance: question.ProvenanceCurated,
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Questions().Save(ctx, []question.Question{numeric("q1", "add", question.Easy, 1)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Questions().List(ctx, question.Criteria{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q1" {
		t.Fatalf("got %+v, want q1", got)
	}
}

func TestQuestionFind(t *testing.T) {
	s := openTestStore(t)
	repo := s.Questions()
	ctx := context.Background()

	bank := []question.Question{
		numeric("a1", "add", question.Easy, 1),
		numeric("a2", "add", question.Easy, 2),
		numeric("a3", "add", question.Hard, 3),
		numeric("s1", "sub", question.Easy, 4),
	}
	if err := repo.Save(ctx, bank); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Find(ctx, question.Criteria{SubjectID: "math", TopicID: "add"}, question.Easy, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ids := question.IDs(got); len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Errorf("find add/easy = %v, want [a1 a2]", ids)
	}
	if got[0].Numeric == nil || got[0].Numeric.Value != 1 {
		t.Errorf("answer key not round-tripped: %+v", got[0].Numeric)
	}

	// Empty topic matches every topic of the subject.
	got, err = repo.Find(ctx, question.Criteria{SubjectID: "math"}, question.Easy, []string{"a2"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ids := question.IDs(got); len(ids) != 2 || ids[0] != "a1" || ids[1] != "s1" {
		t.Errorf("find math/easy minus a2 = %v, want [a1 s1]", ids)
	}

	got, err = repo.Find(ctx, question.Criteria{SubjectID: "physics"}, question.Easy, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("find physics = %v, want none", question.IDs(got))
	}

	placeholder := numeric("f1", "add", question.Easy, 5)
	placeholder.Provenance = question.ProvenanceFallback
	if err := repo.Save(ctx, []question.Question{placeholder}); err != nil {
		t.Fatalf("save placeholder: %v", err)
	}
	got, err = repo.Find(ctx, question.Criteria{SubjectID: "math", TopicID: "add"}, question.Easy, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ids := question.IDs(got); len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Errorf("find after placeholder save = %v, want [a1 a2]", ids)
	}
}

func TestQuestionSaveUpsertsAndValidates(t *testing.T) {
	s := openTestStore(t)
	repo := s.Questions()
	ctx := context.Background()

	if err := repo.Save(ctx, []question.Question{numeric("q1", "add", question.Easy, 1)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, []question.Question{numeric("q1", "add", question.Medium, 9)}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := repo.Find(ctx, question.Criteria{SubjectID: "math"}, question.Medium, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].Numeric.Value != 9 {
		t.Fatalf("got %+v, want updated q1", got)
	}

	bad := numeric("q2", "add", question.Easy, 1)
	bad.Numeric = nil
	if err := repo.Save(ctx, []question.Question{numeric("q3", "add", question.Easy, 1), bad}); err == nil {
		t.Fatal("expected validation error")
	}
	all, _ := repo.List(ctx, question.Criteria{}, 0)
	if len(all) != 1 {
		t.Errorf("bank has %d questions after rejected batch, want 1", len(all))
	}
}

func TestQuestionCounts(t *testing.T) {
	s := openTestStore(t)
	repo := s.Questions()
	ctx := context.Background()

	if err := repo.Save(ctx, []question.Question{
		numeric("a1", "add", question.Easy, 1),
		numeric("a2", "add", question.Easy, 2),
		numeric("a3", "add", question.Hard, 3),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	counts, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("got %d rows, want 2", len(counts))
	}
	if counts[0].Difficulty != question.Easy || counts[0].Count != 2 {
		t.Errorf("counts[0] = %+v", counts[0])
	}
	if counts[1].Difficulty != question.Hard || counts[1].Count != 1 {
		t.Errorf("counts[1] = %+v", counts[1])
	}
}

func TestResultSaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	repo := s.Results()
	ctx := context.Background()

	got, err := repo.LoadResult(ctx, "missing")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing result, got %+v", got)
	}

	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &analysis.AssessmentResult{
		SessionID:      "s1",
		LearnerID:      "l1",
		TotalQuestions: 3,
		CorrectAnswers: 2,
		Score:          66.67,
		ByDifficulty: map[question.Difficulty]analysis.GroupStats{
			question.Easy: {Attempted: 3, Correct: 2, Accuracy: 66.67},
		},
		Recommendations: []string{"Keep going."},
		CompletedAt:     completed,
		Reason:          analysis.ReasonAllAnswered,
	}
	if err := repo.SaveResult(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second save for the same session is ignored.
	other := *res
	other.Score = 0
	if err := repo.SaveResult(ctx, &other); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err = repo.LoadResult(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Score != 66.67 || got.Reason != analysis.ReasonAllAnswered {
		t.Errorf("got %+v", got)
	}
	if got.ByDifficulty[question.Easy].Correct != 2 {
		t.Errorf("by difficulty = %+v", got.ByDifficulty)
	}
	if !got.CompletedAt.Equal(completed) {
		t.Errorf("completed at = %v, want %v", got.CompletedAt, completed)
	}
}

func TestResultListByLearner(t *testing.T) {
	s := openTestStore(t)
	repo := s.Results()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		learner := "l1"
		if id == "s3" {
			learner = "l2"
		}
		res := &analysis.AssessmentResult{SessionID: id, LearnerID: learner, CompletedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.SaveResult(ctx, res); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := repo.ListByLearner(ctx, "l1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "s2" || got[1].SessionID != "s1" {
		t.Errorf("got %d results, want s2 then s1", len(got))
	}
}

func TestSessionSnapshots(t *testing.T) {
	s := openTestStore(t)
	repo := s.Sessions()
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	active := &session.Session{
		ID:                   "s1",
		LearnerID:            "l1",
		Questions:            []question.Question{numeric("q1", "add", question.Easy, 1)},
		TimeRemainingSeconds: 300,
		CurrentDifficulty:    question.Easy,
		Status:               session.StatusActive,
		StartedAt:            started,
		Deadline:             started.Add(5 * time.Minute),
		Version:              2,
	}
	done := &session.Session{ID: "s2", LearnerID: "l1", Status: session.StatusCompleted, Version: 1}

	for _, sess := range []*session.Session{active, done} {
		if err := repo.SaveSession(ctx, sess); err != nil {
			t.Fatalf("save %s: %v", sess.ID, err)
		}
	}

	// A stale version never overwrites a newer snapshot.
	stale := active.Clone()
	stale.Version = 1
	stale.Status = session.StatusPaused
	if err := repo.SaveSession(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	open, err := repo.LoadOpenSessions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("got %d open sessions, want 1", len(open))
	}
	got := open[0]
	if got.ID != "s1" || got.Status != session.StatusActive || got.Version != 2 {
		t.Errorf("got %s %s v%d", got.ID, got.Status, got.Version)
	}
	if !got.Deadline.Equal(active.Deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, active.Deadline)
	}
	if len(got.Questions) != 1 || got.Questions[0].Numeric == nil {
		t.Errorf("questions not round-tripped: %+v", got.Questions)
	}

	n, err := repo.PruneCompleted(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}

func TestSessionEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.Events()
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []session.Event{
		{Type: session.EventCreated, SessionID: "s1", LearnerID: "l1", Version: 1, At: at},
		{Type: session.EventAnswered, SessionID: "s2", LearnerID: "l2", Version: 2, At: at},
		{Type: session.EventAnswered, SessionID: "s1", LearnerID: "l1", Version: 2, At: at.Add(time.Second),
			Data: map[string]any{"correct": true}},
	}
	for _, ev := range events {
		if err := repo.Publish(ctx, ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got, err := repo.SessionEvents(ctx, "s1", QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != string(session.EventCreated) || got[1].Type != string(session.EventAnswered) {
		t.Errorf("types = %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].Sequence >= got[1].Sequence {
		t.Errorf("sequences not increasing: %d, %d", got[0].Sequence, got[1].Sequence)
	}
	if got[1].Data["correct"] != true {
		t.Errorf("data = %v", got[1].Data)
	}

	after, err := repo.SessionEvents(ctx, "s1", QueryOpts{After: got[0].Sequence})
	if err != nil {
		t.Fatalf("query after: %v", err)
	}
	if len(after) != 1 || after[0].Version != 2 {
		t.Errorf("after filter returned %d events", len(after))
	}
}

func TestLLMRequests(t *testing.T) {
	s := openTestStore(t)
	repo := s.Events()
	ctx := context.Background()

	var _ llm.Recorder = repo

	records := []llm.RequestRecord{
		{Provider: "anthropic", Model: "m-small", Purpose: "question-gen", InputTokens: 100, OutputTokens: 50, LatencyMs: 200, Success: true},
		{Provider: "anthropic", Model: "m-small", Purpose: "question-gen", InputTokens: 300, OutputTokens: 150, LatencyMs: 400, Success: true},
		{Provider: "openai", Model: "m-large", Purpose: "narrative", InputTokens: 10, LatencyMs: 50, ErrorMessage: "boom"},
	}
	for _, rec := range records {
		if err := repo.RecordLLMRequest(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := repo.QueryLLMRequests(ctx, LLMQuery{QueryOpts: QueryOpts{Limit: 2}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
	if got[0].Purpose != "narrative" || got[0].Success || got[0].ErrorMessage != "boom" {
		t.Errorf("newest = %+v", got[0])
	}

	one, err := repo.GetLLMRequest(ctx, got[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if one == nil || one.InputTokens != 300 {
		t.Errorf("get = %+v", one)
	}
	missing, err := repo.GetLLMRequest(ctx, 9999)
	if err != nil || missing != nil {
		t.Errorf("get missing = %+v, %v", missing, err)
	}

	gen, err := repo.QueryLLMRequests(ctx, LLMQuery{Purpose: "question-gen"})
	if err != nil {
		t.Fatalf("query by purpose: %v", err)
	}
	if len(gen) != 2 || gen[0].InputTokens != 300 || gen[1].InputTokens != 100 {
		t.Errorf("question-gen calls = %+v", gen)
	}
	failed, err := repo.QueryLLMRequests(ctx, LLMQuery{FailedOnly: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Model != "m-large" {
		t.Errorf("failed calls = %+v", failed)
	}

	usage, err := repo.UsageBreakdown(ctx, time.Time{})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("got %d usage rows, want 2", len(usage))
	}
	if u := usage[0]; u.Purpose != "narrative" || u.Calls != 1 || u.Failed != 1 || u.InputTokens != 10 {
		t.Errorf("narrative usage = %+v", u)
	}
	if u := usage[1]; u.Purpose != "question-gen" || u.Model != "m-small" || u.Calls != 2 ||
		u.Failed != 0 || u.OutputTokens != 200 || u.AvgLatencyMs != 300 {
		t.Errorf("question-gen usage = %+v", u)
	}
	if _, ok := usage[1].Cost(); ok {
		t.Errorf("unpriced model reported a cost")
	}
	priced := LLMUsage{Model: "gpt-4o-mini", InputTokens: 1_000_000}
	if usd, ok := priced.Cost(); !ok || usd != 0.15 {
		t.Errorf("gpt-4o-mini cost = %v, %v, want 0.15", usd, ok)
	}

	recent, err := repo.UsageBreakdown(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("usage since: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("usage after cutoff = %+v, want none", recent)
	}
}

func TestSequenceSharedAcrossTables(t *testing.T) {
	s := openTestStore(t)
	repo := s.Events()
	ctx := context.Background()

	if err := repo.Publish(ctx, session.Event{Type: session.EventCreated, SessionID: "s1", At: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := repo.RecordLLMRequest(ctx, llm.RequestRecord{Purpose: "narrative"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	evs, _ := repo.SessionEvents(ctx, "s1", QueryOpts{})
	reqs, _ := repo.QueryLLMRequests(ctx, LLMQuery{})
	if len(evs) != 1 || len(reqs) != 1 {
		t.Fatalf("got %d events and %d requests", len(evs), len(reqs))
	}
	if evs[0].Sequence != 1 || reqs[0].Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", evs[0].Sequence, reqs[0].Sequence)
	}
}
