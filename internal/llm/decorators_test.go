package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Content: json.RawMessage(`{"ok":true}`)},
	)
	p := WithRetry(mock, retryConfig())

	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", mock.CallCount())
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithRetry(mock, retryConfig())

	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 3 {
		t.Fatalf("calls = %d, want 3", mock.CallCount())
	}
}

func TestRetry_MaxTokensNotRetried(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrMaxTokensExceeded{}})
	p := WithRetry(mock, retryConfig())

	_, err := p.Generate(context.Background(), Request{})
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("expected ErrMaxTokensExceeded, got: %T", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("calls = %d, want 1", mock.CallCount())
	}
}

func TestRetry_InvalidResponseRetriedOnce(t *testing.T) {
	bad := MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`bad`), Err: errors.New("bad")}}
	mock := NewMockProvider(bad, bad, MockResponse{Content: json.RawMessage(`{}`)})
	p := WithRetry(mock, retryConfig())

	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", mock.CallCount())
	}
}

func TestRetry_InvalidResponseAddsCorrection(t *testing.T) {
	bad := MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`{"questions":"nope"}`), Err: errors.New("questions must be an array")}}
	mock := NewMockProvider(bad, MockResponse{Content: json.RawMessage(`{"questions":[]}`)})
	p := WithRetry(mock, retryConfig())

	req := Request{Messages: []Message{{Role: RoleUser, Content: "Write 3 questions."}}}
	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("caller request mutated: %d messages", len(req.Messages))
	}

	second := mock.Calls[1].Messages
	if len(second) != 3 {
		t.Fatalf("repair request has %d messages, want 3", len(second))
	}
	if second[1].Role != RoleAssistant || second[1].Content != `{"questions":"nope"}` {
		t.Errorf("rejected reply not echoed: %+v", second[1])
	}
	if second[2].Role != RoleUser || !strings.Contains(second[2].Content, "questions must be an array") {
		t.Errorf("correction missing validation error: %+v", second[2])
	}
}

func TestRetry_TransientDoesNotAddCorrection(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	p := WithRetry(mock, retryConfig())

	req := Request{Messages: []Message{{Role: RoleUser, Content: "Write 3 questions."}}}
	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(mock.Calls[1].Messages); n != 1 {
		t.Fatalf("retried request has %d messages, want 1", n)
	}
}

func TestRetry_BackoffCappedAtMaxWait(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{MaxWait: 10 * time.Millisecond, Multiplier: 4}}

	if got := r.next(2 * time.Millisecond); got != 8*time.Millisecond {
		t.Errorf("next(2ms) = %v, want 8ms", got)
	}
	if got := r.next(8 * time.Millisecond); got != 10*time.Millisecond {
		t.Errorf("next(8ms) = %v, want 10ms", got)
	}
}

func TestRetry_ContextErrorsNotRetried(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: context.DeadlineExceeded},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	p := WithRetry(mock, retryConfig())

	if _, err := p.Generate(context.Background(), Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("calls = %d, want 1", mock.CallCount())
	}
}

func TestRetry_RateLimitRespectsRetryAfter(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: 1 * time.Millisecond, Err: errors.New("429")}},
		MockResponse{Content: json.RawMessage(`{"ok":true}`)},
	)
	p := WithRetry(mock, retryConfig())

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", mock.CallCount())
	}
}

func TestTimeout_CancelsSlowProvider(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`), Delay: time.Second})
	p := WithTimeout(mock, 10*time.Millisecond)

	start := time.Now()
	_, err := p.Generate(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout did not cut the call short")
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mock := NewMockProvider()
	if WithTimeout(mock, 0) != Provider(mock) {
		t.Fatal("expected the inner provider back")
	}
}

type recorderStub struct {
	mu   sync.Mutex
	recs []RequestRecord
	err  error
}

func (r *recorderStub) RecordLLMRequest(_ context.Context, rec RequestRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return r.err
}

func TestLogging_RecordsSuccessAndFailure(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"ok":true}`), Usage: Usage{InputTokens: 7, OutputTokens: 3}},
		MockResponse{Err: errors.New("boom")},
	)
	rec := &recorderStub{}
	p := WithLogging(mock, "mock", rec, nil)

	ctx := WithPurpose(context.Background(), PurposeNarrative)
	req := Request{System: "sys", Messages: UserPrompt("hello")}
	if _, err := p.Generate(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Generate(ctx, req); err == nil {
		t.Fatal("expected error")
	}

	if len(rec.recs) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.recs))
	}
	ok, failed := rec.recs[0], rec.recs[1]
	if !ok.Success || ok.InputTokens != 7 || ok.Purpose != PurposeNarrative || ok.Provider != "mock" {
		t.Fatalf("unexpected success record: %+v", ok)
	}
	if !strings.Contains(ok.RequestBody, "[system]") || !strings.Contains(ok.RequestBody, "hello") {
		t.Fatalf("request body not serialized: %q", ok.RequestBody)
	}
	if failed.Success || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected failure record: %+v", failed)
	}
}

func TestLogging_RecorderErrorDoesNotFailCall(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", &recorderStub{err: errors.New("disk full")}, nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
