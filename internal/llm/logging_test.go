package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (f *fakeRecorder) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data)
	return f.err
}

func TestLogging_RecordsSuccess(t *testing.T) {
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"question":"q"}`),
		Usage:   Usage{InputTokens: 12, OutputTokens: 7},
	})
	rec := &fakeRecorder{}
	p := WithLogging(mock, "mock", rec, logger.Nop())

	ctx := WithPurpose(context.Background(), PurposeChallengeGen)
	_, err := p.Generate(ctx, Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Provider != "mock" || ev.Model != "mock" || ev.Purpose != PurposeChallengeGen {
		t.Errorf("unexpected identity fields: %+v", ev)
	}
	if !ev.Success || ev.InputTokens != 12 || ev.OutputTokens != 7 {
		t.Errorf("unexpected usage fields: %+v", ev)
	}
	if !strings.Contains(ev.RequestBody, "[system]\nsys") || !strings.Contains(ev.RequestBody, "[user]\nhello") {
		t.Errorf("request body = %q", ev.RequestBody)
	}
	if ev.ResponseBody != `{"question":"q"}` {
		t.Errorf("response body = %q", ev.ResponseBody)
	}
}

func TestLogging_RecordsFailure(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrRateLimit{}})
	rec := &fakeRecorder{}
	p := WithLogging(mock, "mock", rec, nil)

	_, err := p.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rec.events) != 1 || rec.events[0].Success || rec.events[0].ErrorMessage == "" {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
	if rec.events[0].Purpose != "unknown" {
		t.Errorf("purpose = %q, want unknown", rec.events[0].Purpose)
	}
}

func TestLogging_RecorderFailureDoesNotFailRequest(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", &fakeRecorder{err: errors.New("disk full")}, logger.Nop())

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_NilRecorder(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", nil, nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "mock" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}

func TestLogging_KeepsRejectedContent(t *testing.T) {
	bad := json.RawMessage(`{"question":`)
	mock := NewMockProvider(MockResponse{Err: &ErrInvalidResponse{Content: bad, Err: errors.New("eof")}})
	rec := &fakeRecorder{}
	p := WithLogging(mock, "mock", rec, nil)

	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if got := rec.events[0].ResponseBody; got != string(bad) {
		t.Errorf("response body = %q, want %q", got, bad)
	}
}

func TestCapBody(t *testing.T) {
	short := "abc"
	if capBody(short) != short {
		t.Errorf("short body changed")
	}
	long := strings.Repeat("x", maxCapturedBody+10)
	got := capBody(long)
	if !strings.HasSuffix(got, "[truncated]") || len(got) > maxCapturedBody+len("\n[truncated]") {
		t.Errorf("long body len = %d", len(got))
	}
}
