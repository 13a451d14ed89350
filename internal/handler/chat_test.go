package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/tilly/internal/chat"
	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/store"
	"github.com/dukerupert/tilly/internal/usage"
)

type fakeCompleter struct {
	completion *chat.Completion
	err        error
	calls      int
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []chat.Message) (*chat.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

type chatFixture struct {
	handler *ChatHandler
	meter   *usage.Meter
	usage   *store.UsageStore
	subs    *store.SubscriptionStore
	userID  string
}

func newChatFixture(t *testing.T, db *sql.DB, completer chat.Completer, paywall bool) *chatFixture {
	t.Helper()

	usageStore := store.NewUsageStore(db)
	meter := usage.NewMeter(usageStore, usage.Config{
		Rates: usage.Rates{
			InputPerMillion:       3.0,
			CachedInputPerMillion: 0.3,
			OutputPerMillion:      15.0,
		},
		WeeklyBudget:     1.0,
		MaxRequestTokens: 1000,
	}, discardLogger())

	subs := store.NewSubscriptionStore(db)
	return &chatFixture{
		handler: NewChatHandler(completer, meter, subs, paywall, discardLogger()),
		meter:   meter,
		usage:   usageStore,
		subs:    subs,
		userID:  createTestUser(t, db, "chat@example.com"),
	}
}

func (f *chatFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), f.userID))
	rec := httptest.NewRecorder()
	f.handler.Complete(rec, req)
	return rec
}

func chatBody(contents ...string) string {
	var msgs []chat.Message
	for _, c := range contents {
		msgs = append(msgs, chat.Message{Role: "user", Content: c})
	}
	b, _ := json.Marshal(map[string]any{"messages": msgs})
	return string(b)
}

func TestChatCompleteSuccess(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{completion: &chat.Completion{
		Content: "Alice's birthday is next Tuesday.",
		Usage:   chat.Usage{InputTokens: 100_000, OutputTokens: 10_000},
	}}
	f := newChatFixture(t, db, completer, false)

	rec := f.post(t, chatBody("when is Alice's birthday?"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Alice's birthday is next Tuesday." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 100_000 {
		t.Errorf("usage input tokens = %d", resp.Usage.InputTokens)
	}

	// $0.30 input + $0.15 output against a $1 budget.
	tracking, err := f.usage.Get(f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if tracking == nil {
		t.Fatal("expected tracking record after completion")
	}
	if got := tracking.WeeklyPercentUsed; got < 44.9 || got > 45.1 {
		t.Errorf("percent used = %.2f, want 45", got)
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{}
	f := newChatFixture(t, db, completer, false)

	rec := f.post(t, `{"messages": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if completer.calls != 0 {
		t.Error("completer should not run")
	}
}

func TestChatBlocksAtUsageLimit(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{}
	f := newChatFixture(t, db, completer, false)

	resetDate := time.Now().UTC().AddDate(0, 0, 3).Truncate(time.Second)
	if _, err := f.usage.Create(f.userID, resetDate); err != nil {
		t.Fatal(err)
	}
	if _, err := f.usage.AddPercent(f.userID, 100); err != nil {
		t.Fatal(err)
	}

	rec := f.post(t, chatBody("hello"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429; body %s", rec.Code, rec.Body.String())
	}

	var resp usageLimitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "usage-limit-exceeded" {
		t.Errorf("code = %q", resp.Code)
	}
	if !resp.LimitExceeded {
		t.Error("limitExceeded should be true")
	}
	if resp.PercentUsed != 100 {
		t.Errorf("percentUsed = %.2f, want 100", resp.PercentUsed)
	}
	if !resp.ResetDate.Equal(resetDate) {
		t.Errorf("resetDate = %v, want %v", resp.ResetDate, resetDate)
	}
	if completer.calls != 0 {
		t.Error("completer should not run past the limit")
	}
}

func TestChatRejectsOversizedInput(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{}
	f := newChatFixture(t, db, completer, false)

	// 1000-token cap at roughly 4 chars per token.
	rec := f.post(t, chatBody(strings.Repeat("x", 5000)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["code"] != "input-too-large" {
		t.Errorf("code = %q", resp["code"])
	}
	if completer.calls != 0 {
		t.Error("completer should not run")
	}
}

func TestChatPaywallBlocksFreeTier(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{}
	f := newChatFixture(t, db, completer, true)

	rec := f.post(t, chatBody("hello"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["code"] != "subscription-required" {
		t.Errorf("code = %q", resp["code"])
	}
}

func TestChatPaywallAllowsPlusTier(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{completion: &chat.Completion{Content: "hi"}}
	f := newChatFixture(t, db, completer, true)

	if err := f.subs.Upsert(f.userID, model.TierPlus, false, nil, "cus_123"); err != nil {
		t.Fatal(err)
	}

	rec := f.post(t, chatBody("hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
}

func TestChatCompletionFailureCostsNothing(t *testing.T) {
	db := setupTestDB(t)
	completer := &fakeCompleter{err: errors.New("upstream timeout")}
	f := newChatFixture(t, db, completer, false)

	rec := f.post(t, chatBody("hello"))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	tracking, err := f.usage.Get(f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if tracking != nil && tracking.WeeklyPercentUsed != 0 {
		t.Errorf("percent used = %.2f, want 0 after failed completion", tracking.WeeklyPercentUsed)
	}
}

func TestChatUsageEndpoint(t *testing.T) {
	db := setupTestDB(t)
	f := newChatFixture(t, db, &fakeCompleter{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/usage", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), f.userID))
	rec := httptest.NewRecorder()
	f.handler.Usage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var limits usage.Limits
	if err := json.Unmarshal(rec.Body.Bytes(), &limits); err != nil {
		t.Fatal(err)
	}
	if limits.Exceeded {
		t.Error("fresh user should not be over the limit")
	}
	if limits.PercentUsed != 0 {
		t.Errorf("percentUsed = %.2f, want 0", limits.PercentUsed)
	}
	if !limits.ResetDate.After(time.Now()) {
		t.Errorf("resetDate = %v, want in the future", limits.ResetDate)
	}
}
