package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/sensei/internal/models"
)

func TestStream_EqualsComplete(t *testing.T) {
	ctx := context.Background()
	oc, _ := newTestOrchestrator(t, &echo{})
	ostream, _ := newTestOrchestrator(t, &echo{})
	req := &Request{Message: "Why does quicksort degrade?", Mode: "study_help"}

	resp, err := oc.Chat(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ostream.Stream(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	streamed := drainSession(t, s)
	if s.Err() != nil {
		t.Fatalf("stream err: %v", s.Err())
	}
	if streamed != resp.Answer || s.Answer() != resp.Answer {
		t.Errorf("stream %q != complete %q", streamed, resp.Answer)
	}
	if s.Mode != models.ModeStudyHelp || s.ConversationID == "" {
		t.Errorf("session = %+v", s)
	}
	history, _ := ostream.History(ctx, s.ConversationID)
	if len(history) != 2 || history[1].Content != streamed || history[1].Partial {
		t.Errorf("persisted = %+v", history)
	}
}

func TestStream_CancelKeepsPartialAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t, &echo{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := o.Stream(ctx, &Request{Message: "long question"})
	if err != nil {
		t.Fatal(err)
	}
	got := ""
	for c := range s.Chunks() {
		got += c
		if got == "echo says: " {
			cancel()
		}
	}
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", s.Err())
	}
	history, err := o.History(context.Background(), s.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want user + partial answer", len(history))
	}
	if !history[1].Partial || history[1].Content != "echo says: " {
		t.Errorf("partial answer = %+v", history[1])
	}
	if history[0].Content != "long question" {
		t.Errorf("user message = %q", history[0].Content)
	}
}

func TestStream_CancelBeforeTextPersistsNothing(t *testing.T) {
	o, store := newTestOrchestrator(t, &echo{})
	ctx, cancel := context.WithCancel(context.Background())
	s, err := o.Stream(ctx, &Request{Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	text := drainSession(t, s)
	if text != "" {
		// A chunk can still be delivered after cancel; it is then kept as a partial answer.
		history, _ := o.History(context.Background(), s.ConversationID)
		if len(history) != 2 || !history[1].Partial {
			t.Errorf("history = %+v", history)
		}
		return
	}
	if store.Len() != 0 {
		t.Errorf("store has %d conversations, want 0", store.Len())
	}
}

func TestStream_MidStreamErrorPersistsNothing(t *testing.T) {
	be := &echo{}
	o, _ := newTestOrchestrator(t, be)
	ctx := context.Background()
	first, err := o.Chat(ctx, &Request{Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	be.midFail = true
	s, err := o.Stream(ctx, &Request{Message: "tell me more", ConversationID: first.ConversationID})
	if err != nil {
		t.Fatal(err)
	}
	if text := drainSession(t, s); text == "" {
		t.Error("expected some text before the failure")
	}
	if !errors.Is(s.Err(), models.ErrBackendUnavailable) {
		t.Errorf("Err = %v", s.Err())
	}
	history, _ := o.History(ctx, first.ConversationID)
	if len(history) != 2 {
		t.Errorf("history = %d, mid-stream failure must not persist", len(history))
	}
	if be.callCount() != 2 {
		t.Errorf("calls = %d, no retry after text was delivered", be.callCount())
	}
}

func TestStream_RetriesBeforeFirstChunk(t *testing.T) {
	be := &echo{failures: 1}
	o, _ := newTestOrchestrator(t, be)
	s, err := o.Stream(context.Background(), &Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if drainSession(t, s) == "" || s.Err() != nil {
		t.Errorf("retry should produce an answer, err = %v", s.Err())
	}
	if be.callCount() != 2 {
		t.Errorf("calls = %d", be.callCount())
	}
}

func TestStream_RetriesEarlyStreamFailure(t *testing.T) {
	be := &echo{early: 1}
	o, _ := newTestOrchestrator(t, be)
	s, err := o.Stream(context.Background(), &Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if drainSession(t, s) == "" || s.Err() != nil {
		t.Errorf("retry should produce an answer, err = %v", s.Err())
	}
	if be.callCount() != 2 {
		t.Errorf("calls = %d", be.callCount())
	}
}

func TestStream_OneRetryPerTurn(t *testing.T) {
	be := &echo{failures: 1, early: 1}
	o, store := newTestOrchestrator(t, be)
	s, err := o.Stream(context.Background(), &Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text := drainSession(t, s); text != "" {
		t.Errorf("text = %q, want none", text)
	}
	if !errors.Is(s.Err(), models.ErrBackendUnavailable) {
		t.Errorf("Err = %v", s.Err())
	}
	if be.callCount() != 2 {
		t.Errorf("calls = %d, want the open plus a single retry", be.callCount())
	}
	if store.Len() != 0 {
		t.Errorf("store has %d conversations", store.Len())
	}
}

func TestStream_OpenFailureDiscardsNewConversation(t *testing.T) {
	o, store := newTestOrchestrator(t, &echo{failures: 2})
	if _, err := o.Stream(context.Background(), &Request{Message: "hi"}); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d conversations", store.Len())
	}
}

func TestStream_PinsConversation(t *testing.T) {
	o, _ := newTestOrchestrator(t, &echo{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := o.Stream(ctx, &Request{Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	<-s.Chunks()

	cleared := make(chan error, 1)
	go func() { cleared <- o.Clear(context.Background(), s.ConversationID) }()
	select {
	case <-cleared:
		t.Fatal("Clear should wait for the in-flight stream")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	for range s.Chunks() {
	}
	if err := <-cleared; err != nil {
		t.Errorf("Clear: %v", err)
	}
}
