package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
)

func newOllama(t *testing.T, handler http.HandlerFunc) *NativeLight {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNativeLight(config.OllamaConfig{BaseURL: srv.URL + "/", Model: "llama-test"}, srv.Client(), zap.NewNop())
}

func TestNativeLight_Complete(t *testing.T) {
	var got ollamaChatRequest
	n := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"A base case stops it."},"done":true}`)
	})
	answer, err := n.Complete(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer != "A base case stops it." {
		t.Errorf("answer = %q", answer)
	}
	if got.Model != "llama-test" || got.Stream || len(got.Messages) != 4 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestNativeLight_Stream(t *testing.T) {
	n := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"A base "},"done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"case."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})
	ch, err := n.Stream(context.Background(), sampleRequest)
	if err != nil {
		t.Fatal(err)
	}
	text, err := collect(t, ch)
	if err != nil || text != "A base case." {
		t.Errorf("text = %q, err = %v", text, err)
	}
}

func TestNativeLight_StreamCutShort(t *testing.T) {
	n := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`)
	})
	ch, err := n.Stream(context.Background(), sampleRequest)
	if err != nil {
		t.Fatal(err)
	}
	text, err := collect(t, ch)
	if text != "partial" || !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("text = %q, err = %v", text, err)
	}
}

func TestNativeLight_Errors(t *testing.T) {
	n := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})
	if _, err := n.Complete(context.Background(), sampleRequest); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("Complete err = %v", err)
	}
	if _, err := n.Stream(context.Background(), sampleRequest); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("Stream err = %v", err)
	}

	inline := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"out of memory"}`)
	})
	if _, err := inline.Complete(context.Background(), sampleRequest); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("inline error: err = %v", err)
	}
}
