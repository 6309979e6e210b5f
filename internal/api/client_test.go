package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"contabile/internal/log"
	"contabile/internal/token"
)

func testLogger() *log.Logger {
	return log.New(log.Config{
		Handler: slog.NewTextHandler(io.Discard, nil),
	})
}

func newTestClient(t *testing.T, serverURL string, tokens token.Store) *Client {
	t.Helper()
	client, err := New(Config{BaseURL: serverURL}, tokens, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestDo_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tokens := token.NewMemoryStore()
	tokens.Set("abc123")
	client := newTestClient(t, server.URL, tokens)

	if err := client.Do(context.Background(), http.MethodGet, "/expenses", nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer abc123" {
		t.Errorf("Authorization = %q, want Bearer abc123", gotAuth)
	}
}

func TestDo_NoTokenSendsUnauthenticated(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, token.NewMemoryStore())

	if err := client.Do(context.Background(), http.MethodPost, "/login", map[string]string{"email": "a@b.c"}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestDo_RefreshAndReplay(t *testing.T) {
	var expenseCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
		expenseCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id":"e1","title":"Coffee","amount":300,"spentAt":"2024-05-12","category":"Food"}]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := token.NewMemoryStore()
	tokens.Set("stale")
	client := newTestClient(t, server.URL, tokens)

	var out []map[string]any
	if err := client.Do(context.Background(), http.MethodGet, "/expenses", nil, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}

	// The caller gets the intended result, not the 401.
	if len(out) != 1 || out[0]["title"] != "Coffee" {
		t.Errorf("unexpected body: %v", out)
	}
	if got := expenseCalls.Load(); got != 2 {
		t.Errorf("original request sent %d times, want 2 (original + one replay)", got)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
	if tok, _ := tokens.Get(); tok != "fresh" {
		t.Errorf("stored token = %q, want fresh", tok)
	}
}

func TestDo_FailedRefreshSurfacesOriginalError(t *testing.T) {
	var expenseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"refresh token expired"}`, http.StatusForbidden)
	})
	mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
		expenseCalls.Add(1)
		http.Error(w, `{"message":"token expired"}`, http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := token.NewMemoryStore()
	tokens.Set("stale")
	client := newTestClient(t, server.URL, tokens)

	err := client.Do(context.Background(), http.MethodGet, "/expenses", nil, nil)
	if !IsAuthorization(err) {
		t.Fatalf("err = %v, want the original authorization failure", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "token expired" {
		t.Errorf("message = %q, want the original request's message", apiErr.Message)
	}
	if got := expenseCalls.Load(); got != 1 {
		t.Errorf("original request sent %d times, want 1 (no replay after failed refresh)", got)
	}
}

func TestDo_SecondAuthFailureNotRetried(t *testing.T) {
	var expenseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
		expenseCalls.Add(1)
		http.Error(w, `{"message":"nope"}`, http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := token.NewMemoryStore()
	tokens.Set("stale")
	client := newTestClient(t, server.URL, tokens)

	err := client.Do(context.Background(), http.MethodGet, "/expenses", nil, nil)
	if !IsAuthorization(err) {
		t.Fatalf("err = %v, want authorization failure", err)
	}
	if got := expenseCalls.Load(); got != 2 {
		t.Errorf("request sent %d times, want exactly 2", got)
	}
}

func TestDo_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{name: "validation", status: http.StatusBadRequest, body: `{"message":"email taken"}`, check: IsValidation},
		{name: "conflict is validation", status: http.StatusConflict, body: `{"message":"duplicate"}`, check: IsValidation},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"no such expense"}`, check: IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.body, tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, token.NewMemoryStore())
			err := client.Do(context.Background(), http.MethodGet, "/x", nil, nil)
			if err == nil {
				t.Fatal("want error")
			}
			if !tt.check(err) {
				t.Errorf("classification failed for %v", err)
			}
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server.URL, token.NewMemoryStore())
	server.Close()

	err := client.Do(context.Background(), http.MethodGet, "/expenses", nil, nil)
	if !IsNetwork(err) {
		t.Fatalf("err = %v, want network error", err)
	}
}
