package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"contabile/internal/api"
	"contabile/internal/core"
	"contabile/internal/log"
	"contabile/internal/token"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

// newTestSession wires a session against the given handler and counts every
// request that actually reaches the network.
func newTestSession(t *testing.T, handler http.Handler) (*Session, token.Store, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler.ServeHTTP(w, r)
	})
	server := httptest.NewServer(counted)
	t.Cleanup(server.Close)

	tokens := token.NewMemoryStore()
	client, err := api.New(api.Config{BaseURL: server.URL}, tokens, testLogger())
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return New(client, tokens, testLogger()), tokens, &calls
}

func TestSignIn_EstablishesIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"anna@example.com","authType":"local"},"accessToken":"tok"}`))
	})
	sess, tokens, _ := newTestSession(t, mux)

	if sess.IsAuthenticated() {
		t.Fatal("fresh session must be anonymous")
	}

	user, err := sess.SignIn(context.Background(), "anna@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.Username != "anna" {
		t.Errorf("username = %q, want anna", user.Username)
	}
	if !sess.IsAuthenticated() {
		t.Error("session should be authenticated after sign in")
	}
	if tok, _ := tokens.Get(); tok != "tok" {
		t.Errorf("stored token = %q, want tok", tok)
	}
}

func TestAuthenticatedOnlyOps_FailLocallyWhileAnonymous(t *testing.T) {
	sess, _, calls := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call: %s %s", r.Method, r.URL.Path)
	}))

	ctx := context.Background()
	ops := map[string]func() error{
		"ChangeUsername": func() error { _, err := sess.ChangeUsername(ctx, "x"); return err },
		"ChangePassword": func() error { return sess.ChangePassword(ctx, "a", "b") },
		"RequestEmailChange": func() error {
			return sess.RequestEmailChange(ctx, "pw", "new@example.com")
		},
		"ChangeEmail": func() error {
			_, err := sess.ChangeEmail(ctx, "tok", "id", "new@example.com")
			return err
		},
		"UnlinkProvider": func() error {
			_, err := sess.UnlinkProvider(ctx, core.ProviderGoogle)
			return err
		},
		"SignOut":       func() error { return sess.SignOut(ctx) },
		"DeleteAccount": func() error { return sess.DeleteAccount(ctx) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, api.ErrUnauthorized) {
				t.Errorf("%s = %v, want ErrUnauthorized", name, err)
			}
		})
	}

	if got := calls.Load(); got != 0 {
		t.Errorf("network calls = %d, want 0", got)
	}
}

func TestChangeUsername_ReplacesUserWholesale(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"a@b.c","authType":"local"},"accessToken":"tok"}`))
	})
	mux.HandleFunc("/user/change-username", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"u1","username":"annabel","email":"a@b.c","authType":"local"}`))
	})
	sess, _, _ := newTestSession(t, mux)

	if _, err := sess.SignIn(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	updated, err := sess.ChangeUsername(context.Background(), "annabel")
	if err != nil {
		t.Fatalf("ChangeUsername: %v", err)
	}
	if updated.Username != "annabel" {
		t.Errorf("username = %q, want annabel", updated.Username)
	}
	if current, _ := sess.CurrentUser(); current.Username != "annabel" {
		t.Errorf("cached username = %q, want annabel", current.Username)
	}
}

func TestChangeEmail_TwoPhase(t *testing.T) {
	t.Run("apply failure keeps old email", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"old@b.c","authType":"local"},"accessToken":"tok"}`))
		})
		mux.HandleFunc("/user/change-email/confirm", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"old@b.c","authType":"local"},"accessToken":"tok2"}`))
		})
		mux.HandleFunc("/user/change-email/apply", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"email already in use"}`, http.StatusConflict)
		})
		sess, tokens, _ := newTestSession(t, mux)

		if _, err := sess.SignIn(context.Background(), "old@b.c", "pw"); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		_, err := sess.ChangeEmail(context.Background(), "ct", "id", "new@b.c")
		if !api.IsValidation(err) {
			t.Fatalf("ChangeEmail = %v, want validation error", err)
		}

		// Still authenticated under the old email, with the confirm-phase token.
		current, ok := sess.CurrentUser()
		if !ok || current.Email != "old@b.c" {
			t.Errorf("user = %+v, %v; want old@b.c still signed in", current, ok)
		}
		if tok, _ := tokens.Get(); tok != "tok2" {
			t.Errorf("token = %q, want confirm-phase token tok2", tok)
		}
	})

	t.Run("both phases succeed", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"old@b.c","authType":"local"},"accessToken":"tok"}`))
		})
		mux.HandleFunc("/user/change-email/confirm", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"old@b.c","authType":"local"},"accessToken":"tok2"}`))
		})
		mux.HandleFunc("/user/change-email/apply", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"u1","username":"anna","email":"new@b.c","authType":"local"}`))
		})
		sess, _, _ := newTestSession(t, mux)

		if _, err := sess.SignIn(context.Background(), "old@b.c", "pw"); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		updated, err := sess.ChangeEmail(context.Background(), "ct", "id", "new@b.c")
		if err != nil {
			t.Fatalf("ChangeEmail: %v", err)
		}
		if updated.Email != "new@b.c" {
			t.Errorf("email = %q, want new@b.c", updated.Email)
		}
	})
}

func TestConfirmReset_DoesNotEstablishIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/confirmation", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"u1","username":"anna","email":"anna@b.c","authType":"local"}`))
	})
	sess, _, _ := newTestSession(t, mux)

	email, err := sess.ConfirmReset(context.Background(), "rt", "id")
	if err != nil {
		t.Fatalf("ConfirmReset: %v", err)
	}
	if email != "anna@b.c" {
		t.Errorf("email = %q, want anna@b.c", email)
	}
	if sess.IsAuthenticated() {
		t.Error("reset confirmation must not authenticate the session")
	}
}

func TestSignOut_ClearsIdentityAndToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"u1","username":"anna","email":"a@b.c","authType":"local"},"accessToken":"tok"}`))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	sess, tokens, _ := newTestSession(t, mux)

	if _, err := sess.SignIn(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if err := sess.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if sess.IsAuthenticated() {
		t.Error("session should be anonymous after sign out")
	}
	if _, ok := tokens.Get(); ok {
		t.Error("token should be cleared after sign out")
	}
}

func TestProviderLoginURL(t *testing.T) {
	sess, _, _ := newTestSession(t, http.NewServeMux())

	url, err := sess.ProviderLoginURL("https://api.example.com", core.ProviderGithub)
	if err != nil {
		t.Fatalf("ProviderLoginURL: %v", err)
	}
	if url != "https://api.example.com/connect/github" {
		t.Errorf("url = %q", url)
	}

	if _, err := sess.ProviderLoginURL("https://api.example.com", core.ProviderLocal); !errors.Is(err, core.ErrInvalidProvider) {
		t.Errorf("err = %v, want ErrInvalidProvider", err)
	}
}
