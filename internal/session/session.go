// Package session owns the authenticated-user identity. A Session is the
// single writer of "is a user currently signed in": every identity-mutating
// operation replaces the user record wholesale, and operations that need an
// authenticated session fail locally with api.ErrUnauthorized when invoked
// while anonymous.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"contabile/internal/api"
	"contabile/internal/core"
	"contabile/internal/log"
	"contabile/internal/token"
)

// Session is the identity state machine: Anonymous <-> Authenticated(User).
type Session struct {
	mu     sync.RWMutex
	user   *core.User
	client *api.Client
	tokens token.Store
	logger *log.Logger
}

// authPayload is what the token-issuing endpoints return.
type authPayload struct {
	User        core.User `json:"user"`
	AccessToken string    `json:"accessToken"`
}

func New(client *api.Client, tokens token.Store, logger *log.Logger) *Session {
	return &Session{
		client: client,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// CurrentUser returns a copy of the authenticated user, if any.
func (s *Session) CurrentUser() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// requireUser is the local precondition for authenticated-only operations.
func (s *Session) requireUser() (core.User, error) {
	user, ok := s.CurrentUser()
	if !ok {
		return core.User{}, api.ErrUnauthorized
	}
	return user, nil
}

func (s *Session) setUser(u *core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// SignUp registers a new account. The account stays inactive (and the
// session anonymous) until the emailed activation link is used.
func (s *Session) SignUp(ctx context.Context, username, email, password string) error {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	if err := s.client.Do(ctx, http.MethodPost, "/register", body, nil); err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	s.logger.InfoContext(ctx, "account registered", log.FieldEmail, email)
	return nil
}

// SignIn exchanges credentials for a (User, token) pair.
func (s *Session) SignIn(ctx context.Context, email, password string) (core.User, error) {
	body := map[string]string{"email": email, "password": password}

	var auth authPayload
	if err := s.client.Do(ctx, http.MethodPost, "/login", body, &auth); err != nil {
		return core.User{}, fmt.Errorf("sign in: %w", err)
	}

	if err := s.tokens.Set(auth.AccessToken); err != nil {
		return core.User{}, fmt.Errorf("store token: %w", err)
	}
	s.setUser(&auth.User)

	s.logger.InfoContext(ctx, "signed in",
		log.FieldUserID, auth.User.ID,
		log.FieldOperation, log.OpSignIn)
	return auth.User, nil
}

// Activate consumes an emailed activation token and signs the user in.
func (s *Session) Activate(ctx context.Context, activationToken, id string) (core.User, error) {
	path := "/activation?" + url.Values{
		"token": {activationToken},
		"id":    {id},
	}.Encode()

	var auth authPayload
	if err := s.client.Do(ctx, http.MethodGet, path, nil, &auth); err != nil {
		return core.User{}, fmt.Errorf("activate account: %w", err)
	}

	if err := s.tokens.Set(auth.AccessToken); err != nil {
		return core.User{}, fmt.Errorf("store token: %w", err)
	}
	s.setUser(&auth.User)
	return auth.User, nil
}

// ProviderLoginURL returns the browser URL that starts a third-party login
// or account-link flow. The provider redirects back with a refresh cookie;
// CompleteProviderLogin finishes the exchange.
func (s *Session) ProviderLoginURL(baseURL string, provider core.AuthProvider) (string, error) {
	if provider != core.ProviderGoogle && provider != core.ProviderGithub {
		return "", core.ErrInvalidProvider
	}
	return baseURL + "/connect/" + string(provider), nil
}

// CompleteProviderLogin fetches the current user after a provider redirect.
// The gateway's refresh path turns the redirect's cookie into an access
// token on the first 401.
func (s *Session) CompleteProviderLogin(ctx context.Context) (core.User, error) {
	user, err := s.fetchUser(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("complete provider login: %w", err)
	}
	return user, nil
}

// Restore rebuilds the identity from a credential that survived in the
// store, e.g. when a new process starts with a durable token store.
func (s *Session) Restore(ctx context.Context) (core.User, error) {
	if _, ok := s.tokens.Get(); !ok {
		return core.User{}, api.ErrUnauthorized
	}
	user, err := s.fetchUser(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("restore session: %w", err)
	}
	return user, nil
}

func (s *Session) fetchUser(ctx context.Context) (core.User, error) {
	var user core.User
	if err := s.client.Do(ctx, http.MethodGet, "/user/me", nil, &user); err != nil {
		return core.User{}, err
	}
	s.setUser(&user)
	return user, nil
}

// RequestReset asks the server to email a password-reset link.
func (s *Session) RequestReset(ctx context.Context, email string) error {
	if err := s.client.Do(ctx, http.MethodPost, "/confirmation", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("request reset: %w", err)
	}
	return nil
}

// ConfirmReset exchanges a reset token for the owning email address. This is
// a side channel: it proves control of the mailbox but does NOT establish an
// authenticated session.
func (s *Session) ConfirmReset(ctx context.Context, resetToken, id string) (string, error) {
	path := "/confirmation?" + url.Values{
		"token": {resetToken},
		"id":    {id},
	}.Encode()

	var user core.User
	if err := s.client.Do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return "", fmt.Errorf("confirm reset: %w", err)
	}
	return user.Email, nil
}

// ResetPassword sets a new password for the email ConfirmReset yielded.
func (s *Session) ResetPassword(ctx context.Context, email, newPassword string) error {
	body := map[string]string{"email": email, "newPassword": newPassword}
	if err := s.client.Do(ctx, http.MethodPost, "/reset-password", body, nil); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// ChangeUsername replaces the username and the cached user record.
func (s *Session) ChangeUsername(ctx context.Context, newUsername string) (core.User, error) {
	user, err := s.requireUser()
	if err != nil {
		return core.User{}, err
	}

	body := map[string]string{"userId": user.ID, "newUsername": newUsername}
	var updated core.User
	if err := s.client.Do(ctx, http.MethodPost, "/user/change-username", body, &updated); err != nil {
		return core.User{}, fmt.Errorf("change username: %w", err)
	}
	s.setUser(&updated)
	return updated, nil
}

// ChangePassword verifies the old password server-side and sets a new one.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}

	body := map[string]string{
		"userId":      user.ID,
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	}
	if err := s.client.Do(ctx, http.MethodPost, "/user/change-password", body, nil); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// RequestEmailChange asks the server to mail a confirmation link to the new
// address. The email does not change until ChangeEmail completes.
func (s *Session) RequestEmailChange(ctx context.Context, password, newEmail string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}

	body := map[string]string{
		"password": password,
		"oldEmail": user.Email,
		"newEmail": newEmail,
	}
	if err := s.client.Do(ctx, http.MethodPost, "/user/change-email", body, nil); err != nil {
		return fmt.Errorf("request email change: %w", err)
	}
	return nil
}

// ChangeEmail finishes the two-phase email change. Confirming the token
// first re-authenticates the requester under the OLD email and yields a
// fresh token; only then is the new email applied. A failure between the two
// phases leaves the user signed in under the old address.
func (s *Session) ChangeEmail(ctx context.Context, changeToken, id, newEmail string) (core.User, error) {
	if _, err := s.requireUser(); err != nil {
		return core.User{}, err
	}

	confirmPath := "/user/change-email/confirm?" + url.Values{
		"token": {changeToken},
		"id":    {id},
	}.Encode()

	var auth authPayload
	if err := s.client.Do(ctx, http.MethodGet, confirmPath, nil, &auth); err != nil {
		return core.User{}, fmt.Errorf("confirm email change: %w", err)
	}
	if err := s.tokens.Set(auth.AccessToken); err != nil {
		return core.User{}, fmt.Errorf("store token: %w", err)
	}
	s.setUser(&auth.User)

	var updated core.User
	body := map[string]string{"newEmail": newEmail}
	if err := s.client.Do(ctx, http.MethodPost, "/user/change-email/apply", body, &updated); err != nil {
		return core.User{}, fmt.Errorf("apply email change: %w", err)
	}
	s.setUser(&updated)

	s.logger.InfoContext(ctx, "email changed", log.FieldUserID, updated.ID)
	return updated, nil
}

// UnlinkProvider detaches a linked third-party identity.
func (s *Session) UnlinkProvider(ctx context.Context, provider core.AuthProvider) (core.User, error) {
	if _, err := s.requireUser(); err != nil {
		return core.User{}, err
	}
	if provider != core.ProviderGoogle && provider != core.ProviderGithub {
		return core.User{}, core.ErrInvalidProvider
	}

	var updated core.User
	path := "/user/social/" + string(provider)
	if err := s.client.Do(ctx, http.MethodDelete, path, nil, &updated); err != nil {
		return core.User{}, fmt.Errorf("unlink %s: %w", provider, err)
	}
	s.setUser(&updated)
	return updated, nil
}

// SignOut invalidates the refresh token server-side and drops both the user
// record and the access token.
func (s *Session) SignOut(ctx context.Context) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodGet, "/logout", nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	s.setUser(nil)
	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.InfoContext(ctx, "signed out", log.FieldOperation, log.OpSignOut)
	return nil
}

// DeleteAccount removes the account and ends the session.
func (s *Session) DeleteAccount(ctx context.Context) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}

	if err := s.client.Do(ctx, http.MethodDelete, "/user", nil, nil); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	s.setUser(nil)
	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
