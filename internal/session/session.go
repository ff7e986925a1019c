// Package session manages the login session of a player account.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jzelinskie/whirlpool"

	"github.com/cephalon-sofis/wfbuddy/internal/clock"
	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	DefaultBaseURL = "https://api.warframe.com"

	// Taken from the Android app.
	DefaultAppVersion = "4.2.8.0"

	// This seems to be based on the phone's device ID.
	// Not sure how it's used, but it is required.
	deviceDate = 9999999999999999

	logoutTimeout = 10 * time.Second

	markerVersionOutOfDate = "version out of date"
	markerNewHardware      = "new hardware detected"
)

const (
	PathLogin             = "/API/PHP/login.php"
	PathLogout            = "/API/PHP/logout.php"
	PathAuthorizeHardware = "/API/PHP/authorizeNewHwid.php"
)

// Sender sends requests to the API.
type Sender interface {
	Send(ctx context.Context, r transport.Request) (transport.Result, error)
}

// CodeProvider provides the verification code the server emails
// to the player when a login from new hardware is detected.
type CodeProvider interface {
	RequestCode(ctx context.Context, prompt string) (string, error)
}

// The CodeProviderFunc type is an adapter to allow the use of ordinary functions as CodeProvider.
type CodeProviderFunc func(ctx context.Context, prompt string) (string, error)

func (f CodeProviderFunc) RequestCode(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Token is the credential of a session which is attached to authenticated requests.
type Token struct {
	AccountID string
	Nonce     string
}

// Values returns the token as URL values.
func (t Token) Values() url.Values {
	v := url.Values{}
	v.Set("mobile", "true")
	v.Set("accountId", t.AccountID)
	v.Set("nonce", t.Nonce)
	return v
}

// LoginInfo is the response of a successful login.
type LoginInfo struct {
	AccountID string
	Nonce     string
	Result    transport.Result
}

// Auth defines how the session token is attached to a request.
type Auth uint8

const (
	AuthNone  Auth = iota
	AuthQuery      // token is added to the query
	AuthForm       // token is posted as form
)

// Request is a request to an API endpoint.
type Request struct {
	Method      string // defaults to POST
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Auth        Auth
}

// Manager owns the session of one player account.
//
// All authenticated requests require a live session, i.e. a successful [Manager.Login].
// A Manager is not safe for concurrent use.
type Manager struct {
	// Version of the app reported to the server.
	AppVersion string
	// Clock is the source for the current time.
	Clock clock.Clock
	// CodeProvider is asked for a verification code when the server detects new hardware.
	CodeProvider CodeProvider

	baseURL      string
	email        string
	passwordHash string
	sender       Sender
	state        State
	token        *Token
}

// New returns a new Manager for an account.
// When baseURL is empty it will use [DefaultBaseURL].
func New(sender Sender, baseURL, email, password string) *Manager {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	m := &Manager{
		AppVersion:   DefaultAppVersion,
		Clock:        clock.Real{},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		email:        email,
		passwordHash: PasswordHash(password),
		sender:       sender,
	}
	return m
}

// PasswordHash returns the digest of a password as expected by the login endpoint.
func PasswordHash(password string) string {
	h := whirlpool.New()
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}

// State returns the current state of the session.
func (m *Manager) State() State {
	return m.state
}

// IsLoggedIn reports whether there is a live session.
func (m *Manager) IsLoggedIn() bool {
	return m.state == LoggedIn && m.token != nil
}

// Token returns the token of the live session or [ErrNotLoggedIn].
func (m *Manager) Token() (Token, error) {
	if !m.IsLoggedIn() {
		return Token{}, ErrNotLoggedIn
	}
	return *m.token, nil
}

// Login logs the account in.
//
// When the server reports a login from new hardware it will ask the [CodeProvider]
// for the code from the verification email, submit it and retry the login once.
//
// When the login fails a live session is kept, so it can still be logged out.
func (m *Manager) Login(ctx context.Context) (LoginInfo, error) {
	prevState, prevToken := m.state, m.token
	m.state = LoggingIn
	info, err := m.login(ctx)
	if err != nil {
		if prevState == LoggedIn && prevToken != nil {
			m.state, m.token = prevState, prevToken
		} else {
			m.state, m.token = LoggedOut, nil
		}
		return LoginInfo{}, err
	}
	m.token = &Token{AccountID: info.AccountID, Nonce: info.Nonce}
	m.state = LoggedIn
	slog.Info("Logged in", "accountID", info.AccountID)
	return info, nil
}

func (m *Manager) login(ctx context.Context) (LoginInfo, error) {
	info, err := m.postLogin(ctx)
	if err == nil {
		return info, nil
	}
	var httpErr transport.HTTPError
	if !errors.As(err, &httpErr) {
		return LoginInfo{}, fmt.Errorf("login: %w", err)
	}
	switch {
	case httpErr.StatusCode == http.StatusConflict:
		return LoginInfo{}, newAlreadyLoggedInError(err)
	case httpErr.StatusCode == http.StatusBadRequest && strings.Contains(httpErr.Body, markerVersionOutOfDate):
		return LoginInfo{}, newVersionOutOfDateError(err)
	case httpErr.StatusCode == http.StatusBadRequest && strings.Contains(httpErr.Body, markerNewHardware):
		if err := m.verifyHardware(ctx, httpErr); err != nil {
			return LoginInfo{}, err
		}
		info, err := m.postLogin(ctx)
		if err != nil {
			return LoginInfo{}, newLoginError(err)
		}
		return info, nil
	}
	return LoginInfo{}, newLoginError(err)
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Time       int64  `json:"time"`
	Date       int64  `json:"date"`
	Mobile     bool   `json:"mobile"` // prevents clobbering an active player's session
	AppVersion string `json:"appVersion"`
}

type loginResponse struct {
	ID    flexString `json:"id"`
	Nonce flexString `json:"Nonce"`
}

func (m *Manager) postLogin(ctx context.Context) (LoginInfo, error) {
	body, err := json.Marshal(loginRequest{
		Email:      m.email,
		Password:   m.passwordHash,
		Time:       m.Clock.Now().Unix(),
		Date:       deviceDate,
		Mobile:     true,
		AppVersion: m.AppVersion,
	})
	if err != nil {
		return LoginInfo{}, err
	}
	r, err := m.sender.Send(ctx, transport.Request{URL: m.baseURL + PathLogin, Body: body})
	if err != nil {
		return LoginInfo{}, err
	}
	var x loginResponse
	if err := r.Decode(&x); err != nil {
		return LoginInfo{}, fmt.Errorf("login response: %w", err)
	}
	if x.ID == "" || x.Nonce == "" {
		return LoginInfo{}, fmt.Errorf("login response: missing id or nonce")
	}
	info := LoginInfo{AccountID: string(x.ID), Nonce: string(x.Nonce), Result: r}
	return info, nil
}

// verifyHardware asks for a verification code and submits it.
// Failing to submit the code is not an error, since the retried login will report it.
func (m *Manager) verifyHardware(ctx context.Context, httpErr transport.HTTPError) error {
	if m.CodeProvider == nil {
		return &LoginError{
			Text:       httpErr.Body,
			StatusCode: httpErr.StatusCode,
			kind:       ErrVerificationRequired,
			err:        httpErr,
		}
	}
	m.state = AwaitingVerification
	slog.Info("New hardware detected. Requesting verification code")
	code, err := m.CodeProvider.RequestCode(ctx, httpErr.Body)
	if err != nil {
		return fmt.Errorf("request verification code: %w", err)
	}
	m.state = LoggingIn
	v := url.Values{}
	v.Set("code", strings.TrimSpace(code))
	v.Set("mobile", "true")
	_, err = m.sender.Send(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    m.baseURL + PathAuthorizeHardware + "?" + v.Encode(),
	})
	if err != nil {
		slog.Warn("Failed to authorize new hardware", "error", err)
	}
	return nil
}

func newLoginError(err error) error {
	var httpErr transport.HTTPError
	if errors.As(err, &httpErr) {
		return &LoginError{Text: httpErr.Body, StatusCode: httpErr.StatusCode, err: err}
	}
	return fmt.Errorf("login: %w", err)
}

// Logout logs the account out. The session is cleared even when the request fails.
func (m *Manager) Logout(ctx context.Context) error {
	t, err := m.Token()
	if err != nil {
		return err
	}
	defer func() {
		m.token = nil
		m.state = LoggedOut
	}()
	_, err = m.sender.Send(ctx, transport.Request{
		URL:         m.baseURL + PathLogout,
		Body:        []byte(t.Values().Encode()),
		ContentType: transport.ContentTypeForm,
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	slog.Info("Logged out")
	return nil
}

// WithSession logs in, runs fn and logs out again on every exit path of fn.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, err := m.Login(ctx); err != nil {
		return err
	}
	defer func() {
		if !m.IsLoggedIn() {
			return
		}
		// Logout must also be attempted when ctx was cancelled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		err2 := m.Logout(ctx)
		if err2 == nil {
			return
		}
		if err == nil {
			err = err2
			return
		}
		slog.Warn("Failed to log out after error", "error", err2)
	}()
	return fn(ctx)
}

// Send sends a request to an API endpoint and attaches the session token as requested.
// Authenticated requests fail with [ErrNotLoggedIn] when there is no live session.
func (m *Manager) Send(ctx context.Context, r Request) (transport.Result, error) {
	q := url.Values{}
	maps.Copy(q, r.Query)
	body, contentType := r.Body, r.ContentType
	switch r.Auth {
	case AuthQuery, AuthForm:
		t, err := m.Token()
		if err != nil {
			return transport.Result{}, err
		}
		if r.Auth == AuthQuery {
			maps.Copy(q, t.Values())
		} else {
			body = []byte(t.Values().Encode())
			contentType = transport.ContentTypeForm
		}
	}
	u := m.baseURL + r.Path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return m.sender.Send(ctx, transport.Request{
		Method:      r.Method,
		URL:         u,
		Body:        body,
		ContentType: contentType,
	})
}

// flexString is a string which the API sometimes sends as JSON number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var x string
	if err := json.Unmarshal(b, &x); err == nil {
		*s = flexString(x)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
