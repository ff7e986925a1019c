package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephalon-sofis/wfbuddy/internal/clock"
	"github.com/cephalon-sofis/wfbuddy/internal/session"
	"github.com/cephalon-sofis/wfbuddy/internal/testutil"
	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

const (
	baseURL     = "https://api.example.com"
	loginURL    = baseURL + "/API/PHP/login.php"
	logoutURL   = baseURL + "/API/PHP/logout.php"
	authorizeRe = `=~^https://api\.example\.com/API/PHP/authorizeNewHwid\.php`
)

func newManager(client *http.Client, a testutil.Account) *session.Manager {
	m := session.New(transport.New(client), baseURL, a.Email, a.Password)
	m.Clock = clock.Fixed(time.Unix(1_700_000_000, 0))
	return m
}

func loginResponder(a testutil.Account) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(200, map[string]any{"id": a.AccountID, "Nonce": a.Nonce})
}

func TestPasswordHash(t *testing.T) {
	cases := []struct {
		password string
		want     string
	}{
		{"", "19fa61d75522a4669b44e39c1d2e1726c530232130d407f89afee0964997f7a73e83be698b288febcf88e3e03c4f0757ea8964e59b63d93708b138cc42a66eb3"},
		{"abc", "4e2448a4c6f486bb16b6562c73b4020bf3043e3a731bce721ae1b303d97e6d4c7181eebdb6c57e277d0e34957114cbd6c797fc9d95d8b582d225292076d4eef5"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("password %q", tc.password), func(t *testing.T) {
			assert.Equal(t, tc.want, session.PasswordHash(tc.password))
		})
	}
}

func TestLogin(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	ctx := context.Background()
	a := testutil.NewAccount()

	t.Run("should store token after successful login", func(t *testing.T) {
		// given
		httpmock.Reset()
		var got map[string]any
		httpmock.RegisterResponder("POST", loginURL, func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return loginResponder(a)(req)
		})
		m := newManager(client, a)
		// when
		info, err := m.Login(ctx)
		// then
		require.NoError(t, err)
		assert.Equal(t, a.AccountID, info.AccountID)
		assert.Equal(t, session.LoggedIn, m.State())
		token, err := m.Token()
		if assert.NoError(t, err) {
			assert.Equal(t, session.Token{AccountID: a.AccountID, Nonce: a.Nonce}, token)
		}
		want := map[string]any{
			"email":      a.Email,
			"password":   session.PasswordHash(a.Password),
			"time":       float64(1_700_000_000),
			"date":       float64(9999999999999999),
			"mobile":     true,
			"appVersion": "4.2.8.0",
		}
		assert.Equal(t, want, got)
	})
	t.Run("should encode login request compactly in field order", func(t *testing.T) {
		// given
		httpmock.Reset()
		var body string
		httpmock.RegisterResponder("POST", loginURL, func(req *http.Request) (*http.Response, error) {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			body = string(b)
			return loginResponder(a)(req)
		})
		m := session.New(transport.New(client), baseURL, "a@example.com", "abc")
		m.Clock = clock.Fixed(time.Unix(42, 0))
		// when
		_, err := m.Login(ctx)
		// then
		require.NoError(t, err)
		want := `{"email":"a@example.com","password":"` + session.PasswordHash("abc") +
			`","time":42,"date":9999999999999999,"mobile":true,"appVersion":"4.2.8.0"}`
		assert.Equal(t, want, body)
	})
	t.Run("should accept numeric nonce", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL,
			httpmock.NewStringResponder(200, `{"id":"abc123","Nonce":1234567890123}`))
		m := newManager(client, a)
		// when
		info, err := m.Login(ctx)
		// then
		require.NoError(t, err)
		assert.Equal(t, "1234567890123", info.Nonce)
	})
	t.Run("should return already logged in on 409", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(409, "conflict"))
		m := newManager(client, a)
		// when
		_, err := m.Login(ctx)
		// then
		assert.ErrorIs(t, err, session.ErrAlreadyLoggedIn)
		var loginErr *session.LoginError
		if assert.True(t, errors.As(err, &loginErr)) {
			assert.Equal(t, 409, loginErr.StatusCode)
		}
		var httpErr transport.HTTPError
		assert.True(t, errors.As(err, &httpErr))
		assert.Equal(t, session.LoggedOut, m.State())
	})
	t.Run("should return version out of date on 400 with marker", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(400, "Error: version out of date"))
		m := newManager(client, a)
		// when
		_, err := m.Login(ctx)
		// then
		assert.ErrorIs(t, err, session.ErrVersionOutOfDate)
		assert.NotErrorIs(t, err, session.ErrAlreadyLoggedIn)
		assert.False(t, m.IsLoggedIn())
	})
	t.Run("should return generic login error for other failures", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(400, "incorrect password"))
		m := newManager(client, a)
		// when
		_, err := m.Login(ctx)
		// then
		var loginErr *session.LoginError
		if assert.True(t, errors.As(err, &loginErr)) {
			assert.Equal(t, "incorrect password", loginErr.Text)
			assert.Equal(t, 400, loginErr.StatusCode)
		}
		assert.NotErrorIs(t, err, session.ErrVersionOutOfDate)
	})
	t.Run("should verify new hardware and retry login once", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL,
			httpmock.NewStringResponder(400, "new hardware detected").Then(loginResponder(a)))
		var query url.Values
		httpmock.RegisterResponder("GET", authorizeRe, func(req *http.Request) (*http.Response, error) {
			query = req.URL.Query()
			return httpmock.NewStringResponse(200, "ok"), nil
		})
		m := newManager(client, a)
		var prompt string
		var stateDuringPrompt session.State
		m.CodeProvider = session.CodeProviderFunc(func(ctx context.Context, p string) (string, error) {
			prompt = p
			stateDuringPrompt = m.State()
			return "ABC123\n", nil
		})
		// when
		_, err := m.Login(ctx)
		// then
		require.NoError(t, err)
		assert.True(t, m.IsLoggedIn())
		assert.Equal(t, "new hardware detected", prompt)
		assert.Equal(t, session.AwaitingVerification, stateDuringPrompt)
		assert.Equal(t, "ABC123", query.Get("code"))
		assert.Equal(t, "true", query.Get("mobile"))
		assert.Equal(t, 2, httpmock.GetCallCountInfo()["POST "+loginURL])
	})
	t.Run("should return generic login error when retry fails", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL,
			httpmock.NewStringResponder(400, "new hardware detected").Then(httpmock.NewStringResponder(409, "conflict")))
		httpmock.RegisterResponder("GET", authorizeRe, httpmock.NewStringResponder(400, "invalid code"))
		m := newManager(client, a)
		m.CodeProvider = session.CodeProviderFunc(func(ctx context.Context, p string) (string, error) {
			return "WRONG", nil
		})
		// when
		_, err := m.Login(ctx)
		// then
		var loginErr *session.LoginError
		if assert.True(t, errors.As(err, &loginErr)) {
			assert.Equal(t, 409, loginErr.StatusCode)
		}
		assert.NotErrorIs(t, err, session.ErrAlreadyLoggedIn)
		assert.Equal(t, 2, httpmock.GetCallCountInfo()["POST "+loginURL])
	})
	t.Run("should require verification when no code provider is configured", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(400, "new hardware detected"))
		m := newManager(client, a)
		// when
		_, err := m.Login(ctx)
		// then
		assert.ErrorIs(t, err, session.ErrVerificationRequired)
	})
	t.Run("should abort login when code provider fails", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(400, "new hardware detected"))
		m := newManager(client, a)
		errCanceled := errors.New("canceled")
		m.CodeProvider = session.CodeProviderFunc(func(ctx context.Context, p string) (string, error) {
			return "", errCanceled
		})
		// when
		_, err := m.Login(ctx)
		// then
		assert.ErrorIs(t, err, errCanceled)
		assert.Equal(t, session.LoggedOut, m.State())
	})
	t.Run("should report invalid login response", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(200, "welcome"))
		m := newManager(client, a)
		// when
		_, err := m.Login(ctx)
		// then
		assert.ErrorIs(t, err, transport.ErrNotJSON)
		assert.False(t, m.IsLoggedIn())
	})
}

func TestLoginWithLiveSession(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	ctx := context.Background()
	a := testutil.NewAccount()
	httpmock.RegisterResponder("POST", loginURL,
		loginResponder(a).Then(httpmock.NewStringResponder(409, "Already logged in")))
	httpmock.RegisterResponder("POST", logoutURL, httpmock.NewStringResponder(200, ""))
	m := newManager(client, a)
	_, err := m.Login(ctx)
	require.NoError(t, err)

	_, err = m.Login(ctx)
	assert.ErrorIs(t, err, session.ErrAlreadyLoggedIn)
	assert.True(t, m.IsLoggedIn())
	assert.Equal(t, session.LoggedIn, m.State())
	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, a.Nonce, tok.Nonce)

	err = m.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+logoutURL])
	assert.False(t, m.IsLoggedIn())
}

func TestLogout(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	ctx := context.Background()
	a := testutil.NewAccount()

	t.Run("should post token and clear session", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		var form url.Values
		httpmock.RegisterResponder("POST", logoutURL, func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				return nil, err
			}
			form = req.PostForm
			return httpmock.NewStringResponse(200, ""), nil
		})
		m := newManager(client, a)
		_, err := m.Login(ctx)
		require.NoError(t, err)
		// when
		err = m.Logout(ctx)
		// then
		require.NoError(t, err)
		assert.Equal(t, session.LoggedOut, m.State())
		assert.Equal(t, "true", form.Get("mobile"))
		assert.Equal(t, a.AccountID, form.Get("accountId"))
		assert.Equal(t, a.Nonce, form.Get("nonce"))
	})
	t.Run("should clear session even when logout fails", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		httpmock.RegisterResponder("POST", logoutURL, httpmock.NewStringResponder(500, ""))
		m := newManager(client, a)
		_, err := m.Login(ctx)
		require.NoError(t, err)
		// when
		err = m.Logout(ctx)
		// then
		assert.Error(t, err)
		assert.False(t, m.IsLoggedIn())
	})
	t.Run("should return not logged in when there is no session", func(t *testing.T) {
		m := newManager(client, a)
		err := m.Logout(ctx)
		assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	})
}

func TestSend(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	ctx := context.Background()
	a := testutil.NewAccount()

	t.Run("should require session for authenticated requests", func(t *testing.T) {
		m := newManager(client, a)
		_, err := m.Send(ctx, session.Request{Path: "/API/PHP/inventory.php", Auth: session.AuthForm})
		assert.ErrorIs(t, err, session.ErrNotLoggedIn)
		_, err = m.Send(ctx, session.Request{Path: "/API/PHP/drones.php", Auth: session.AuthQuery})
		assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	})
	t.Run("should send anonymous requests without session", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", baseURL+"/API/PHP/mobileRetrieveRecipes.php", httpmock.NewStringResponder(200, "[]"))
		m := newManager(client, a)
		// when
		_, err := m.Send(ctx, session.Request{Path: "/API/PHP/mobileRetrieveRecipes.php"})
		// then
		assert.NoError(t, err)
	})
	t.Run("should add token to query", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		var query url.Values
		httpmock.RegisterResponder("POST", baseURL+"/API/PHP/drones.php", func(req *http.Request) (*http.Response, error) {
			query = req.URL.Query()
			return httpmock.NewStringResponse(200, "{}"), nil
		})
		m := newManager(client, a)
		_, err := m.Login(ctx)
		require.NoError(t, err)
		// when
		_, err = m.Send(ctx, session.Request{
			Path:  "/API/PHP/drones.php",
			Query: url.Values{"GetActive": {"true"}},
			Auth:  session.AuthQuery,
		})
		// then
		require.NoError(t, err)
		assert.Equal(t, "true", query.Get("GetActive"))
		assert.Equal(t, a.AccountID, query.Get("accountId"))
		assert.Equal(t, a.Nonce, query.Get("nonce"))
		assert.Equal(t, "true", query.Get("mobile"))
	})
}

func TestWithSession(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()
	ctx := context.Background()
	a := testutil.NewAccount()

	t.Run("should logout after success", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		httpmock.RegisterResponder("POST", logoutURL, httpmock.NewStringResponder(200, ""))
		m := newManager(client, a)
		var wasLoggedIn bool
		// when
		err := m.WithSession(ctx, func(ctx context.Context) error {
			wasLoggedIn = m.IsLoggedIn()
			return nil
		})
		// then
		require.NoError(t, err)
		assert.True(t, wasLoggedIn)
		assert.False(t, m.IsLoggedIn())
		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+logoutURL])
	})
	t.Run("should logout after error and return the error", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		httpmock.RegisterResponder("POST", logoutURL, httpmock.NewStringResponder(500, ""))
		m := newManager(client, a)
		errFailed := errors.New("failed")
		// when
		err := m.WithSession(ctx, func(ctx context.Context) error {
			return errFailed
		})
		// then
		assert.ErrorIs(t, err, errFailed)
		assert.False(t, m.IsLoggedIn())
		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+logoutURL])
	})
	t.Run("should not call fn when login fails", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, httpmock.NewStringResponder(409, ""))
		m := newManager(client, a)
		var called bool
		// when
		err := m.WithSession(ctx, func(ctx context.Context) error {
			called = true
			return nil
		})
		// then
		assert.ErrorIs(t, err, session.ErrAlreadyLoggedIn)
		assert.False(t, called)
	})
	t.Run("should skip logout when session was already closed", func(t *testing.T) {
		// given
		httpmock.Reset()
		httpmock.RegisterResponder("POST", loginURL, loginResponder(a))
		httpmock.RegisterResponder("POST", logoutURL, httpmock.NewStringResponder(200, ""))
		m := newManager(client, a)
		// when
		err := m.WithSession(ctx, func(ctx context.Context) error {
			return m.Logout(ctx)
		})
		// then
		require.NoError(t, err)
		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+logoutURL])
	})
}

func TestWithSessionCancelled(t *testing.T) {
	a := testutil.NewAccount()
	var logouts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case session.PathLogin:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":%q,"Nonce":%q}`, a.AccountID, a.Nonce)
		case session.PathLogout:
			logouts.Add(1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	m := session.New(transport.New(srv.Client()), srv.URL, a.Email, a.Password)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errFailed := errors.New("failed")

	err := m.WithSession(ctx, func(ctx context.Context) error {
		cancel()
		return errFailed
	})

	assert.ErrorIs(t, err, errFailed)
	assert.False(t, m.IsLoggedIn())
	assert.EqualValues(t, 1, logouts.Load())
}
