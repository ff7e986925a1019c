package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func TestLogResponse(t *testing.T) {
	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	defer func() {
		log.SetOutput(os.Stderr)
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}()
	rhc := retryablehttp.NewClient()
	rhc.Logger = nil
	rhc.ResponseLogHook = logResponse
	rhc.RetryMax = 0
	rhc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpmock.ActivateNonDefault(rhc.HTTPClient)
	defer httpmock.DeactivateAndReset()
	t.Run("should log request and response details when log level is DEBUG", func(t *testing.T) {
		// given
		logBuf.Reset()
		slog.SetLogLoggerLevel(slog.LevelDebug)
		httpmock.Reset()
		httpmock.RegisterResponder(
			"POST",
			"https://api.example.com/API/PHP/inventory.php",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]bool{"alpha": true}).HeaderSet(http.Header{"dummy": []string{"alpha"}}),
		)

		// when
		r, err := rhc.Post("https://api.example.com/API/PHP/inventory.php", "", nil)

		// then
		if assert.NoError(t, err) {
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.Regexp(t,
				regexp.MustCompile(`DEBUG HTTP response method=POST .*status="200.*header=.*Dummy:\[alpha\].*body=map\[alpha:true\]`),
				logBuf.String(),
			)
		}
	})
	t.Run("should not log response details when log level is not DEBUG and no HTTP error", func(t *testing.T) {
		// given
		logBuf.Reset()
		slog.SetLogLoggerLevel(slog.LevelInfo)
		httpmock.Reset()
		httpmock.RegisterResponder(
			"GET",
			"https://api.example.com/",
			httpmock.NewStringResponder(http.StatusOK, "orange"))

		// when
		r, err := rhc.Get("https://api.example.com/")

		// then
		if assert.NoError(t, err) {
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.NotContains(t, logBuf.String(), "HTTP response")
		}
	})
	t.Run("should log response warning when HTTP error and include body", func(t *testing.T) {
		// given
		logBuf.Reset()
		slog.SetLogLoggerLevel(slog.LevelInfo)
		httpmock.Reset()
		httpmock.RegisterResponder(
			"GET",
			"https://api.example.com/",
			httpmock.NewStringResponder(http.StatusConflict, "orange"))

		// when
		r, err := rhc.Get("https://api.example.com/")

		// then
		if assert.NoError(t, err) {
			assert.Equal(t, http.StatusConflict, r.StatusCode)
			assert.Regexp(t, regexp.MustCompile(`WARN HTTP response .*body=orange`), logBuf.String())
		}
	})
	t.Run("should redact response body for login", func(t *testing.T) {
		// given
		logBuf.Reset()
		slog.SetLogLoggerLevel(slog.LevelDebug)
		httpmock.Reset()
		httpmock.RegisterResponder(
			"POST",
			"https://api.example.com/API/PHP/login.php",
			httpmock.NewStringResponder(http.StatusOK, "orange"))

		// when
		r, err := rhc.Post("https://api.example.com/API/PHP/login.php", "", nil)

		// then
		if assert.NoError(t, err) {
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.Regexp(t, regexp.MustCompile(`DEBUG HTTP response .*body=xxxxx`), logBuf.String())
			assert.NotContains(t, logBuf.String(), "orange")
		}
	})
	t.Run("should redact nonce in URL", func(t *testing.T) {
		// given
		logBuf.Reset()
		slog.SetLogLoggerLevel(slog.LevelDebug)
		httpmock.Reset()
		httpmock.RegisterResponder(
			"POST",
			"https://api.example.com/API/PHP/drones.php",
			httpmock.NewStringResponder(http.StatusOK, "orange"))

		// when
		r, err := rhc.Post("https://api.example.com/API/PHP/drones.php?accountId=42&nonce=1234567", "", nil)

		// then
		if assert.NoError(t, err) {
			assert.Equal(t, http.StatusOK, r.StatusCode)
			assert.Contains(t, logBuf.String(), "accountId=42")
			assert.NotContains(t, logBuf.String(), "1234567")
		}
	})
}

func TestExtractBody(t *testing.T) {
	t.Run("should return copy of the body", func(t *testing.T) {
		u, _ := url.Parse("http://www.example.com")
		r := &http.Response{
			Body: io.NopCloser(strings.NewReader("test")),
			Request: &http.Request{
				URL: u,
			},
		}
		x, err := extractBodyForLog(r)
		if assert.NoError(t, err) {
			assert.Equal(t, "test", x)
		}
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "test", string(b))
	})
	t.Run("should return copy of the body as JSON", func(t *testing.T) {
		u, _ := url.Parse("http://www.example.com")
		r := &http.Response{
			Body: io.NopCloser(strings.NewReader("{\"alpha\": true}")),
			Request: &http.Request{
				URL: u,
			},
			Header: http.Header{headerContentTypeKey: []string{headerContentTypeJSON}},
		}
		x, err := extractBodyForLog(r)
		if assert.NoError(t, err) {
			assert.Equal(t, map[string]any{"alpha": true}, x)
		}
	})
	t.Run("should return empty when no body", func(t *testing.T) {
		u, _ := url.Parse("http://www.example.com")
		r := &http.Response{
			Request: &http.Request{
				URL: u,
			},
		}
		x, err := extractBodyForLog(r)
		if assert.NoError(t, err) {
			assert.Nil(t, x)
		}
	})
	t.Run("should redact blocked URL", func(t *testing.T) {
		u, _ := url.Parse("https://api.example.com/API/PHP/authorizeNewHwid.php?code=123")
		r := &http.Response{
			Body: io.NopCloser(strings.NewReader("test")),
			Request: &http.Request{
				URL: u,
			},
		}
		x, err := extractBodyForLog(r)
		if assert.NoError(t, err) {
			assert.Equal(t, "xxxxx", x)
		}
	})
	t.Run("should redact blocked URL with JSON", func(t *testing.T) {
		u, _ := url.Parse("https://api.example.com/API/PHP/login.php")
		r := &http.Response{
			Body: io.NopCloser(strings.NewReader("test")),
			Request: &http.Request{
				URL: u,
			},
			Header: http.Header{headerContentTypeKey: []string{"application/json; charset=UTF-8"}},
		}
		x, err := extractBodyForLog(r)
		if assert.NoError(t, err) {
			assert.Equal(t, map[string]bool{"redacted": true}, x)
		}
	})
	t.Run("should return error", func(t *testing.T) {
		u, _ := url.Parse("http://www.example.com")
		b := io.NopCloser(iotest.ErrReader(errors.New("custom error")))
		r := &http.Response{
			Request: &http.Request{
				URL: u,
			},
			Body: b,
		}
		_, err := extractBodyForLog(r)
		assert.Error(t, err)
	})
}

func TestRedactQuery(t *testing.T) {
	t.Run("should redact secret parameters", func(t *testing.T) {
		u, _ := url.Parse("https://api.example.com/x.php?accountId=1&code=abc&nonce=99")
		assert.Equal(t, "https://api.example.com/x.php?accountId=1&code=xxxxx&nonce=xxxxx", redactQuery(u))
	})
	t.Run("should return URL unchanged when there are no secrets", func(t *testing.T) {
		u, _ := url.Parse("https://api.example.com/x.php?b=2&a=1")
		assert.Equal(t, "https://api.example.com/x.php?b=2&a=1", redactQuery(u))
	})
}

func TestStatusText(t *testing.T) {
	r := &http.Response{
		StatusCode: 409,
	}
	x := statusText(r)
	assert.Equal(t, "409 Conflict", x)
}
