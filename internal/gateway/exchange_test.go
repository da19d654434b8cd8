package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchange_PostForm(t *testing.T) {
	e := NewExchange("test", time.Second)
	e.client.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		body, _ := io.ReadAll(req.Body)
		assert.Equal(t, "invoiceUID=abc", string(body))
		return jsonResp(http.StatusOK, `<response/>`)
	})

	out, err := e.PostForm(context.Background(), "https://provider.example/status", url.Values{
		"invoiceUID": {"abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, `<response/>`, string(out))
}

func TestExchange_PostJSON(t *testing.T) {
	e := NewExchange("test", time.Second)
	e.client.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "c2ln", req.Header.Get("Sign"))
		return jsonResp(http.StatusOK, `{"IsSuccess": true}`)
	})

	out, err := e.PostJSON(context.Background(), "https://provider.example/verify", "c2ln", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `{"IsSuccess": true}`, string(out))
}

func TestExchange_NonOKStatus(t *testing.T) {
	e := NewExchange("test", time.Second)
	e.client.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		return jsonResp(http.StatusInternalServerError, `boom`)
	})

	_, err := e.PostJSON(context.Background(), "https://provider.example/verify", "c2ln", []byte(`{}`))
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "500")
}

func TestExchange_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	e := NewExchange("test", time.Second)
	e.client.Transport = MockRoundTripperWithError(func(req *http.Request) (*http.Response, error) {
		return nil, assert.AnError
	})

	for i := 0; i < 5; i++ {
		_, err := e.PostJSON(context.Background(), "https://provider.example/verify", "c2ln", []byte(`{}`))
		require.Error(t, err)
	}

	// The breaker is now open; calls fail fast without touching the
	// transport.
	e.client.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		t.Fatal("transport should not be reached while the breaker is open")
		return nil
	})
	_, err := e.PostJSON(context.Background(), "https://provider.example/verify", "c2ln", []byte(`{}`))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestExchange_CancelledContext(t *testing.T) {
	e := NewExchange("test", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.PostForm(ctx, "https://provider.example/status", url.Values{})
	assert.ErrorIs(t, err, ErrTransport)
}
