package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectTransport forwards every request to a fixed test server regardless
// of the request's original URL, since SendGridAlerter posts to a hardcoded
// SendGrid endpoint.
type redirectTransport struct {
	target *url.URL
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newAlerterAgainst(t *testing.T, srv *httptest.Server) *SendGridAlerter {
	t.Helper()
	a := NewSendGridAlerter("test-key", "from@example.com", "to@example.com")
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	a.httpClient = &http.Client{Transport: &redirectTransport{target: target}}
	return a
}

func TestSendGridAlerterSendFatalSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := newAlerterAgainst(t, srv)
	err := a.SendFatal(context.Background(), 7, "onboarding", "nil pointer in run()")
	require.NoError(t, err)
}

func TestSendGridAlerterSendFatalErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newAlerterAgainst(t, srv)
	err := a.SendFatal(context.Background(), 7, "onboarding", "boom")
	assert.Error(t, err)
}

func TestSendGridAlerterOpensCircuitAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newAlerterAgainst(t, srv)
	for i := 0; i < 5; i++ {
		_ = a.SendFatal(context.Background(), int64(i), "wf", "boom")
	}

	err := a.SendFatal(context.Background(), 99, "wf", "boom")
	assert.ErrorContains(t, err, "circuit breaker is open")
}
