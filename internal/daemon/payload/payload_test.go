package payload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/platform/resilience"
)

func newTestStore(t *testing.T, srv *httptest.Server, threshold int) *Store {
	t.Helper()
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  awscreds.NewStaticCredentialsProvider("test", "test", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	return &Store{
		client:    client,
		bucket:    "daemonflow-payloads",
		threshold: threshold,
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("s3-payload-store-test")),
	}
}

func TestOffloadBelowThresholdReturnsBodyUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not hit S3 for a body under threshold")
	}))
	defer srv.Close()
	s := newTestStore(t, srv, 1024)

	body := []byte(`{"small":"body"}`)
	out, err := s.Offload(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestOffloadAboveThresholdPutsAndReturnsReference(t *testing.T) {
	var gotPut bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPut = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestStore(t, srv, 4)
	body := []byte(`{"big":"payload-over-threshold"}`)

	out, err := s.Offload(context.Background(), body)
	require.NoError(t, err)
	assert.True(t, gotPut)
	assert.Contains(t, string(out), referenceMarker)
	assert.NotEqual(t, body, out)
}

func TestResolveNonReferenceBodyReturnsUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not hit S3 to resolve a plain body")
	}))
	defer srv.Close()
	s := newTestStore(t, srv, 1024)

	body := []byte(`{"plain":"body"}`)
	out, err := s.Resolve(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestResolveReferenceFetchesFromS3(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"original":"payload"}`))
	}))
	defer srv.Close()

	s := newTestStore(t, srv, 4)
	ref, err := json.Marshal(reference{Marker: referenceMarker, Bucket: "daemonflow-payloads", Key: "some-key"})
	require.NoError(t, err)

	out, err := s.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"original":"payload"}`, string(out))
}

func TestOffloadNilStoreIsNoOp(t *testing.T) {
	var s *Store
	body := []byte(`{"anything":"here"}`)
	out, err := s.Offload(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestResolveEmptyBodyIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not hit S3 to resolve an empty body")
	}))
	defer srv.Close()
	s := newTestStore(t, srv, 1024)

	out, err := s.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
