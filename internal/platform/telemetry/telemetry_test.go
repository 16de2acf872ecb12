package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithTracingDisabledReturnsNoopTracer(t *testing.T) {
	tel, err := New(Config{ServiceName: "test-svc", TracingEnabled: false})
	require.NoError(t, err)
	require.NotNil(t, tel)

	tracer := tel.Tracer()
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test-span")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tel.Close())
}

func TestNewWithTracingEnabledBuildsRealProvider(t *testing.T) {
	tel, err := New(Config{ServiceName: "test-svc", TracingEnabled: true, JaegerEndpoint: "http://127.0.0.1:14268/api/traces"})
	require.NoError(t, err)
	require.NotNil(t, tel)

	tracer := tel.Tracer()
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test-span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tel.Close())
}
