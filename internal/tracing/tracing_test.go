package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpoint_ReturnsNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "snapshot-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer_StartsSpansWithNoOpProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "snapshot-test"})
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := Tracer("reconcile").Start(context.Background(), "stage")
	require.NotNil(t, ctx)
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestInit_ShutdownIdempotent(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "snapshot-test"})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}
