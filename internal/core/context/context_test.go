package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetTrace(ctx))
	assert.Empty(t, GetRequestID(ctx))

	tc := NewTraceContext()
	ctx = WithTrace(ctx, tc)

	assert.Equal(t, tc.TraceID, GetTraceID(ctx))
	assert.Equal(t, tc.RequestID, GetRequestID(ctx))
	assert.Len(t, tc.SpanID, 16)
}

func TestGetTraceIDGeneratesWhenMissing(t *testing.T) {
	a := GetTraceID(context.Background())
	b := GetTraceID(context.Background())
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestOperator(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetOperatorName(ctx))

	ctx = WithOperator(ctx, &Operator{Name: "ops", Source: "cli"})
	assert.Equal(t, "ops", GetOperatorName(ctx))
	assert.Equal(t, "cli", GetOperator(ctx).Source)
}

func TestEnsureTraceKeepsExisting(t *testing.T) {
	tc := NewTraceContext()
	ctx := EnsureTrace(WithTrace(context.Background(), tc))
	assert.Same(t, tc, GetTrace(ctx))

	fresh := EnsureTrace(context.Background())
	assert.NotNil(t, GetTrace(fresh))
}
