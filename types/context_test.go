package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithLoadID(ctx, "load-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	id, ok = LoadID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "load-1", id)

	_, ok = LoadID(WithLoadID(context.Background(), ""))
	assert.False(t, ok)
}
