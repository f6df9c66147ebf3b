package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeContextRecoversPanic(t *testing.T) {
	err := SafeContext(func(context.Context) error {
		panic("channel gone")
	})(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel gone")
}

func TestSafeContextPassesThroughResult(t *testing.T) {
	want := errors.New("notion down")
	assert.ErrorIs(t, SafeContext(func(context.Context) error { return want })(context.Background()), want)
	assert.NoError(t, SafeContext(func(context.Context) error { return nil })(context.Background()))
}
