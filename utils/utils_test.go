package utils_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/robertof/go-meshtastic-recorder/utils"
)

func TestReverse(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5, 6}

	assert.Equal(t, []byte{6, 5, 4, 3, 2, 1}, utils.Reverse(in))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, in, "input must not be modified")
	assert.Empty(t, utils.Reverse([]byte{}))
}

func TestErrorIsAnyOf(t *testing.T) {
	errFoo := errors.New("foo")
	wrapped := fmt.Errorf("while doing things: %w", context.DeadlineExceeded)

	assert.True(t, utils.ErrorIsAnyOf(wrapped, errFoo, context.DeadlineExceeded))
	assert.False(t, utils.ErrorIsAnyOf(wrapped, errFoo, context.Canceled))
	assert.False(t, utils.ErrorIsAnyOf(nil, errFoo))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, utils.LogLevel(false, false))
	assert.Equal(t, zerolog.DebugLevel, utils.LogLevel(true, false))
	assert.Equal(t, zerolog.TraceLevel, utils.LogLevel(true, true))
}
