package cmdutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagErrorf(t *testing.T) {
	err := FlagErrorf("unknown configuration: %s", "Staging")
	assert.Equal(t, "unknown configuration: Staging", err.Error())

	var flagErr *FlagError
	require.True(t, errors.As(err, &flagErr))
}

func TestFlagErrorWrap(t *testing.T) {
	inner := fmt.Errorf("bad value")
	err := FlagErrorWrap(inner)
	assert.Equal(t, "bad value", err.Error())

	var flagErr *FlagError
	require.True(t, errors.As(err, &flagErr))
	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, inner, flagErr.Unwrap())
}

func TestExitError(t *testing.T) {
	err := fmt.Errorf("verify: %w", &ExitError{Code: 3})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "exit status 3", exitErr.Error())
}

func TestSilentError(t *testing.T) {
	err := fmt.Errorf("something failed: %w", SilentError)
	assert.True(t, errors.Is(err, SilentError))
	assert.Equal(t, "SilentError", SilentError.Error())
}
