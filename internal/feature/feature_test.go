package feature

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureTransitions(t *testing.T) {
	var f Feature
	assert.False(t, f.Status.InProgress)
	assert.False(t, f.Status.Loaded)

	f = f.InProgress()
	assert.True(t, f.Status.InProgress)
	assert.False(t, f.Status.Loaded)

	f = f.Succeeded()
	assert.Equal(t, Status{InProgress: false, Loaded: true}, f.Status)
	assert.False(t, f.Error.IsError)

	boom := errors.New("boom")
	f = f.InProgress().Failed(boom)
	assert.Equal(t, Status{InProgress: false, Loaded: true}, f.Status)
	require.True(t, f.Error.IsError)
	assert.ErrorIs(t, f.Error.Err, boom)
	assert.Equal(t, "boom", f.View().Error.Message)
}

func TestApplyKeepsMissingParts(t *testing.T) {
	f := Feature{Error: Error{IsError: true, Err: errors.New("x")}}
	f = f.Apply(Patch{Status: &Status{InProgress: true}})
	assert.True(t, f.Status.InProgress)
	assert.True(t, f.Error.IsError)
}

func TestToError(t *testing.T) {
	base := errors.New("base")
	assert.Same(t, base, ToError(base))

	err := ToError("plain")
	assert.Equal(t, "plain", err.Error())

	err = ToError(42)
	assert.ErrorIs(t, err, ErrUnknown)

	var ce *CauseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 42, ce.Cause)

	assert.ErrorIs(t, ToError(nil), ErrUnknown)
}
