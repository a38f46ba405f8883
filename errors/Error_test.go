package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("formats params", func(t *testing.T) {
		err := New(ERR_TX_NOT_FOUND, "tx %s not found", "abcd")
		assert.Equal(t, ERR_TX_NOT_FOUND, err.Code())
		assert.Equal(t, "tx abcd not found", err.Message())
		assert.Nil(t, err.WrappedErr())
	})

	t.Run("wraps trailing error", func(t *testing.T) {
		base := fmt.Errorf("disk full")
		err := New(ERR_STORAGE_ERROR, "failed to write %d records", 3, base)
		assert.Equal(t, "failed to write 3 records", err.Message())
		assert.Equal(t, base, err.WrappedErr())
		assert.Contains(t, err.Error(), "Wrapped err: disk full")
	})

	t.Run("invalid code", func(t *testing.T) {
		err := New(ERR(9999), "something")
		assert.Equal(t, "invalid error code", err.Message())
	})
}

func TestIs(t *testing.T) {
	err := NewStorageError("could not read", NewTxNotFoundError("missing"))

	assert.True(t, Is(err, ErrStorageError))
	assert.True(t, Is(err, ErrTxNotFound))
	assert.False(t, Is(err, ErrPluginDataConflict))
	assert.False(t, Is(nil, ErrTxNotFound))
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewPluginInvocationError("boom"))

	var tErr *Error
	require.True(t, As(err, &tErr))
	assert.Equal(t, ERR_PLUGIN_INVOCATION, tErr.Code())
}

func TestPluginDataConflictError(t *testing.T) {
	err := NewPluginDataConflictError("aa", 2, "my_plugin", "record differs")

	assert.True(t, Is(err, ErrPluginDataConflict))
	assert.True(t, IsConsistencyError(err))
	assert.False(t, IsPluginFault(err))

	var data *PluginDataConflictErrData
	require.True(t, AsData(err, &data))
	assert.Equal(t, "aa", data.TxID)
	assert.Equal(t, uint32(2), data.Vout)
	assert.Equal(t, "my_plugin", data.Plugin)

	decoded, decodeErr := GetErrorData(ERR_PLUGIN_DATA_CONFLICT, data.EncodeErrorData())
	require.NoError(t, decodeErr)
	assert.Equal(t, "my_plugin", decoded.GetData("plugin"))
}

func TestErrData(t *testing.T) {
	err := New(ERR_PROCESSING, "processing")
	err.SetData("key", "value")

	assert.Equal(t, "value", err.GetData("key"))
	assert.Contains(t, err.Error(), "Data:")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsPluginFault(NewPluginResultError("duplicate index")))
	assert.True(t, IsRetryableError(NewStorageUnavailableError("down")))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsConsistencyError(errors.New("plain")))
}

func TestJoin(t *testing.T) {
	assert.Nil(t, Join(nil, nil))
	assert.Equal(t, "a, b", Join(errors.New("a"), nil, errors.New("b")).Error())
}

func TestERREnum(t *testing.T) {
	assert.Equal(t, "PLUGIN_DATA_CONFLICT", ERR_PLUGIN_DATA_CONFLICT.Enum())
	assert.Equal(t, int32(82), ERR_value["PLUGIN_DATA_CONFLICT"])
	assert.Equal(t, "4242", ERR(4242).String())
}

func TestConstructorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid argument", NewInvalidArgumentError("x"), ErrInvalidArgument},
		{"processing", NewProcessingError("x"), ErrProcessing},
		{"configuration", NewConfigurationError("x"), ErrConfiguration},
		{"context canceled", NewContextCanceledError("x"), ErrContextCanceled},
		{"state transition", NewStateTransitionError("x"), ErrStateTransition},
		{"tx not found", NewTxNotFoundError("x"), ErrTxNotFound},
		{"tx invalid", NewTxInvalidError("x"), ErrTxInvalid},
		{"service unavailable", NewServiceUnavailableError("x"), ErrServiceUnavailable},
		{"service not started", NewServiceNotStartedError("x"), ErrServiceNotStarted},
		{"service error", NewServiceError("x"), ErrServiceError},
		{"storage unavailable", NewStorageUnavailableError("x"), ErrStorageUnavailable},
		{"storage error", NewStorageError("x"), ErrStorageError},
		{"plugin invocation", NewPluginInvocationError("x"), ErrPluginInvocation},
		{"plugin result", NewPluginResultError("x"), ErrPluginResult},
		{"plugin not found", NewPluginNotFoundError("x"), ErrPluginNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.False(t, Is(tt.err, ErrPluginDataConflict))
		})
	}
}
