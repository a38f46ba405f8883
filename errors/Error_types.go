package errors

var (
	ErrInvalidArgument    = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrProcessing         = New(ERR_PROCESSING, "error processing")
	ErrConfiguration      = New(ERR_CONFIGURATION, "configuration error")
	ErrContextCanceled    = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrStateTransition    = New(ERR_STATE_TRANSITION, "invalid state transition")
	ErrTxNotFound         = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid          = New(ERR_TX_INVALID, "tx invalid")
	ErrServiceUnavailable = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrServiceNotStarted  = New(ERR_SERVICE_NOT_STARTED, "service not started")
	ErrServiceError       = New(ERR_SERVICE_ERROR, "service error")
	ErrStorageUnavailable = New(ERR_STORAGE_UNAVAILABLE, "storage unavailable")
	ErrStorageError       = New(ERR_STORAGE_ERROR, "storage error")
	ErrPluginInvocation   = New(ERR_PLUGIN_INVOCATION, "plugin invocation failed")
	ErrPluginResult       = New(ERR_PLUGIN_RESULT, "plugin returned a malformed result")
	ErrPluginDataConflict = New(ERR_PLUGIN_DATA_CONFLICT, "plugin data conflicts with stored record")
	ErrPluginNotFound     = New(ERR_PLUGIN_NOT_FOUND, "plugin not found")
)

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}

func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}

func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}

func NewStateTransitionError(message string, params ...interface{}) error {
	return New(ERR_STATE_TRANSITION, message, params...)
}

func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}

func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}

func NewServiceUnavailableError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}

func NewServiceNotStartedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}

func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}

func NewStorageUnavailableError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_UNAVAILABLE, message, params...)
}

func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}

func NewPluginInvocationError(message string, params ...interface{}) error {
	return New(ERR_PLUGIN_INVOCATION, message, params...)
}

func NewPluginResultError(message string, params ...interface{}) error {
	return New(ERR_PLUGIN_RESULT, message, params...)
}

func NewPluginNotFoundError(message string, params ...interface{}) error {
	return New(ERR_PLUGIN_NOT_FOUND, message, params...)
}

// NewPluginDataConflictError reports an attempt to overwrite a stored record with
// different content. The conflicting outpoint and plugin are attached as data.
func NewPluginDataConflictError(txid string, vout uint32, plugin string, message string, params ...interface{}) error {
	return NewWithData(ERR_PLUGIN_DATA_CONFLICT, &PluginDataConflictErrData{
		TxID:   txid,
		Vout:   vout,
		Plugin: plugin,
	}, message, params...)
}
