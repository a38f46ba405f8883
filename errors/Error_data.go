package errors

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// ErrDataI is an interface for error data that can be set, retrieved, and encoded.
type ErrDataI interface {
	EncodeErrorData() []byte
	Error() string
	GetData(key string) interface{}
	SetData(key string, value interface{})
}

// ErrData is a generic error data structure that implements the ErrDataI interface.
type ErrData map[string]interface{}

func (e *ErrData) Error() string {
	return fmt.Sprintf(" %v", *e)
}

func (e *ErrData) SetData(key string, value interface{}) {
	if e == nil {
		return
	}

	if *e == nil {
		*e = ErrData{}
	}

	(*e)[key] = value
}

func (e *ErrData) GetData(key string) interface{} {
	if e == nil {
		return nil
	}

	return (*e)[key]
}

func (e *ErrData) EncodeErrorData() []byte {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e)
	if err != nil {
		return []byte{}
	}

	return data
}

// PluginDataConflictErrData identifies the record whose rewrite was refused.
type PluginDataConflictErrData struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Plugin string `json:"plugin"`
}

func (e *PluginDataConflictErrData) Error() string {
	return fmt.Sprintf("plugin %s already holds different data for %s:%d", e.Plugin, e.TxID, e.Vout)
}

func (e *PluginDataConflictErrData) GetData(key string) interface{} {
	switch key {
	case "txid":
		return e.TxID
	case "vout":
		return e.Vout
	case "plugin":
		return e.Plugin
	default:
		return nil
	}
}

func (e *PluginDataConflictErrData) SetData(key string, value interface{}) {
	switch key {
	case "txid":
		e.TxID, _ = value.(string)
	case "vout":
		e.Vout, _ = value.(uint32)
	case "plugin":
		e.Plugin, _ = value.(string)
	}
}

func (e *PluginDataConflictErrData) EncodeErrorData() []byte {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e)
	if err != nil {
		return []byte{}
	}

	return data
}

// GetErrorData decodes error data previously produced by EncodeErrorData.
func GetErrorData(code ERR, dataBytes []byte) (ErrDataI, error) {
	var errData ErrDataI

	switch code {
	case ERR_PLUGIN_DATA_CONFLICT:
		errData = &PluginDataConflictErrData{}
	default:
		errData = &ErrData{}
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(dataBytes, errData); err != nil {
		return errData, err
	}

	return errData, nil
}
