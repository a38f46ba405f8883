package errors

import "strconv"

// ERR is the numeric code carried by every *Error.
type ERR int32

const (
	ERR_UNKNOWN              ERR = 0
	ERR_INVALID_ARGUMENT     ERR = 1
	ERR_PROCESSING           ERR = 4
	ERR_CONFIGURATION        ERR = 5
	ERR_CONTEXT_CANCELED     ERR = 6
	ERR_STATE_TRANSITION     ERR = 10
	ERR_TX_NOT_FOUND         ERR = 30
	ERR_TX_INVALID           ERR = 31
	ERR_SERVICE_UNAVAILABLE  ERR = 50
	ERR_SERVICE_NOT_STARTED  ERR = 51
	ERR_SERVICE_ERROR        ERR = 52
	ERR_STORAGE_UNAVAILABLE  ERR = 60
	ERR_STORAGE_ERROR        ERR = 62
	ERR_PLUGIN_INVOCATION    ERR = 80
	ERR_PLUGIN_RESULT        ERR = 81
	ERR_PLUGIN_DATA_CONFLICT ERR = 82
	ERR_PLUGIN_NOT_FOUND     ERR = 83
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	4:  "PROCESSING",
	5:  "CONFIGURATION",
	6:  "CONTEXT_CANCELED",
	10: "STATE_TRANSITION",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	50: "SERVICE_UNAVAILABLE",
	51: "SERVICE_NOT_STARTED",
	52: "SERVICE_ERROR",
	60: "STORAGE_UNAVAILABLE",
	62: "STORAGE_ERROR",
	80: "PLUGIN_INVOCATION",
	81: "PLUGIN_RESULT",
	82: "PLUGIN_DATA_CONFLICT",
	83: "PLUGIN_NOT_FOUND",
}

var ERR_value = func() map[string]int32 {
	m := make(map[string]int32, len(ERR_name))
	for k, v := range ERR_name {
		m[v] = k
	}

	return m
}()

// Enum returns the symbolic name of the code.
func (x ERR) Enum() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return strconv.Itoa(int(x))
}

func (x ERR) String() string {
	return x.Enum()
}
