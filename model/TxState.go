package model

import (
	"github.com/bsv-blockchain/plugindex/errors"
)

// TxState is the lifecycle state of a transaction in the plugin index.
type TxState uint8

const (
	TxStateUnknown TxState = iota
	TxStateMempool
	TxStateConfirmed
	TxStateEvicted
)

var txStateNames = map[TxState]string{
	TxStateUnknown:   "UNKNOWN",
	TxStateMempool:   "MEMPOOL",
	TxStateConfirmed: "CONFIRMED",
	TxStateEvicted:   "EVICTED",
}

func (s TxState) String() string {
	if name, ok := txStateNames[s]; ok {
		return name
	}

	return "INVALID"
}

func TxStateFromString(s string) (TxState, error) {
	for state, name := range txStateNames {
		if name == s {
			return state, nil
		}
	}

	return TxStateUnknown, errors.NewInvalidArgumentError("unknown tx state %q", s)
}
