package pluginindex

import (
	"context"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/looplab/fsm"
)

// Lifecycle events of a transaction in the index.
const (
	EventAccept     = "accept"
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventEvict      = "evict"
)

var txLifecycleEvents = fsm.Events{
	{
		Name: EventAccept,
		Src: []string{
			model.TxStateUnknown.String(),
		},
		Dst: model.TxStateMempool.String(),
	},
	{
		Name: EventConnect,
		Src: []string{
			model.TxStateUnknown.String(),
			model.TxStateMempool.String(),
		},
		Dst: model.TxStateConfirmed.String(),
	},
	{
		Name: EventDisconnect,
		Src: []string{
			model.TxStateConfirmed.String(),
		},
		Dst: model.TxStateMempool.String(),
	},
	{
		Name: EventEvict,
		Src: []string{
			model.TxStateMempool.String(),
			model.TxStateConfirmed.String(),
		},
		Dst: model.TxStateEvicted.String(),
	},
}

// NewTxLifecycle creates the state machine of one transaction, starting in state.
//
//	UNKNOWN   --accept-->     MEMPOOL
//	UNKNOWN   --connect-->    CONFIRMED
//	MEMPOOL   --connect-->    CONFIRMED
//	CONFIRMED --disconnect--> MEMPOOL
//	MEMPOOL   --evict-->      EVICTED
//	CONFIRMED --evict-->      EVICTED
func NewTxLifecycle(state model.TxState, opts ...func(*fsm.FSM)) *fsm.FSM {
	txLifecycle := fsm.NewFSM(
		state.String(),
		txLifecycleEvents,
		fsm.Callbacks{},
	)

	for _, opt := range opts {
		opt(txLifecycle)
	}

	return txLifecycle
}

// transition validates event against the current state and returns the state
// the transaction moves to. The store is never touched here.
func transition(ctx context.Context, from model.TxState, event string) (model.TxState, error) {
	txLifecycle := NewTxLifecycle(from)

	if err := txLifecycle.Event(ctx, event); err != nil {
		return from, errors.NewStateTransitionError("cannot %s a tx in state %s", event, from, err)
	}

	return model.TxStateFromString(txLifecycle.Current())
}
