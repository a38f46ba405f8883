package pluginindex

import (
	"context"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
)

// Resolver derives the plugin data of inputs from the records of the outputs
// they spend. Nothing it computes is persisted, so an input always reflects the
// current state of the store.
type Resolver struct {
	store plugindata.Store
}

func NewResolver(store plugindata.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveInputs returns one map per input of tx holding every plugin's data of
// the spent output. Coinbase inputs and outputs without records resolve to an
// empty map.
func (r *Resolver) ResolveInputs(ctx context.Context, tx *bt.Tx) ([]model.PluginMap, error) {
	inputs := make([]model.PluginMap, len(tx.Inputs))

	if tx.IsCoinbase() {
		for i := range inputs {
			inputs[i] = model.PluginMap{}
		}

		return inputs, nil
	}

	for i, input := range tx.Inputs {
		outpoint := model.NewOutpoint(input.PreviousTxIDChainHash(), input.PreviousTxOutIndex)

		pluginMap, err := r.store.GetOutput(ctx, outpoint)
		if err != nil {
			return nil, errors.NewProcessingError("failed to resolve input %d spending %s", i, outpoint, err)
		}

		inputs[i] = pluginMap
	}

	return inputs, nil
}
