package pluginindex

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
)

// TxPlugins is the plugin data of a transaction: the records owned by each
// output and the data each input inherits from the output it spends.
type TxPlugins struct {
	TxID        chainhash.Hash
	State       model.TxState
	BlockHash   *chainhash.Hash
	BlockHeight uint32
	Inputs      []model.PluginMap
	Outputs     []model.PluginMap
}

// MarshalJSON renders segments and groups as hex strings.
func (p *TxPlugins) MarshalJSON() ([]byte, error) {
	resp := &txPluginsResponse{
		TxID:        p.TxID.String(),
		State:       p.State.String(),
		BlockHeight: p.BlockHeight,
		Inputs:      make([]map[string]*pluginEntryResponse, len(p.Inputs)),
		Outputs:     make([]map[string]*pluginEntryResponse, len(p.Outputs)),
	}

	if p.BlockHash != nil {
		resp.BlockHash = p.BlockHash.String()
	}

	for i, pluginMap := range p.Inputs {
		resp.Inputs[i] = pluginMapResponse(pluginMap)
	}

	for i, pluginMap := range p.Outputs {
		resp.Outputs[i] = pluginMapResponse(pluginMap)
	}

	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(resp)
}

// QueryService answers reads straight from the store. It holds no state and
// may be used concurrently with the writer.
type QueryService struct {
	store    plugindata.Store
	resolver *Resolver
}

func NewQueryService(store plugindata.Store) *QueryService {
	return &QueryService{
		store:    store,
		resolver: NewResolver(store),
	}
}

// Query returns the plugin data of txid. Unknown and evicted transactions
// return ERR_TX_NOT_FOUND.
func (q *QueryService) Query(ctx context.Context, txid *chainhash.Hash) (*TxPlugins, error) {
	entry, err := q.store.GetTx(ctx, txid)
	if err != nil {
		prometheusPluginIndexQueries.WithLabelValues("tx", statusLabel(err)).Inc()
		return nil, err
	}

	if entry.State == model.TxStateEvicted || entry.State == model.TxStateUnknown {
		prometheusPluginIndexQueries.WithLabelValues("tx", "not_found").Inc()
		return nil, errors.NewTxNotFoundError("tx %s is not indexed", txid)
	}

	outputs, err := q.store.GetOutputs(ctx, txid, uint32(len(entry.Tx.Outputs)))
	if err != nil {
		prometheusPluginIndexQueries.WithLabelValues("tx", "error").Inc()
		return nil, err
	}

	inputs, err := q.resolver.ResolveInputs(ctx, entry.Tx)
	if err != nil {
		prometheusPluginIndexQueries.WithLabelValues("tx", "error").Inc()
		return nil, err
	}

	prometheusPluginIndexQueries.WithLabelValues("tx", "ok").Inc()

	return &TxPlugins{
		TxID:        entry.TxID,
		State:       entry.State,
		BlockHash:   entry.BlockHash,
		BlockHeight: entry.BlockHeight,
		Inputs:      inputs,
		Outputs:     outputs,
	}, nil
}

// Output returns the records attached to a single output. Outputs without
// records, including those of unknown transactions, return an empty map.
func (q *QueryService) Output(ctx context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	pluginMap, err := q.store.GetOutput(ctx, outpoint)
	prometheusPluginIndexQueries.WithLabelValues("output", statusLabel(err)).Inc()

	return pluginMap, err
}

// GroupOutpoints lists the outputs plugin placed in group.
func (q *QueryService) GroupOutpoints(ctx context.Context, plugin string, group []byte) ([]*model.Outpoint, error) {
	outpoints, err := q.store.GroupOutpoints(ctx, plugin, group)
	prometheusPluginIndexQueries.WithLabelValues("group", statusLabel(err)).Inc()

	return outpoints, err
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errors.ErrTxNotFound):
		return "not_found"
	default:
		return "error"
	}
}
