// Package plugindata defines the store holding the plugin annotations of
// transaction outputs together with the index entry of every known transaction.
package plugindata

import (
	"bytes"
	"context"
	"sort"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
)

// Store is the output annotation store.
//
// Records are write-once per (txid, vout, plugin): Create accepts an identical
// rewrite as a no-op and refuses a differing one with ERR_PLUGIN_DATA_CONFLICT,
// in which case nothing of the batch is applied. Lookups of outputs that carry
// no records return an empty map, never an error.
type Store interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)

	// Create writes the index entry and all records of one transaction atomically.
	// An existing entry for the same txid is overwritten, existing records are
	// checked against the new ones.
	Create(ctx context.Context, entry *model.TxEntry, records []*model.PluginRecord) error

	// GetTx returns the index entry of txid, or ERR_TX_NOT_FOUND.
	GetTx(ctx context.Context, txid *chainhash.Hash) (*model.TxEntry, error)

	// SetTxState updates the lifecycle state and confirming block of an entry.
	// A nil blockHash clears the confirming block.
	SetTxState(ctx context.Context, txid *chainhash.Hash, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) error

	// GetOutput returns the plugin map of one output, empty when nothing is stored.
	GetOutput(ctx context.Context, outpoint *model.Outpoint) (model.PluginMap, error)

	// GetOutputs returns the plugin maps of the first numOutputs outputs of txid.
	GetOutputs(ctx context.Context, txid *chainhash.Hash, numOutputs uint32) ([]model.PluginMap, error)

	// GroupOutpoints returns the outpoints plugin placed in group, sorted by txid and vout.
	GroupOutpoints(ctx context.Context, plugin string, group []byte) ([]*model.Outpoint, error)

	// Delete prunes the entry, the records and the group index of txid.
	// Deleting an unknown txid is not an error.
	Delete(ctx context.Context, txid *chainhash.Hash) error

	// Iterate calls fn for every entry in state until fn returns an error.
	Iterate(ctx context.Context, state model.TxState, fn func(entry *model.TxEntry) error) error

	Close(ctx context.Context) error
}

// CheckRecord compares a stored entry against the one about to be written and
// returns a conflict error if they differ. A nil existing entry always passes.
func CheckRecord(txid *chainhash.Hash, record *model.PluginRecord, existing *model.PluginEntry) error {
	if existing == nil || existing.Equal(record.Entry) {
		return nil
	}

	return errors.NewPluginDataConflictError(txid.String(), record.Vout, record.Plugin,
		"plugin %s already stored different data for %s:%d", record.Plugin, txid, record.Vout)
}

// ValidateRecords rejects batches with nil entries or two records for the same
// output and plugin.
func ValidateRecords(txid *chainhash.Hash, records []*model.PluginRecord) error {
	type key struct {
		vout   uint32
		plugin string
	}

	seen := make(map[key]struct{}, len(records))

	for _, record := range records {
		if record == nil || record.Entry == nil {
			return errors.NewInvalidArgumentError("nil plugin record for %s", txid)
		}

		k := key{vout: record.Vout, plugin: record.Plugin}
		if _, dup := seen[k]; dup {
			return errors.NewInvalidArgumentError("duplicate record of plugin %s for %s:%d", record.Plugin, txid, record.Vout)
		}

		seen[k] = struct{}{}
	}

	return nil
}

// SortOutpoints orders outpoints by txid bytes then vout, the order every
// backend returns group members in.
func SortOutpoints(outpoints []*model.Outpoint) {
	sort.Slice(outpoints, func(i, j int) bool {
		if c := bytes.Compare(outpoints[i].TxID[:], outpoints[j].TxID[:]); c != 0 {
			return c < 0
		}

		return outpoints[i].Vout < outpoints[j].Vout
	})
}
