// Package memory is an in-process plugindata.Store backed by swiss maps.
package memory

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/dolthub/swiss"
)

type Memory struct {
	logger  ulogger.Logger
	mu      sync.RWMutex
	txs     *swiss.Map[chainhash.Hash, *model.TxEntry]
	outputs *swiss.Map[model.Outpoint, model.PluginMap]
	groups  *swiss.Map[string, map[model.Outpoint]struct{}]
}

func New(logger ulogger.Logger) *Memory {
	return &Memory{
		logger:  logger,
		txs:     swiss.NewMap[chainhash.Hash, *model.TxEntry](1024),
		outputs: swiss.NewMap[model.Outpoint, model.PluginMap](4096),
		groups:  swiss.NewMap[string, map[model.Outpoint]struct{}](256),
	}
}

func (m *Memory) Health(_ context.Context, _ bool) (int, string, error) {
	return 200, "Memory Store available", nil
}

func (m *Memory) Create(_ context.Context, entry *model.TxEntry, records []*model.PluginRecord) error {
	if err := plugindata.ValidateRecords(&entry.TxID, records); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// check everything before touching the maps, a conflict must leave no trace
	for _, record := range records {
		outputs, _ := m.outputs.Get(model.Outpoint{TxID: entry.TxID, Vout: record.Vout})
		if err := plugindata.CheckRecord(&entry.TxID, record, outputs[record.Plugin]); err != nil {
			return err
		}
	}

	m.txs.Put(entry.TxID, entry.Clone())

	for _, record := range records {
		outpoint := model.Outpoint{TxID: entry.TxID, Vout: record.Vout}

		outputs, ok := m.outputs.Get(outpoint)
		if !ok {
			outputs = model.PluginMap{}
			m.outputs.Put(outpoint, outputs)
		}

		if _, exists := outputs[record.Plugin]; exists {
			continue
		}

		outputs[record.Plugin] = record.Entry.Clone()

		for _, group := range record.Entry.Groups {
			key := groupKey(record.Plugin, group)

			members, ok := m.groups.Get(key)
			if !ok {
				members = make(map[model.Outpoint]struct{})
				m.groups.Put(key, members)
			}

			members[outpoint] = struct{}{}
		}
	}

	return nil
}

func (m *Memory) GetTx(_ context.Context, txid *chainhash.Hash) (*model.TxEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.txs.Get(*txid)
	if !ok {
		return nil, errors.NewTxNotFoundError("tx %s not found in plugin data store", txid)
	}

	return entry.Clone(), nil
}

func (m *Memory) SetTxState(_ context.Context, txid *chainhash.Hash, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.txs.Get(*txid)
	if !ok {
		return errors.NewTxNotFoundError("tx %s not found in plugin data store", txid)
	}

	updated := entry.Clone()
	updated.State = state
	updated.BlockHash = nil
	updated.BlockHeight = blockHeight

	if blockHash != nil {
		h := *blockHash
		updated.BlockHash = &h
	}

	m.txs.Put(*txid, updated)

	return nil
}

func (m *Memory) GetOutput(_ context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outputs, _ := m.outputs.Get(*outpoint)

	return clonePluginMap(outputs), nil
}

func (m *Memory) GetOutputs(_ context.Context, txid *chainhash.Hash, numOutputs uint32) ([]model.PluginMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.PluginMap, numOutputs)

	for vout := uint32(0); vout < numOutputs; vout++ {
		outputs, _ := m.outputs.Get(model.Outpoint{TxID: *txid, Vout: vout})
		result[vout] = clonePluginMap(outputs)
	}

	return result, nil
}

func (m *Memory) GroupOutpoints(_ context.Context, plugin string, group []byte) ([]*model.Outpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, _ := m.groups.Get(groupKey(plugin, group))

	outpoints := make([]*model.Outpoint, 0, len(members))
	for outpoint := range members {
		o := outpoint
		outpoints = append(outpoints, &o)
	}

	plugindata.SortOutpoints(outpoints)

	return outpoints, nil
}

func (m *Memory) Delete(_ context.Context, txid *chainhash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.txs.Get(*txid)
	if !ok {
		return nil
	}

	for vout := range entry.Tx.Outputs {
		outpoint := model.Outpoint{TxID: *txid, Vout: uint32(vout)}

		outputs, found := m.outputs.Get(outpoint)
		if !found {
			continue
		}

		for plugin, pluginEntry := range outputs {
			for _, group := range pluginEntry.Groups {
				key := groupKey(plugin, group)

				if members, ok := m.groups.Get(key); ok {
					delete(members, outpoint)

					if len(members) == 0 {
						m.groups.Delete(key)
					}
				}
			}
		}

		m.outputs.Delete(outpoint)
	}

	m.txs.Delete(*txid)

	return nil
}

func (m *Memory) Iterate(ctx context.Context, state model.TxState, fn func(entry *model.TxEntry) error) error {
	m.mu.RLock()

	entries := make([]*model.TxEntry, 0)

	m.txs.Iter(func(_ chainhash.Hash, entry *model.TxEntry) bool {
		if entry.State == state {
			entries = append(entries, entry.Clone())
		}

		return false
	})

	m.mu.RUnlock()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("iteration canceled", err)
		}

		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}

func groupKey(plugin string, group []byte) string {
	return plugin + "\x00" + string(group)
}

func clonePluginMap(m model.PluginMap) model.PluginMap {
	clone := make(model.PluginMap, len(m))
	for name, entry := range m {
		clone[name] = entry.Clone()
	}

	return clone
}
