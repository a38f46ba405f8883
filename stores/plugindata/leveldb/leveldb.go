// Package leveldb implements plugindata.Store on an embedded goleveldb database.
//
// Key layout:
//
//	t <txid>                                  -> model.TxEntry bytes
//	s <state> <txid>                          -> empty, entries by state
//	o <txid> <vout BE> <plugin>               -> model.PluginEntry bytes
//	g <len> <plugin> <len> <group> <outpoint> -> empty, group members
package leveldb

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

const (
	prefixTx     = 't'
	prefixState  = 's'
	prefixOutput = 'o'
	prefixGroup  = 'g'
)

type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB
	// writers hold mu so the conflict check and the batch see the same data
	mu sync.Mutex
}

// New opens (or creates) the database in the data folder, named after the URL path.
func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*Store, error) {
	name := strings.TrimPrefix(storeURL.Path, "/")
	if name == "" {
		name = "plugindata"
	}

	path := filepath.Join(tSettings.DataFolder, name)

	logger.Infof("Opening LevelDB at %s", path)

	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.NewStorageError("couldn't open LevelDB at %s", path, err)
	}

	return &Store{
		logger: logger,
		db:     db,
	}, nil
}

func (s *Store) Health(_ context.Context, _ bool) (int, string, error) {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return http.StatusServiceUnavailable, "LevelDB Store", errors.NewStorageUnavailableError("leveldb unavailable", err)
	}

	return http.StatusOK, "LevelDB Store", nil
}

func (s *Store) Create(_ context.Context, entry *model.TxEntry, records []*model.PluginRecord) error {
	if err := plugindata.ValidateRecords(&entry.TxID, records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)

	previous, err := s.getTx(&entry.TxID)
	if err != nil && !errors.Is(err, errors.ErrTxNotFound) {
		return err
	}

	if previous != nil {
		batch.Delete(stateKey(previous.State, &entry.TxID))
	}

	batch.Put(txKey(&entry.TxID), entry.Bytes())
	batch.Put(stateKey(entry.State, &entry.TxID), nil)

	for _, record := range records {
		key := outputKey(&entry.TxID, record.Vout, record.Plugin)

		existing, err := s.db.Get(key, nil)

		switch {
		case err == nil:
			existingEntry, decodeErr := model.NewPluginEntryFromBytes(existing)
			if decodeErr != nil {
				return errors.NewStorageError("failed to decode stored plugin data of %s:%d", entry.TxID, record.Vout, decodeErr)
			}

			if err = plugindata.CheckRecord(&entry.TxID, record, existingEntry); err != nil {
				return err
			}

			continue

		case errors.Is(err, leveldb.ErrNotFound):

		default:
			return errors.NewStorageError("failed to read plugin data of %s:%d", entry.TxID, record.Vout, err)
		}

		batch.Put(key, record.Entry.Bytes())

		outpoint := model.NewOutpoint(&entry.TxID, record.Vout)
		for _, group := range record.Entry.Groups {
			batch.Put(groupKey(record.Plugin, group, outpoint), nil)
		}
	}

	if err = s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("failed to write plugin data of %s", entry.TxID, err)
	}

	return nil
}

func (s *Store) GetTx(_ context.Context, txid *chainhash.Hash) (*model.TxEntry, error) {
	return s.getTx(txid)
}

func (s *Store) getTx(txid *chainhash.Hash) (*model.TxEntry, error) {
	b, err := s.db.Get(txKey(txid), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewTxNotFoundError("tx %s not found in plugin data store", txid)
		}

		return nil, errors.NewStorageError("failed to read plugin tx %s", txid, err)
	}

	entry, err := model.NewTxEntryFromBytes(b)
	if err != nil {
		return nil, errors.NewStorageError("failed to decode plugin tx %s", txid, err)
	}

	return entry, nil
}

func (s *Store) SetTxState(_ context.Context, txid *chainhash.Hash, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.getTx(txid)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(stateKey(entry.State, txid))

	entry.State = state
	entry.BlockHash = blockHash
	entry.BlockHeight = blockHeight

	batch.Put(txKey(txid), entry.Bytes())
	batch.Put(stateKey(state, txid), nil)

	if err = s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("failed to update state of plugin tx %s", txid, err)
	}

	return nil
}

func (s *Store) GetOutput(_ context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	prefix := append([]byte{prefixOutput}, outpoint.Bytes()...)

	outputs := model.PluginMap{}

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		plugin := string(iter.Key()[len(prefix):])

		entry, err := model.NewPluginEntryFromBytes(iter.Value())
		if err != nil {
			return nil, errors.NewStorageError("failed to decode plugin data of %s", outpoint, err)
		}

		outputs[plugin] = entry
	}

	if err := iter.Error(); err != nil {
		return nil, errors.NewStorageError("failed to read plugin data of %s", outpoint, err)
	}

	return outputs, nil
}

func (s *Store) GetOutputs(_ context.Context, txid *chainhash.Hash, numOutputs uint32) ([]model.PluginMap, error) {
	result := make([]model.PluginMap, numOutputs)
	for i := range result {
		result[i] = model.PluginMap{}
	}

	prefix := append([]byte{prefixOutput}, txid[:]...)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		outpoint, plugin, err := parseOutputKey(iter.Key())
		if err != nil {
			return nil, err
		}

		if outpoint.Vout >= numOutputs {
			continue
		}

		entry, err := model.NewPluginEntryFromBytes(iter.Value())
		if err != nil {
			return nil, errors.NewStorageError("failed to decode plugin data of %s", outpoint, err)
		}

		result[outpoint.Vout][plugin] = entry
	}

	if err := iter.Error(); err != nil {
		return nil, errors.NewStorageError("failed to read plugin data of %s", txid, err)
	}

	return result, nil
}

func (s *Store) GroupOutpoints(_ context.Context, plugin string, group []byte) ([]*model.Outpoint, error) {
	prefix := groupPrefix(plugin, group)

	outpoints := make([]*model.Outpoint, 0)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		outpoint, err := model.NewOutpointFromBytes(iter.Key()[len(prefix):])
		if err != nil {
			return nil, errors.NewStorageError("invalid group key of plugin %s", plugin, err)
		}

		outpoints = append(outpoints, outpoint)
	}

	if err := iter.Error(); err != nil {
		return nil, errors.NewStorageError("failed to read group of plugin %s", plugin, err)
	}

	return outpoints, nil
}

func (s *Store) Delete(_ context.Context, txid *chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.getTx(txid)
	if err != nil {
		if errors.Is(err, errors.ErrTxNotFound) {
			return nil
		}

		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(txKey(txid))
	batch.Delete(stateKey(entry.State, txid))

	prefix := append([]byte{prefixOutput}, txid[:]...)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)

	for iter.Next() {
		outpoint, plugin, err := parseOutputKey(iter.Key())
		if err != nil {
			iter.Release()
			return err
		}

		pluginEntry, err := model.NewPluginEntryFromBytes(iter.Value())
		if err != nil {
			iter.Release()
			return errors.NewStorageError("failed to decode plugin data of %s", outpoint, err)
		}

		for _, group := range pluginEntry.Groups {
			batch.Delete(groupKey(plugin, group, outpoint))
		}

		batch.Delete(bytes.Clone(iter.Key()))
	}

	iter.Release()

	if err = iter.Error(); err != nil {
		return errors.NewStorageError("failed to read plugin data of %s", txid, err)
	}

	if err = s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("failed to delete plugin data of %s", txid, err)
	}

	return nil
}

func (s *Store) Iterate(ctx context.Context, state model.TxState, fn func(entry *model.TxEntry) error) error {
	prefix := []byte{prefixState, byte(state)}

	txids := make([]*chainhash.Hash, 0)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)

	for iter.Next() {
		txid, err := chainhash.NewHash(iter.Key()[len(prefix):])
		if err != nil {
			iter.Release()
			return errors.NewStorageError("invalid state key", err)
		}

		txids = append(txids, txid)
	}

	iter.Release()

	if err := iter.Error(); err != nil {
		return errors.NewStorageError("failed to read plugin txs in state %s", state, err)
	}

	for _, txid := range txids {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("iteration canceled", err)
		}

		entry, err := s.getTx(txid)
		if err != nil {
			if errors.Is(err, errors.ErrTxNotFound) {
				// deleted by an earlier callback
				continue
			}

			return err
		}

		if err = fn(entry); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

func txKey(txid *chainhash.Hash) []byte {
	return append([]byte{prefixTx}, txid[:]...)
}

func stateKey(state model.TxState, txid *chainhash.Hash) []byte {
	return append([]byte{prefixState, byte(state)}, txid[:]...)
}

func outputKey(txid *chainhash.Hash, vout uint32, plugin string) []byte {
	key := append([]byte{prefixOutput}, model.NewOutpoint(txid, vout).Bytes()...)
	return append(key, plugin...)
}

func parseOutputKey(key []byte) (*model.Outpoint, string, error) {
	if len(key) < 1+model.OutpointSize {
		return nil, "", errors.NewStorageError("invalid output key of %d bytes", len(key))
	}

	outpoint, err := model.NewOutpointFromBytes(key[1 : 1+model.OutpointSize])
	if err != nil {
		return nil, "", errors.NewStorageError("invalid output key", err)
	}

	return outpoint, string(key[1+model.OutpointSize:]), nil
}

// groupPrefix length-prefixes plugin and group so no group key is a prefix of another.
func groupPrefix(plugin string, group []byte) []byte {
	key := []byte{prefixGroup}
	key = append(key, bt.VarInt(uint64(len(plugin))).Bytes()...)
	key = append(key, plugin...)
	key = append(key, bt.VarInt(uint64(len(group))).Bytes()...)

	return append(key, group...)
}

func groupKey(plugin string, group []byte, outpoint *model.Outpoint) []byte {
	return append(groupPrefix(plugin, group), outpoint.Bytes()...)
}
