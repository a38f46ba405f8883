// Package logger wraps a plugindata.Store and logs every call at debug level.
// The factory applies it when the store URL carries logging=true.
package logger

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/ulogger"
)

type Logger struct {
	logger ulogger.Logger
	store  plugindata.Store
}

func New(logger ulogger.Logger, store plugindata.Store) plugindata.Store {
	return &Logger{
		logger: logger,
		store:  store,
	}
}

// caller returns up to three frames above the store call.
func caller() string {
	var callers []string

	for i := 0; i < 3; i++ {
		pc, file, line, ok := runtime.Caller(2 + i)
		if !ok {
			break
		}

		folders := strings.Split(file, string(filepath.Separator))
		if len(folders) > 2 {
			folders = folders[len(folders)-2:]
		}

		funcName := runtime.FuncForPC(pc).Name()
		funcPaths := strings.Split(funcName, "/")
		funcName = funcPaths[len(funcPaths)-1]

		callers = append(callers, fmt.Sprintf("called from %s: %s:%d", funcName, filepath.Join(folders...), line))
	}

	return strings.Join(callers, ",")
}

func (s *Logger) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	status, details, err := s.store.Health(ctx, checkLiveness)
	s.logger.Debugf("[PluginDataStore][logger][Health] status %d, details %s, err %v : %s", status, details, err, caller())

	return status, details, err
}

func (s *Logger) Create(ctx context.Context, entry *model.TxEntry, records []*model.PluginRecord) error {
	err := s.store.Create(ctx, entry, records)
	s.logger.Debugf("[PluginDataStore][logger][Create] txid %s, state %s, records %d, err %v : %s", entry.TxID, entry.State, len(records), err, caller())

	return err
}

func (s *Logger) GetTx(ctx context.Context, txid *chainhash.Hash) (*model.TxEntry, error) {
	entry, err := s.store.GetTx(ctx, txid)

	state := model.TxStateUnknown
	if entry != nil {
		state = entry.State
	}

	s.logger.Debugf("[PluginDataStore][logger][GetTx] txid %s, state %s, err %v : %s", txid, state, err, caller())

	return entry, err
}

func (s *Logger) SetTxState(ctx context.Context, txid *chainhash.Hash, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) error {
	err := s.store.SetTxState(ctx, txid, state, blockHash, blockHeight)
	s.logger.Debugf("[PluginDataStore][logger][SetTxState] txid %s, state %s, block %v at %d, err %v : %s", txid, state, blockHash, blockHeight, err, caller())

	return err
}

func (s *Logger) GetOutput(ctx context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	outputs, err := s.store.GetOutput(ctx, outpoint)
	s.logger.Debugf("[PluginDataStore][logger][GetOutput] outpoint %s, plugins %v, err %v : %s", outpoint, outputs.Names(), err, caller())

	return outputs, err
}

func (s *Logger) GetOutputs(ctx context.Context, txid *chainhash.Hash, numOutputs uint32) ([]model.PluginMap, error) {
	outputs, err := s.store.GetOutputs(ctx, txid, numOutputs)
	s.logger.Debugf("[PluginDataStore][logger][GetOutputs] txid %s, outputs %d, err %v : %s", txid, numOutputs, err, caller())

	return outputs, err
}

func (s *Logger) GroupOutpoints(ctx context.Context, plugin string, group []byte) ([]*model.Outpoint, error) {
	outpoints, err := s.store.GroupOutpoints(ctx, plugin, group)
	s.logger.Debugf("[PluginDataStore][logger][GroupOutpoints] plugin %s, group %x, members %d, err %v : %s", plugin, group, len(outpoints), err, caller())

	return outpoints, err
}

func (s *Logger) Delete(ctx context.Context, txid *chainhash.Hash) error {
	err := s.store.Delete(ctx, txid)
	s.logger.Debugf("[PluginDataStore][logger][Delete] txid %s, err %v : %s", txid, err, caller())

	return err
}

func (s *Logger) Iterate(ctx context.Context, state model.TxState, fn func(entry *model.TxEntry) error) error {
	err := s.store.Iterate(ctx, state, fn)
	s.logger.Debugf("[PluginDataStore][logger][Iterate] state %s, err %v : %s", state, err, caller())

	return err
}

func (s *Logger) Close(ctx context.Context) error {
	err := s.store.Close(ctx)
	s.logger.Debugf("[PluginDataStore][logger][Close] err %v : %s", err, caller())

	return err
}
