// Package tests is the conformance suite every plugindata.Store backend runs.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blockHash = chainhash.HashH([]byte("block"))

func newEntry(t *testing.T, seed string, numOutputs int) *model.TxEntry {
	scripts := make([]*bscript.Script, numOutputs)
	for i := range scripts {
		scripts[i] = test.PayScript()
	}

	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint(seed)}, scripts...)

	return &model.TxEntry{
		TxID:      *tx.TxIDChainHash(),
		State:     model.TxStateMempool,
		FirstSeen: time.Unix(1700000000, 0),
		Tx:        tx,
	}
}

func record(vout uint32, plugin string, data ...string) *model.PluginRecord {
	entry := &model.PluginEntry{Data: make([][]byte, len(data))}
	for i, d := range data {
		entry.Data[i] = []byte(d)
	}

	return &model.PluginRecord{Vout: vout, Plugin: plugin, Entry: entry}
}

func grouped(r *model.PluginRecord, groups ...string) *model.PluginRecord {
	for _, g := range groups {
		r.Entry.Groups = append(r.Entry.Groups, []byte(g))
	}

	return r
}

func segments(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[i] = []byte(v)
	}

	return out
}

// Create writes a transaction and reads its records back.
func Create(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "create", 3)

	err := db.Create(ctx, entry, []*model.PluginRecord{
		record(1, "my_plugin", "argo"),
		record(2, "my_plugin", "alef", "abc"),
		record(2, "other", "x"),
	})
	require.NoError(t, err)

	stored, err := db.GetTx(ctx, &entry.TxID)
	require.NoError(t, err)
	assert.Equal(t, entry.TxID, stored.TxID)
	assert.Equal(t, model.TxStateMempool, stored.State)
	assert.Nil(t, stored.BlockHash)
	assert.True(t, entry.FirstSeen.Equal(stored.FirstSeen))
	assert.Equal(t, entry.Tx.Bytes(), stored.Tx.Bytes())

	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 2))
	require.NoError(t, err)
	require.Len(t, output, 2)
	assert.Equal(t, segments("alef", "abc"), output["my_plugin"].Data)
	assert.Equal(t, segments("x"), output["other"].Data)

	outputs, err := db.GetOutputs(ctx, &entry.TxID, 3)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Empty(t, outputs[0])
	assert.NotNil(t, outputs[0])
	assert.Equal(t, segments("argo"), outputs[1]["my_plugin"].Data)
	assert.Len(t, outputs[2], 2)
}

// Idempotent rewrites the same records and expects no error and no change.
func Idempotent(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "idempotent", 2)
	records := []*model.PluginRecord{record(1, "my_plugin", "argo")}

	require.NoError(t, db.Create(ctx, entry, records))
	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin", "argo")}))

	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	require.Len(t, output, 1)
	assert.Equal(t, segments("argo"), output["my_plugin"].Data)
}

// Conflict rewrites a record with different content and expects the whole batch
// to be refused.
func Conflict(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "conflict", 3)

	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin", "argo")}))

	confirmed := entry.Clone()
	confirmed.State = model.TxStateConfirmed

	err := db.Create(ctx, confirmed, []*model.PluginRecord{
		record(2, "my_plugin", "new"),
		record(1, "my_plugin", "different"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPluginDataConflict))

	var data *errors.PluginDataConflictErrData
	require.True(t, errors.AsData(err, &data))
	assert.Equal(t, entry.TxID.String(), data.TxID)
	assert.Equal(t, uint32(1), data.Vout)
	assert.Equal(t, "my_plugin", data.Plugin)

	// nothing of the refused batch was applied
	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 2))
	require.NoError(t, err)
	assert.Empty(t, output)

	output, err = db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	assert.Equal(t, segments("argo"), output["my_plugin"].Data)

	stored, err := db.GetTx(ctx, &entry.TxID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStateMempool, stored.State)
}

// Miss reads outputs and transactions that were never written.
func Miss(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	unknown := chainhash.HashH([]byte("unknown"))

	output, err := db.GetOutput(ctx, model.NewOutpoint(&unknown, 0))
	require.NoError(t, err)
	assert.NotNil(t, output)
	assert.Empty(t, output)

	outputs, err := db.GetOutputs(ctx, &unknown, 2)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Empty(t, outputs[1])

	_, err = db.GetTx(ctx, &unknown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))

	err = db.SetTxState(ctx, &unknown, model.TxStateConfirmed, nil, 0)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))

	require.NoError(t, db.Delete(ctx, &unknown))
}

// EmptyVsAbsent stores an explicit empty entry and checks it is reported,
// unlike a plugin that stored nothing.
func EmptyVsAbsent(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "empty", 2)

	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin")}))

	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	require.Contains(t, output, "my_plugin")
	assert.Empty(t, output["my_plugin"].Data)
	assert.NotContains(t, output, "other")

	output, err = db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 0))
	require.NoError(t, err)
	assert.NotContains(t, output, "my_plugin")
}

// SetTxState moves an entry through its states without touching records.
func SetTxState(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "state", 2)

	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin", "argo")}))

	require.NoError(t, db.SetTxState(ctx, &entry.TxID, model.TxStateConfirmed, &blockHash, 101))

	stored, err := db.GetTx(ctx, &entry.TxID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStateConfirmed, stored.State)
	require.NotNil(t, stored.BlockHash)
	assert.Equal(t, blockHash, *stored.BlockHash)
	assert.Equal(t, uint32(101), stored.BlockHeight)

	require.NoError(t, db.SetTxState(ctx, &entry.TxID, model.TxStateMempool, nil, 0))

	stored, err = db.GetTx(ctx, &entry.TxID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStateMempool, stored.State)
	assert.Nil(t, stored.BlockHash)

	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	assert.Equal(t, segments("argo"), output["my_plugin"].Data)
}

// Groups checks the group index follows creates and deletes.
func Groups(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	first := newEntry(t, "groups-1", 3)
	second := newEntry(t, "groups-2", 2)

	require.NoError(t, db.Create(ctx, first, []*model.PluginRecord{
		grouped(record(1, "my_plugin", "a"), "red"),
		grouped(record(2, "my_plugin", "b"), "red", "blue"),
	}))
	require.NoError(t, db.Create(ctx, second, []*model.PluginRecord{
		grouped(record(1, "my_plugin", "c"), "red"),
		grouped(record(1, "other", "d"), "red"),
	}))

	red, err := db.GroupOutpoints(ctx, "my_plugin", []byte("red"))
	require.NoError(t, err)
	require.Len(t, red, 3)

	sorted := []*model.Outpoint{
		model.NewOutpoint(&first.TxID, 1),
		model.NewOutpoint(&first.TxID, 2),
		model.NewOutpoint(&second.TxID, 1),
	}
	plugindata.SortOutpoints(sorted)
	assert.Equal(t, sorted, red)

	blue, err := db.GroupOutpoints(ctx, "my_plugin", []byte("blue"))
	require.NoError(t, err)
	assert.Equal(t, []*model.Outpoint{model.NewOutpoint(&first.TxID, 2)}, blue)

	// a group name that is a prefix of another must not match it
	re, err := db.GroupOutpoints(ctx, "my_plugin", []byte("re"))
	require.NoError(t, err)
	assert.Empty(t, re)

	require.NoError(t, db.Delete(ctx, &first.TxID))

	red, err = db.GroupOutpoints(ctx, "my_plugin", []byte("red"))
	require.NoError(t, err)
	assert.Equal(t, []*model.Outpoint{model.NewOutpoint(&second.TxID, 1)}, red)

	blue, err = db.GroupOutpoints(ctx, "my_plugin", []byte("blue"))
	require.NoError(t, err)
	assert.Empty(t, blue)
}

// Delete prunes the entry and its records, leaving other transactions alone.
func Delete(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "delete", 2)
	other := newEntry(t, "delete-other", 2)

	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin", "argo")}))
	require.NoError(t, db.Create(ctx, other, []*model.PluginRecord{record(1, "my_plugin", "keep")}))

	require.NoError(t, db.Delete(ctx, &entry.TxID))

	_, err := db.GetTx(ctx, &entry.TxID)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))

	output, err := db.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	assert.Empty(t, output)

	output, err = db.GetOutput(ctx, model.NewOutpoint(&other.TxID, 1))
	require.NoError(t, err)
	assert.Equal(t, segments("keep"), output["my_plugin"].Data)

	// a pruned transaction can be written again with different data
	require.NoError(t, db.Create(ctx, entry, []*model.PluginRecord{record(1, "my_plugin", "changed")}))
}

// Iterate lists entries by state and lets the callback modify the store.
func Iterate(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	mempool1 := newEntry(t, "iterate-1", 1)
	mempool2 := newEntry(t, "iterate-2", 1)
	confirmed := newEntry(t, "iterate-3", 1)
	confirmed.State = model.TxStateConfirmed
	confirmed.BlockHash = &blockHash

	for _, e := range []*model.TxEntry{mempool1, mempool2, confirmed} {
		require.NoError(t, db.Create(ctx, e, nil))
	}

	seen := map[chainhash.Hash]bool{}

	err := db.Iterate(ctx, model.TxStateMempool, func(entry *model.TxEntry) error {
		seen[entry.TxID] = true
		return db.Delete(ctx, &entry.TxID)
	})
	require.NoError(t, err)
	assert.Equal(t, map[chainhash.Hash]bool{mempool1.TxID: true, mempool2.TxID: true}, seen)

	count := 0
	require.NoError(t, db.Iterate(ctx, model.TxStateMempool, func(_ *model.TxEntry) error {
		count++
		return nil
	}))
	assert.Zero(t, count)

	stop := errors.NewProcessingError("stop")
	err = db.Iterate(ctx, model.TxStateConfirmed, func(_ *model.TxEntry) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

// InvalidBatch refuses duplicate records within one batch.
func InvalidBatch(t *testing.T, db plugindata.Store) {
	ctx := context.Background()
	entry := newEntry(t, "invalid", 2)

	err := db.Create(ctx, entry, []*model.PluginRecord{
		record(1, "my_plugin", "a"),
		record(1, "my_plugin", "a"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = db.GetTx(ctx, &entry.TxID)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))
}

// Health expects a healthy store.
func Health(t *testing.T, db plugindata.Store) {
	status, _, err := db.Health(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
}

// RunAll runs every conformance test, each against a fresh store from newStore.
func RunAll(t *testing.T, newStore func(t *testing.T) plugindata.Store) {
	for name, fn := range map[string]func(*testing.T, plugindata.Store){
		"Create":        Create,
		"Idempotent":    Idempotent,
		"Conflict":      Conflict,
		"Miss":          Miss,
		"EmptyVsAbsent": EmptyVsAbsent,
		"SetTxState":    SetTxState,
		"Groups":        Groups,
		"Delete":        Delete,
		"Iterate":       Iterate,
		"InvalidBatch":  InvalidBatch,
		"Health":        Health,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}
