package pluginindex

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/memory"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLokadID = []byte("TEST")

// funcPlugin runs an arbitrary function, counting its invocations.
type funcPlugin struct {
	id    *plugin.Identity
	run   func(ctx context.Context, view *plugin.TxView) ([]*plugin.Output, error)
	calls atomic.Int32
}

func newFuncPlugin(name string, run func(ctx context.Context, view *plugin.TxView) ([]*plugin.Output, error), reads ...string) *funcPlugin {
	return &funcPlugin{
		id: &plugin.Identity{
			Name:     name,
			Module:   "test",
			Version:  "0.0.1",
			LokadIDs: [][]byte{testLokadID},
			Reads:    reads,
		},
		run: run,
	}
}

func (p *funcPlugin) Identity() *plugin.Identity {
	return p.id
}

func (p *funcPlugin) Run(ctx context.Context, view *plugin.TxView) ([]*plugin.Output, error) {
	p.calls.Add(1)
	return p.run(ctx, view)
}

// countingPushData wraps the reference plugin to count how often it runs.
type countingPushData struct {
	*plugin.PushDataPlugin
	calls atomic.Int32
}

func (p *countingPushData) Run(ctx context.Context, view *plugin.TxView) ([]*plugin.Output, error) {
	p.calls.Add(1)
	return p.PushDataPlugin.Run(ctx, view)
}

func newPushData() *countingPushData {
	return &countingPushData{
		PushDataPlugin: plugin.NewPushDataPlugin(&plugin.Identity{
			Name:     "my_plugin",
			Module:   "pushdata",
			Version:  "0.1.0",
			LokadIDs: [][]byte{testLokadID},
		}, true, false),
	}
}

type mockUtxoChecker struct {
	mock.Mock
}

func (m *mockUtxoChecker) InputsUnspent(ctx context.Context, tx *bt.Tx) (bool, error) {
	args := m.Called(ctx, tx)
	return args.Bool(0), args.Error(1)
}

// amnesiaStore forgets the index entries of the given transactions, as if a
// previous writer had been interrupted between its record and entry writes.
type amnesiaStore struct {
	plugindata.Store
	forget map[chainhash.Hash]struct{}
}

func (s *amnesiaStore) GetTx(ctx context.Context, txid *chainhash.Hash) (*model.TxEntry, error) {
	if _, ok := s.forget[*txid]; ok {
		return nil, errors.NewTxNotFoundError("tx %s not found", txid)
	}

	return s.Store.GetTx(ctx, txid)
}

type indexerOption func(tSettings *settings.Settings)

func newTestIndexer(t *testing.T, store plugindata.Store, checker UtxoChecker, plugins []plugin.Plugin, opts ...indexerOption) *Indexer {
	tSettings := test.CreateBaseTestSettings(t)

	for _, opt := range opts {
		opt(tSettings)
	}

	if store == nil {
		store = memory.New(ulogger.TestLogger{})
	}

	registry, err := plugin.NewRegistry(ulogger.TestLogger{}, plugins...)
	require.NoError(t, err)

	idx := New(ulogger.TestLogger{}, tSettings, store, registry, checker)
	require.NoError(t, idx.Start(context.Background()))

	t.Cleanup(func() {
		_ = idx.Stop(context.Background())
	})

	return idx
}

func entry(segments ...string) *model.PluginEntry {
	e := &model.PluginEntry{Data: make([][]byte, len(segments))}
	for i, s := range segments {
		e.Data[i] = []byte(s)
	}

	return e
}

func pushDataMap(segments ...string) model.PluginMap {
	return model.PluginMap{"my_plugin": entry(segments...)}
}

func assertPluginMaps(t *testing.T, expected, actual []model.PluginMap) {
	t.Helper()

	require.Len(t, actual, len(expected))

	for i := range expected {
		assert.Truef(t, expected[i].Equal(actual[i]), "position %d: expected %s, got %s", i, describe(expected[i]), describe(actual[i]))
	}
}

func describe(m model.PluginMap) string {
	s := "{"

	for _, name := range m.Names() {
		s += name + ":["

		for i, d := range m[name].Data {
			if i > 0 {
				s += " "
			}

			s += string(d)
		}

		s += "]"
	}

	return s + "}"
}

func query(t *testing.T, idx *Indexer, tx *bt.Tx) *TxPlugins {
	t.Helper()

	txPlugins, err := idx.Query(context.Background(), tx.TxIDChainHash())
	require.NoError(t, err)

	return txPlugins
}

// testChain builds the three transactions of the reference scenario: tx1 pushes
// argo alef abc, tx2 spends tx1:3 pushing blub borg bjork, tx3 spends tx2:1 and
// tx2:3 pushing carp.
func testChain(t *testing.T) (tx1, tx2, tx3 *bt.Tx) {
	tx1 = test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("tx1")},
		test.OpReturnScript(t, testLokadID, []byte("argo"), []byte("alef"), []byte("abc")),
		test.PayScript(), test.PayScript(), test.PayScript(),
	)

	tx2 = test.NewTx(t, []*model.Outpoint{test.Spend(tx1, 3)},
		test.OpReturnScript(t, testLokadID, []byte("blub"), []byte("borg"), []byte("bjork")),
		test.PayScript(), test.PayScript(), test.PayScript(),
	)

	tx3 = test.NewTx(t, []*model.Outpoint{test.Spend(tx2, 1), test.Spend(tx2, 3)},
		test.OpReturnScript(t, testLokadID, []byte("carp")),
		test.PayScript(),
	)

	return tx1, tx2, tx3
}

func requireNotIndexed(t *testing.T, idx *Indexer, tx *bt.Tx) {
	t.Helper()

	_, err := idx.Query(context.Background(), tx.TxIDChainHash())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))
}
