package leveldb

import (
	"context"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/tests"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDB(t *testing.T) {
	tests.RunAll(t, func(t *testing.T) plugindata.Store {
		s, err := New(ulogger.TestLogger{}, &url.URL{Scheme: "leveldb", Path: "/plugindata"}, test.CreateBaseTestSettings(t))
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = s.Close(context.Background())
		})

		return s
	})
}

func TestLevelDBPersists(t *testing.T) {
	ctx := context.Background()
	tSettings := test.CreateBaseTestSettings(t)
	storeURL := &url.URL{Scheme: "leveldb", Path: "/plugindata"}

	s, err := New(ulogger.TestLogger{}, storeURL, tSettings)
	require.NoError(t, err)

	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("persist")}, test.PayScript(), test.PayScript())
	entry := &model.TxEntry{TxID: *tx.TxIDChainHash(), State: model.TxStateMempool, Tx: tx}

	require.NoError(t, s.Create(ctx, entry, []*model.PluginRecord{
		{Vout: 1, Plugin: "my_plugin", Entry: &model.PluginEntry{Data: [][]byte{[]byte("argo")}}},
	}))
	require.NoError(t, s.Close(ctx))

	s, err = New(ulogger.TestLogger{}, storeURL, tSettings)
	require.NoError(t, err)

	defer func() {
		_ = s.Close(ctx)
	}()

	output, err := s.GetOutput(ctx, model.NewOutpoint(&entry.TxID, 1))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("argo")}, output["my_plugin"].Data)

	var mempool []*model.TxEntry

	require.NoError(t, s.Iterate(ctx, model.TxStateMempool, func(e *model.TxEntry) error {
		mempool = append(mempool, e)
		return nil
	}))
	require.Len(t, mempool, 1)
	assert.Equal(t, entry.TxID, mempool[0].TxID)
}

func TestGroupPrefix(t *testing.T) {
	// a plugin name ending like another plugin's name plus group must not collide
	assert.NotEqual(t, groupPrefix("ab", []byte("c")), groupPrefix("a", []byte("bc")))
}
