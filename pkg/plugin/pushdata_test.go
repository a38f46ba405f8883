package plugin

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segments(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[i] = []byte(v)
	}

	return out
}

func TestPushDataPlugin(t *testing.T) {
	id := &Identity{Name: "my_plugin", LokadIDs: [][]byte{[]byte("TEST")}}

	t.Run("new data only", func(t *testing.T) {
		p := NewPushDataPlugin(id, true, false)

		tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("a")},
			test.OpReturnScript(t, []byte("TEST"), []byte("argo"), []byte("alef"), []byte("abc")),
			test.PayScript(), test.PayScript(), test.PayScript(),
		)

		outputs, err := p.Run(context.Background(), &TxView{TxID: tx.TxIDChainHash(), Tx: tx, Inputs: []model.PluginMap{{}}})
		require.NoError(t, err)
		require.Len(t, outputs, 3)

		for i, expected := range []string{"argo", "alef", "abc"} {
			assert.Equal(t, uint32(i+1), outputs[i].Idx)
			assert.Equal(t, segments(expected), outputs[i].Data)
			assert.Empty(t, outputs[i].Groups)
		}
	})

	t.Run("new then inherited", func(t *testing.T) {
		p := NewPushDataPlugin(id, true, false)

		tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("a"), test.FundingOutpoint("b")},
			test.OpReturnScript(t, []byte("TEST"), []byte("carp"), []byte("koi")),
			test.PayScript(), test.PayScript(),
		)

		inputs := []model.PluginMap{
			{"my_plugin": {Data: segments("blub", "abc")}, "foreign": {Data: segments("x")}},
			{},
		}

		outputs, err := p.Run(context.Background(), &TxView{TxID: tx.TxIDChainHash(), Tx: tx, Inputs: inputs})
		require.NoError(t, err)
		require.Len(t, outputs, 2)

		assert.Equal(t, segments("carp", "blub", "abc"), outputs[0].Data)
		assert.Equal(t, segments("koi"), outputs[1].Data)
	})

	t.Run("inherit disabled and grouped", func(t *testing.T) {
		p := NewPushDataPlugin(id, false, true)

		tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("a")},
			test.OpReturnScript(t, []byte("TEST"), []byte("g1")),
			test.PayScript(),
		)

		inputs := []model.PluginMap{{"my_plugin": {Data: segments("old")}}}

		outputs, err := p.Run(context.Background(), &TxView{TxID: tx.TxIDChainHash(), Tx: tx, Inputs: inputs})
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, segments("g1"), outputs[0].Data)
		assert.Equal(t, segments("g1"), outputs[0].Groups)
	})

	t.Run("more pushes than outputs", func(t *testing.T) {
		p := NewPushDataPlugin(id, true, false)

		tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("a")},
			test.OpReturnScript(t, []byte("TEST"), []byte("a"), []byte("b"), []byte("c")),
			test.PayScript(),
		)

		outputs, err := p.Run(context.Background(), &TxView{TxID: tx.TxIDChainHash(), Tx: tx, Inputs: []model.PluginMap{{}}})
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, uint32(1), outputs[0].Idx)
	})
}
