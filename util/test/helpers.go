// Package test holds builders shared by the tests of the plugin index packages.
package test

import (
	"encoding/binary"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/stretchr/testify/require"
)

// CreateBaseTestSettings returns regtest settings with an in-memory store and a
// manifest path inside a fresh temporary directory.
func CreateBaseTestSettings(t testing.TB) *settings.Settings {
	tSettings := settings.NewSettings()
	tSettings.Network = "regtest"
	tSettings.ChainCfgParams = &chaincfg.RegressionNetParams
	tSettings.DataFolder = t.TempDir()
	tSettings.PluginIndex.ManifestPath = filepath.Join(tSettings.DataFolder, "plugins.toml")
	tSettings.PluginIndex.StoreURL = &url.URL{Scheme: "memory", Path: "/"}
	tSettings.PluginIndex.InvokeTimeout = 5 * time.Second
	tSettings.PluginIndex.InvokeConcurrency = 4
	tSettings.PluginIndex.EventQueueSize = 16

	return tSettings
}

// FundingOutpoint returns an outpoint of a transaction the index has never seen.
func FundingOutpoint(seed string) *model.Outpoint {
	txid := chainhash.HashH([]byte(seed))
	return model.NewOutpoint(&txid, 0)
}

// OpReturnScript builds OP_RETURN <lokadID> <pushes...>.
func OpReturnScript(t testing.TB, lokadID []byte, pushes ...[]byte) *bscript.Script {
	s := &bscript.Script{}
	require.NoError(t, s.AppendOpcodes(bscript.OpRETURN))
	require.NoError(t, s.AppendPushData(lokadID))

	for _, p := range pushes {
		require.NoError(t, s.AppendPushData(p))
	}

	return s
}

// SafeOpReturnScript builds OP_FALSE OP_RETURN <lokadID> <pushes...>.
func SafeOpReturnScript(t testing.TB, lokadID []byte, pushes ...[]byte) *bscript.Script {
	s := &bscript.Script{}
	require.NoError(t, s.AppendOpcodes(bscript.OpFALSE))

	opReturn := OpReturnScript(t, lokadID, pushes...)
	*s = append(*s, *opReturn...)

	return s
}

// PayScript returns a trivial spendable locking script.
func PayScript() *bscript.Script {
	return bscript.NewFromBytes([]byte{bscript.OpTRUE})
}

// NewTx builds a transaction spending the given outpoints and paying to the
// given locking scripts, in order.
func NewTx(t testing.TB, spends []*model.Outpoint, outputs ...*bscript.Script) *bt.Tx {
	tx := bt.NewTx()

	for _, outpoint := range spends {
		input := &bt.Input{
			PreviousTxOutIndex: outpoint.Vout,
			SequenceNumber:     0xffffffff,
			UnlockingScript:    bscript.NewFromBytes([]byte{bscript.OpTRUE}),
		}

		txid := outpoint.TxID
		require.NoError(t, input.PreviousTxIDAdd(&txid))

		tx.Inputs = append(tx.Inputs, input)
	}

	for _, s := range outputs {
		tx.AddOutput(&bt.Output{Satoshis: 1000, LockingScript: s})
	}

	return tx
}

// Spend returns the outpoint of output vout of tx.
func Spend(tx *bt.Tx, vout uint32) *model.Outpoint {
	return model.NewOutpoint(tx.TxIDChainHash(), vout)
}

// CoinbaseTx builds a coinbase transaction for the given height.
func CoinbaseTx(t testing.TB, height uint32) *bt.Tx {
	heightBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(heightBytes, height)

	unlocking := &bscript.Script{}
	require.NoError(t, unlocking.AppendPushData(heightBytes))

	input := &bt.Input{
		PreviousTxOutIndex: 0xffffffff,
		SequenceNumber:     0xffffffff,
		UnlockingScript:    unlocking,
	}
	require.NoError(t, input.PreviousTxIDAdd(&chainhash.Hash{}))

	tx := bt.NewTx()
	tx.Inputs = append(tx.Inputs, input)
	tx.AddOutput(&bt.Output{Satoshis: 50_0000_0000, LockingScript: PayScript()})

	require.True(t, tx.IsCoinbase())

	return tx
}

// NewBlock wraps txs in a block at height, prefixed with a coinbase.
func NewBlock(t testing.TB, height uint32, txs ...*bt.Tx) *model.Block {
	all := append([]*bt.Tx{CoinbaseTx(t, height)}, txs...)

	return &model.Block{
		Hash:   chainhash.HashH([]byte{byte(height), byte(height >> 8), byte(len(all))}),
		Height: height,
		Txs:    all,
	}
}
