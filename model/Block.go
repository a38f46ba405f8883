package model

import (
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Block is the part of a block the plugin index needs: its identity and its
// transactions in confirmation order, coinbase first.
//
// Invalid is only read on disconnect. It names the transactions the host knows
// can no longer be mined, such as those double spent on the new chain.
type Block struct {
	Hash    chainhash.Hash
	Height  uint32
	Txs     []*bt.Tx
	Invalid map[chainhash.Hash]struct{}
}
