package model

import (
	"encoding/binary"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
)

// TxEntry is the index entry of a transaction: its lifecycle state, the block
// confirming it (if any) and the raw transaction so queries can be answered
// without the host.
type TxEntry struct {
	TxID        chainhash.Hash
	State       TxState
	BlockHash   *chainhash.Hash
	BlockHeight uint32
	FirstSeen   time.Time
	Tx          *bt.Tx
}

// txEntryHeaderSize: state(1) + hasBlock(1) + blockHash(32) + blockHeight(4) + firstSeen(8)
const txEntryHeaderSize = 1 + 1 + chainhash.HashSize + 4 + 8

func (e *TxEntry) Bytes() []byte {
	txBytes := e.Tx.Bytes()
	buf := make([]byte, txEntryHeaderSize, txEntryHeaderSize+len(txBytes))

	buf[0] = byte(e.State)
	if e.BlockHash != nil {
		buf[1] = 1
		copy(buf[2:2+chainhash.HashSize], e.BlockHash[:])
	}

	binary.LittleEndian.PutUint32(buf[34:38], e.BlockHeight)
	binary.LittleEndian.PutUint64(buf[38:46], uint64(e.FirstSeen.UnixNano()))

	return append(buf, txBytes...)
}

func NewTxEntryFromBytes(b []byte) (*TxEntry, error) {
	if len(b) < txEntryHeaderSize {
		return nil, errors.NewProcessingError("tx entry too short: %d bytes", len(b))
	}

	tx, err := bt.NewTxFromBytes(b[txEntryHeaderSize:])
	if err != nil {
		return nil, errors.NewProcessingError("failed to parse stored tx", err)
	}

	e := &TxEntry{
		TxID:        *tx.TxIDChainHash(),
		State:       TxState(b[0]),
		BlockHeight: binary.LittleEndian.Uint32(b[34:38]),
		FirstSeen:   time.Unix(0, int64(binary.LittleEndian.Uint64(b[38:46]))),
		Tx:          tx,
	}

	if b[1] == 1 {
		e.BlockHash, err = chainhash.NewHash(b[2 : 2+chainhash.HashSize])
		if err != nil {
			return nil, errors.NewProcessingError("failed to parse block hash", err)
		}
	}

	return e, nil
}

func (e *TxEntry) Clone() *TxEntry {
	clone := *e
	if e.BlockHash != nil {
		h := *e.BlockHash
		clone.BlockHash = &h
	}

	return &clone
}
