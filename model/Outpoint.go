package model

import (
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
)

// OutpointSize is the length of Outpoint.Bytes.
const OutpointSize = chainhash.HashSize + 4

type Outpoint struct {
	TxID chainhash.Hash
	Vout uint32
}

func NewOutpoint(txid *chainhash.Hash, vout uint32) *Outpoint {
	return &Outpoint{TxID: *txid, Vout: vout}
}

func (o *Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Vout)
}

// Bytes returns the txid followed by the big endian output index, so keys of the
// same transaction sort together and in output order.
func (o *Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.BigEndian.PutUint32(b[chainhash.HashSize:], o.Vout)

	return b
}

func NewOutpointFromBytes(b []byte) (*Outpoint, error) {
	if len(b) != OutpointSize {
		return nil, errors.NewProcessingError("outpoint must be %d bytes, got %d", OutpointSize, len(b))
	}

	o := &Outpoint{Vout: binary.BigEndian.Uint32(b[chainhash.HashSize:])}
	copy(o.TxID[:], b[:chainhash.HashSize])

	return o, nil
}
