package plugin

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/plugindex/errors"
)

// ScriptOp is one parsed script operation. For pushes Data holds the pushed bytes.
type ScriptOp struct {
	Opcode byte
	Data   []byte
}

// IsPush reports whether the operation pushes data (including the empty push OP_0).
func (op ScriptOp) IsPush() bool {
	return op.Opcode <= bscript.OpPUSHDATA4
}

// ParseOps splits a script into operations, keeping the exact boundaries of every
// push. It fails on truncated pushes.
func ParseOps(script []byte) ([]ScriptOp, error) {
	ops := make([]ScriptOp, 0, 8)

	for i := 0; i < len(script); {
		opcode := script[i]
		i++

		var size int

		switch {
		case opcode > bscript.OpPUSHDATA4:
			ops = append(ops, ScriptOp{Opcode: opcode})
			continue
		case opcode < bscript.OpPUSHDATA1:
			size = int(opcode)
		case opcode == bscript.OpPUSHDATA1:
			if i+1 > len(script) {
				return nil, errors.NewInvalidArgumentError("truncated OP_PUSHDATA1 at offset %d", i-1)
			}

			size = int(script[i])
			i++
		case opcode == bscript.OpPUSHDATA2:
			if i+2 > len(script) {
				return nil, errors.NewInvalidArgumentError("truncated OP_PUSHDATA2 at offset %d", i-1)
			}

			size = int(binary.LittleEndian.Uint16(script[i:]))
			i += 2
		default:
			if i+4 > len(script) {
				return nil, errors.NewInvalidArgumentError("truncated OP_PUSHDATA4 at offset %d", i-1)
			}

			size = int(binary.LittleEndian.Uint32(script[i:]))
			i += 4
		}

		if size < 0 || i+size > len(script) {
			return nil, errors.NewInvalidArgumentError("push of %d bytes at offset %d exceeds script length", size, i)
		}

		ops = append(ops, ScriptOp{Opcode: opcode, Data: script[i : i+size]})
		i += size
	}

	return ops, nil
}

// OpReturnPayload returns the operations following the OP_RETURN marker of a
// data carrier script, accepting both OP_RETURN and OP_FALSE OP_RETURN. ok is
// false when the script is not a data carrier or cannot be parsed.
func OpReturnPayload(script *bscript.Script) (payload []ScriptOp, ok bool) {
	if script == nil {
		return nil, false
	}

	ops, err := ParseOps(*script)
	if err != nil || len(ops) == 0 {
		return nil, false
	}

	if ops[0].Opcode == bscript.OpRETURN {
		return ops[1:], true
	}

	if len(ops) > 1 && ops[0].Opcode == bscript.OpFALSE && ops[1].Opcode == bscript.OpRETURN {
		return ops[2:], true
	}

	return nil, false
}

// ProtocolID returns the LOKAD ID pushed right after the OP_RETURN marker.
func ProtocolID(script *bscript.Script) ([]byte, bool) {
	payload, ok := OpReturnPayload(script)
	if !ok || len(payload) == 0 || !payload[0].IsPush() || len(payload[0].Data) == 0 {
		return nil, false
	}

	return payload[0].Data, true
}

// ParseLokadID reads a LOKAD ID as written in the manifest: plain text, or
// "hex:" followed by hex digits.
func ParseLokadID(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "hex:"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid hex LOKAD ID %q", s, err)
		}

		if len(b) == 0 {
			return nil, errors.NewConfigurationError("empty LOKAD ID")
		}

		return b, nil
	}

	if s == "" {
		return nil, errors.NewConfigurationError("empty LOKAD ID")
	}

	return []byte(s), nil
}

// FormatLokadID renders a LOKAD ID for logs: quoted when printable, hex otherwise.
func FormatLokadID(id []byte) string {
	for _, r := range string(id) {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return "hex:" + hex.EncodeToString(id)
		}
	}

	return strconv.Quote(string(id))
}
