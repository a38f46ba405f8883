package plugin

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOps(t *testing.T) {
	t.Run("pushes and opcodes", func(t *testing.T) {
		big := bytes.Repeat([]byte{0xab}, 300)
		s := test.OpReturnScript(t, []byte("TEST"), []byte("argo"), big, []byte{})

		ops, err := ParseOps(*s)
		require.NoError(t, err)
		require.Len(t, ops, 5)

		assert.Equal(t, byte(bscript.OpRETURN), ops[0].Opcode)
		assert.False(t, ops[0].IsPush())
		assert.Equal(t, []byte("TEST"), ops[1].Data)
		assert.Equal(t, []byte("argo"), ops[2].Data)
		assert.Equal(t, big, ops[3].Data)
		assert.True(t, ops[4].IsPush())
		assert.Empty(t, ops[4].Data)
	})

	t.Run("one byte push that looks like OP_RETURN", func(t *testing.T) {
		ops, err := ParseOps([]byte{0x01, 0x6a})
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.True(t, ops[0].IsPush())
		assert.Equal(t, []byte{0x6a}, ops[0].Data)
	})

	t.Run("truncated", func(t *testing.T) {
		for _, script := range [][]byte{
			{0x05, 'a', 'b'},
			{bscript.OpPUSHDATA1},
			{bscript.OpPUSHDATA2, 0x01},
			{bscript.OpPUSHDATA4, 0x01, 0x00, 0x00},
			{bscript.OpPUSHDATA1, 0x03, 'a'},
		} {
			_, err := ParseOps(script)
			require.Error(t, err, "%x", script)
		}
	})
}

func TestProtocolID(t *testing.T) {
	t.Run("OP_RETURN", func(t *testing.T) {
		id, ok := ProtocolID(test.OpReturnScript(t, []byte("TEST"), []byte("argo")))
		require.True(t, ok)
		assert.Equal(t, []byte("TEST"), id)
	})

	t.Run("OP_FALSE OP_RETURN", func(t *testing.T) {
		id, ok := ProtocolID(test.SafeOpReturnScript(t, []byte("TEST")))
		require.True(t, ok)
		assert.Equal(t, []byte("TEST"), id)
	})

	t.Run("not a data carrier", func(t *testing.T) {
		_, ok := ProtocolID(test.PayScript())
		assert.False(t, ok)

		_, ok = ProtocolID(nil)
		assert.False(t, ok)
	})

	t.Run("no push after OP_RETURN", func(t *testing.T) {
		s := &bscript.Script{}
		require.NoError(t, s.AppendOpcodes(bscript.OpRETURN, bscript.OpTRUE))

		_, ok := ProtocolID(s)
		assert.False(t, ok)

		s = &bscript.Script{}
		require.NoError(t, s.AppendOpcodes(bscript.OpRETURN))

		_, ok = ProtocolID(s)
		assert.False(t, ok)
	})
}

func TestLokadIDFormatting(t *testing.T) {
	id, err := ParseLokadID("TEST")
	require.NoError(t, err)
	assert.Equal(t, []byte("TEST"), id)

	id, err = ParseLokadID("hex:534c5000")
	require.NoError(t, err)
	assert.Equal(t, []byte{'S', 'L', 'P', 0}, id)

	_, err = ParseLokadID("")
	require.Error(t, err)

	_, err = ParseLokadID("hex:zz")
	require.Error(t, err)

	assert.Equal(t, `"TEST"`, FormatLokadID([]byte("TEST")))
	assert.Equal(t, "hex:534c5000", FormatLokadID([]byte{'S', 'L', 'P', 0}))
}
