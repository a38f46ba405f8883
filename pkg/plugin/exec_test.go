package plugin

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecView(t *testing.T) *TxView {
	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("exec")},
		test.OpReturnScript(t, []byte("EXEC"), []byte("x")),
		test.PayScript(),
	)

	return &TxView{
		TxID:   tx.TxIDChainHash(),
		Tx:     tx,
		Inputs: []model.PluginMap{{"exec_plugin": {Data: segments("old")}}},
	}
}

func newShellPlugin(t *testing.T, script string, maxOutput int) *ExecPlugin {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	p, err := NewExecPlugin(&Identity{Name: "exec_plugin", LokadIDs: [][]byte{[]byte("EXEC")}}, []string{"sh", "-c", script}, maxOutput)
	require.NoError(t, err)

	return p
}

func TestExecPlugin(t *testing.T) {
	t.Run("decodes the response", func(t *testing.T) {
		// 6e6577 = "new", 6f6c64 = "old"
		p := newShellPlugin(t, `cat > /dev/null; echo '{"outputs":[{"idx":1,"data":["6e6577","6f6c64"],"groups":["67"]}]}'`, 1024)

		outputs, err := p.Run(context.Background(), newExecView(t))
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, uint32(1), outputs[0].Idx)
		assert.Equal(t, segments("new", "old"), outputs[0].Data)
		assert.Equal(t, segments("g"), outputs[0].Groups)
	})

	t.Run("receives the request", func(t *testing.T) {
		p := newShellPlugin(t, `grep -q '"plugins":{"exec_plugin":{"data":\["6f6c64"\]' && echo '{"outputs":[]}' || echo '{"error":"bad request"}'`, 1024)

		outputs, err := p.Run(context.Background(), newExecView(t))
		require.NoError(t, err)
		assert.Empty(t, outputs)
	})

	t.Run("reported error", func(t *testing.T) {
		p := newShellPlugin(t, `cat > /dev/null; echo '{"error":"nope"}'`, 1024)

		_, err := p.Run(context.Background(), newExecView(t))
		require.Error(t, err)
		assert.True(t, errors.IsPluginFault(err))
	})

	t.Run("non zero exit", func(t *testing.T) {
		p := newShellPlugin(t, `cat > /dev/null; echo oops >&2; exit 3`, 1024)

		_, err := p.Run(context.Background(), newExecView(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("invalid hex", func(t *testing.T) {
		p := newShellPlugin(t, `cat > /dev/null; echo '{"outputs":[{"idx":1,"data":["zz"]}]}'`, 1024)

		_, err := p.Run(context.Background(), newExecView(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPluginResult))
	})

	t.Run("output too large", func(t *testing.T) {
		p := newShellPlugin(t, `cat > /dev/null; head -c 4096 /dev/zero`, 128)

		_, err := p.Run(context.Background(), newExecView(t))
		require.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		p := newShellPlugin(t, `exec sleep 5`, 1024)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := p.Run(ctx, newExecView(t))
		require.Error(t, err)
		assert.True(t, errors.IsPluginFault(err))
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("no command", func(t *testing.T) {
		_, err := NewExecPlugin(&Identity{Name: "x"}, nil, 0)
		require.Error(t, err)
	})
}
