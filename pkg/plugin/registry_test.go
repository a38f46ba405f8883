package plugin

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/bsv-blockchain/plugindex/util/test/mocklogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPlugin struct {
	id *Identity
}

func (p *staticPlugin) Identity() *Identity {
	return p.id
}

func (p *staticPlugin) Run(context.Context, *TxView) ([]*Output, error) {
	return nil, nil
}

func newStatic(name string, lokadIDs ...string) *staticPlugin {
	ids := make([][]byte, len(lokadIDs))
	for i, id := range lokadIDs {
		ids[i] = []byte(id)
	}

	return &staticPlugin{id: &Identity{Name: name, Module: "static", Version: "1.0.0", LokadIDs: ids}}
}

func TestNewRegistry(t *testing.T) {
	t.Run("lookup by LOKAD ID", func(t *testing.T) {
		logger := mocklogger.NewTestLogger()

		r, err := NewRegistry(logger, newStatic("b", "TEST"), newStatic("a", "TEST", "OTHR"))
		require.NoError(t, err)

		assert.Equal(t, 2, r.Len())
		require.Len(t, r.Lookup([]byte("TEST")), 2)
		assert.Equal(t, "a", r.Lookup([]byte("TEST"))[0].Identity().Name)
		assert.Len(t, r.Lookup([]byte("OTHR")), 1)
		assert.Empty(t, r.Lookup([]byte("NONE")))

		p, ok := r.Get("b")
		require.True(t, ok)
		assert.Equal(t, "b", p.Identity().Name)

		assert.Contains(t, logger.Messages("Infof"), `Loaded plugin a.static (version 1.0.0) with LOKAD IDs ["TEST", "OTHR"]`)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewRegistry(ulogger.TestLogger{}, newStatic("a", "TEST"), newStatic("a", "OTHR"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})

	t.Run("no LOKAD IDs", func(t *testing.T) {
		_, err := NewRegistry(ulogger.TestLogger{}, newStatic("a"))
		require.Error(t, err)
	})

	t.Run("empty LOKAD ID", func(t *testing.T) {
		_, err := NewRegistry(ulogger.TestLogger{}, newStatic("a", ""))
		require.Error(t, err)
	})

	t.Run("reads unknown plugin", func(t *testing.T) {
		p := newStatic("a", "TEST")
		p.id.Reads = []string{"missing"}

		_, err := NewRegistry(ulogger.TestLogger{}, p)
		require.Error(t, err)
	})

	t.Run("empty registry", func(t *testing.T) {
		r, err := NewRegistry(ulogger.TestLogger{})
		require.NoError(t, err)
		assert.Zero(t, r.Len())
		assert.Nil(t, r.Lookup([]byte("TEST")))
	})
}

func TestRegistryDispatch(t *testing.T) {
	r, err := NewRegistry(ulogger.TestLogger{}, newStatic("my_plugin", "TEST"))
	require.NoError(t, err)

	funding := []*model.Outpoint{test.FundingOutpoint("dispatch")}

	matching := test.NewTx(t, funding, test.OpReturnScript(t, []byte("TEST"), []byte("argo")), test.PayScript())
	assert.Len(t, r.Dispatch(matching), 1)

	safe := test.NewTx(t, funding, test.SafeOpReturnScript(t, []byte("TEST")))
	assert.Len(t, r.Dispatch(safe), 1)

	prefixOnly := test.NewTx(t, funding, test.OpReturnScript(t, []byte("TESTX")))
	assert.Empty(t, r.Dispatch(prefixOnly))

	notFirst := test.NewTx(t, funding, test.PayScript(), test.OpReturnScript(t, []byte("TEST")))
	assert.Empty(t, r.Dispatch(notFirst))

	noOutputs := test.NewTx(t, funding)
	assert.Empty(t, r.Dispatch(noOutputs))
	assert.Empty(t, (*Registry)(nil).Dispatch(matching))
}

func TestIdentityVisible(t *testing.T) {
	id := &Identity{Name: "a", Reads: []string{"b", "a", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, id.Visible())
}
