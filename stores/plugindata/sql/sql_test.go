package sql

import (
	"net/url"
	"testing"

	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/tests"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T, rawURL string) *Store {
	storeURL, err := url.Parse(rawURL)
	require.NoError(t, err)

	s, err := New(ulogger.TestLogger{}, storeURL, test.CreateBaseTestSettings(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close(t.Context())
	})

	return s
}

func TestSQLiteMemory(t *testing.T) {
	tests.RunAll(t, func(t *testing.T) plugindata.Store {
		return newSQLStore(t, "sqlitememory:///plugindata")
	})
}

func TestSQLiteFile(t *testing.T) {
	tests.RunAll(t, func(t *testing.T) plugindata.Store {
		return newSQLStore(t, "sqlite:///plugindata")
	})
}

func TestSQLiteSchemaIsReentrant(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	storeURL, err := url.Parse("sqlite:///plugindata")
	require.NoError(t, err)

	first, err := New(ulogger.TestLogger{}, storeURL, tSettings)
	require.NoError(t, err)
	require.NoError(t, first.Close(t.Context()))

	second, err := New(ulogger.TestLogger{}, storeURL, tSettings)
	require.NoError(t, err)
	require.NoError(t, second.Close(t.Context()))
}

func TestUnknownEngine(t *testing.T) {
	storeURL, err := url.Parse("mysql://localhost/plugindata")
	require.NoError(t, err)

	_, err = New(ulogger.TestLogger{}, storeURL, test.CreateBaseTestSettings(t))
	assert.Error(t, err)
}
