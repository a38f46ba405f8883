package factory

import (
	"context"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/leveldb"
	storelogger "github.com/bsv-blockchain/plugindex/stores/plugindata/logger"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/memory"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/sql"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	cases := map[string]interface{}{
		"memory:///":                &memory.Memory{},
		"sqlitememory:///plugindata": &sql.Store{},
		"sqlite:///plugindata":       &sql.Store{},
		"leveldb:///plugindata":      &leveldb.Store{},
		"memory:///?logging=true":    &storelogger.Logger{},
	}

	for rawURL, expected := range cases {
		t.Run(rawURL, func(t *testing.T) {
			tSettings := test.CreateBaseTestSettings(t)

			storeURL, err := url.Parse(rawURL)
			require.NoError(t, err)

			tSettings.PluginIndex.StoreURL = storeURL

			store, err := NewStore(ctx, ulogger.TestLogger{}, tSettings)
			require.NoError(t, err)

			assert.IsType(t, expected, store)
			require.NoError(t, store.Close(ctx))
		})
	}
}

func TestNewStoreErrors(t *testing.T) {
	ctx := context.Background()
	tSettings := test.CreateBaseTestSettings(t)

	tSettings.PluginIndex.StoreURL = &url.URL{Scheme: "aerospike", Host: "localhost:3000"}
	_, err := NewStore(ctx, ulogger.TestLogger{}, tSettings)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	tSettings.PluginIndex.StoreURL = nil
	_, err = NewStore(ctx, ulogger.TestLogger{}, tSettings)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
