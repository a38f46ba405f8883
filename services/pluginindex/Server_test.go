package pluginindex

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/memory"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverManifest = `
[regtest.plugin.my_plugin]
module = "pushdata"
lokad_ids = ["TEST"]
version = "0.1.0"
`

func TestServer(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)
	tSettings.PluginIndex.HTTPListenAddress = ""

	require.NoError(t, os.WriteFile(tSettings.PluginIndex.ManifestPath, []byte(serverManifest), 0o600))

	server := NewServer(ulogger.TestLogger{}, tSettings, memory.New(ulogger.TestLogger{}), nil, nil)
	assert.Nil(t, server.Indexer())

	err := server.Start(context.Background(), make(chan struct{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceNotStarted))

	require.NoError(t, server.Init(context.Background()))
	require.NotNil(t, server.Indexer())
	assert.Equal(t, 1, server.Indexer().Registry().Len())

	ctx, cancel := context.WithCancel(context.Background())
	readyCh := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Start(ctx, readyCh)
	}()

	select {
	case <-readyCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	status, _, err := server.Health(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, details, err := server.Health(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status, details)
	assert.Contains(t, details, "PluginIndexer")

	tx1, _, _ := testChain(t)
	require.NoError(t, server.Indexer().AcceptTx(ctx, tx1))

	cancel()
	require.NoError(t, <-errCh)
	require.NoError(t, server.Stop(context.Background()))

	status, _, _ = server.Indexer().Health(context.Background(), false)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestServerInitRejectsBadManifest(t *testing.T) {
	tSettings := test.CreateBaseTestSettings(t)

	require.NoError(t, os.WriteFile(tSettings.PluginIndex.ManifestPath, []byte(`
[regtest.plugin.broken]
module = "pushdata"
`), 0o600))

	server := NewServer(ulogger.TestLogger{}, tSettings, memory.New(ulogger.TestLogger{}), nil, nil)

	err := server.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestHTTPAddress(t *testing.T) {
	assert.Equal(t, "http://localhost:8095", HTTPAddress(":8095"))
	assert.Equal(t, "http://10.0.0.1:8095", HTTPAddress("10.0.0.1:8095"))
}
