package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	tSettings := NewSettings()

	require.NotNil(t, tSettings.ChainCfgParams)
	require.NotNil(t, tSettings.PluginIndex.StoreURL)

	assert.NotEmpty(t, tSettings.Network)
	assert.NotEmpty(t, tSettings.PluginIndex.ManifestPath)
	assert.Positive(t, tSettings.PluginIndex.InvokeConcurrency)
	assert.Positive(t, tSettings.PluginIndex.EventQueueSize)
	assert.GreaterOrEqual(t, tSettings.PluginIndex.InvokeTimeout, time.Millisecond)
	assert.GreaterOrEqual(t, tSettings.PluginIndex.MempoolExpiry, time.Minute)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 42*time.Second, getDuration("pluginindex_settings_test_missing_key", 42*time.Second))
}
