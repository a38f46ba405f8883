// Package settings loads the typed configuration of the plugin index from gocore
// settings files and environment overrides.
package settings

import (
	"path/filepath"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

func NewSettings() *Settings {
	network := getString("network", "mainnet")

	params, err := chaincfg.GetChainParams(network)
	if err != nil {
		panic(err)
	}

	dataFolder := getString("dataFolder", "data")

	return &Settings{
		ClientName:     getString("clientName", "plugindex"),
		DataFolder:     dataFolder,
		LogLevel:       getString("logLevel", "INFO"),
		LoggerType:     getString("logger_type", "zerolog"),
		Network:        network,
		ChainCfgParams: params,
		PluginIndex: PluginIndexSettings{
			ManifestPath:       getString("pluginindex_manifest", filepath.Join(dataFolder, "plugins.toml")),
			StoreURL:           getURL("pluginindex_store", "sqlite:///plugindata"),
			InvokeTimeout:      getDuration("pluginindex_invokeTimeout", 5*time.Second),
			InvokeConcurrency:  getInt("pluginindex_invokeConcurrency", 8),
			MempoolExpiry:      getDuration("pluginindex_mempoolExpiry", 336*time.Hour),
			EventQueueSize:     getInt("pluginindex_eventQueueSize", 1000),
			HTTPListenAddress:  getString("pluginindex_httpListenAddress", ":8095"),
			ExecMaxOutputBytes: getInt("pluginindex_execMaxOutputBytes", 4*1024*1024),
		},
		SQL: SQLSettings{
			DBTimeout:            getDuration("pluginindex_dbTimeout", 5*time.Second),
			PostgresMaxIdleConns: getInt("postgres_maxIdleConns", 10),
			PostgresMaxOpenConns: getInt("postgres_maxOpenConns", 80),
		},
	}
}
