package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type Settings struct {
	ClientName     string
	DataFolder     string
	LogLevel       string
	LoggerType     string
	Network        string
	ChainCfgParams *chaincfg.Params
	PluginIndex    PluginIndexSettings
	SQL            SQLSettings
}

type PluginIndexSettings struct {
	// ManifestPath points at the TOML file declaring the plugins to load. A missing
	// file means no plugins are configured.
	ManifestPath      string
	StoreURL          *url.URL
	InvokeTimeout     time.Duration
	InvokeConcurrency int
	MempoolExpiry     time.Duration
	EventQueueSize    int
	HTTPListenAddress string
	// ExecMaxOutputBytes bounds the stdout accepted from an exec plugin.
	ExecMaxOutputBytes int
}

type SQLSettings struct {
	DBTimeout            time.Duration
	PostgresMaxIdleConns int
	PostgresMaxOpenConns int
}
