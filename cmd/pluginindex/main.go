// Package main is the pluginindex command: it runs the plugin index service and
// offers a few inspection commands against its store and HTTP API.
//
// Usage:
//
//	pluginindex serve
//	pluginindex plugins
//	pluginindex query --txid <txid>
//	pluginindex outpoint --txid <txid> --vout <n>
//	pluginindex health [--address http://localhost:8095]
//	pluginindex settings
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/services/pluginindex"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata/factory"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util/health"
	"github.com/bsv-blockchain/plugindex/util/servicemanager"
	jsoniter "github.com/json-iterator/go"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

const progname = "pluginindex"

// set by the linker
var (
	version string
	commit  string
)

func main() {
	app := &cli.App{
		Name:  progname,
		Usage: "Index BSV transactions through Lokad-dispatched plugins",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the plugin index service",
				Action: serve,
			},
			{
				Name:   "plugins",
				Usage:  "List the plugins loaded from the manifest",
				Action: listPlugins,
			},
			{
				Name:   "query",
				Usage:  "Print the plugin data of an indexed transaction",
				Action: queryTx,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "txid",
						Usage:    "Transaction id",
						Required: true,
					},
				},
			},
			{
				Name:   "outpoint",
				Usage:  "Print the plugin data of a single output",
				Action: queryOutpoint,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "txid",
						Usage:    "Transaction id",
						Required: true,
					},
					&cli.UintFlag{
						Name:     "vout",
						Usage:    "Output index",
						Required: true,
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check the health endpoint of a running service",
				Action: checkHealth,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "address",
						Usage: "Base URL of the service, defaults to the configured listen address",
					},
				},
			},
			{
				Name:   "settings",
				Usage:  "Print the resolved settings",
				Action: printSettings,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
		os.Exit(1)
	}
}

func newLogger(tSettings *settings.Settings) ulogger.Logger {
	return ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel), ulogger.WithLoggerType(tSettings.LoggerType))
}

func serve(c *cli.Context) error {
	tSettings := settings.NewSettings()
	logger := newLogger(tSettings)

	logger.Infof("[%s] starting %s (%s) on %s", progname, version, commit, tSettings.Network)

	store, err := factory.NewStore(c.Context, logger, tSettings)
	if err != nil {
		return err
	}

	sm := servicemanager.NewServiceManager(c.Context, logger)

	// no host UTXO view is wired here; an out of process host reports the txs a
	// disconnect invalidates in the "invalid" list of the block request
	server := pluginindex.NewServer(logger, tSettings, store, nil, nil)

	if err = sm.AddService("PluginIndex", server); err != nil {
		sm.ForceShutdown()
		_ = sm.Wait()

		return err
	}

	if err = sm.WaitForServiceToBeReady(); err != nil {
		logger.Errorf("[%s] services not ready: %v", progname, sm.ServicesNotReady())
	} else {
		_, details, _ := sm.HealthHandler(sm.Ctx, false)
		logger.Infof("[%s] all services ready: %s", progname, details)
	}

	return sm.Wait()
}

func listPlugins(_ *cli.Context) error {
	tSettings := settings.NewSettings()
	logger := newLogger(tSettings)

	registry, err := plugin.LoadRegistry(logger, tSettings)
	if err != nil {
		return err
	}

	if registry.Len() == 0 {
		fmt.Printf("no plugins configured in %s\n", tSettings.PluginIndex.ManifestPath)
		return nil
	}

	for _, p := range registry.Plugins() {
		id := p.Identity()

		fmt.Printf("%-20s %-10s %-10s", id.Name, id.Module, id.Version)

		for _, lokadID := range id.LokadIDs {
			fmt.Printf(" %s", plugin.FormatLokadID(lokadID))
		}

		if len(id.Reads) > 0 {
			fmt.Printf(" reads=%v", id.Reads)
		}

		fmt.Println()
	}

	return nil
}

func openQueryService(ctx context.Context) (*pluginindex.QueryService, func(), error) {
	tSettings := settings.NewSettings()
	logger := newLogger(tSettings)

	store, err := factory.NewStore(ctx, logger, tSettings)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := store.Close(ctx); err != nil {
			logger.Warnf("[%s] failed to close store: %v", progname, err)
		}
	}

	return pluginindex.NewQueryService(store), closeFn, nil
}

func queryTx(c *cli.Context) error {
	txid, err := chainhash.NewHashFromStr(c.String("txid"))
	if err != nil {
		return errors.NewInvalidArgumentError("invalid txid %q", c.String("txid"), err)
	}

	q, closeFn, err := openQueryService(c.Context)
	if err != nil {
		return err
	}
	defer closeFn()

	txPlugins, err := q.Query(c.Context, txid)
	if err != nil {
		return err
	}

	return printJSON(txPlugins)
}

func queryOutpoint(c *cli.Context) error {
	txid, err := chainhash.NewHashFromStr(c.String("txid"))
	if err != nil {
		return errors.NewInvalidArgumentError("invalid txid %q", c.String("txid"), err)
	}

	q, closeFn, err := openQueryService(c.Context)
	if err != nil {
		return err
	}
	defer closeFn()

	pluginMap, err := q.Output(c.Context, model.NewOutpoint(txid, uint32(c.Uint("vout"))))
	if err != nil {
		return err
	}

	printable := make(map[string]map[string][]string, len(pluginMap))

	for _, name := range pluginMap.Names() {
		entry := pluginMap[name]
		printable[name] = map[string][]string{
			"data":   hexSegments(entry.Data),
			"groups": hexSegments(entry.Groups),
		}
	}

	return printJSON(printable)
}

func hexSegments(segments [][]byte) []string {
	encoded := make([]string, len(segments))
	for i, segment := range segments {
		encoded[i] = fmt.Sprintf("%x", segment)
	}

	return encoded
}

func checkHealth(c *cli.Context) error {
	address := c.String("address")
	if address == "" {
		address = pluginindex.HTTPAddress(settings.NewSettings().PluginIndex.HTTPListenAddress)
	}

	status, message, err := health.CheckHTTPServer(address, "/health")(c.Context, false)

	fmt.Println(message)

	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return errors.NewServiceUnavailableError("health check returned status %d", status)
	}

	return nil
}

func printSettings(_ *cli.Context) error {
	tSettings := settings.NewSettings()

	stats := gocore.Config().Stats()
	fmt.Printf("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	storeURL := ""
	if tSettings.PluginIndex.StoreURL != nil {
		storeURL = tSettings.PluginIndex.StoreURL.Redacted()
	}

	return printJSON(map[string]interface{}{
		"clientName":  tSettings.ClientName,
		"network":     tSettings.Network,
		"logLevel":    tSettings.LogLevel,
		"store":       storeURL,
		"pluginIndex": tSettings.PluginIndex,
		"sql":         tSettings.SQL,
	})
}

func printJSON(v interface{}) error {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewProcessingError("failed to encode output", err)
	}

	fmt.Println(string(b))

	return nil
}
