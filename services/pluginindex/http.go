package pluginindex

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/tracing"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// maxTxBodySize bounds the hex encoded transactions accepted by the host feed.
const maxTxBodySize = 64 * 1024 * 1024

// HTTP serves the plugin index over a JSON API. Reads are open to any origin;
// the host feed endpoints let a node without an in-process integration report
// its events.
type HTTP struct {
	logger  ulogger.Logger
	indexer *Indexer
	e       *echo.Echo
}

type pluginEntryResponse struct {
	Data   []string `json:"data"`
	Groups []string `json:"groups,omitempty"`
}

type txPluginsResponse struct {
	TxID        string                            `json:"txid"`
	State       string                            `json:"state"`
	BlockHash   string                            `json:"blockHash,omitempty"`
	BlockHeight uint32                            `json:"blockHeight,omitempty"`
	Inputs      []map[string]*pluginEntryResponse `json:"inputs"`
	Outputs     []map[string]*pluginEntryResponse `json:"outputs"`
}

type pluginResponse struct {
	Name     string   `json:"name"`
	Module   string   `json:"module"`
	Version  string   `json:"version"`
	LokadIDs []string `json:"lokadIds"`
	Reads    []string `json:"reads,omitempty"`
}

// blockRequest describes a block event. Invalid lists the txids the host knows
// can no longer be mined and is only accepted on disconnect.
type blockRequest struct {
	Hash    string   `json:"hash"`
	Height  uint32   `json:"height"`
	Txs     []string `json:"txs"`
	Invalid []string `json:"invalid,omitempty"`
}

func NewHTTP(logger ulogger.Logger, indexer *Indexer) *HTTP {
	initPrometheusMetrics()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET},
	}))

	h := &HTTP{
		logger:  logger,
		indexer: indexer,
		e:       e,
	}

	e.GET("/health", func(c echo.Context) error {
		status, details, err := indexer.Health(c.Request().Context(), false)
		if err != nil {
			return c.String(status, err.Error())
		}

		return c.String(status, details)
	})

	e.GET("/api/v1/plugins", h.GetPlugins)
	e.GET("/api/v1/tx/:txid/plugins", h.GetTxPlugins)
	e.GET("/api/v1/outpoint/:txid/:vout", h.GetOutput)
	e.GET("/api/v1/plugin/:name/group/:group", h.GetGroupOutpoints)

	e.POST("/api/v1/tx", h.PostTx)
	e.DELETE("/api/v1/tx/:txid", h.DeleteTx)
	e.POST("/api/v1/block/connect", h.PostBlock(true))
	e.POST("/api/v1/block/disconnect", h.PostBlock(false))

	return h
}

// Handler exposes the router, mainly for tests.
func (h *HTTP) Handler() http.Handler {
	return h.e
}

func (h *HTTP) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()

		h.logger.Infof("[PluginIndex_http] service shutting down")

		if err := h.e.Shutdown(context.Background()); err != nil {
			h.logger.Errorf("[PluginIndex_http] service shutdown error: %s", err)
		}
	}()

	err := h.e.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (h *HTTP) Stop(ctx context.Context) error {
	return h.e.Shutdown(ctx)
}

func (h *HTTP) GetPlugins(c echo.Context) error {
	_, _, deferFn := tracing.StartTracing(c.Request().Context(), "GetPlugins_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("GetPlugins")),
	)
	defer deferFn()

	plugins := h.indexer.Registry().Plugins()
	resp := make([]*pluginResponse, 0, len(plugins))

	for _, p := range plugins {
		id := p.Identity()

		lokadIDs := make([]string, len(id.LokadIDs))
		for i, lokadID := range id.LokadIDs {
			lokadIDs[i] = plugin.FormatLokadID(lokadID)
		}

		resp = append(resp, &pluginResponse{
			Name:     id.Name,
			Module:   id.Module,
			Version:  id.Version,
			LokadIDs: lokadIDs,
			Reads:    id.Reads,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *HTTP) GetTxPlugins(c echo.Context) error {
	ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), "GetTxPlugins_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("GetTxPlugins")),
		tracing.WithLogMessage(h.logger, "[PluginIndex_http] GetTxPlugins for %s: %s", c.Request().RemoteAddr, c.Param("txid")),
	)
	defer deferFn()

	txid, err := chainhash.NewHashFromStr(c.Param("txid"))
	if err != nil {
		return sendError(c, errors.NewInvalidArgumentError("invalid txid %q", c.Param("txid"), err))
	}

	txPlugins, err := h.indexer.Query(ctx, txid)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(http.StatusOK, txPlugins)
}

func (h *HTTP) GetOutput(c echo.Context) error {
	ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), "GetOutput_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("GetOutput")),
		tracing.WithLogMessage(h.logger, "[PluginIndex_http] GetOutput for %s: %s:%s", c.Request().RemoteAddr, c.Param("txid"), c.Param("vout")),
	)
	defer deferFn()

	txid, err := chainhash.NewHashFromStr(c.Param("txid"))
	if err != nil {
		return sendError(c, errors.NewInvalidArgumentError("invalid txid %q", c.Param("txid"), err))
	}

	vout, err := strconv.ParseUint(c.Param("vout"), 10, 32)
	if err != nil {
		return sendError(c, errors.NewInvalidArgumentError("invalid output index %q", c.Param("vout"), err))
	}

	pluginMap, err := h.indexer.Output(ctx, model.NewOutpoint(txid, uint32(vout)))
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(http.StatusOK, pluginMapResponse(pluginMap))
}

func (h *HTTP) GetGroupOutpoints(c echo.Context) error {
	ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), "GetGroupOutpoints_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("GetGroupOutpoints")),
		tracing.WithLogMessage(h.logger, "[PluginIndex_http] GetGroupOutpoints for %s: %s/%s", c.Request().RemoteAddr, c.Param("name"), c.Param("group")),
	)
	defer deferFn()

	group, err := hex.DecodeString(c.Param("group"))
	if err != nil || len(group) == 0 {
		return sendError(c, errors.NewInvalidArgumentError("group must be non-empty hex, got %q", c.Param("group")))
	}

	outpoints, err := h.indexer.GroupOutpoints(ctx, c.Param("name"), group)
	if err != nil {
		return sendError(c, err)
	}

	resp := make([]string, len(outpoints))
	for i, outpoint := range outpoints {
		resp[i] = outpoint.String()
	}

	return c.JSON(http.StatusOK, resp)
}

// PostTx accepts a hex encoded transaction that entered the host mempool.
func (h *HTTP) PostTx(c echo.Context) error {
	ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), "PostTx_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("PostTx")),
	)
	defer deferFn()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxTxBodySize))
	if err != nil {
		return sendError(c, errors.NewInvalidArgumentError("failed to read request body", err))
	}

	tx, err := bt.NewTxFromString(strings.TrimSpace(string(body)))
	if err != nil {
		return sendError(c, errors.NewTxInvalidError("failed to parse tx", err))
	}

	if err = h.indexer.AcceptTx(ctx, tx); err != nil {
		return sendError(c, err)
	}

	return c.String(http.StatusOK, tx.TxID())
}

// DeleteTx evicts a transaction the host dropped from its mempool.
func (h *HTTP) DeleteTx(c echo.Context) error {
	ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), "DeleteTx_http",
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues("DeleteTx")),
		tracing.WithLogMessage(h.logger, "[PluginIndex_http] DeleteTx for %s: %s", c.Request().RemoteAddr, c.Param("txid")),
	)
	defer deferFn()

	txid, err := chainhash.NewHashFromStr(c.Param("txid"))
	if err != nil {
		return sendError(c, errors.NewInvalidArgumentError("invalid txid %q", c.Param("txid"), err))
	}

	if err = h.indexer.RemoveTx(ctx, txid, c.QueryParam("reason")); err != nil {
		return sendError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// PostBlock connects or disconnects a block given as its hash, height and hex
// encoded transactions in block order. On disconnect the host may list the
// txids that can no longer be mined.
func (h *HTTP) PostBlock(connect bool) func(c echo.Context) error {
	name := "DisconnectBlock"
	if connect {
		name = "ConnectBlock"
	}

	return func(c echo.Context) error {
		ctx, _, deferFn := tracing.StartTracing(c.Request().Context(), name+"_http",
			tracing.WithParentStat(pluginIndexStat),
			tracing.WithHistogram(prometheusPluginIndexHTTPDuration.WithLabelValues(name)),
		)
		defer deferFn()

		var req blockRequest
		if err := c.Bind(&req); err != nil {
			return sendError(c, errors.NewInvalidArgumentError("invalid block request", err))
		}

		hash, err := chainhash.NewHashFromStr(req.Hash)
		if err != nil {
			return sendError(c, errors.NewInvalidArgumentError("invalid block hash %q", req.Hash, err))
		}

		block := &model.Block{
			Hash:   *hash,
			Height: req.Height,
			Txs:    make([]*bt.Tx, len(req.Txs)),
		}

		for i, txHex := range req.Txs {
			if block.Txs[i], err = bt.NewTxFromString(txHex); err != nil {
				return sendError(c, errors.NewTxInvalidError("failed to parse tx %d of block %s", i, hash, err))
			}
		}

		if len(req.Invalid) > 0 {
			if connect {
				return sendError(c, errors.NewInvalidArgumentError("invalid txs can only be reported when disconnecting block %s", hash))
			}

			block.Invalid = make(map[chainhash.Hash]struct{}, len(req.Invalid))

			for _, txidStr := range req.Invalid {
				txid, err := chainhash.NewHashFromStr(txidStr)
				if err != nil {
					return sendError(c, errors.NewInvalidArgumentError("invalid txid %q", txidStr, err))
				}

				block.Invalid[*txid] = struct{}{}
			}
		}

		h.logger.Infof("[PluginIndex_http] %s %s at height %d with %d txs, %d reported invalid", name, hash, req.Height, len(req.Txs), len(req.Invalid))

		if connect {
			err = h.indexer.ConnectBlock(ctx, block)
		} else {
			err = h.indexer.DisconnectBlock(ctx, block)
		}

		if err != nil {
			return sendError(c, err)
		}

		return c.NoContent(http.StatusNoContent)
	}
}

func pluginMapResponse(pluginMap model.PluginMap) map[string]*pluginEntryResponse {
	resp := make(map[string]*pluginEntryResponse, len(pluginMap))

	for name, entry := range pluginMap {
		r := &pluginEntryResponse{
			Data: make([]string, len(entry.Data)),
		}

		for i, segment := range entry.Data {
			r.Data[i] = hex.EncodeToString(segment)
		}

		for _, group := range entry.Groups {
			r.Groups = append(r.Groups, hex.EncodeToString(group))
		}

		resp[name] = r
	}

	return resp
}
