package pluginindex

import (
	"context"
	"runtime/debug"
	"sort"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/tracing"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"golang.org/x/sync/errgroup"
)

// Invoker runs plugins against a transaction. A plugin that fails, panics, runs
// past its timeout or returns a malformed result loses its results for that
// transaction; the other plugins are unaffected.
type Invoker struct {
	logger      ulogger.Logger
	timeout     time.Duration
	concurrency int
}

type invocation struct {
	outputs []*plugin.Output
	err     error
}

func NewInvoker(logger ulogger.Logger, tSettings *settings.Settings) *Invoker {
	initPrometheusMetrics()

	concurrency := tSettings.PluginIndex.InvokeConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Invoker{
		logger:      logger,
		timeout:     tSettings.PluginIndex.InvokeTimeout,
		concurrency: concurrency,
	}
}

// Invoke runs every plugin in parallel and returns the validated records, sorted
// by plugin name and output index. inputs holds the full resolved data of each
// input; every plugin only sees the names it is allowed to read.
func (i *Invoker) Invoke(ctx context.Context, txid *chainhash.Hash, tx *bt.Tx, inputs []model.PluginMap, plugins []plugin.Plugin) []*model.PluginRecord {
	results := make([][]*model.PluginRecord, len(plugins))

	g := errgroup.Group{}
	g.SetLimit(i.concurrency)

	for idx, p := range plugins {
		g.Go(func() error {
			name := p.Identity().Name

			records, err := i.invokeOne(ctx, txid, tx, inputs, p)
			if err != nil {
				reason := "error"

				var tErr *errors.Error
				if errors.As(err, &tErr) {
					reason = tErr.Code().Enum()
				}

				prometheusPluginIndexInvocationFailures.WithLabelValues(name, reason).Inc()
				i.logger.Warnf("[PluginInvoker] plugin %s failed on tx %s, discarding its results: %v", name, txid, err)

				return nil
			}

			results[idx] = records

			return nil
		})
	}

	// invocations never return an error, failures are isolated per plugin
	_ = g.Wait()

	records := make([]*model.PluginRecord, 0)
	for _, r := range results {
		records = append(records, r...)
	}

	sort.SliceStable(records, func(a, b int) bool {
		if records[a].Plugin != records[b].Plugin {
			return records[a].Plugin < records[b].Plugin
		}

		return records[a].Vout < records[b].Vout
	})

	return records
}

func (i *Invoker) invokeOne(ctx context.Context, txid *chainhash.Hash, tx *bt.Tx, inputs []model.PluginMap, p plugin.Plugin) ([]*model.PluginRecord, error) {
	id := p.Identity()
	visible := id.Visible()

	view := &plugin.TxView{
		TxID:   txid,
		Tx:     tx,
		Inputs: make([]model.PluginMap, len(inputs)),
	}

	for idx, input := range inputs {
		view.Inputs[idx] = input.Restrict(visible...)
	}

	ctx, _, deferFn := tracing.StartTracing(ctx, "PluginInvoker:"+id.Name,
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexInvocationDuration.WithLabelValues(id.Name)),
		tracing.WithCounter(prometheusPluginIndexInvocations.WithLabelValues(id.Name)),
	)
	defer deferFn()

	invokeCtx := ctx

	if i.timeout > 0 {
		var cancel context.CancelFunc

		invokeCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	resultCh := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- invocation{err: errors.NewPluginInvocationError("plugin %s panicked: %v\n%s", id.Name, r, debug.Stack())}
			}
		}()

		outputs, err := p.Run(invokeCtx, view)
		resultCh <- invocation{outputs: outputs, err: err}
	}()

	var result invocation

	// a plugin ignoring its context is abandoned, not waited for
	select {
	case result = <-resultCh:
	case <-invokeCtx.Done():
		return nil, errors.NewPluginInvocationError("plugin %s did not return in time", id.Name, invokeCtx.Err())
	}

	if result.err != nil {
		if errors.IsPluginFault(result.err) {
			return nil, result.err
		}

		return nil, errors.NewPluginInvocationError("plugin %s returned an error", id.Name, result.err)
	}

	return validateOutputs(id.Name, tx, result.outputs)
}

// validateOutputs turns plugin results into records. Indexes must address an
// existing output and appear at most once. Nil data segments become empty ones
// and empty group names are dropped.
func validateOutputs(name string, tx *bt.Tx, outputs []*plugin.Output) ([]*model.PluginRecord, error) {
	records := make([]*model.PluginRecord, 0, len(outputs))
	seen := make(map[uint32]struct{}, len(outputs))

	for _, output := range outputs {
		if output == nil {
			return nil, errors.NewPluginResultError("plugin %s returned a nil result entry", name)
		}

		if int(output.Idx) >= len(tx.Outputs) {
			return nil, errors.NewPluginResultError("plugin %s returned data for output %d but tx has %d outputs", name, output.Idx, len(tx.Outputs))
		}

		if _, dup := seen[output.Idx]; dup {
			return nil, errors.NewPluginResultError("plugin %s returned output %d twice", name, output.Idx)
		}

		seen[output.Idx] = struct{}{}

		entry := &model.PluginEntry{
			Data: make([][]byte, len(output.Data)),
		}

		for j, segment := range output.Data {
			if segment == nil {
				segment = []byte{}
			}

			entry.Data[j] = segment
		}

		for _, group := range output.Groups {
			if len(group) > 0 {
				entry.Groups = append(entry.Groups, group)
			}
		}

		records = append(records, &model.PluginRecord{
			Vout:   output.Idx,
			Plugin: name,
			Entry:  entry,
		})
	}

	return records, nil
}
