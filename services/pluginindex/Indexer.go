// Package pluginindex maintains the plugin data of every output the host reports:
// it dispatches transactions to the plugins registered for their protocol,
// persists the validated results and keeps them aligned with the mempool and
// the active chain.
package pluginindex

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/pkg/plugin"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/tracing"
	"github.com/bsv-blockchain/plugindex/ulogger"
)

// Eviction reasons reported to RemoveTx and recorded in metrics.
const (
	ReasonConflict   = "conflict"
	ReasonExpired    = "expired"
	ReasonReorg      = "reorg"
	ReasonCoinbase   = "coinbase"
	ReasonHostRemove = "removed"
)

// UtxoChecker tells the index whether a transaction pushed back to the mempool
// by a disconnected block can still be spent on the new tip.
type UtxoChecker interface {
	InputsUnspent(ctx context.Context, tx *bt.Tx) (bool, error)
}

type eventKind int

const (
	eventAcceptTx eventKind = iota
	eventConnectBlock
	eventDisconnectBlock
	eventRemoveTx
)

func (k eventKind) String() string {
	switch k {
	case eventAcceptTx:
		return "accept_tx"
	case eventConnectBlock:
		return "connect_block"
	case eventDisconnectBlock:
		return "disconnect_block"
	case eventRemoveTx:
		return "remove_tx"
	default:
		return "unknown"
	}
}

type event struct {
	ctx    context.Context
	kind   eventKind
	tx     *bt.Tx
	block  *model.Block
	txid   *chainhash.Hash
	reason string
	errCh  chan error
}

// Indexer applies host events to the plugin data store. All writes happen on a
// single goroutine in the order the events were submitted; queries read the
// store directly.
type Indexer struct {
	logger      ulogger.Logger
	settings    *settings.Settings
	store       plugindata.Store
	registry    *plugin.Registry
	invoker     *Invoker
	resolver    *Resolver
	query       *QueryService
	utxoChecker UtxoChecker
	expiry      *mempoolExpiry

	eventCh chan *event

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an indexer over store. utxoChecker may be nil, in which case every
// transaction of a disconnected block is assumed to remain valid.
func New(logger ulogger.Logger, tSettings *settings.Settings, store plugindata.Store, registry *plugin.Registry, utxoChecker UtxoChecker) *Indexer {
	initPrometheusMetrics()

	queueSize := tSettings.PluginIndex.EventQueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	return &Indexer{
		logger:      logger,
		settings:    tSettings,
		store:       store,
		registry:    registry,
		invoker:     NewInvoker(logger, tSettings),
		resolver:    NewResolver(store),
		query:       NewQueryService(store),
		utxoChecker: utxoChecker,
		expiry:      newMempoolExpiry(tSettings.PluginIndex.MempoolExpiry),
		eventCh:     make(chan *event, queueSize),
	}
}

func (idx *Indexer) Registry() *plugin.Registry {
	return idx.registry
}

func (idx *Indexer) Store() plugindata.Store {
	return idx.store
}

func (idx *Indexer) Health(_ context.Context, _ bool) (int, string, error) {
	idx.mu.Lock()
	running := idx.running
	idx.mu.Unlock()

	if !running {
		return http.StatusServiceUnavailable, "not running", errors.NewServiceNotStartedError("plugin index is not running")
	}

	return http.StatusOK, fmt.Sprintf("%d plugins, %d events queued", idx.registry.Len(), len(idx.eventCh)), nil
}

// Start restores the expiry of mempool transactions from the store and starts
// the event loop. It returns once the loop is running.
func (idx *Indexer) Start(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.running {
		return nil
	}

	var overdue []chainhash.Hash

	if idx.expiry.enabled() {
		ttl := idx.settings.PluginIndex.MempoolExpiry

		err := idx.store.Iterate(ctx, model.TxStateMempool, func(entry *model.TxEntry) error {
			if time.Since(entry.FirstSeen) >= ttl {
				overdue = append(overdue, entry.TxID)
				return nil
			}

			idx.expiry.Track(entry.TxID, entry.FirstSeen)

			return nil
		})
		if err != nil {
			return errors.NewServiceError("failed to restore mempool expiry", err)
		}
	}

	for i := range overdue {
		if err := idx.evict(ctx, &overdue[i], ReasonExpired); err != nil {
			return err
		}
	}

	idx.expiry.Start()

	idx.stopCh = make(chan struct{})
	idx.doneCh = make(chan struct{})
	idx.running = true

	go idx.loop(idx.stopCh, idx.doneCh)

	idx.logger.Infof("[PluginIndex] started with %d plugins, %d mempool txs overdue at startup", idx.registry.Len(), len(overdue))

	return nil
}

// Stop waits for the event being processed, if any, and stops the event loop.
// Events still queued are answered with ERR_SERVICE_NOT_STARTED.
func (idx *Indexer) Stop(ctx context.Context) error {
	idx.mu.Lock()

	if !idx.running {
		idx.mu.Unlock()
		return nil
	}

	idx.running = false
	close(idx.stopCh)
	doneCh := idx.doneCh
	idx.mu.Unlock()

	idx.expiry.Stop()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (idx *Indexer) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			idx.drainQueue()
			return

		case ev := <-idx.eventCh:
			ev.errCh <- idx.process(ev)

		case <-idx.expiry.Notify():
			for _, txid := range idx.expiry.Drain() {
				idx.expire(txid)
			}
		}
	}
}

func (idx *Indexer) drainQueue() {
	for {
		select {
		case ev := <-idx.eventCh:
			ev.errCh <- errors.NewServiceNotStartedError("plugin index stopped before processing %s", ev.kind)
		default:
			return
		}
	}
}

func (idx *Indexer) process(ev *event) error {
	ctx, _, deferFn := tracing.StartTracing(ev.ctx, "PluginIndex:"+ev.kind.String(),
		tracing.WithParentStat(pluginIndexStat),
		tracing.WithHistogram(prometheusPluginIndexEventDuration.WithLabelValues(ev.kind.String())),
		tracing.WithCounter(prometheusPluginIndexEvents.WithLabelValues(ev.kind.String())),
	)
	defer deferFn()

	switch ev.kind {
	case eventAcceptTx:
		return idx.acceptTx(ctx, ev.tx)
	case eventConnectBlock:
		return idx.connectBlock(ctx, ev.block)
	case eventDisconnectBlock:
		return idx.disconnectBlock(ctx, ev.block)
	case eventRemoveTx:
		return idx.removeTx(ctx, ev.txid, ev.reason)
	default:
		return errors.NewProcessingError("unknown event kind %d", ev.kind)
	}
}

// submit queues ev and waits for its result.
func (idx *Indexer) submit(ctx context.Context, ev *event) error {
	idx.mu.Lock()
	running := idx.running
	stopCh := idx.stopCh
	doneCh := idx.doneCh
	idx.mu.Unlock()

	if !running {
		return errors.NewServiceNotStartedError("plugin index is not running")
	}

	ev.ctx = ctx
	ev.errCh = make(chan error, 1)

	select {
	case idx.eventCh <- ev:
	case <-stopCh:
		return errors.NewServiceNotStartedError("plugin index is not running")
	case <-ctx.Done():
		return errors.NewContextCanceledError("context done before %s was queued", ev.kind, ctx.Err())
	}

	select {
	case err := <-ev.errCh:
		return err
	case <-doneCh:
		// the loop answers every event it dequeued before exiting
		select {
		case err := <-ev.errCh:
			return err
		default:
			return errors.NewServiceNotStartedError("plugin index stopped before processing %s", ev.kind)
		}
	case <-ctx.Done():
		return errors.NewContextCanceledError("context done while waiting for %s", ev.kind, ctx.Err())
	}
}

// AcceptTx indexes a transaction that entered the mempool. Announcing a
// transaction that is already indexed has no effect.
func (idx *Indexer) AcceptTx(ctx context.Context, tx *bt.Tx) error {
	if tx == nil {
		return errors.NewInvalidArgumentError("tx is nil")
	}

	return idx.submit(ctx, &event{kind: eventAcceptTx, tx: tx})
}

// ConnectBlock confirms the transactions of block, indexing those the mempool
// never reported. A failure on one transaction does not stop the others; all
// failures are returned together.
func (idx *Indexer) ConnectBlock(ctx context.Context, block *model.Block) error {
	if block == nil {
		return errors.NewInvalidArgumentError("block is nil")
	}

	return idx.submit(ctx, &event{kind: eventConnectBlock, block: block})
}

// DisconnectBlock reverts block: its transactions return to the mempool unless
// they can no longer be mined, in which case they are evicted. A transaction
// can no longer be mined when it is a coinbase, is listed in block.Invalid,
// fails the UtxoChecker or spends one of those. Transactions confirmed in
// another block are left alone.
func (idx *Indexer) DisconnectBlock(ctx context.Context, block *model.Block) error {
	if block == nil {
		return errors.NewInvalidArgumentError("block is nil")
	}

	return idx.submit(ctx, &event{kind: eventDisconnectBlock, block: block})
}

// RemoveTx evicts a transaction the host dropped from its mempool. Removing an
// unknown transaction has no effect.
func (idx *Indexer) RemoveTx(ctx context.Context, txid *chainhash.Hash, reason string) error {
	if txid == nil {
		return errors.NewInvalidArgumentError("txid is nil")
	}

	if reason == "" {
		reason = ReasonHostRemove
	}

	return idx.submit(ctx, &event{kind: eventRemoveTx, txid: txid, reason: reason})
}

// Query returns the plugin data of an indexed transaction.
func (idx *Indexer) Query(ctx context.Context, txid *chainhash.Hash) (*TxPlugins, error) {
	return idx.query.Query(ctx, txid)
}

// Output returns the records attached to outpoint.
func (idx *Indexer) Output(ctx context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	return idx.query.Output(ctx, outpoint)
}

// GroupOutpoints lists the outputs plugin placed in group.
func (idx *Indexer) GroupOutpoints(ctx context.Context, pluginName string, group []byte) ([]*model.Outpoint, error) {
	if _, ok := idx.registry.Get(pluginName); !ok {
		return nil, errors.NewPluginNotFoundError("plugin %s is not registered", pluginName)
	}

	return idx.query.GroupOutpoints(ctx, pluginName, group)
}

func (idx *Indexer) state(ctx context.Context, txid *chainhash.Hash) (*model.TxEntry, model.TxState, error) {
	entry, err := idx.store.GetTx(ctx, txid)
	if err != nil {
		if errors.Is(err, errors.ErrTxNotFound) {
			return nil, model.TxStateUnknown, nil
		}

		return nil, model.TxStateUnknown, err
	}

	return entry, entry.State, nil
}

func (idx *Indexer) acceptTx(ctx context.Context, tx *bt.Tx) error {
	txid := tx.TxIDChainHash()

	_, state, err := idx.state(ctx, txid)
	if err != nil {
		return err
	}

	if state != model.TxStateUnknown {
		idx.logger.Debugf("[PluginIndex] tx %s already indexed in state %s, ignoring", txid, state)
		return nil
	}

	next, err := transition(ctx, state, EventAccept)
	if err != nil {
		return err
	}

	entry, err := idx.index(ctx, tx, next, nil, 0)
	if err != nil {
		return err
	}

	idx.expiry.Track(*txid, entry.FirstSeen)

	return nil
}

func (idx *Indexer) connectBlock(ctx context.Context, block *model.Block) error {
	var errs []error

	for _, tx := range sortTopologically(block.Txs) {
		if err := idx.connectTx(ctx, block, tx); err != nil {
			errs = append(errs, err)
		}
	}

	idx.logger.Infof("[PluginIndex] connected block %s at height %d with %d txs, %d failed", block.Hash, block.Height, len(block.Txs), len(errs))

	return blockError(block, errs)
}

func (idx *Indexer) connectTx(ctx context.Context, block *model.Block, tx *bt.Tx) error {
	txid := tx.TxIDChainHash()

	entry, state, err := idx.state(ctx, txid)
	if err != nil {
		return err
	}

	// the block is being connected again, nothing changes
	if state == model.TxStateConfirmed && entry.BlockHash != nil && entry.BlockHash.IsEqual(&block.Hash) {
		return nil
	}

	next, err := transition(ctx, state, EventConnect)
	if err != nil {
		return err
	}

	blockHash := block.Hash

	if state == model.TxStateUnknown {
		_, err = idx.index(ctx, tx, next, &blockHash, block.Height)
		return err
	}

	if err = idx.store.SetTxState(ctx, txid, next, &blockHash, block.Height); err != nil {
		return err
	}

	idx.expiry.Untrack(*txid)

	return nil
}

func (idx *Indexer) disconnectBlock(ctx context.Context, block *model.Block) error {
	ordered := sortTopologically(block.Txs)

	// transactions that cannot go back to the mempool, including those spending
	// an output of one that cannot
	invalid := make(map[chainhash.Hash]string, 1)

	var errs []error

	for _, tx := range ordered {
		txid := *tx.TxIDChainHash()

		if tx.IsCoinbase() {
			invalid[txid] = ReasonCoinbase
			continue
		}

		if _, ok := block.Invalid[txid]; ok {
			invalid[txid] = ReasonReorg
			continue
		}

		if spendsInvalid(tx, invalid) {
			invalid[txid] = ReasonReorg
			continue
		}

		if idx.utxoChecker == nil {
			continue
		}

		unspent, err := idx.utxoChecker.InputsUnspent(ctx, tx)
		if err != nil {
			errs = append(errs, errors.NewProcessingError("failed to check inputs of tx %s", txid, err))
			continue
		}

		if !unspent {
			invalid[txid] = ReasonReorg
		}
	}

	now := time.Now()
	evicted := 0

	for i := len(ordered) - 1; i >= 0; i-- {
		txid := ordered[i].TxIDChainHash()

		entry, state, err := idx.state(ctx, txid)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if state == model.TxStateUnknown {
			continue
		}

		if state == model.TxStateConfirmed && entry.BlockHash != nil && !entry.BlockHash.IsEqual(&block.Hash) {
			idx.logger.Debugf("[PluginIndex] tx %s is confirmed in block %v, not in disconnected block %s, ignoring", txid, entry.BlockHash, block.Hash)
			continue
		}

		if reason, ok := invalid[*txid]; ok {
			if err = idx.evict(ctx, txid, reason); err != nil {
				errs = append(errs, err)
				continue
			}

			evicted++

			continue
		}

		next, err := transition(ctx, state, EventDisconnect)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err = idx.store.SetTxState(ctx, txid, next, nil, 0); err != nil {
			errs = append(errs, err)
			continue
		}

		idx.expiry.Track(*txid, now)
	}

	idx.logger.Infof("[PluginIndex] disconnected block %s at height %d, %d txs evicted", block.Hash, block.Height, evicted)

	return blockError(block, errs)
}

func (idx *Indexer) removeTx(ctx context.Context, txid *chainhash.Hash, reason string) error {
	_, state, err := idx.state(ctx, txid)
	if err != nil {
		return err
	}

	if state == model.TxStateUnknown {
		return nil
	}

	return idx.evict(ctx, txid, reason)
}

func (idx *Indexer) expire(txid chainhash.Hash) {
	ctx := context.Background()

	_, state, err := idx.state(ctx, &txid)
	if err != nil {
		idx.logger.Errorf("[PluginIndex] failed to read expired tx %s: %v", txid, err)
		return
	}

	// confirmed or removed since it was scheduled
	if state != model.TxStateMempool {
		return
	}

	if err = idx.evict(ctx, &txid, ReasonExpired); err != nil {
		idx.logger.Errorf("[PluginIndex] failed to evict expired tx %s: %v", txid, err)
	}
}

// evict prunes every record of txid. A transaction seen again afterwards is
// indexed from scratch.
func (idx *Indexer) evict(ctx context.Context, txid *chainhash.Hash, reason string) error {
	_, state, err := idx.state(ctx, txid)
	if err != nil {
		return err
	}

	if _, err = transition(ctx, state, EventEvict); err != nil {
		return err
	}

	if err = idx.store.Delete(ctx, txid); err != nil {
		return err
	}

	idx.expiry.Untrack(*txid)
	prometheusPluginIndexEvictions.WithLabelValues(reason).Inc()
	idx.logger.Debugf("[PluginIndex] evicted tx %s from state %s: %s", txid, state, reason)

	return nil
}

// index runs the plugins matching tx and stores the transaction together with
// their records.
func (idx *Indexer) index(ctx context.Context, tx *bt.Tx, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) (*model.TxEntry, error) {
	txid := tx.TxIDChainHash()

	var records []*model.PluginRecord

	if plugins := idx.registry.Dispatch(tx); len(plugins) > 0 {
		inputs, err := idx.resolver.ResolveInputs(ctx, tx)
		if err != nil {
			return nil, err
		}

		records = idx.invoker.Invoke(ctx, txid, tx, inputs, plugins)
	}

	entry := &model.TxEntry{
		TxID:        *txid,
		State:       state,
		BlockHash:   blockHash,
		BlockHeight: blockHeight,
		FirstSeen:   time.Now(),
		Tx:          tx,
	}

	if err := idx.store.Create(ctx, entry, records); err != nil {
		if errors.IsConsistencyError(err) {
			prometheusPluginIndexConflicts.Inc()
			idx.logger.Errorf("[PluginIndex] refusing to overwrite plugin data of tx %s: %v", txid, err)
		}

		return nil, err
	}

	idx.logger.Debugf("[PluginIndex] indexed tx %s in state %s with %d records", txid, state, len(records))

	return entry, nil
}

// blockError keeps the first failure of a block wrapped, so its code survives,
// and lists the others in the message.
func blockError(block *model.Block, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.NewProcessingError("%d txs of block %s failed, others: %v", len(errs), block.Hash, errors.Join(errs[1:]...), errs[0])
	}
}

func spendsInvalid(tx *bt.Tx, invalid map[chainhash.Hash]string) bool {
	for _, input := range tx.Inputs {
		if _, ok := invalid[*input.PreviousTxIDChainHash()]; ok {
			return true
		}
	}

	return false
}

// sortTopologically orders txs so every transaction follows the in-block
// transactions it spends, keeping block order otherwise.
func sortTopologically(txs []*bt.Tx) []*bt.Tx {
	position := make(map[chainhash.Hash]int, len(txs))
	for i, tx := range txs {
		position[*tx.TxIDChainHash()] = i
	}

	sorted := make([]*bt.Tx, 0, len(txs))
	visited := make([]bool, len(txs))

	var visit func(i int)

	visit = func(i int) {
		if visited[i] {
			return
		}

		visited[i] = true

		if !txs[i].IsCoinbase() {
			for _, input := range txs[i].Inputs {
				if parent, ok := position[*input.PreviousTxIDChainHash()]; ok {
					visit(parent)
				}
			}
		}

		sorted = append(sorted, txs[i])
	}

	for i := range txs {
		visit(i)
	}

	return sorted
}
