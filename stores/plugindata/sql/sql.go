// Package sql implements plugindata.Store on postgres and sqlite.
package sql

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/settings"
	"github.com/bsv-blockchain/plugindex/stores/plugindata"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util"
	"github.com/bsv-blockchain/plugindex/util/usql"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	prometheusPluginDataCreate prometheus.Counter
	prometheusPluginDataGet    prometheus.Counter
	prometheusPluginDataDelete prometheus.Counter
	prometheusPluginDataErrors *prometheus.CounterVec
)

func init() {
	prometheusPluginDataCreate = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Name:      "sql_plugindata_create",
			Help:      "Number of plugin data create calls done to sql",
		},
	)
	prometheusPluginDataGet = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Name:      "sql_plugindata_get",
			Help:      "Number of plugin data output reads done to sql",
		},
	)
	prometheusPluginDataDelete = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Name:      "sql_plugindata_delete",
			Help:      "Number of plugin data delete calls done to sql",
		},
	)
	prometheusPluginDataErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Name:      "sql_plugindata_errors",
			Help:      "Number of plugin data errors",
		},
		[]string{
			"function", // function raising the error
			"error",    // error code returned
		},
	)
}

type Store struct {
	logger    ulogger.Logger
	db        *usql.DB
	engine    util.SQLEngine
	dbTimeout time.Duration
}

func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*Store, error) {
	logger = logger.New("pdsql")

	db, engine, err := util.InitSQLDB(logger, storeURL, tSettings)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	switch engine {
	case util.Postgres:
		if err = createPostgresSchema(db); err != nil {
			return nil, errors.NewStorageError("failed to create postgres schema", err)
		}

	case util.Sqlite:
		if err = createSqliteSchema(db); err != nil {
			return nil, errors.NewStorageError("failed to create sqlite schema", err)
		}

	default:
		return nil, errors.NewConfigurationError("unknown database engine: %s", engine)
	}

	dbTimeout := tSettings.SQL.DBTimeout
	if dbTimeout <= 0 {
		dbTimeout = 5 * time.Second
	}

	return &Store{
		logger:    logger,
		db:        db,
		engine:    engine,
		dbTimeout: dbTimeout,
	}, nil
}

func (s *Store) Health(ctx context.Context, _ bool) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dbTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return http.StatusServiceUnavailable, "SQL Engine is " + string(s.engine), errors.NewStorageUnavailableError("sql store ping failed", err)
	}

	return http.StatusOK, "SQL Engine is " + string(s.engine), nil
}

func (s *Store) Create(ctx context.Context, entry *model.TxEntry, records []*model.PluginRecord) (err error) {
	prometheusPluginDataCreate.Inc()

	defer func() {
		s.countError("Create", err)
	}()

	if err = plugindata.ValidateRecords(&entry.TxID, records); err != nil {
		return err
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("failed to begin transaction", err)
	}

	defer func() {
		_ = txn.Rollback()
	}()

	var blockHash []byte
	if entry.BlockHash != nil {
		blockHash = entry.BlockHash[:]
	}

	q := `
		INSERT INTO plugin_txs (
		 txid
		,state
		,block_hash
		,block_height
		,first_seen
		,tx
		) VALUES (
		 $1
		,$2
		,$3
		,$4
		,$5
		,$6
		)
		ON CONFLICT (txid) DO UPDATE SET
		 state        = excluded.state
		,block_hash   = excluded.block_hash
		,block_height = excluded.block_height
		,first_seen   = excluded.first_seen
		,tx           = excluded.tx
	`

	if _, err = txn.ExecContext(ctx, q, entry.TxID[:], int(entry.State), blockHash, int64(entry.BlockHeight), entry.FirstSeen.UnixNano(), entry.Tx.Bytes()); err != nil {
		return errors.NewStorageError("failed to insert plugin tx %s", entry.TxID, err)
	}

	for _, record := range records {
		var existing []byte

		err = txn.QueryRowContext(ctx, `SELECT data FROM plugin_outputs WHERE txid = $1 AND vout = $2 AND plugin = $3`,
			entry.TxID[:], int64(record.Vout), record.Plugin).Scan(&existing)

		switch {
		case err == nil:
			existingEntry, decodeErr := model.NewPluginEntryFromBytes(existing)
			if decodeErr != nil {
				return errors.NewStorageError("failed to decode stored plugin data of %s:%d", entry.TxID, record.Vout, decodeErr)
			}

			if err = plugindata.CheckRecord(&entry.TxID, record, existingEntry); err != nil {
				return err
			}

			continue

		case errors.Is(err, sql.ErrNoRows):

		default:
			return errors.NewStorageError("failed to read plugin data of %s:%d", entry.TxID, record.Vout, err)
		}

		if _, err = txn.ExecContext(ctx, `INSERT INTO plugin_outputs (txid, vout, plugin, data) VALUES ($1, $2, $3, $4)`,
			entry.TxID[:], int64(record.Vout), record.Plugin, record.Entry.Bytes()); err != nil {
			if isUniqueViolation(err) {
				return errors.NewPluginDataConflictError(entry.TxID.String(), record.Vout, record.Plugin,
					"plugin data of %s:%d for %s was written concurrently", entry.TxID, record.Vout, record.Plugin, err)
			}

			return errors.NewStorageError("failed to insert plugin data of %s:%d", entry.TxID, record.Vout, err)
		}

		for _, group := range record.Entry.Groups {
			if _, err = txn.ExecContext(ctx, `INSERT INTO plugin_groups (plugin, grp, txid, vout) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				record.Plugin, group, entry.TxID[:], int64(record.Vout)); err != nil {
				return errors.NewStorageError("failed to insert plugin group of %s:%d", entry.TxID, record.Vout, err)
			}
		}
	}

	if err = txn.Commit(); err != nil {
		return errors.NewStorageError("failed to commit plugin data of %s", entry.TxID, err)
	}

	return nil
}

func (s *Store) GetTx(ctx context.Context, txid *chainhash.Hash) (*model.TxEntry, error) {
	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	row := s.db.QueryRowContext(ctx, `SELECT state, block_hash, block_height, first_seen, tx FROM plugin_txs WHERE txid = $1`, txid[:])

	entry, err := scanTxEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewTxNotFoundError("tx %s not found in plugin data store", txid)
		}

		s.countError("GetTx", err)

		return nil, errors.NewStorageError("failed to read plugin tx %s", txid, err)
	}

	return entry, nil
}

func (s *Store) SetTxState(ctx context.Context, txid *chainhash.Hash, state model.TxState, blockHash *chainhash.Hash, blockHeight uint32) error {
	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	var hashBytes []byte
	if blockHash != nil {
		hashBytes = blockHash[:]
	}

	result, err := s.db.ExecContext(ctx, `UPDATE plugin_txs SET state = $2, block_hash = $3, block_height = $4 WHERE txid = $1`,
		txid[:], int(state), hashBytes, int64(blockHeight))
	if err != nil {
		s.countError("SetTxState", err)
		return errors.NewStorageError("failed to update state of plugin tx %s", txid, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageError("failed to update state of plugin tx %s", txid, err)
	}

	if affected == 0 {
		return errors.NewTxNotFoundError("tx %s not found in plugin data store", txid)
	}

	return nil
}

func (s *Store) GetOutput(ctx context.Context, outpoint *model.Outpoint) (model.PluginMap, error) {
	prometheusPluginDataGet.Inc()

	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	rows, err := s.db.QueryContext(ctx, `SELECT plugin, data FROM plugin_outputs WHERE txid = $1 AND vout = $2`,
		outpoint.TxID[:], int64(outpoint.Vout))
	if err != nil {
		s.countError("GetOutput", err)
		return nil, errors.NewStorageError("failed to read plugin data of %s", outpoint, err)
	}

	defer rows.Close()

	outputs := model.PluginMap{}

	for rows.Next() {
		var (
			plugin string
			data   []byte
		)

		if err = rows.Scan(&plugin, &data); err != nil {
			return nil, errors.NewStorageError("failed to scan plugin data of %s", outpoint, err)
		}

		if outputs[plugin], err = model.NewPluginEntryFromBytes(data); err != nil {
			return nil, errors.NewStorageError("failed to decode plugin data of %s", outpoint, err)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to read plugin data of %s", outpoint, err)
	}

	return outputs, nil
}

func (s *Store) GetOutputs(ctx context.Context, txid *chainhash.Hash, numOutputs uint32) ([]model.PluginMap, error) {
	prometheusPluginDataGet.Inc()

	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	result := make([]model.PluginMap, numOutputs)
	for i := range result {
		result[i] = model.PluginMap{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT vout, plugin, data FROM plugin_outputs WHERE txid = $1 AND vout < $2`,
		txid[:], int64(numOutputs))
	if err != nil {
		s.countError("GetOutputs", err)
		return nil, errors.NewStorageError("failed to read plugin data of %s", txid, err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			vout   int64
			plugin string
			data   []byte
		)

		if err = rows.Scan(&vout, &plugin, &data); err != nil {
			return nil, errors.NewStorageError("failed to scan plugin data of %s", txid, err)
		}

		if result[vout][plugin], err = model.NewPluginEntryFromBytes(data); err != nil {
			return nil, errors.NewStorageError("failed to decode plugin data of %s:%d", txid, vout, err)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to read plugin data of %s", txid, err)
	}

	return result, nil
}

func (s *Store) GroupOutpoints(ctx context.Context, plugin string, group []byte) ([]*model.Outpoint, error) {
	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	rows, err := s.db.QueryContext(ctx, `SELECT txid, vout FROM plugin_groups WHERE plugin = $1 AND grp = $2`, plugin, group)
	if err != nil {
		s.countError("GroupOutpoints", err)
		return nil, errors.NewStorageError("failed to read group of plugin %s", plugin, err)
	}

	defer rows.Close()

	outpoints := make([]*model.Outpoint, 0)

	for rows.Next() {
		var (
			txid []byte
			vout int64
		)

		if err = rows.Scan(&txid, &vout); err != nil {
			return nil, errors.NewStorageError("failed to scan group of plugin %s", plugin, err)
		}

		hash, err := chainhash.NewHash(txid)
		if err != nil {
			return nil, errors.NewStorageError("invalid txid in group of plugin %s", plugin, err)
		}

		voutUint32, err := safeconversion.Int64ToUint32(vout)
		if err != nil {
			return nil, errors.NewStorageError("invalid output index in group of plugin %s", plugin, err)
		}

		outpoints = append(outpoints, model.NewOutpoint(hash, voutUint32))
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to read group of plugin %s", plugin, err)
	}

	plugindata.SortOutpoints(outpoints)

	return outpoints, nil
}

func (s *Store) Delete(ctx context.Context, txid *chainhash.Hash) (err error) {
	prometheusPluginDataDelete.Inc()

	defer func() {
		s.countError("Delete", err)
	}()

	ctx, cancelTimeout := context.WithTimeout(ctx, s.dbTimeout)
	defer cancelTimeout()

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("failed to begin transaction", err)
	}

	defer func() {
		_ = txn.Rollback()
	}()

	for _, q := range []string{
		`DELETE FROM plugin_groups WHERE txid = $1`,
		`DELETE FROM plugin_outputs WHERE txid = $1`,
		`DELETE FROM plugin_txs WHERE txid = $1`,
	} {
		if _, err = txn.ExecContext(ctx, q, txid[:]); err != nil {
			return errors.NewStorageError("failed to delete plugin data of %s", txid, err)
		}
	}

	if err = txn.Commit(); err != nil {
		return errors.NewStorageError("failed to commit delete of %s", txid, err)
	}

	return nil
}

// Iterate loads all matching entries before calling fn, so fn may use the store
// even when sqlite runs on a single connection.
func (s *Store) Iterate(ctx context.Context, state model.TxState, fn func(entry *model.TxEntry) error) error {
	entries, err := s.entriesInState(ctx, state)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return errors.NewContextCanceledError("iteration canceled", err)
		}

		if err = fn(entry); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) entriesInState(ctx context.Context, state model.TxState) ([]*model.TxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, block_hash, block_height, first_seen, tx FROM plugin_txs WHERE state = $1`, int(state))
	if err != nil {
		s.countError("Iterate", err)
		return nil, errors.NewStorageError("failed to read plugin txs in state %s", state, err)
	}

	defer rows.Close()

	entries := make([]*model.TxEntry, 0)

	for rows.Next() {
		entry, err := scanTxEntry(rows)
		if err != nil {
			return nil, errors.NewStorageError("failed to scan plugin tx", err)
		}

		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to read plugin txs in state %s", state, err)
	}

	return entries, nil
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

func (s *Store) countError(function string, err error) {
	if err == nil {
		return
	}

	var tErr *errors.Error
	if errors.As(err, &tErr) {
		prometheusPluginDataErrors.WithLabelValues(function, tErr.Code().Enum()).Inc()
		return
	}

	prometheusPluginDataErrors.WithLabelValues(function, "UNKNOWN").Inc()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTxEntry(row scanner) (*model.TxEntry, error) {
	var (
		state       int
		blockHash   []byte
		blockHeight int64
		firstSeen   int64
		txBytes     []byte
	)

	if err := row.Scan(&state, &blockHash, &blockHeight, &firstSeen, &txBytes); err != nil {
		return nil, err
	}

	tx, err := bt.NewTxFromBytes(txBytes)
	if err != nil {
		return nil, errors.NewProcessingError("failed to parse stored tx", err)
	}

	heightUint32, err := safeconversion.Int64ToUint32(blockHeight)
	if err != nil {
		return nil, errors.NewProcessingError("invalid stored block height", err)
	}

	entry := &model.TxEntry{
		TxID:        *tx.TxIDChainHash(),
		State:       model.TxState(state),
		BlockHeight: heightUint32,
		FirstSeen:   time.Unix(0, firstSeen),
		Tx:          tx,
	}

	if len(blockHash) > 0 {
		if entry.BlockHash, err = chainhash.NewHash(blockHash); err != nil {
			return nil, errors.NewProcessingError("failed to parse stored block hash", err)
		}
	}

	return entry, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
