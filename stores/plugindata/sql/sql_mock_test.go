package sql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/model"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/bsv-blockchain/plugindex/util"
	"github.com/bsv-blockchain/plugindex/util/test"
	"github.com/bsv-blockchain/plugindex/util/usql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMockSQL creates a Store over a mocked database.
func createMockSQL(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	s := &Store{
		logger:    ulogger.TestLogger{},
		db:        &usql.DB{DB: db},
		engine:    util.Postgres,
		dbTimeout: time.Second,
	}

	return s, mock
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	s, mock := createMockSQL(t)

	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("rollback")}, test.PayScript(), test.PayScript())

	entry := &model.TxEntry{
		TxID:      *tx.TxIDChainHash(),
		State:     model.TxStateMempool,
		FirstSeen: time.Now(),
		Tx:        tx,
	}

	records := []*model.PluginRecord{
		{Vout: 0, Plugin: "my_plugin", Entry: &model.PluginEntry{Data: [][]byte{[]byte("a")}}},
		{Vout: 1, Plugin: "my_plugin", Entry: &model.PluginEntry{Data: [][]byte{[]byte("b")}}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugin_txs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM plugin_outputs")).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugin_outputs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM plugin_outputs")).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugin_outputs")).
		WillReturnError(sql.ErrConnDone)

	mock.ExpectRollback()

	err := s.Create(context.Background(), entry, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageError))

	// nothing was committed, the earlier inserts are rolled back with the rest
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackOnBeginFailure(t *testing.T) {
	s, mock := createMockSQL(t)

	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("begin")}, test.PayScript())

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	err := s.Create(context.Background(), &model.TxEntry{
		TxID:      *tx.TxIDChainHash(),
		State:     model.TxStateMempool,
		FirstSeen: time.Now(),
		Tx:        tx,
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageError))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTxRejectsOutOfRangeHeight(t *testing.T) {
	s, mock := createMockSQL(t)

	tx := test.NewTx(t, []*model.Outpoint{test.FundingOutpoint("height")}, test.PayScript())
	txid := tx.TxIDChainHash()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT state, block_hash, block_height, first_seen, tx FROM plugin_txs")).
		WillReturnRows(sqlmock.NewRows([]string{"state", "block_hash", "block_height", "first_seen", "tx"}).
			AddRow(int64(model.TxStateConfirmed), txid[:], int64(-1), time.Now().UnixNano(), tx.Bytes()))

	_, err := s.GetTx(context.Background(), txid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageError))

	require.NoError(t, mock.ExpectationsWereMet())
}
