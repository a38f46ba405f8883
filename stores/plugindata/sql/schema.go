package sql

import (
	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/util/usql"
)

func createPostgresSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_txs (
	     txid         BYTEA PRIMARY KEY
	    ,state        SMALLINT NOT NULL
	    ,block_hash   BYTEA
	    ,block_height BIGINT NOT NULL
	    ,first_seen   BIGINT NOT NULL
	    ,tx           BYTEA NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_txs table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_plugin_txs_state ON plugin_txs (state);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_plugin_txs_state index", err)
	}

	// data holds the serialized model.PluginEntry, groups included
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_outputs (
	     txid   BYTEA NOT NULL REFERENCES plugin_txs (txid) ON DELETE CASCADE
	    ,vout   BIGINT NOT NULL
	    ,plugin TEXT NOT NULL
	    ,data   BYTEA NOT NULL
	    ,PRIMARY KEY (txid, vout, plugin)
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_outputs table", err)
	}

	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_groups (
	     plugin TEXT NOT NULL
	    ,grp    BYTEA NOT NULL
	    ,txid   BYTEA NOT NULL REFERENCES plugin_txs (txid) ON DELETE CASCADE
	    ,vout   BIGINT NOT NULL
	    ,PRIMARY KEY (plugin, grp, txid, vout)
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_groups table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_plugin_groups_txid ON plugin_groups (txid);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_plugin_groups_txid index", err)
	}

	return nil
}

func createSqliteSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_txs (
	     txid         BLOB PRIMARY KEY
	    ,state        INTEGER NOT NULL
	    ,block_hash   BLOB
	    ,block_height BIGINT NOT NULL
	    ,first_seen   BIGINT NOT NULL
	    ,tx           BLOB NOT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_txs table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_plugin_txs_state ON plugin_txs (state);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_plugin_txs_state index", err)
	}

	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_outputs (
	     txid   BLOB NOT NULL REFERENCES plugin_txs (txid) ON DELETE CASCADE
	    ,vout   BIGINT NOT NULL
	    ,plugin TEXT NOT NULL
	    ,data   BLOB NOT NULL
	    ,PRIMARY KEY (txid, vout, plugin)
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_outputs table", err)
	}

	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS plugin_groups (
	     plugin TEXT NOT NULL
	    ,grp    BLOB NOT NULL
	    ,txid   BLOB NOT NULL REFERENCES plugin_txs (txid) ON DELETE CASCADE
	    ,vout   BIGINT NOT NULL
	    ,PRIMARY KEY (plugin, grp, txid, vout)
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create plugin_groups table", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_plugin_groups_txid ON plugin_groups (txid);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_plugin_groups_txid index", err)
	}

	return nil
}
