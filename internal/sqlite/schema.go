package sqlite

// Schema DDL for the key/value table. The table is created once and kept
// across attaches; it is the durable copy of the installation's cart state.
const (
	createKV = `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`
)

// schemaDDL lists all statements executed on Attach, in order.
var schemaDDL = []string{
	`PRAGMA journal_mode = WAL;`,
	`PRAGMA busy_timeout = 5000;`,
	createKV,
}

const (
	selectValue = `SELECT value FROM kv WHERE key = ?`
	upsertValue = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteValue = `DELETE FROM kv WHERE key = ?`
)
