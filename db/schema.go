package db

// app_state is a generic key-value table for bootstrap and runtime state
// such as provisioned topic IDs, the epoch origin, and tail cursors.
// Secret values are wrapped by the store cipher before they land here.
const createStateTable = `CREATE TABLE IF NOT EXISTS app_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// consensus_entries holds one row per finalized epoch. Participants and
// sources are stored as JSON arrays; the remaining fields are first-class
// columns so history queries never need to parse a blob.
const createEntriesTable = `CREATE TABLE IF NOT EXISTS consensus_entries (
	epoch               INTEGER PRIMARY KEY,
	state_hash          TEXT NOT NULL,
	price               REAL NOT NULL,
	timestamp           TEXT NOT NULL,
	participants        TEXT NOT NULL,
	sources             TEXT NOT NULL,
	hcs_message         TEXT NOT NULL DEFAULT '',
	consensus_timestamp TEXT NOT NULL DEFAULT '',
	sequence_number     INTEGER NOT NULL DEFAULT 0
);`
