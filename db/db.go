package db

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/fileutil"
)

var log = logrus.WithField("prefix", "db")

var databaseFileName = "oracle.sqlite"

// Database defines the necessary methods for the oracle's persistence layer,
// which may be implemented by any relational database in practice.
type Database interface {
	io.Closer
	DatabasePath() string
	ClearDB() error

	// Application state.
	State(ctx context.Context, key string) (string, bool, error)
	SaveState(ctx context.Context, key, value string) error
	SecretState(ctx context.Context, key string) (string, bool, error)
	SaveSecretState(ctx context.Context, key, value string) error

	// Consensus history.
	SaveConsensusEntry(ctx context.Context, entry *proof.ConsensusEntry) error
	FillConsensusMetadata(ctx context.Context, epoch uint64, hcsMessage, consensusTimestamp string, sequenceNumber uint64) (bool, error)
	ConsensusEntries(ctx context.Context) ([]*proof.ConsensusEntry, error)
}

// Store defines an implementation of the oracle Database interface
// backed by an embedded sqlite file.
type Store struct {
	db           *sql.DB
	databasePath string
	cipher       *secretCipher
}

// Config options for the oracle db.
type Config struct {
	// KeySecret derives the AEAD key used to wrap secret state values.
	// When empty, a fixed fallback phrase is hashed instead.
	KeySecret string
}

// NewDB initializes the oracle database at the directory path specified,
// creates the tables based on the schema, and stores an open connection
// db object as a property of the Store struct.
func NewDB(dirPath string, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := fileutil.MkdirAll(dirPath); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	sqlDB, err := sql.Open("sqlite3", datafile+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "could not open oracle database")
	}
	// sqlite handles a single writer; more connections mean lock errors.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "cannot reach oracle database, file may be in use by another process")
	}
	cipher, err := newSecretCipher(cfg.KeySecret)
	if err != nil {
		return nil, err
	}
	if cfg.KeySecret == "" {
		log.Warn("No key secret configured, secret state values are wrapped with a fallback key")
	}
	s := &Store{db: sqlDB, databasePath: datafile, cipher: cipher}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	if info, err := os.Stat(datafile); err == nil {
		log.WithFields(logrus.Fields{
			"path": datafile,
			"size": humanize.Bytes(uint64(info.Size())),
		}).Info("Opened oracle database")
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range []string{createStateTable, createEntriesTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "could not migrate oracle database schema")
		}
	}
	return nil
}

// ClearDB removes any previously stored data at the configured data directory.
// WAL sidecar files are removed along with the main database file.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	for _, f := range []string{s.databasePath, s.databasePath + "-wal", s.databasePath + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close closes the underlying sqlite database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}
