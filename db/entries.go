package db

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hashgraph-online/flora-price-oracle/proof"
)

// SaveConsensusEntry upserts the row for the entry's epoch. Consensus log
// metadata already persisted for the epoch is preserved when the incoming
// entry does not carry it, so re-saving an aggregation result cannot blank
// out a backfilled timestamp.
func (s *Store) SaveConsensusEntry(ctx context.Context, entry *proof.ConsensusEntry) error {
	participants, err := json.Marshal(entry.Participants)
	if err != nil {
		return errors.Wrap(err, "could not encode participants")
	}
	sources, err := json.Marshal(entry.Sources)
	if err != nil {
		return errors.Wrap(err, "could not encode sources")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO consensus_entries
		(epoch, state_hash, price, timestamp, participants, sources, hcs_message, consensus_timestamp, sequence_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(epoch) DO UPDATE SET
			state_hash = excluded.state_hash,
			price = excluded.price,
			timestamp = excluded.timestamp,
			participants = excluded.participants,
			sources = excluded.sources,
			hcs_message = CASE WHEN excluded.hcs_message != '' THEN excluded.hcs_message ELSE consensus_entries.hcs_message END,
			consensus_timestamp = CASE WHEN excluded.consensus_timestamp != '' THEN excluded.consensus_timestamp ELSE consensus_entries.consensus_timestamp END,
			sequence_number = CASE WHEN excluded.sequence_number != 0 THEN excluded.sequence_number ELSE consensus_entries.sequence_number END`,
		int64(entry.Epoch), entry.StateHash, entry.Price, entry.Timestamp,
		string(participants), string(sources),
		entry.HCSMessage, entry.ConsensusTimestamp, int64(entry.SequenceNumber))
	if err != nil {
		return errors.Wrapf(err, "could not save consensus entry for epoch %d", entry.Epoch)
	}
	return nil
}

// FillConsensusMetadata stamps the consensus log metadata on an epoch's row.
// Rows that already carry a consensus timestamp are left untouched; the
// return value reports whether this call filled the metadata.
func (s *Store) FillConsensusMetadata(ctx context.Context, epoch uint64, hcsMessage, consensusTimestamp string, sequenceNumber uint64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE consensus_entries
		SET hcs_message = ?, consensus_timestamp = ?, sequence_number = ?
		WHERE epoch = ? AND consensus_timestamp = ''`,
		hcsMessage, consensusTimestamp, int64(sequenceNumber), int64(epoch))
	if err != nil {
		return false, errors.Wrapf(err, "could not fill consensus metadata for epoch %d", epoch)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "could not fill consensus metadata for epoch %d", epoch)
	}
	return n > 0, nil
}

// ConsensusEntries returns every persisted entry sorted ascending by epoch.
func (s *Store) ConsensusEntries(ctx context.Context) ([]*proof.ConsensusEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT epoch, state_hash, price, timestamp, participants, sources,
		hcs_message, consensus_timestamp, sequence_number
		FROM consensus_entries ORDER BY epoch ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "could not load consensus entries")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.WithError(err).Error("Failed to close consensus entry rows")
		}
	}()
	var entries []*proof.ConsensusEntry
	for rows.Next() {
		var (
			epoch, seq            int64
			participants, sources string
			entry                 proof.ConsensusEntry
		)
		if err := rows.Scan(&epoch, &entry.StateHash, &entry.Price, &entry.Timestamp,
			&participants, &sources, &entry.HCSMessage, &entry.ConsensusTimestamp, &seq); err != nil {
			return nil, errors.Wrap(err, "could not scan consensus entry")
		}
		entry.Epoch = uint64(epoch)
		entry.SequenceNumber = uint64(seq)
		if err := json.Unmarshal([]byte(participants), &entry.Participants); err != nil {
			return nil, errors.Wrapf(err, "could not decode participants for epoch %d", epoch)
		}
		if err := json.Unmarshal([]byte(sources), &entry.Sources); err != nil {
			return nil, errors.Wrapf(err, "could not decode sources for epoch %d", epoch)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "could not load consensus entries")
	}
	return entries, nil
}
