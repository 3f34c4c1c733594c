package localstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"time"

	"github.com/teranos/docsync/errors"
	"github.com/teranos/docsync/remotestore"
)

const (
	metaKeyLastStreamToken           = "last_stream_token"
	metaKeyLastRemoteSnapshotVersion = "last_remote_snapshot_version"
)

// Store implements remotestore.LocalStore against a *sql.DB produced by
// Open. It owns no connection lifecycle of its own: callers open and close
// the *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps db as a remotestore.LocalStore.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ remotestore.LocalStore = (*Store)(nil)

// EnqueueMutationBatch persists a locally originated batch so a later
// NextMutationBatchAfter call can hand it to the write stream. Mutation
// sources (outside this package) call this as part of the local write path;
// it is not part of the remotestore.LocalStore contract itself.
func (s *Store) EnqueueMutationBatch(ctx context.Context, batch remotestore.MutationBatch) error {
	payload, err := encodeMutations(batch.Mutations)
	if err != nil {
		return errors.Wrap(err, "encode mutation batch")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mutation_batches (batch_id, mutations, created_at) VALUES (?, ?, ?)`,
		batch.BatchID, payload, time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert mutation batch %d", batch.BatchID)
	}
	return nil
}

// NextMutationBatchAfter returns the oldest queued batch with BatchID >
// after, or nil if the queue holds nothing newer.
func (s *Store) NextMutationBatchAfter(ctx context.Context, after int64) (*remotestore.MutationBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, mutations FROM mutation_batches WHERE batch_id > ? ORDER BY batch_id ASC LIMIT 1`,
		after,
	)
	var batchID int64
	var payload []byte
	if err := row.Scan(&batchID, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "query next mutation batch after %d", after)
	}

	mutations, err := decodeMutations(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decode mutation batch %d", batchID)
	}
	return &remotestore.MutationBatch{BatchID: batchID, Mutations: mutations}, nil
}

// RemoveMutationBatch drops a batch once its commit has been durably
// applied locally. Called by the sync engine via its own local-store
// wiring, not by remotestore directly.
func (s *Store) RemoveMutationBatch(ctx context.Context, batchID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutation_batches WHERE batch_id = ?`, batchID)
	if err != nil {
		return errors.Wrapf(err, "delete mutation batch %d", batchID)
	}
	return nil
}

func (s *Store) LastStreamToken(ctx context.Context) ([]byte, error) {
	return s.getMeta(ctx, metaKeyLastStreamToken)
}

func (s *Store) SetLastStreamToken(ctx context.Context, token []byte) error {
	return s.setMeta(ctx, metaKeyLastStreamToken, token)
}

func (s *Store) LastRemoteSnapshotVersion(ctx context.Context) (remotestore.SnapshotVersion, error) {
	raw, err := s.getMeta(ctx, metaKeyLastRemoteSnapshotVersion)
	if err != nil {
		return remotestore.NoSnapshotVersion, err
	}
	if len(raw) == 0 {
		return remotestore.NoSnapshotVersion, nil
	}
	var v int64
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return remotestore.NoSnapshotVersion, errors.Wrap(err, "decode last remote snapshot version")
	}
	return remotestore.SnapshotVersion(v), nil
}

// SetLastRemoteSnapshotVersion persists the snapshot version folded into
// the most recent applied RemoteEvent. Called by the sync engine, not by
// remotestore directly.
func (s *Store) SetLastRemoteSnapshotVersion(ctx context.Context, version remotestore.SnapshotVersion) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(int64(version)); err != nil {
		return errors.Wrap(err, "encode last remote snapshot version")
	}
	return s.setMeta(ctx, metaKeyLastRemoteSnapshotVersion, buf.Bytes())
}

func (s *Store) getMeta(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM stream_meta WHERE key = ?`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "query meta %s", key)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert meta %s", key)
	}
	return nil
}

func encodeMutations(mutations []remotestore.Mutation) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(mutations); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMutations(payload []byte) ([]remotestore.Mutation, error) {
	var mutations []remotestore.Mutation
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&mutations); err != nil {
		return nil, err
	}
	return mutations, nil
}
