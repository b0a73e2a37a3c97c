// Package session implements the durable, queryable session store: one
// SQLite-backed table keyed by session_id, carrying the manifest plus the
// completed/failed shard sets that make resume safe across restarts.
package session

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	file_id          TEXT NOT NULL,
	manifest         BLOB NOT NULL,
	completed_chunks BLOB NOT NULL,
	failed_chunks    BLOB NOT NULL,
	status_kind      TEXT NOT NULL,
	status_reason    TEXT,
	receiver_addr    TEXT,
	file_path        TEXT,
	bytes_completed  INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status_kind);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// Store is a durable, queryable session store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) a SQLite database at dsn and ensures the
// sessions table and its indexes exist. dsn ":memory:" is the in-memory
// variant acceptable for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: errors.WithStack(err)}
	}
	// SQLite only tolerates one writer at a time; serialize everything
	// through a single connection rather than fighting its locking model.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, &DatabaseError{Op: "ping", Err: errors.WithStack(err)}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, &DatabaseError{Op: "migrate", Err: errors.WithStack(err)}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save upserts a full record.
func (s *Store) Save(rec *Record) error {
	manifestJSON, err := json.Marshal(rec.Manifest)
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}
	completedJSON, err := json.Marshal(sortedKeys(rec.Completed))
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}
	failedJSON, err := json.Marshal(sortedKeys(rec.Failed))
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}

	rec.UpdatedAt = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO sessions (
			session_id, file_id, manifest, completed_chunks, failed_chunks,
			status_kind, status_reason, receiver_addr, file_path,
			bytes_completed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			file_id=excluded.file_id,
			manifest=excluded.manifest,
			completed_chunks=excluded.completed_chunks,
			failed_chunks=excluded.failed_chunks,
			status_kind=excluded.status_kind,
			status_reason=excluded.status_reason,
			receiver_addr=excluded.receiver_addr,
			file_path=excluded.file_path,
			bytes_completed=excluded.bytes_completed,
			updated_at=excluded.updated_at
	`,
		rec.SessionID, rec.FileID, manifestJSON, completedJSON, failedJSON,
		string(rec.Status.Kind), nullableString(rec.Status.Reason),
		nullableString(rec.ReceiverAddr), nullableString(rec.FilePath),
		rec.BytesCompleted, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return &DatabaseError{Op: "save", Err: errors.WithStack(err)}
	}
	return nil
}

// Load fetches one session by id.
func (s *Store) Load(id string) (*Record, error) {
	return s.loadTx(s.db, id)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) loadTx(q querier, id string) (*Record, error) {
	row := q.QueryRow(`
		SELECT session_id, file_id, manifest, completed_chunks, failed_chunks,
		       status_kind, status_reason, receiver_addr, file_path,
		       bytes_completed, created_at, updated_at
		FROM sessions WHERE session_id = ?`, id)

	var (
		manifestJSON, completedJSON, failedJSON []byte
		statusReason, receiverAddr, filePath    sql.NullString
		createdAt, updatedAt                    int64
		rec                                     Record
	)
	err := row.Scan(
		&rec.SessionID, &rec.FileID, &manifestJSON, &completedJSON, &failedJSON,
		&rec.Status.Kind, &statusReason, &receiverAddr, &filePath,
		&rec.BytesCompleted, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, &DatabaseError{Op: "load", Err: errors.WithStack(err)}
	}

	rec.Status.Reason = statusReason.String
	rec.ReceiverAddr = receiverAddr.String
	rec.FilePath = filePath.String
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	if err := json.Unmarshal(manifestJSON, &rec.Manifest); err != nil {
		return nil, &SerializationError{Op: "load", Err: errors.WithStack(err)}
	}
	completedSlice, failedSlice, err := unmarshalSets(completedJSON, failedJSON)
	if err != nil {
		return nil, err
	}
	rec.Completed = completedSlice
	rec.Failed = failedSlice

	return &rec, nil
}

func unmarshalSets(completedJSON, failedJSON []byte) (map[uint32]struct{}, map[uint32]struct{}, error) {
	var completedList, failedList []uint32
	if err := json.Unmarshal(completedJSON, &completedList); err != nil {
		return nil, nil, &SerializationError{Op: "load", Err: errors.WithStack(err)}
	}
	if err := json.Unmarshal(failedJSON, &failedList); err != nil {
		return nil, nil, &SerializationError{Op: "load", Err: errors.WithStack(err)}
	}
	return toSet(completedList), toSet(failedList), nil
}

// MarkChunkCompleted records seq as completed for session id, crediting
// bytesLen to the byte counter. Idempotent: applying it twice for the same
// (id, seq) leaves state identical to applying it once. When the completed
// set reaches the manifest's data-shard count and status is not yet
// Completed, status is upgraded atomically in the same transaction -- the
// single place "done-ness" is decided, so a crash right after this call
// still resumes as Completed.
func (s *Store) MarkChunkCompleted(id string, seq uint32, bytesLen uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &DatabaseError{Op: "mark_chunk_completed", Err: errors.WithStack(err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after a successful Commit

	rec, err := s.loadTx(tx, id)
	if err != nil {
		return err
	}

	if _, already := rec.Completed[seq]; already {
		return nil
	}

	rec.Completed[seq] = struct{}{}
	delete(rec.Failed, seq)
	rec.BytesCompleted += bytesLen

	if rec.Status.Kind != StatusCompleted && rec.Manifest != nil &&
		uint32(len(rec.Completed)) >= rec.Manifest.DataShards {
		rec.Status = Status{Kind: StatusCompleted}
	}

	if err := s.saveTx(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &DatabaseError{Op: "mark_chunk_completed", Err: errors.WithStack(err)}
	}
	return nil
}

// MarkChunkFailed records seq as (repeatedly) failed for session id.
func (s *Store) MarkChunkFailed(id string, seq uint32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &DatabaseError{Op: "mark_chunk_failed", Err: errors.WithStack(err)}
	}
	defer tx.Rollback() //nolint:errcheck

	rec, err := s.loadTx(tx, id)
	if err != nil {
		return err
	}
	if _, completed := rec.Completed[seq]; !completed {
		rec.Failed[seq] = struct{}{}
	}

	if err := s.saveTx(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &DatabaseError{Op: "mark_chunk_failed", Err: errors.WithStack(err)}
	}
	return nil
}

// UpdateStatus overwrites a session's status.
func (s *Store) UpdateStatus(id string, status Status) error {
	res, err := s.db.Exec(`UPDATE sessions SET status_kind = ?, status_reason = ?, updated_at = ? WHERE session_id = ?`,
		string(status.Kind), nullableString(status.Reason), time.Now().Unix(), id)
	if err != nil {
		return &DatabaseError{Op: "update_status", Err: errors.WithStack(err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &DatabaseError{Op: "update_status", Err: errors.WithStack(err)}
	}
	if n == 0 {
		return &NotFoundError{SessionID: id}
	}
	return nil
}

// GetResumeInfo loads the subset of state needed to restart a transfer.
func (s *Store) GetResumeInfo(id string) (*ResumeInfo, error) {
	rec, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	return &ResumeInfo{
		SessionID:    rec.SessionID,
		FileID:       rec.FileID,
		Manifest:     rec.Manifest,
		Completed:    rec.Completed,
		FilePath:     rec.FilePath,
		ReceiverAddr: rec.ReceiverAddr,
		CanResume:    CanResume(rec.Status),
	}, nil
}

// ListAll returns every session, most recently updated first.
func (s *Store) ListAll() ([]*Record, error) {
	return s.listWhere("1=1")
}

// ListByStatus returns every session with the given status kind.
func (s *Store) ListByStatus(kind StatusKind) ([]*Record, error) {
	ids, err := s.idsWhere(`status_kind = ?`, string(kind))
	if err != nil {
		return nil, err
	}
	return s.loadAll(ids)
}

func (s *Store) listWhere(where string, args ...any) ([]*Record, error) {
	ids, err := s.idsWhere(where, args...)
	if err != nil {
		return nil, err
	}
	return s.loadAll(ids)
}

func (s *Store) idsWhere(where string, args ...any) ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM sessions WHERE `+where+` ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "list", Err: errors.WithStack(err)}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &DatabaseError{Op: "list", Err: errors.WithStack(err)}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadAll(ids []string) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a session permanently.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return &DatabaseError{Op: "delete", Err: errors.WithStack(err)}
	}
	return nil
}

// CleanupOld deletes every session whose updated_at is older than the
// given number of days, returning how many rows were removed.
func (s *Store) CleanupOld(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, &DatabaseError{Op: "cleanup_old", Err: errors.WithStack(err)}
	}
	return res.RowsAffected()
}

// Exists reports whether a session_id is present.
func (s *Store) Exists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE session_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &DatabaseError{Op: "exists", Err: errors.WithStack(err)}
	}
	return true, nil
}

// Count returns the total number of stored sessions.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, &DatabaseError{Op: "count", Err: errors.WithStack(err)}
	}
	return n, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) saveTx(tx execer, rec *Record) error {
	manifestJSON, err := json.Marshal(rec.Manifest)
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}
	completedJSON, err := json.Marshal(sortedKeys(rec.Completed))
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}
	failedJSON, err := json.Marshal(sortedKeys(rec.Failed))
	if err != nil {
		return &SerializationError{Op: "save", Err: errors.WithStack(err)}
	}
	rec.UpdatedAt = time.Now()

	_, err = tx.Exec(`
		UPDATE sessions SET
			file_id = ?, manifest = ?, completed_chunks = ?, failed_chunks = ?,
			status_kind = ?, status_reason = ?, receiver_addr = ?, file_path = ?,
			bytes_completed = ?, updated_at = ?
		WHERE session_id = ?`,
		rec.FileID, manifestJSON, completedJSON, failedJSON,
		string(rec.Status.Kind), nullableString(rec.Status.Reason),
		nullableString(rec.ReceiverAddr), nullableString(rec.FilePath),
		rec.BytesCompleted, rec.UpdatedAt.Unix(), rec.SessionID,
	)
	if err != nil {
		return &DatabaseError{Op: "save", Err: errors.WithStack(err)}
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedKeys(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toSet(list []uint32) map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

