package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/quartune/stellar-insights/replay"
)

// SQLiteStore is a SQLite-backed implementation of Store, suited to
// development, testing, and single-process deployments. It uses WAL mode
// for concurrent reads, per the teacher's graph/store.SQLiteStore.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and migrates its five replay tables into existence. path may be
// ":memory:" for a transient, process-local database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contract_events (
			id TEXT PRIMARY KEY,
			ledger_sequence INTEGER NOT NULL,
			transaction_hash TEXT NOT NULL,
			contract_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			data TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			network TEXT NOT NULL,
			UNIQUE(ledger_sequence, transaction_hash, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_range ON contract_events(ledger_sequence, id)`,
		`CREATE TABLE IF NOT EXISTS replay_sessions (
			session_id TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			checkpoint TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS replay_checkpoints (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			last_ledger INTEGER NOT NULL,
			events_processed INTEGER NOT NULL,
			events_failed INTEGER NOT NULL,
			state_snapshot TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON replay_checkpoints(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS replay_state (
			ledger INTEGER PRIMARY KEY,
			state_json TEXT NOT NULL,
			state_hash TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			ledger_sequence INTEGER NOT NULL,
			processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// Append implements EventStore.
func (s *SQLiteStore) Append(ctx context.Context, event replay.ContractEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contract_events (id, ledger_sequence, transaction_hash, contract_id, event_type, data, timestamp, network)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ledger_sequence, transaction_hash, event_type) DO NOTHING
	`, id, event.LedgerSequence, event.TransactionHash, event.ContractID, event.EventType, string(dataJSON), event.Timestamp, event.Network)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func filterClause(filter replay.EventFilter) (string, []any) {
	var clauses []string
	var args []any
	if len(filter.ContractIDs) > 0 {
		placeholders := make([]string, len(filter.ContractIDs))
		for i, id := range filter.ContractIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("contract_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		clauses = append(clauses, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Network != "" {
		clauses = append(clauses, "network = ?")
		args = append(args, filter.Network)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// GetRange implements EventStore.
func (s *SQLiteStore) GetRange(ctx context.Context, low, high uint64, filter replay.EventFilter, limit *int) ([]replay.ContractEvent, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf(`
		SELECT id, ledger_sequence, transaction_hash, contract_id, event_type, data, timestamp, network
		FROM contract_events
		WHERE ledger_sequence >= ? AND ledger_sequence <= ?%s
		ORDER BY ledger_sequence ASC, id ASC
	`, where)
	queryArgs := append([]any{low, high}, args...)
	if limit != nil {
		query += " LIMIT ?"
		queryArgs = append(queryArgs, *limit)
	}

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("get range: %w", err)
	}
	defer rows.Close()

	var events []replay.ContractEvent
	for rows.Next() {
		var e replay.ContractEvent
		var dataJSON string
		if err := rows.Scan(&e.ID, &e.LedgerSequence, &e.TransactionHash, &e.ContractID, &e.EventType, &dataJSON, &e.Timestamp, &e.Network); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountRange implements EventStore.
func (s *SQLiteStore) CountRange(ctx context.Context, low, high uint64, filter replay.EventFilter) (uint64, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM contract_events WHERE ledger_sequence >= ? AND ledger_sequence <= ?%s", where)
	queryArgs := append([]any{low, high}, args...)

	var count uint64
	if err := s.db.QueryRowContext(ctx, query, queryArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count range: %w", err)
	}
	return count, nil
}

// HighWaterMark implements EventStore.
func (s *SQLiteStore) HighWaterMark(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(ledger_sequence) FROM contract_events").Scan(&max); err != nil {
		return 0, fmt.Errorf("high water mark: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// Save implements CheckpointStore. Always an insert; checkpoint history
// is append-only.
func (s *SQLiteStore) Save(ctx context.Context, cp replay.Checkpoint) error {
	metaJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("marshal checkpoint metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO replay_checkpoints (id, session_id, last_ledger, events_processed, events_failed, state_snapshot, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.SessionID, cp.LastLedger, cp.EventsProcessed, cp.EventsFailed, string(cp.StateSnapshot), string(metaJSON), cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func scanCheckpoint(row interface {
	Scan(dest ...any) error
}) (*replay.Checkpoint, error) {
	var cp replay.Checkpoint
	var snapshot, metaJSON string
	if err := row.Scan(&cp.ID, &cp.SessionID, &cp.LastLedger, &cp.EventsProcessed, &cp.EventsFailed, &snapshot, &metaJSON, &cp.CreatedAt); err != nil {
		return nil, err
	}
	cp.StateSnapshot = []byte(snapshot)
	if err := json.Unmarshal([]byte(metaJSON), &cp.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint metadata: %w", err)
	}
	return &cp, nil
}

// LoadCheckpoint implements CheckpointStore.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, id string) (*replay.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, last_ledger, events_processed, events_failed, state_snapshot, metadata, created_at
		FROM replay_checkpoints WHERE id = ?
	`, id)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// Latest implements CheckpointStore.
func (s *SQLiteStore) Latest(ctx context.Context, sessionID string) (*replay.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, last_ledger, events_processed, events_failed, state_snapshot, metadata, created_at
		FROM replay_checkpoints WHERE session_id = ?
		ORDER BY created_at DESC, last_ledger DESC, id DESC
		LIMIT 1
	`, sessionID)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, nil
}

// CleanupOlderThan implements CheckpointStore.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, "DELETE FROM replay_checkpoints WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// Persist implements StateStore.
func (s *SQLiteStore) Persist(ctx context.Context, ledger uint64, stateJSON []byte, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_state (ledger, state_json, state_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ledger) DO UPDATE SET state_json = excluded.state_json, state_hash = excluded.state_hash, updated_at = excluded.updated_at
	`, ledger, string(stateJSON), hash, time.Now())
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Load implements StateStore.
func (s *SQLiteStore) Load(ctx context.Context, ledger uint64) ([]byte, string, error) {
	var stateJSON, hash string
	err := s.db.QueryRowContext(ctx, "SELECT state_json, state_hash FROM replay_state WHERE ledger = ?", ledger).Scan(&stateJSON, &hash)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load state: %w", err)
	}
	return []byte(stateJSON), hash, nil
}

// SaveMetadata implements SessionStore.
func (s *SQLiteStore) SaveMetadata(ctx context.Context, meta replay.ReplayMetadata) error {
	configJSON, err := json.Marshal(meta.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	statusJSON, err := replay.EncodeStatus(meta.Status)
	if err != nil {
		return fmt.Errorf("encode session status: %w", err)
	}
	var checkpointJSON []byte
	if meta.Checkpoint != nil {
		checkpointJSON, err = json.Marshal(meta.Checkpoint)
		if err != nil {
			return fmt.Errorf("marshal session checkpoint: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO replay_sessions (session_id, config, status, started_at, ended_at, checkpoint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status, ended_at = excluded.ended_at, checkpoint = excluded.checkpoint
	`, meta.SessionID, string(configJSON), string(statusJSON), meta.StartedAt, meta.EndedAt, string(checkpointJSON))
	if err != nil {
		return fmt.Errorf("save session metadata: %w", err)
	}
	return nil
}

// LoadMetadata implements SessionStore.
func (s *SQLiteStore) LoadMetadata(ctx context.Context, sessionID string) (*replay.ReplayMetadata, error) {
	var configJSON, statusJSON, checkpointJSON sql.NullString
	var meta replay.ReplayMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, config, status, started_at, ended_at, checkpoint
		FROM replay_sessions WHERE session_id = ?
	`, sessionID).Scan(&meta.SessionID, &configJSON, &statusJSON, &meta.StartedAt, &meta.EndedAt, &checkpointJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session metadata: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON.String), &meta.Config); err != nil {
		return nil, fmt.Errorf("unmarshal session config: %w", err)
	}
	status, err := replay.DecodeStatus([]byte(statusJSON.String))
	if err != nil {
		return nil, fmt.Errorf("decode session status: %w", err)
	}
	meta.Status = status
	if checkpointJSON.Valid && checkpointJSON.String != "" {
		var cp replay.Checkpoint
		if err := json.Unmarshal([]byte(checkpointJSON.String), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal session checkpoint: %w", err)
		}
		meta.Checkpoint = &cp
	}
	return &meta, nil
}

// IsProcessed implements ProcessedEventStore.
func (s *SQLiteStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM processed_events WHERE event_id = ?", eventID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed implements ProcessedEventStore.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, eventID string, ledgerSequence uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, ledger_sequence, processed_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, ledgerSequence, time.Now())
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// ProcessedIDs implements ProcessedEventStore.
func (s *SQLiteStore) ProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT event_id FROM processed_events")
	if err != nil {
		return nil, fmt.Errorf("processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

// ProcessedIDsUpTo implements ProcessedEventStore.
func (s *SQLiteStore) ProcessedIDsUpTo(ctx context.Context, ledger uint64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT event_id FROM processed_events WHERE ledger_sequence <= ?", ledger)
	if err != nil {
		return nil, fmt.Errorf("processed ids up to %d: %w", ledger, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}
