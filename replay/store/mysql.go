package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/quartune/stellar-insights/replay"
)

// MySQLStore is a MySQL-backed implementation of Store, suited to
// multi-process deployments sharing one replay log. Schema and query
// shape mirror SQLiteStore; only the dialect-specific upsert and DDL
// syntax differ.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn (a
// github.com/go-sql-driver/mysql data source name) and migrates the
// replay schema into existence.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(time.Hour)

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contract_events (
			id VARCHAR(64) PRIMARY KEY,
			ledger_sequence BIGINT UNSIGNED NOT NULL,
			transaction_hash VARCHAR(128) NOT NULL,
			contract_id VARCHAR(128) NOT NULL,
			event_type VARCHAR(128) NOT NULL,
			data LONGTEXT NOT NULL,
			timestamp DATETIME(6) NOT NULL,
			network VARCHAR(32) NOT NULL,
			UNIQUE KEY uq_dedup (ledger_sequence, transaction_hash, event_type),
			KEY idx_events_range (ledger_sequence, id)
		)`,
		`CREATE TABLE IF NOT EXISTS replay_sessions (
			session_id VARCHAR(64) PRIMARY KEY,
			config LONGTEXT NOT NULL,
			status LONGTEXT NOT NULL,
			started_at DATETIME(6) NOT NULL,
			ended_at DATETIME(6) NULL,
			checkpoint LONGTEXT
		)`,
		`CREATE TABLE IF NOT EXISTS replay_checkpoints (
			id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			last_ledger BIGINT UNSIGNED NOT NULL,
			events_processed BIGINT UNSIGNED NOT NULL,
			events_failed BIGINT UNSIGNED NOT NULL,
			state_snapshot LONGTEXT NOT NULL,
			metadata LONGTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			KEY idx_checkpoints_session (session_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS replay_state (
			ledger BIGINT UNSIGNED PRIMARY KEY,
			state_json LONGTEXT NOT NULL,
			state_hash VARCHAR(64) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id VARCHAR(64) PRIMARY KEY,
			ledger_sequence BIGINT UNSIGNED NOT NULL,
			processed_at DATETIME(6) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// Append implements EventStore.
func (s *MySQLStore) Append(ctx context.Context, event replay.ContractEvent) error {
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
		ON DUPLICATE KEY UPDATE id = id
	`, id, event.LedgerSequence, event.TransactionHash, event.ContractID, event.EventType, string(dataJSON), event.Timestamp, event.Network)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetRange implements EventStore.
func (s *MySQLStore) GetRange(ctx context.Context, low, high uint64, filter replay.EventFilter, limit *int) ([]replay.ContractEvent, error) {
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
func (s *MySQLStore) CountRange(ctx context.Context, low, high uint64, filter replay.EventFilter) (uint64, error) {
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
func (s *MySQLStore) HighWaterMark(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(ledger_sequence) FROM contract_events").Scan(&max); err != nil {
		return 0, fmt.Errorf("high water mark: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// Save implements CheckpointStore.
func (s *MySQLStore) Save(ctx context.Context, cp replay.Checkpoint) error {
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

// LoadCheckpoint implements CheckpointStore.
func (s *MySQLStore) LoadCheckpoint(ctx context.Context, id string) (*replay.Checkpoint, error) {
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
func (s *MySQLStore) Latest(ctx context.Context, sessionID string) (*replay.Checkpoint, error) {
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
func (s *MySQLStore) CleanupOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, "DELETE FROM replay_checkpoints WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// Persist implements StateStore.
func (s *MySQLStore) Persist(ctx context.Context, ledger uint64, stateJSON []byte, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_state (ledger, state_json, state_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), state_hash = VALUES(state_hash), updated_at = VALUES(updated_at)
	`, ledger, string(stateJSON), hash, time.Now())
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Load implements StateStore.
func (s *MySQLStore) Load(ctx context.Context, ledger uint64) ([]byte, string, error) {
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
func (s *MySQLStore) SaveMetadata(ctx context.Context, meta replay.ReplayMetadata) error {
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
		ON DUPLICATE KEY UPDATE status = VALUES(status), ended_at = VALUES(ended_at), checkpoint = VALUES(checkpoint)
	`, meta.SessionID, string(configJSON), string(statusJSON), meta.StartedAt, meta.EndedAt, string(checkpointJSON))
	if err != nil {
		return fmt.Errorf("save session metadata: %w", err)
	}
	return nil
}

// LoadMetadata implements SessionStore.
func (s *MySQLStore) LoadMetadata(ctx context.Context, sessionID string) (*replay.ReplayMetadata, error) {
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
func (s *MySQLStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
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
func (s *MySQLStore) MarkProcessed(ctx context.Context, eventID string, ledgerSequence uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, ledger_sequence, processed_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE event_id = event_id
	`, eventID, ledgerSequence, time.Now())
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// ProcessedIDs implements ProcessedEventStore.
func (s *MySQLStore) ProcessedIDs(ctx context.Context) ([]string, error) {
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
func (s *MySQLStore) ProcessedIDsUpTo(ctx context.Context, ledger uint64) ([]string, error) {
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
