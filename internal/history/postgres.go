package history

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Schema creates the gpu_usage table, one row per GPU per snapshot.
const Schema = `
CREATE TABLE IF NOT EXISTS gpu_usage (
  snapshot_id      TEXT             NOT NULL,
  ts               TIMESTAMPTZ      NOT NULL,
  gpu_id           INTEGER          NOT NULL,
  pod_name         TEXT             NOT NULL,
  namespace        TEXT             NOT NULL,
  node_name        TEXT             NOT NULL,
  username         TEXT             NOT NULL,
  cpu_requested    INTEGER          NOT NULL,
  memory_requested INTEGER          NOT NULL,
  gpu_name         TEXT             NOT NULL,
  memory_used      DOUBLE PRECISION NOT NULL,
  memory_total     DOUBLE PRECISION NOT NULL,
  gpu_mem_used     DOUBLE PRECISION NOT NULL,
  inactive         BOOLEAN          NOT NULL,
  PRIMARY KEY (snapshot_id, gpu_id)
)`

const insertStmt = `
INSERT INTO gpu_usage (
  snapshot_id, ts, gpu_id, pod_name, namespace, node_name, username,
  cpu_requested, memory_requested, gpu_name, memory_used, memory_total,
  gpu_mem_used, inactive
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`

const selectStmt = `
SELECT
  snapshot_id, ts, pod_name, namespace, node_name, username,
  cpu_requested, memory_requested, gpu_name, memory_used, memory_total,
  gpu_mem_used, inactive
FROM gpu_usage
ORDER BY ts, snapshot_id, gpu_id
`

// PostgresStore keeps snapshots in the gpu_usage table. A snapshot with no
// GPUs stores no rows and is not returned by Load.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn through the pgx driver and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the gpu_usage table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres store: create schema: %w", err)
	}
	return nil
}

// Append inserts every GPU of snapshot in one transaction. Entries are
// stored under their position so Load returns them in the same order.
func (s *PostgresStore) Append(ctx context.Context, snapshot model.HistorySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	for i, e := range snapshot.GPUs {
		_, err := tx.ExecContext(ctx, insertStmt,
			snapshot.ID,
			snapshot.Timestamp,
			i,
			e.PodName,
			e.Namespace,
			e.NodeName,
			e.Username,
			e.CPURequested,
			e.MemoryRequested,
			e.GPUName,
			e.MemoryUsed,
			e.MemoryTotal,
			e.GPUMemUsed,
			e.Inactive,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres store: insert gpu_usage: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Load returns all snapshots ordered by timestamp.
func (s *PostgresStore) Load(ctx context.Context) ([]model.HistorySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectStmt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query gpu_usage: %w", err)
	}
	defer rows.Close()

	var out []model.HistorySnapshot
	for rows.Next() {
		var (
			id    string
			snap  model.HistorySnapshot
			entry model.HistoryEntry
		)
		if err := rows.Scan(
			&id,
			&snap.Timestamp,
			&entry.PodName,
			&entry.Namespace,
			&entry.NodeName,
			&entry.Username,
			&entry.CPURequested,
			&entry.MemoryRequested,
			&entry.GPUName,
			&entry.MemoryUsed,
			&entry.MemoryTotal,
			&entry.GPUMemUsed,
			&entry.Inactive,
		); err != nil {
			return nil, fmt.Errorf("postgres store: scan row: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			snap.ID = id
			out = append(out, snap)
		}
		last := &out[len(out)-1]
		last.GPUs = append(last.GPUs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows error: %w", err)
	}
	return AddGPUIDs(out), nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
