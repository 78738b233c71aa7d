package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lab_analyses (
	id           TEXT PRIMARY KEY,
	demande_id   TEXT NOT NULL,
	type_bilan   TEXT NOT NULL DEFAULT '',
	danger_level TEXT NOT NULL,
	danger_score INTEGER NOT NULL,
	record       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lab_analyses_demande_idx ON lab_analyses (demande_id, id);
`

// PostgresStore implements Store on a single lab_analyses table. The full
// record is kept as JSONB; the columns beside it exist for filtering.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store on an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, record *AnalysisRecord) error {
	prepareRecord(record, time.Now())

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `
		INSERT INTO lab_analyses (id, demande_id, type_bilan, danger_level, danger_score, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.pool.Exec(ctx, query,
		record.ID, record.DemandeID, record.TypeBilan,
		record.Result.DangerLevel.String(), record.Result.DangerScore,
		payload, record.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("analysis %s already exists", record.ID)
		}
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM lab_analyses WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return decodeRecord(payload)
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, demandeID string, pageSize int32, pageToken string) ([]*AnalysisRecord, string, error) {
	pageSize = normalizePageSize(pageSize)
	cursor, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", fmt.Errorf("invalid page token: %w", err)
	}

	query := `
		SELECT record FROM lab_analyses
		WHERE ($1 = '' OR demande_id = $1) AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, demandeID, cursor, pageSize+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list analyses: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, "", fmt.Errorf("failed to list analyses: %w", err)
	}

	more := len(payloads) > int(pageSize)
	if more {
		payloads = payloads[:pageSize]
	}
	records := make([]*AnalysisRecord, 0, len(payloads))
	for _, p := range payloads {
		record, err := decodeRecord(p)
		if err != nil {
			return nil, "", err
		}
		records = append(records, record)
	}

	var nextPageToken string
	if more {
		nextPageToken = EncodePageToken(records[len(records)-1].ID)
	}
	return records, nextPageToken, nil
}

func decodeRecord(payload []byte) (*AnalysisRecord, error) {
	var record AnalysisRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &record, nil
}
