package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ArchiveRepository persists completed-operation records and serves the
// per-subject history listing.
type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS archive_records (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archive_records_subject ON archive_records(subject_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save is idempotent on record id so queue redeliveries do not duplicate
// history rows.
func (r *ArchiveRepository) Save(ctx context.Context, record domain.ArchiveRecord) error {
	payload := record.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO archive_records (id, subject_id, kind, title, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`,
		record.ID, record.SubjectID, string(record.Kind), record.Title, []byte(payload), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archive record: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.ArchiveRecord, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, subject_id, kind, title, payload, created_at
FROM archive_records
WHERE subject_id = $1
ORDER BY created_at DESC
LIMIT $2
`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive records: %w", err)
	}
	defer rows.Close()

	var records []domain.ArchiveRecord
	for rows.Next() {
		var record domain.ArchiveRecord
		var kind string
		var payload []byte
		if err := rows.Scan(&record.ID, &record.SubjectID, &kind, &record.Title, &payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		record.Kind = domain.ArchiveKind(kind)
		record.Payload = payload
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive records: %w", err)
	}
	return records, nil
}
