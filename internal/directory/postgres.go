package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// HasRoleRecord probes principal_directory for an existence-check record.
func (r *PostgresRepository) HasRoleRecord(ctx context.Context, role, principalID string) (bool, error) {
	query := `
		SELECT 1
		FROM principal_directory
		WHERE role = $1 AND principal_id = $2`

	var one int
	err := r.pool.QueryRow(ctx, query, role, principalID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing %s record: %w", role, err)
	}
	return true, nil
}

// AdminAllowlist returns the flat list of admin emails.
func (r *PostgresRepository) AdminAllowlist(ctx context.Context) ([]string, error) {
	return r.allowlist(ctx, "admin_allowlist")
}

// SuperAdminAllowlist returns the flat list of super-admin emails.
func (r *PostgresRepository) SuperAdminAllowlist(ctx context.Context) ([]string, error) {
	return r.allowlist(ctx, "super_admin_allowlist")
}

func (r *PostgresRepository) allowlist(ctx context.Context, table string) ([]string, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT email FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}
	return emails, nil
}

// StartSession replaces the current session row and archives the previous
// one inside a single transaction.
func (r *PostgresRepository) StartSession(ctx context.Context, principalID string, sessionID uuid.UUID, startedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Write-once archival of the superseded session. ON CONFLICT DO
	// NOTHING keeps a replayed archive from overwriting the original.
	archive := `
		INSERT INTO session_archive (principal_id, session_id, started_at, archived_at)
		SELECT principal_id, session_id, started_at, $2
		FROM session_current
		WHERE principal_id = $1
		ON CONFLICT (principal_id, session_id) DO NOTHING`
	if _, err := tx.Exec(ctx, archive, principalID, startedAt); err != nil {
		return fmt.Errorf("archiving previous session: %w", err)
	}

	current := `
		INSERT INTO session_current (principal_id, session_id, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id) DO UPDATE
		SET session_id = EXCLUDED.session_id, started_at = EXCLUDED.started_at`
	if _, err := tx.Exec(ctx, current, principalID, sessionID, startedAt); err != nil {
		return fmt.Errorf("recording current session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing session transaction: %w", err)
	}
	return nil
}

// AppendActivity bulk-inserts flushed activity events for a session.
func (r *PostgresRepository) AppendActivity(ctx context.Context, principalID string, sessionID uuid.UUID, events []ActivityRecord) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO session_activity (principal_id, session_id, occurred_at, event_type, context_data)
		VALUES ($1, $2, $3, $4, $5)`
	for _, ev := range events {
		batch.Queue(query, principalID, sessionID, ev.Timestamp, ev.Type, ev.ContextData)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("appending activity events: %w", err)
		}
	}
	return nil
}
