package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashplayer/backend/internal/db"
)

const (
	updateMaxRetries  = 3
	updateBaseBackoff = 50 * time.Millisecond
	updateMaxBackoff  = time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Postgres stores documents as JSONB rows in the documents table.
type Postgres struct {
	pool db.Pool
}

// NewPostgres constructs a document store backed by PostgreSQL.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, collection, id string, dst any) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var body []byte
	err = conn.QueryRow(ctx, `
        SELECT data FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("select document %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, collection, id string, doc any) error {
	obj, err := toObject(doc)
	if err != nil {
		return err
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3)
    `, collection, id, body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("insert document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := p.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return p.mutateWithRetry(ctx, collection, id, false, updates)
}

func (p *Postgres) Upsert(ctx context.Context, collection, id string, updates ...Update) error {
	return p.mutateWithRetry(ctx, collection, id, true, updates)
}

func (p *Postgres) mutateWithRetry(ctx context.Context, collection, id string, create bool, updates []Update) error {
	if err := validateUpdates(updates); err != nil {
		return err
	}

	var attempt int
	for attempt = 0; attempt < updateMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * updateBaseBackoff
			if backoff > updateMaxBackoff {
				backoff = updateMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := p.mutate(ctx, collection, id, create, updates)
		if err == nil || !shouldRetry(err) {
			return err
		}
	}
	return fmt.Errorf("update document %s/%s: exceeded max retries (%d)", collection, id, attempt)
}

func (p *Postgres) mutate(ctx context.Context, collection, id string, create bool, updates []Update) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update of %s/%s: %w", collection, id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if create {
		if _, err := tx.Exec(ctx, `
            INSERT INTO documents (collection, id, data)
            VALUES ($1, $2, '{}'::jsonb)
            ON CONFLICT (collection, id) DO NOTHING
        `, collection, id); err != nil {
			return fmt.Errorf("ensure document %s/%s: %w", collection, id, err)
		}
	}

	var body []byte
	err = tx.QueryRow(ctx, `
        SELECT data FROM documents
        WHERE collection = $1 AND id = $2
        FOR UPDATE
    `, collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock document %s/%s: %w", collection, id, err)
	}

	obj := map[string]any{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if err := applyUpdates(obj, updates); err != nil {
		return err
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	if _, err := tx.Exec(ctx, `
        UPDATE documents
        SET data = $3, updated_at = NOW()
        WHERE collection = $1 AND id = $2
    `, collection, id, encoded); err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update of %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, data FROM documents
        WHERE collection = $1 AND data -> $2::text = $3::jsonb
        ORDER BY id
    `, collection, field, want)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		out = append(out, jsonSnapshot(id, body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", collection, err)
	}
	return out, nil
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}

var _ Store = (*Postgres)(nil)
