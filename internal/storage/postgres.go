// Package storage holds the document registry backends. This file is the
// PostgreSQL backend used when RESOLVER_REGISTRY_BACKEND=postgres.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// queryTimeout bounds every single-statement database operation.
const queryTimeout = 10 * time.Second

// Postgres is a Store backed by PostgreSQL. Documents and metadata are stored
// as JSONB.
type Postgres struct {
	db *sql.DB // shared connection pool
}

// NewPostgres opens a connection pool for dsn, verifies connectivity and
// applies the schema migrations.
//
// Pool sizing:
//   - at most 25 open and 5 idle connections
//   - connections are recycled after 5 minutes, idle or not
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(25)                 // upper bound on concurrent queries
	db.SetMaxIdleConns(5)                  // warm connections kept between bursts
	db.SetConnMaxLifetime(5 * time.Minute) // recycle long-lived connections
	db.SetConnMaxIdleTime(5 * time.Minute) // drop connections idle this long

	// Fail fast on an unreachable database rather than on the first request
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// The schema is created or upgraded before the store is handed out
	if err := MigratePostgres(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// DB returns the underlying connection pool, used by readiness checks.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateDocument inserts a new record. A DID that already exists yields
// ErrConflict.
func (p *Postgres) CreateDocument(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Document and metadata are stored as JSONB columns
	docBytes, metaBytes, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	const q = `INSERT INTO did_documents (did, document, metadata, updated_at) VALUES ($1, $2, $3, now())`
	if _, err := p.db.ExecContext(ctx, q, rec.DID, docBytes, metaBytes); err != nil {
		// Duplicate primary key means the DID is taken
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument loads the record for did, or ErrNotFound.
func (p *Postgres) GetDocument(ctx context.Context, did string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `SELECT did, document, metadata FROM did_documents WHERE did = $1`
	var rec Record
	var docBytes, metaBytes []byte
	err := p.db.QueryRowContext(ctx, q, did).Scan(&rec.DID, &docBytes, &metaBytes)
	if err != nil {
		// No row means the DID was never registered
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("query document: %w", err)
	}
	// Decode the JSONB columns back into their typed forms
	if err := json.Unmarshal(docBytes, &rec.Document); err != nil {
		return Record{}, fmt.Errorf("unmarshal document: %w", err)
	}
	if err := json.Unmarshal(metaBytes, &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return rec, nil
}

// UpdateDocument replaces the document and metadata of an existing record,
// or returns ErrNotFound.
func (p *Postgres) UpdateDocument(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	docBytes, metaBytes, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	const q = `UPDATE did_documents SET document = $1, metadata = $2, updated_at = now() WHERE did = $3`
	res, err := p.db.ExecContext(ctx, q, docBytes, metaBytes, rec.DID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	// Zero rows affected means there was nothing to update
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalRecord encodes the JSONB column values of rec.
func marshalRecord(rec Record) ([]byte, []byte, error) {
	docBytes, err := json.Marshal(rec.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal document: %w", err)
	}
	metaBytes, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return docBytes, metaBytes, nil
}
