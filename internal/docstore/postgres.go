package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ChangeChannel is the Postgres NOTIFY channel raised by the documents trigger.
const ChangeChannel = "document_changes"

// PostgresStore keeps documents in a single JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an existing pool. The documents
// table is created by db.RunMigrations.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}

	var doc Document
	err := s.pool.QueryRow(ctx, `
		SELECT path, doc_id, data, version, seq, created_at, updated_at
		FROM documents
		WHERE path = $1
	`, path).Scan(
		&doc.Path,
		&doc.ID,
		&doc.Data,
		&doc.Version,
		&doc.Seq,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

func (s *PostgresStore) Put(ctx context.Context, path string, doc any, opts ...PutOption) error {
	collection, id, err := Split(path)
	if err != nil {
		return err
	}
	data, err := encodeObject(doc)
	if err != nil {
		return err
	}
	o := applyPutOptions(opts)

	switch {
	case o.checkVer && o.ifVersion == 0:
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO documents (path, collection, doc_id, data)
			VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (path) DO NOTHING
		`, path, collection, id, string(data))
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil

	case o.checkVer:
		tag, err := s.pool.Exec(ctx, `
			UPDATE documents
			SET data = CASE WHEN $4 THEN data || $3::jsonb ELSE $3::jsonb END,
			    version = version + 1,
			    updated_at = NOW()
			WHERE path = $1 AND version = $2
		`, path, o.ifVersion, string(data), o.merge)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	}

	query := `
		INSERT INTO documents (path, collection, doc_id, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
	`
	if o.merge {
		query = `
			INSERT INTO documents (path, collection, doc_id, data)
			VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (path) DO UPDATE
			SET data = documents.data || EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
		`
	}

	if _, err := s.pool.Exec(ctx, query, path, collection, id, string(data)); err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter := []byte("{}")
	if len(q.Where) > 0 {
		b, err := json.Marshal(q.Where)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}
		filter = b
	}

	sql, args := listStatement(collection, string(filter), q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.Path,
			&doc.ID,
			&doc.Data,
			&doc.Version,
			&doc.Seq,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return applyQuery(docs, q), nil
}

const listSQL = `
		SELECT path, doc_id, data, version, seq, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY seq ASC`

// listStatement builds the List query. Without OrderBy the result order is
// insertion order, so the limit can run in the database; field orderings are
// sorted in memory and must see every matching row.
func listStatement(collection, filter string, q Query) (string, []any) {
	args := []any{collection, filter}
	if q.OrderBy != "" || q.Limit <= 0 {
		return listSQL, args
	}
	return listSQL + "\n\t\tLIMIT $3", append(args, q.Limit)
}

// Watch holds a dedicated connection listening on ChangeChannel and re-runs
// the query whenever the collection changes.
func (s *PostgresStore) Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}

	initial, err := s.List(ctx, collection, q)
	if err != nil {
		conn.Release()
		return nil, err
	}

	ch := make(chan []Document, 1)
	ch <- initial

	go func() {
		defer close(ch)
		defer func() {
			if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
				log.Warn().Err(err).Msg("Failed to unlisten document changes")
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("collection", collection).Msg("Document watch stopped")
				}
				return
			}
			if n.Payload != collection {
				continue
			}

			snapshot, err := s.List(ctx, collection, q)
			if err != nil {
				log.Warn().Err(err).Str("collection", collection).Msg("Failed to refresh watched collection")
				continue
			}

			select {
			case ch <- snapshot:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- snapshot
			}
		}
	}()

	return ch, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
