// Package store persists replica sessions and received patches in SQLite.
package store

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/treemirror/dbopen"
	"github.com/hazyhaar/treemirror/record"
)

// Store is the replica database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the replica database at path and applies the
// schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Commit records an applied patch: the patch joins the log and the session
// row takes its new state, in one transaction.
func (s *Store) Commit(ctx context.Context, sess *Session, p *record.Patch) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := saveSession(ctx, tx, sess); err != nil {
			return err
		}
		return savePatch(ctx, tx, p)
	})
}
