package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/hazyhaar/treemirror/record"
)

// Session is the persisted state of one mirrored document.
type Session struct {
	ID        string          `json:"id"`
	LastSeq   uint64          `json:"last_seq"`
	Gaps      uint64          `json:"gaps"`
	Patches   int             `json:"patches"`
	State     []record.Record `json:"state,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
	// Digest is the hash of State, filled on read and not stored.
	Digest string `json:"digest,omitempty"`
}

// SaveSession inserts or replaces a session row.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	return saveSession(ctx, s.DB, sess)
}

func saveSession(ctx context.Context, db execer, sess *Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (id, last_seq, gaps, patches, state, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			last_seq = excluded.last_seq,
			gaps = excluded.gaps,
			patches = excluded.patches,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		sess.ID, sess.LastSeq, sess.Gaps, sess.Patches, string(state), sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetSession retrieves a session with its state. It returns nil, nil when
// the session is unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var state string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, last_seq, gaps, patches, state, created_at, updated_at
		FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.LastSeq, &sess.Gaps, &sess.Patches, &state, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first, without
// their state.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, last_seq, gaps, patches, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.LastSeq, &sess.Gaps, &sess.Patches, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its patch log.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM patches WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
