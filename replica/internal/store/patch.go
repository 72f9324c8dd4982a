package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/treemirror/record"
)

// SavePatch appends p to the patch log. A patch whose id is already logged
// is ignored.
func (s *Store) SavePatch(ctx context.Context, p *record.Patch) error {
	return savePatch(ctx, s.DB, p)
}

func savePatch(ctx context.Context, db execer, p *record.Patch) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO patches (id, session_id, seq, type, body, records, sent_at, received_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Session, p.Seq, string(p.Type), string(body), len(p.Records()),
		p.Timestamp, time.Now().UnixMilli(),
	)
	return err
}

// ListPatches returns the patches of a session with seq greater than
// afterSeq, in seq order. limit <= 0 means 100.
func (s *Store) ListPatches(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]*record.Patch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT body FROM patches
		WHERE session_id = ? AND seq > ?
		ORDER BY seq, received_at
		LIMIT ?`, sessionID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*record.Patch
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		p, err := record.UnmarshalPatch([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPatches returns the number of logged patches of a session.
func (s *Store) CountPatches(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patches WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
