package sink

import (
	"context"

	"github.com/hazyhaar/treemirror/record"
)

// InitializeFunc receives the initial snapshot in-process.
type InitializeFunc func(ctx context.Context, children []record.Record) error

// ChangedFunc receives each change batch in-process.
type ChangedFunc func(ctx context.Context, removed, moved []record.Record) error

// Callback delivers mirror calls as Go function calls, with no
// serialisation. Used when the replica lives in the same binary.
type Callback struct {
	onInitialize InitializeFunc
	onChanged    ChangedFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onInitialize InitializeFunc, onChanged ChangedFunc) *Callback {
	return &Callback{onInitialize: onInitialize, onChanged: onChanged}
}

func (c *Callback) Initialize(ctx context.Context, children []record.Record) error {
	if c.onInitialize != nil {
		return c.onInitialize(ctx, children)
	}
	return nil
}

func (c *Callback) ApplyChanged(ctx context.Context, removed, moved []record.Record) error {
	if c.onChanged != nil {
		return c.onChanged(ctx, removed, moved)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
