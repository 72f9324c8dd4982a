// Package mirror keeps a remote mirror in step with a live document.
//
// A Client serializes the target's children once and delivers them as the
// initial snapshot on the next loop turn. It then subscribes to the
// document's change feed; each delivery is reduced to dirty roots after a
// short coalescing delay and shipped to the sink as one change batch.
//
//	c, err := mirror.New(doc.Body(), doc, mirror.NewStdoutSink(nil, nil),
//		mirror.WithLayout(htmldoc.NewStaticLayout()))
//	...
//	defer c.Disconnect()
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/filter"
	"github.com/hazyhaar/treemirror/mirror/internal/loop"
	"github.com/hazyhaar/treemirror/record"
	"github.com/hazyhaar/treemirror/reduce"
	"github.com/hazyhaar/treemirror/serialize"
)

// Feed is the change-detection collaborator.
type Feed = dom.Feed

type options struct {
	coalesceDelay      time.Duration
	deferDelay         time.Duration
	cancelOnDisconnect bool
	trackMoves         bool
	policy             *filter.Policy
	layout             dom.Layout
	readLock           sync.Locker
	ctx                context.Context
	logger             *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithCoalesceDelay sets how long a feed delivery waits before it is
// reduced. Default: 10ms.
func WithCoalesceDelay(d time.Duration) Option {
	return func(o *options) { o.coalesceDelay = d }
}

// WithDeferDelay sets the delay of the initial snapshot delivery.
// Default: 0 (next loop turn).
func WithDeferDelay(d time.Duration) Option {
	return func(o *options) { o.deferDelay = d }
}

// WithCancelOnDisconnect controls whether Disconnect drops scheduled
// deliveries (true, the default) or lets them run.
func WithCancelOnDisconnect(v bool) Option {
	return func(o *options) { o.cancelOnDisconnect = v }
}

// WithTrackMoves makes reparented and reordered nodes dirty roots too.
// By default only added nodes are.
func WithTrackMoves(v bool) Option {
	return func(o *options) { o.trackMoves = v }
}

// WithPolicy sets the filter tables. Default: filter.DefaultPolicy().
func WithPolicy(p *filter.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLayout sets the visibility oracle. Without one, every element counts
// as rendered.
func WithLayout(l dom.Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithReadLock makes the client hold l while it walks the tree, for hosts
// that edit the document from other goroutines.
func WithReadLock(l sync.Locker) Option {
	return func(o *options) { o.readLock = l }
}

// WithContext sets the parent context of sink calls.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Client mirrors one target subtree to one sink.
type Client struct {
	target  dom.Node
	sink    Sink
	ser     *serialize.Serializer
	reducer *reduce.Reducer
	loop    *loop.Loop
	opts    options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	sub dom.Subscription
}

// New serializes target's children, schedules their delivery and starts
// observing feed. The sink is not closed by the client.
func New(target dom.Node, feed Feed, sink Sink, opts ...Option) (*Client, error) {
	o := options{
		coalesceDelay:      10 * time.Millisecond,
		cancelOnDisconnect: true,
		ctx:                context.Background(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if target == nil {
		return nil, fmt.Errorf("mirror: new: nil target")
	}
	if sink == nil {
		return nil, fmt.Errorf("mirror: new: nil sink")
	}

	f := filter.New(o.policy, o.layout)
	ser := serialize.New(f, serialize.WithLogger(o.logger))
	ctx, cancel := context.WithCancel(o.ctx)
	c := &Client{
		target:  target,
		sink:    sink,
		ser:     ser,
		reducer: reduce.New(ser, f, reduce.WithLogger(o.logger)),
		loop:    loop.New(o.logger),
		opts:    o,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	children := c.snapshot()
	c.loop.After("initialize", o.deferDelay, func() {
		if err := c.sink.Initialize(c.ctx, children); err != nil {
			c.logger.Error("mirror: initialize failed", "error", err)
			return
		}
		c.logger.Debug("mirror: initialized", "children", len(children))
	})

	queries := []dom.Query{
		{Element: "*"},
		{Element: "*", Attributes: f.Policy().TrackedAttributes},
	}
	sub, err := feed.Observe(queries, c.applyChanged)
	if err != nil {
		c.loop.Stop()
		cancel()
		return nil, fmt.Errorf("mirror: observe: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Snapshot serializes target's children as they are now.
func (c *Client) Snapshot() []record.Record {
	return c.snapshot()
}

func (c *Client) snapshot() []record.Record {
	c.lock()
	defer c.unlock()
	var children []record.Record
	for _, child := range c.target.Children() {
		if rec, ok := c.ser.Serialize(child, 0, ""); ok {
			children = append(children, rec)
		}
	}
	return children
}

// applyChanged is the feed callback. summaries[0] is the structural query,
// summaries[1] the tracked-attribute query. Every delivery schedules a
// sink call, even when nothing survives narrowing and reduction.
func (c *Client) applyChanged(summaries []dom.Summary) {
	var batch reduce.Batch
	if len(summaries) > 0 {
		s := summaries[0]
		batch.Added = s.Added
		if c.opts.trackMoves {
			batch.Reparented = s.Reparented
			batch.Reordered = s.Reordered
		}
	}
	if len(summaries) > 1 {
		batch.AttributeChanged = summaries[1].AttributeChanged
	}
	c.loop.After("reduce", c.opts.coalesceDelay, func() {
		c.lock()
		moved := c.reducer.Reduce(batch)
		c.unlock()
		if err := c.sink.ApplyChanged(c.ctx, nil, moved); err != nil {
			c.logger.Error("mirror: apply changed failed", "records", len(moved), "error", err)
		}
	})
}

func (c *Client) lock() {
	if c.opts.readLock != nil {
		c.opts.readLock.Lock()
	}
}

func (c *Client) unlock() {
	if c.opts.readLock != nil {
		c.opts.readLock.Unlock()
	}
}

// Disconnect stops observing. Scheduled deliveries are dropped or left to
// run depending on WithCancelOnDisconnect. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Disconnect()
	if c.opts.cancelOnDisconnect {
		c.loop.Stop()
		c.cancel()
	} else {
		c.loop.Drain()
		go func() {
			<-c.loop.Done()
			c.cancel()
		}()
	}
	c.logger.Debug("mirror: disconnected", "cancel_pending", c.opts.cancelOnDisconnect)
}

// Done is closed once the client has no more work: immediately after a
// cancelling Disconnect, after the last pending delivery otherwise.
func (c *Client) Done() <-chan struct{} { return c.loop.Done() }

// Pending returns the number of deliveries scheduled but not yet run.
func (c *Client) Pending() int { return c.loop.Pending() }
