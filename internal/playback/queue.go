package playback

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultIdleGrace is how long an idle connection is kept before leaving.
const DefaultIdleGrace = 3 * time.Second

// drainTimeout bounds how long Close waits for stopped sources to report.
const drainTimeout = 5 * time.Second

// Options configures a VoiceQueue. The zero value is usable.
type Options struct {
	// IdleGrace is the delay between the queue running dry and the bot
	// leaving the channel. Zero means DefaultIdleGrace.
	IdleGrace time.Duration

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())

	Observer Observer
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.IdleGrace <= 0 {
		o.IdleGrace = DefaultIdleGrace
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// playing is the now-playing slot.
type playing struct {
	item  *Item
	token uint64

	// stopping is set once Stop was issued; the slot stays occupied until
	// the completion for token arrives.
	stopping bool
	// requeued means the item was put back into pending by a move.
	requeued bool
	// discard means the item was removed and must not loop.
	discard bool
}

// stoppingSuffix marks a now-playing item whose stop has not completed yet.
const stoppingSuffix = " (stopping)"

// Snapshot is a copy of a queue's visible state.
type Snapshot struct {
	Connected  bool
	ChannelID  string
	Playing    bool
	NowPlaying string
	// Stopping is set while the now-playing item has been stopped but its
	// backend has not reported yet. A moved item is then also in Pending.
	Stopping bool
	Pending  []string
	Loop     bool
}

// Descriptions lists the now-playing item at index 0 followed by the
// pending items, matching the indices accepted by Move and Remove.
func (s Snapshot) Descriptions() []string {
	if !s.Playing {
		return nil
	}
	now := s.NowPlaying
	if s.Stopping {
		now += stoppingSuffix
	}
	return append([]string{now}, s.Pending...)
}

// VoiceQueue is the playback state of one guild. All fields below the
// mailbox are owned by the run goroutine.
type VoiceQueue struct {
	guildID   string
	connector Connector
	opts      Options
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ops      chan func()
	bridge   *Bridge
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	conn      Connection
	current   *playing
	pending   []*Item
	loop      bool
	lastError string
	retiring  map[uint64]*Item
	nextToken uint64
	starts    uint64
	closing   bool
}

// NewVoiceQueue starts the queue goroutine for guildID. Stop it with Close.
func NewVoiceQueue(guildID string, connector Connector, opts Options) *VoiceQueue {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &VoiceQueue{
		guildID:   guildID,
		connector: connector,
		opts:      opts,
		log:       opts.Logger.With("guildID", guildID),
		ctx:       ctx,
		cancel:    cancel,
		ops:       make(chan func()),
		bridge:    NewBridge(),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		retiring:  make(map[uint64]*Item),
	}
	go q.run()
	return q
}

func (q *VoiceQueue) run() {
	defer close(q.done)
	defer q.bridge.Close()
	defer q.cancel()

	quit := q.quit
	var drain <-chan time.Time
	for {
		select {
		case op := <-q.ops:
			op()
		case ev := <-q.bridge.Events():
			q.handleEnded(ev)
		case <-quit:
			quit = nil
			q.closing = true
			if q.conn != nil {
				if err := q.disconnect(); err != nil {
					q.log.Warn("failed to disconnect while closing", "error", err)
				}
			}
			drain = time.After(drainTimeout)
		case <-drain:
			q.log.Warn("gave up waiting for stopped audio", "count", len(q.retiring))
			for token, item := range q.retiring {
				delete(q.retiring, token)
				item.release()
			}
		}

		if q.closing && len(q.retiring) == 0 {
			return
		}
	}
}

// do runs fn on the queue goroutine and waits for its result. Once fn was
// handed over it always runs to completion, even if ctx ends meanwhile.
func (q *VoiceQueue) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	op := func() {
		if q.closing {
			errc <- ErrClosed
			return
		}
		errc <- fn()
	}

	select {
	case q.ops <- op:
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// post queues fn without waiting for it.
func (q *VoiceQueue) post(fn func()) {
	select {
	case q.ops <- fn:
	case <-q.done:
	}
}

// Enqueue joins channelID if the queue is not connected and then plays or
// queues item. The queue owns item from here on: if it is rejected, its
// cleanup runs before Enqueue returns.
func (q *VoiceQueue) Enqueue(ctx context.Context, channelID string, item *Item) error {
	accepted := false
	err := q.do(ctx, func() error {
		if q.conn == nil {
			if err := q.connect(ctx, channelID); err != nil {
				return err
			}
		}
		accepted = true
		q.enqueue(item)
		return nil
	})
	if !accepted {
		item.release()
	}
	return err
}

// Skip stops the now-playing item. Loop still applies to it.
func (q *VoiceQueue) Skip(ctx context.Context) error {
	return q.do(ctx, func() error {
		if q.conn == nil {
			return ErrNotConnected
		}
		if q.current == nil || q.current.stopping {
			return ErrNotPlaying
		}
		q.stopCurrent()
		return nil
	})
}

// Move moves the item at index from to index to. Index 0 is the now-playing
// item, 1 the head of the pending list; negative indices count from the end.
func (q *VoiceQueue) Move(ctx context.Context, from, to int) error {
	return q.do(ctx, func() error {
		if q.conn == nil {
			return ErrNotConnected
		}
		f, err := q.resolve(from)
		if err != nil {
			return err
		}
		t, err := q.resolve(to)
		if err != nil {
			return err
		}
		if f == t {
			return nil
		}

		switch {
		case f == 0:
			q.pending = slices.Insert(q.pending, t, q.current.item)
			q.current.requeued = true
			q.stopCurrent()
		case t == 0:
			item := q.pending[f-1]
			q.pending = slices.Delete(q.pending, f-1, f)
			q.pending = slices.Insert(q.pending, 0, item, q.current.item)
			q.current.requeued = true
			q.stopCurrent()
		default:
			item := q.pending[f-1]
			q.pending = slices.Delete(q.pending, f-1, f)
			q.pending = slices.Insert(q.pending, t-1, item)
		}
		q.changed()
		return nil
	})
}

// Remove drops the item at index. Removing index 0 stops the now-playing
// item without looping it.
func (q *VoiceQueue) Remove(ctx context.Context, index int) error {
	return q.do(ctx, func() error {
		if q.conn == nil {
			return ErrNotConnected
		}
		i, err := q.resolve(index)
		if err != nil {
			return err
		}
		if i == 0 {
			q.current.discard = true
			q.stopCurrent()
			return nil
		}

		item := q.pending[i-1]
		q.pending = slices.Delete(q.pending, i-1, i)
		if q.current != nil && q.current.stopping && item == q.current.item {
			// Still draining after a move; completion releases it.
			q.current.requeued = false
			q.current.discard = true
		} else {
			item.release()
		}
		q.changed()
		return nil
	})
}

// SetLoop sets the loop flag, or toggles it when value is nil, and returns
// the new value.
func (q *VoiceQueue) SetLoop(ctx context.Context, value *bool) (bool, error) {
	var loop bool
	err := q.do(ctx, func() error {
		if value == nil {
			q.loop = !q.loop
		} else {
			q.loop = *value
		}
		loop = q.loop
		return nil
	})
	return loop, err
}

// Leave disconnects and drops everything queued.
func (q *VoiceQueue) Leave(ctx context.Context) error {
	return q.do(ctx, func() error {
		if q.conn == nil {
			return ErrNotConnected
		}
		return q.disconnect()
	})
}

// LogError stores msg as the most recent error.
func (q *VoiceQueue) LogError(ctx context.Context, msg string) error {
	return q.do(ctx, func() error {
		q.lastError = msg
		return nil
	})
}

// PopError returns and clears the most recent error.
func (q *VoiceQueue) PopError(ctx context.Context) (string, bool, error) {
	var msg string
	err := q.do(ctx, func() error {
		msg = q.lastError
		q.lastError = ""
		return nil
	})
	return msg, msg != "", err
}

// Snapshot returns a copy of the queue state.
func (q *VoiceQueue) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := q.do(ctx, func() error {
		snap = q.snapshot()
		return nil
	})
	return snap, err
}

// Close leaves the channel and stops the queue goroutine. It waits for
// stopped sources to report so their cleanups run.
func (q *VoiceQueue) Close(ctx context.Context) error {
	q.quitOnce.Do(func() {
		close(q.quit)
	})
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *VoiceQueue) snapshot() Snapshot {
	snap := Snapshot{
		Connected: q.conn != nil,
		Loop:      q.loop,
		Pending:   make([]string, 0, len(q.pending)),
	}
	if q.conn != nil {
		snap.ChannelID = q.conn.ChannelID()
	}
	if q.current != nil {
		snap.Playing = true
		snap.NowPlaying = q.current.item.Description
		snap.Stopping = q.current.stopping
	}
	for _, item := range q.pending {
		snap.Pending = append(snap.Pending, item.Description)
	}
	return snap
}

func (q *VoiceQueue) connect(ctx context.Context, channelID string) error {
	conn, err := q.connector.Connect(ctx, q.guildID, channelID)
	if err != nil {
		return &ConnectionError{GuildID: q.guildID, ChannelID: channelID, Err: err}
	}
	q.conn = conn
	q.log.Info("joined voice channel", "channelID", channelID)
	return nil
}

func (q *VoiceQueue) disconnect() error {
	q.loop = false

	cur := q.current
	q.current = nil
	if cur != nil {
		if !cur.stopping {
			q.conn.Stop()
		}
		q.retiring[cur.token] = cur.item
	}

	for _, item := range q.pending {
		if cur != nil && item == cur.item {
			continue
		}
		item.release()
	}
	q.pending = nil

	err := q.conn.Disconnect()
	q.conn = nil
	q.changed()
	q.log.Info("left voice channel")
	return err
}

func (q *VoiceQueue) enqueue(item *Item) {
	if q.current == nil {
		q.play(item)
		return
	}
	q.pending = append(q.pending, item)
	q.changed()
}

// play starts item. Items that fail to start are recorded and skipped in
// favour of the next pending item; if none can start the queue goes idle.
func (q *VoiceQueue) play(item *Item) {
	for item != nil {
		err := q.start(item)
		if err == nil {
			q.changed()
			return
		}
		q.fail(item, err)
		item = q.popPending()
	}
	q.idle()
}

func (q *VoiceQueue) start(item *Item) error {
	if item.Open == nil {
		return &SourceError{Description: item.Description, Err: ErrNoSource}
	}
	src, err := item.Open(q.ctx)
	if err != nil {
		return &SourceError{Description: item.Description, Err: err}
	}

	q.nextToken++
	token := q.nextToken
	if err := q.conn.Play(src, q.bridge.Callback(q.guildID, token)); err != nil {
		if cerr := src.Close(); cerr != nil {
			q.log.Debug("failed to close rejected source", "error", cerr)
		}
		return &PlaybackError{Description: item.Description, Err: err}
	}

	q.current = &playing{item: item, token: token}
	q.starts++
	q.opts.Observer.ItemStarted(q.guildID, item)
	q.log.Debug("started item", "description", item.Description, "token", token)
	return nil
}

func (q *VoiceQueue) fail(item *Item, err error) {
	q.lastError = err.Error()
	q.log.Warn("item failed", "description", item.Description, "error", err)
	q.opts.Observer.ItemFailed(q.guildID, item, err)
	item.release()
}

func (q *VoiceQueue) popPending() *Item {
	if len(q.pending) == 0 {
		return nil
	}
	item := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return item
}

func (q *VoiceQueue) stopCurrent() {
	q.current.stopping = true
	q.conn.Stop()
}

func (q *VoiceQueue) resolve(index int) (int, error) {
	size := len(q.pending) + 1
	i := index
	if i < 0 {
		i += size
	}
	if i < 0 || i >= size {
		return 0, &IndexError{Index: index, Len: size}
	}
	if i == 0 && (q.current == nil || q.current.stopping) {
		return 0, &IndexError{Index: index, Len: size}
	}
	return i, nil
}

func (q *VoiceQueue) handleEnded(ev ItemEnded) {
	if item, ok := q.retiring[ev.Token]; ok {
		delete(q.retiring, ev.Token)
		item.release()
		return
	}
	if q.current == nil || q.current.token != ev.Token {
		q.log.Debug("ignoring stale completion", "token", ev.Token)
		return
	}
	q.onItemEnd(ev.Err)
}

// onItemEnd is the only place the now-playing slot is vacated while
// connected.
func (q *VoiceQueue) onItemEnd(playErr error) {
	finished := q.current
	q.current = nil

	if playErr != nil {
		err := &PlaybackError{Description: finished.item.Description, Err: playErr}
		q.lastError = err.Error()
		q.log.Warn("playback ended with error", "description", finished.item.Description, "error", playErr)
		q.opts.Observer.ItemFailed(q.guildID, finished.item, err)
	}

	loops := q.loop && playErr == nil && !finished.discard && !finished.requeued

	if len(q.pending) == 0 {
		if loops {
			q.play(finished.item)
			return
		}
		q.retire(finished)
		q.idle()
		return
	}

	if loops {
		q.pending = append(q.pending, finished.item)
	} else {
		q.retire(finished)
	}
	q.play(q.popPending())
}

func (q *VoiceQueue) retire(p *playing) {
	if !p.requeued {
		p.item.release()
	}
}

// idle waits out the grace period and leaves if nothing started meanwhile.
func (q *VoiceQueue) idle() {
	q.loop = false
	q.changed()

	starts := q.starts
	q.opts.AfterFunc(q.opts.IdleGrace, func() {
		q.post(func() {
			if q.conn == nil || q.current != nil || q.starts != starts {
				return
			}
			q.log.Debug("queue idle, leaving")
			if err := q.disconnect(); err != nil {
				q.log.Warn("failed to disconnect idle queue", "error", err)
			}
		})
	})
}

func (q *VoiceQueue) changed() {
	q.opts.Observer.QueueChanged(q.guildID, len(q.pending))
}
