package playback

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry maps guild IDs to their queues. Queues are created on first use
// and never removed; a queue that left its channel stays around, empty, for
// the next enqueue.
type Registry struct {
	connector Connector
	opts      Options

	mu     sync.Mutex
	queues map[string]*VoiceQueue
	closed bool
}

func NewRegistry(connector Connector, opts Options) *Registry {
	return &Registry{
		connector: connector,
		opts:      opts,
		queues:    make(map[string]*VoiceQueue),
	}
}

// Queue returns the queue for guildID, creating it if needed.
func (r *Registry) Queue(guildID string) (*VoiceQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	q, ok := r.queues[guildID]
	if !ok {
		q = NewVoiceQueue(guildID, r.connector, r.opts)
		r.queues[guildID] = q
	}
	return q, nil
}

// existing returns the guild's queue without creating one.
func (r *Registry) existing(guildID string) (*VoiceQueue, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrClosed
	}
	q, ok := r.queues[guildID]
	return q, ok, nil
}

// Enqueue hands item to the guild's queue, joining channelID first if the
// guild has no connection. Rejected items are cleaned up.
func (r *Registry) Enqueue(ctx context.Context, guildID, channelID string, item *Item) error {
	q, err := r.Queue(guildID)
	if err != nil {
		item.release()
		return err
	}
	return q.Enqueue(ctx, channelID, item)
}

// EnqueueSay enqueues synthesized speech.
func (r *Registry) EnqueueSay(ctx context.Context, guildID, channelID string, item *Item) error {
	item.Kind = KindSay
	return r.Enqueue(ctx, guildID, channelID, item)
}

// EnqueuePlay enqueues an uploaded or downloaded file.
func (r *Registry) EnqueuePlay(ctx context.Context, guildID, channelID string, item *Item) error {
	item.Kind = KindPlay
	return r.Enqueue(ctx, guildID, channelID, item)
}

// EnqueueStream enqueues audio fetched by youtube-dl.
func (r *Registry) EnqueueStream(ctx context.Context, guildID, channelID string, item *Item) error {
	item.Kind = KindStream
	return r.Enqueue(ctx, guildID, channelID, item)
}

func (r *Registry) Skip(ctx context.Context, guildID string) error {
	q, err := r.Queue(guildID)
	if err != nil {
		return err
	}
	return q.Skip(ctx)
}

func (r *Registry) Move(ctx context.Context, guildID string, from, to int) error {
	q, err := r.Queue(guildID)
	if err != nil {
		return err
	}
	return q.Move(ctx, from, to)
}

func (r *Registry) Remove(ctx context.Context, guildID string, index int) error {
	q, err := r.Queue(guildID)
	if err != nil {
		return err
	}
	return q.Remove(ctx, index)
}

// SetLoop sets or, with a nil value, toggles looping for the guild.
func (r *Registry) SetLoop(ctx context.Context, guildID string, value *bool) (bool, error) {
	q, err := r.Queue(guildID)
	if err != nil {
		return false, err
	}
	return q.SetLoop(ctx, value)
}

// ListQueue returns the now-playing description followed by the pending
// ones. It is empty when nothing is playing.
func (r *Registry) ListQueue(ctx context.Context, guildID string) ([]string, error) {
	snap, err := r.Snapshot(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return snap.Descriptions(), nil
}

func (r *Registry) Snapshot(ctx context.Context, guildID string) (Snapshot, error) {
	q, err := r.Queue(guildID)
	if err != nil {
		return Snapshot{}, err
	}
	return q.Snapshot(ctx)
}

// ChannelID returns the voice channel the guild is connected to, or "". It
// does not create a queue for guilds that never had one.
func (r *Registry) ChannelID(ctx context.Context, guildID string) (string, error) {
	q, ok, err := r.existing(guildID)
	if err != nil || !ok {
		return "", err
	}
	snap, err := q.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.ChannelID, nil
}

// Leave disconnects the guild. It returns ErrNotConnected, and changes
// nothing, when the guild has no connection.
func (r *Registry) Leave(ctx context.Context, guildID string) error {
	q, ok, err := r.existing(guildID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConnected
	}
	return q.Leave(ctx)
}

// LastError pops the guild's most recent error.
func (r *Registry) LastError(ctx context.Context, guildID string) (string, bool, error) {
	q, err := r.Queue(guildID)
	if err != nil {
		return "", false, err
	}
	return q.PopError(ctx)
}

func (r *Registry) LogError(ctx context.Context, guildID, msg string) error {
	q, err := r.Queue(guildID)
	if err != nil {
		return err
	}
	return q.LogError(ctx, msg)
}

// Close disconnects every guild and stops all queues.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	queues := make([]*VoiceQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, q := range queues {
		g.Go(func() error {
			return q.Close(ctx)
		})
	}
	return g.Wait()
}
