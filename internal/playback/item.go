package playback

import (
	"context"
	"io"
	"sync"
)

// Kind labels where an item came from.
type Kind string

const (
	KindSay       Kind = "say"
	KindPlay      Kind = "play"
	KindStream    Kind = "stream"
	KindSoundCron Kind = "soundcron"
)

// SourceFunc opens a playable source. The reader yields length-prefixed Opus
// frames. It is called when playback of the item starts, and again every time
// a looped item is replayed. The context lives as long as the queue does, so
// it may be used to bound external processes feeding the reader.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Item is a single entry in a guild's queue.
type Item struct {
	Kind        Kind
	Description string
	Open        SourceFunc

	// Cleanup releases whatever backs the item, such as a temporary file.
	// It runs once, after the item has left the queue for good.
	Cleanup func()

	cleanupOnce sync.Once
}

// NewItem builds an item from a source and a description.
func NewItem(kind Kind, description string, open SourceFunc, cleanup func()) *Item {
	return &Item{
		Kind:        kind,
		Description: description,
		Open:        open,
		Cleanup:     cleanup,
	}
}

func (it *Item) release() {
	it.cleanupOnce.Do(func() {
		if it.Cleanup != nil {
			it.Cleanup()
		}
	})
}

// Connector joins voice channels.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is a joined voice channel that plays one source at a time.
//
// When Play returns nil, onEnd must be invoked exactly once, from any
// goroutine, after the source stopped: naturally, through Stop, or because of
// an error. When Play returns an error, onEnd must not be invoked.
type Connection interface {
	ChannelID() string
	Play(src io.ReadCloser, onEnd func(error)) error
	Stop()
	Disconnect() error
}

// Observer is told about queue activity. Methods are called from the queue's
// goroutine and must not block.
type Observer interface {
	ItemStarted(guildID string, item *Item)
	ItemFailed(guildID string, item *Item, err error)
	QueueChanged(guildID string, pending int)
}

type nopObserver struct{}

func (nopObserver) ItemStarted(string, *Item)       {}
func (nopObserver) ItemFailed(string, *Item, error) {}
func (nopObserver) QueueChanged(string, int)        {}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) ItemStarted(guildID string, item *Item) {
	for _, obs := range o {
		obs.ItemStarted(guildID, item)
	}
}

func (o Observers) ItemFailed(guildID string, item *Item, err error) {
	for _, obs := range o {
		obs.ItemFailed(guildID, item, err)
	}
}

func (o Observers) QueueChanged(guildID string, pending int) {
	for _, obs := range o {
		obs.QueueChanged(guildID, pending)
	}
}

var _ Observer = Observers(nil)
