package playback

import "sync"

// ItemEnded is delivered once for every source a queue started.
type ItemEnded struct {
	GuildID string
	Token   uint64
	Err     error
}

// Bridge carries completion notifications from backend goroutines to the
// goroutine that owns a queue. Notify never waits on the consumer: events are
// buffered by a pump goroutine and handed out in arrival order.
type Bridge struct {
	in   chan ItemEnded
	out  chan ItemEnded
	quit chan struct{}
	once sync.Once
}

func NewBridge() *Bridge {
	b := &Bridge{
		in:   make(chan ItemEnded),
		out:  make(chan ItemEnded),
		quit: make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *Bridge) pump() {
	var backlog []ItemEnded
	for {
		var out chan ItemEnded
		var next ItemEnded
		if len(backlog) > 0 {
			out = b.out
			next = backlog[0]
		}

		select {
		case ev := <-b.in:
			backlog = append(backlog, ev)
		case out <- next:
			backlog[0] = ItemEnded{}
			backlog = backlog[1:]
		case <-b.quit:
			return
		}
	}
}

// Notify hands an event to the bridge. It returns false if the bridge was
// closed and the event was dropped.
func (b *Bridge) Notify(ev ItemEnded) bool {
	select {
	case b.in <- ev:
		return true
	case <-b.quit:
		return false
	}
}

// Callback returns an onEnd function for a started source. Only the first
// call is forwarded; later calls are ignored.
func (b *Bridge) Callback(guildID string, token uint64) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			b.Notify(ItemEnded{GuildID: guildID, Token: token, Err: err})
		})
	}
}

// Events is the consumer side of the bridge.
func (b *Bridge) Events() <-chan ItemEnded {
	return b.out
}

// Close stops the pump. Buffered events are discarded.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.quit)
	})
}
