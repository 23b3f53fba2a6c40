// Package voice connects playback queues to Discord voice channels.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/opus"
	"github.com/glizzus/needsmorejpeg/internal/playback"
)

var (
	ErrBusy         = errors.New("voice connection is already playing")
	ErrDisconnected = errors.New("voice connection is closed")
)

// Link is the part of a discordgo voice connection a Connection drives.
type Link interface {
	Speaking(bool) error
	Disconnect() error
}

// Connector joins voice channels through a discordgo session.
type Connector struct {
	session     *discordgo.Session
	sendTimeout time.Duration
	log         *slog.Logger
}

var _ playback.Connector = (*Connector)(nil)

func NewConnector(session *discordgo.Session, logger *slog.Logger) *Connector {
	return &Connector{
		session:     session,
		sendTimeout: opus.DefaultSendTimeout,
		log:         logger,
	}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("unable to join the voice channel: %w", err)
	}
	logger := c.log.With("guildID", guildID, "channelID", channelID)
	return NewConnection(channelID, vc, vc.OpusSend, c.sendTimeout, logger), nil
}

// Connection plays one source at a time into a voice channel.
type Connection struct {
	channelID   string
	link        Link
	send        chan<- []byte
	sendTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	current *stream
	closed  bool
}

var _ playback.Connection = (*Connection)(nil)

type stream struct {
	stop chan struct{}
	once sync.Once
}

func (s *stream) halt() {
	s.once.Do(func() {
		close(s.stop)
	})
}

func NewConnection(channelID string, link Link, send chan<- []byte, sendTimeout time.Duration, logger *slog.Logger) *Connection {
	return &Connection{
		channelID:   channelID,
		link:        link,
		send:        send,
		sendTimeout: sendTimeout,
		log:         logger,
	}
}

func (c *Connection) ChannelID() string {
	return c.channelID
}

// Play streams src in the background and calls onEnd once it is exhausted,
// stopped, or broken. A stopped stream ends with a nil error.
func (c *Connection) Play(src io.ReadCloser, onEnd func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}
	if c.current != nil {
		return ErrBusy
	}
	if err := c.link.Speaking(true); err != nil {
		return fmt.Errorf("error setting speaking state to 'true': %w", err)
	}

	s := &stream{stop: make(chan struct{})}
	c.current = s
	go c.stream(s, src, onEnd)
	return nil
}

func (c *Connection) stream(s *stream, src io.ReadCloser, onEnd func(error)) {
	err := opus.Stream(opus.NewFrameReader(src), c.send, s.stop, c.sendTimeout)
	if errors.Is(err, opus.ErrStopped) {
		err = nil
	}
	if cerr := src.Close(); cerr != nil {
		c.log.Debug("failed to close audio source", "error", cerr)
	}

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		if serr := c.link.Speaking(false); serr != nil {
			c.log.Warn("failed to stop speaking", "error", serr)
		}
	}
	onEnd(err)
}

func (c *Connection) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.halt()
	}
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.current != nil {
		c.current.halt()
	}
	c.mu.Unlock()

	if err := c.link.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}
