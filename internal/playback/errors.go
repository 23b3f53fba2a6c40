package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need an active voice
	// connection when the guild has none.
	ErrNotConnected = errors.New("no current voice connection found")

	// ErrNotPlaying is returned when an operation targets the now-playing
	// item but nothing is playing.
	ErrNotPlaying = errors.New("nothing is playing")

	// ErrIndex is the sentinel matched by every *IndexError.
	ErrIndex = errors.New("queue index out of range")

	// ErrClosed is returned once a queue or registry has been shut down.
	ErrClosed = errors.New("playback queue is closed")

	// ErrNoSource is wrapped in a SourceError for items without a source.
	ErrNoSource = errors.New("item has no audio source")
)

// IndexError reports a move or remove target outside the queue.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d is out of range for a queue of %d item(s)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndex
}

var _ error = (*IndexError)(nil)

// ConnectionError is returned when the bot cannot join a voice channel.
type ConnectionError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to join voice channel %s in guild %s: %v", e.ChannelID, e.GuildID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

var _ error = (*ConnectionError)(nil)

// SourceError is recorded when an item's audio source cannot be opened.
type SourceError struct {
	Description string
	Err         error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("failed to open audio for %q: %v", e.Description, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

var _ error = (*SourceError)(nil)

// PlaybackError is recorded when the connection refuses or aborts playback.
type PlaybackError struct {
	Description string
	Err         error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("failed to play %q: %v", e.Description, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

var _ error = (*PlaybackError)(nil)
