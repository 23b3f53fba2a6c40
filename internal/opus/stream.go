package opus

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrSendTimeout means the voice connection stopped accepting frames.
	ErrSendTimeout = errors.New("voice connection send timeout")
	// ErrStopped means the stream was interrupted through its stop channel.
	ErrStopped = errors.New("stream stopped")
)

// DefaultSendTimeout is how long Stream waits for the connection to take a frame.
const DefaultSendTimeout = time.Minute

// Stream sends frames from source to send until the source is exhausted,
// stop is closed, or send blocks for longer than timeout.
// It returns nil at the end of the source.
func Stream(source *FrameReader, send chan<- []byte, stop <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return ErrStopped
		default:
		}

		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		timer.Reset(timeout)
		select {
		case send <- frame:
		case <-stop:
			return ErrStopped
		case <-timer.C:
			return ErrSendTimeout
		}
	}
}
