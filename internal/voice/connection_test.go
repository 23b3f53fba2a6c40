package voice_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/opus"
	"github.com/glizzus/needsmorejpeg/internal/voice"
)

type fakeLink struct {
	mu           sync.Mutex
	speaking     []bool
	disconnected int
}

func (l *fakeLink) Speaking(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.speaking = append(l.speaking, on)
	return nil
}

func (l *fakeLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected++
	return nil
}

type closeTracker struct {
	io.Reader
	closed chan struct{}
}

func (c *closeTracker) Close() error {
	close(c.closed)
	return nil
}

func source(t *testing.T, frames int) *closeTracker {
	t.Helper()
	var buf bytes.Buffer
	for range frames {
		if err := opus.WriteFrame(&buf, []byte{0xf8, 0xff, 0xfe}); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}
	return &closeTracker{Reader: &buf, closed: make(chan struct{})}
}

func waitEnd(t *testing.T, ended <-chan error) error {
	t.Helper()
	select {
	case err := <-ended:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the source to end")
		return nil
	}
}

func TestConnectionPlaysToEnd(t *testing.T) {
	link := &fakeLink{}
	send := make(chan []byte, 8)
	conn := voice.NewConnection("voice", link, send, time.Second, slog.Default())

	src := source(t, 3)
	ended := make(chan error, 1)
	if err := conn.Play(src, func(err error) { ended <- err }); err != nil {
		t.Fatalf("failed to play: %v", err)
	}

	if err := waitEnd(t, ended); err != nil {
		t.Errorf("expected a clean end, got %v", err)
	}
	if len(send) != 3 {
		t.Errorf("expected 3 frames sent, got %d", len(send))
	}
	select {
	case <-src.closed:
	default:
		t.Error("source was not closed")
	}
}

func TestConnectionStop(t *testing.T) {
	link := &fakeLink{}
	conn := voice.NewConnection("voice", link, make(chan []byte), time.Minute, slog.Default())

	ended := make(chan error, 1)
	if err := conn.Play(source(t, 100), func(err error) { ended <- err }); err != nil {
		t.Fatalf("failed to play: %v", err)
	}
	if err := conn.Play(source(t, 1), func(error) {}); !errors.Is(err, voice.ErrBusy) {
		t.Errorf("expected ErrBusy for a second source, got %v", err)
	}

	conn.Stop()
	conn.Stop()
	if err := waitEnd(t, ended); err != nil {
		t.Errorf("a stopped source should end cleanly, got %v", err)
	}

	next := make(chan error, 1)
	if err := conn.Play(source(t, 0), func(err error) { next <- err }); err != nil {
		t.Fatalf("failed to play after stop: %v", err)
	}
	waitEnd(t, next)
}

func TestConnectionDisconnect(t *testing.T) {
	link := &fakeLink{}
	conn := voice.NewConnection("voice", link, make(chan []byte), time.Minute, slog.Default())

	ended := make(chan error, 1)
	if err := conn.Play(source(t, 100), func(err error) { ended <- err }); err != nil {
		t.Fatalf("failed to play: %v", err)
	}
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("failed to disconnect: %v", err)
	}
	waitEnd(t, ended)

	if err := conn.Disconnect(); err != nil {
		t.Errorf("second disconnect should be a no-op, got %v", err)
	}
	if link.disconnected != 1 {
		t.Errorf("expected one disconnect, got %d", link.disconnected)
	}
	if err := conn.Play(source(t, 1), func(error) {}); !errors.Is(err, voice.ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}
