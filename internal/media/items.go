// Package media turns user requests into playable queue items: synthesized
// speech, downloaded files held in blob storage, and youtube-dl downloads.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/datalayer"
	"github.com/glizzus/needsmorejpeg/internal/playback"
)

// Encoder produces length-prefixed Opus frames. *opus.Encoder implements it.
type Encoder interface {
	Encode(ctx context.Context, r io.Reader) (io.ReadCloser, error)
	EncodeFile(ctx context.Context, path string) (io.ReadCloser, error)
}

// cleanupTimeout bounds blob removal when an item leaves the queue.
const cleanupTimeout = 10 * time.Second

// Items builds queue items whose sources are transcoded only when they
// start playing.
type Items struct {
	encoder Encoder
	storage datalayer.BlobStorage
	log     *slog.Logger
}

func NewItems(encoder Encoder, storage datalayer.BlobStorage, logger *slog.Logger) *Items {
	return &Items{encoder: encoder, storage: storage, log: logger}
}

func SayDescription(user string) string {
	return fmt.Sprintf("Say message from %s", user)
}

func UploadDescription(user, filename string) string {
	return fmt.Sprintf("A file uploaded by %s (%s)", user, filename)
}

func URLDescription(user, url string) string {
	return fmt.Sprintf("A file chosen by %s (%s)", user, url)
}

func YoutubeDescription(user, target string) string {
	return fmt.Sprintf("A youtube video chosen by %s (%s)", user, target)
}

func SoundCronDescription(name string) string {
	return fmt.Sprintf("SoundCron %s", name)
}

// Speech plays audio held in memory. Every replay transcodes it again.
func (m *Items) Speech(user string, audio []byte) *playback.Item {
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return m.encoder.Encode(ctx, bytes.NewReader(audio))
	}
	return playback.NewItem(playback.KindSay, SayDescription(user), open, nil)
}

// Stored plays the blob at key. A transient blob is removed once the item
// leaves the queue; a permanent one, like a soundcron clip, is kept.
func (m *Items) Stored(kind playback.Kind, description, key string, transient bool) *playback.Item {
	open := func(ctx context.Context) (io.ReadCloser, error) {
		blob, err := m.storage.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		frames, err := m.encoder.Encode(ctx, blob)
		if err != nil {
			return nil, errors.Join(err, blob.Close())
		}
		return &chainCloser{ReadCloser: frames, then: blob}, nil
	}

	var cleanup func()
	if transient {
		cleanup = func() {
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if err := m.storage.Remove(ctx, key); err != nil {
				m.log.Warn("failed to remove played blob", "key", key, "error", err)
			}
		}
	}
	return playback.NewItem(kind, description, open, cleanup)
}

// File plays a local file and removes dir once the item leaves the queue.
func (m *Items) File(kind playback.Kind, description, path, dir string) *playback.Item {
	open := func(ctx context.Context) (io.ReadCloser, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return m.encoder.EncodeFile(ctx, path)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			m.log.Warn("failed to remove downloaded file", "path", path, "error", err)
		}
	}
	return playback.NewItem(kind, description, open, cleanup)
}

// chainCloser closes then after the wrapped reader.
type chainCloser struct {
	io.ReadCloser
	then io.Closer
}

func (c *chainCloser) Close() error {
	return errors.Join(c.ReadCloser.Close(), c.then.Close())
}
