package playback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/google/go-cmp/cmp"
)

func newTestRegistry(t *testing.T) (*playback.Registry, *fakeConnector) {
	t.Helper()
	connector := &fakeConnector{}
	r := playback.NewRegistry(connector, playback.Options{
		AfterFunc: (&manualTimers{}).AfterFunc,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.Close(ctx); err != nil {
			t.Errorf("failed to close registry: %v", err)
		}
	})
	return r, connector
}

func TestRegistryQueueIsSharedPerGuild(t *testing.T) {
	r, _ := newTestRegistry(t)

	const workers = 32
	queues := make([]*playback.VoiceQueue, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := r.Queue("guild")
			if err != nil {
				t.Errorf("failed to get queue: %v", err)
				return
			}
			queues[i] = q
		}()
	}
	wg.Wait()

	for i, q := range queues {
		if q != queues[0] {
			t.Fatalf("worker %d got a different queue", i)
		}
	}

	other, err := r.Queue("other")
	if err != nil {
		t.Fatalf("failed to get queue: %v", err)
	}
	if other == queues[0] {
		t.Error("different guilds must not share a queue")
	}
}

func TestRegistryGuildsAreIndependent(t *testing.T) {
	r, connector := newTestRegistry(t)
	ctx := t.Context()

	say := &testItem{name: "Say message from ann"}
	play := &testItem{name: "A file uploaded by bob (horn.mp3)"}
	if err := r.EnqueueSay(ctx, "one", "voice-1", say.item()); err != nil {
		t.Fatalf("failed to enqueue say: %v", err)
	}
	if err := r.EnqueuePlay(ctx, "two", "voice-2", play.item()); err != nil {
		t.Fatalf("failed to enqueue play: %v", err)
	}

	connector.mu.Lock()
	conns := len(connector.conns)
	connector.mu.Unlock()
	if conns != 2 {
		t.Fatalf("expected one connection per guild, got %d", conns)
	}

	for guild, want := range map[string][]string{
		"one": {"Say message from ann"},
		"two": {"A file uploaded by bob (horn.mp3)"},
	} {
		got, err := r.ListQueue(ctx, guild)
		if err != nil {
			t.Fatalf("failed to list %s: %v", guild, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("queue %s mismatch (-want +got):\n%s", guild, diff)
		}
	}

	channelID, err := r.ChannelID(ctx, "two")
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if channelID != "voice-2" {
		t.Errorf("expected voice-2, got %q", channelID)
	}

	if err := r.Leave(ctx, "one"); err != nil {
		t.Fatalf("failed to leave: %v", err)
	}
	got, err := r.ListQueue(ctx, "two")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("leaving one guild affected another: %v", got)
	}
}

func TestRegistryLeaveIdleGuild(t *testing.T) {
	r, _ := newTestRegistry(t)

	for range 2 {
		if err := r.Leave(t.Context(), "guild"); !errors.Is(err, playback.ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	}
	snap, err := r.Snapshot(t.Context(), "guild")
	if err != nil {
		t.Fatalf("failed to snapshot: %v", err)
	}
	if diff := cmp.Diff(playback.Snapshot{Pending: []string{}}, snap); diff != "" {
		t.Errorf("idle leave changed state (-want +got):\n%s", diff)
	}
}

func TestRegistryErrorSlot(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := t.Context()

	if _, ok, err := r.LastError(ctx, "guild"); err != nil || ok {
		t.Fatalf("expected no error recorded, got ok=%v err=%v", ok, err)
	}
	if err := r.LogError(ctx, "guild", "first"); err != nil {
		t.Fatalf("failed to log error: %v", err)
	}
	if err := r.LogError(ctx, "guild", "second"); err != nil {
		t.Fatalf("failed to log error: %v", err)
	}

	msg, ok, err := r.LastError(ctx, "guild")
	if err != nil || !ok {
		t.Fatalf("expected an error recorded, got ok=%v err=%v", ok, err)
	}
	if msg != "second" {
		t.Errorf("expected the newest error, got %q", msg)
	}
	if _, ok, _ := r.LastError(ctx, "guild"); ok {
		t.Error("error slot should be empty after reading")
	}
}

func TestRegistrySetLoopToggles(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, want := range []bool{true, false, true} {
		got, err := r.SetLoop(t.Context(), "guild", nil)
		if err != nil {
			t.Fatalf("failed to toggle loop: %v", err)
		}
		if got != want {
			t.Errorf("expected loop=%v, got %v", want, got)
		}
	}
}

func TestRegistryEnqueueAfterClose(t *testing.T) {
	connector := &fakeConnector{}
	r := playback.NewRegistry(connector, playback.Options{})
	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	ti := &testItem{name: "late"}
	err := r.EnqueueStream(t.Context(), "guild", "voice", ti.item())
	if !errors.Is(err, playback.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if ti.cleanups.Load() != 1 {
		t.Error("item rejected by a closed registry must be cleaned up")
	}
}
