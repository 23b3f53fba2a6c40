// Package metrics exposes playback and command counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	itemsStarted *prometheus.CounterVec
	itemsFailed  *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	commands     *prometheus.CounterVec
}

var _ playback.Observer = (*Metrics)(nil)

// New registers the bot's metrics, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "needsmorejpeg_items_started_total",
			Help: "Number of queue items that started playing",
		}, []string{"kind"}),
		itemsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "needsmorejpeg_items_failed_total",
			Help: "Number of queue items that could not start or broke while playing",
		}, []string{"kind"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "needsmorejpeg_queue_pending",
			Help: "Items waiting behind the now-playing item",
		}, []string{"guild"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "needsmorejpeg_commands_total",
			Help: "Slash commands handled, by outcome",
		}, []string{"command", "outcome"}),
	}
}

func (m *Metrics) ItemStarted(_ string, item *playback.Item) {
	m.itemsStarted.WithLabelValues(string(item.Kind)).Inc()
}

func (m *Metrics) ItemFailed(_ string, item *playback.Item, _ error) {
	m.itemsFailed.WithLabelValues(string(item.Kind)).Inc()
}

func (m *Metrics) QueueChanged(guildID string, pending int) {
	m.queueDepth.WithLabelValues(guildID).Set(float64(pending))
}

// CommandHandled counts one slash command. outcome is "ok", "user_error"
// or "error".
func (m *Metrics) CommandHandled(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics server", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
