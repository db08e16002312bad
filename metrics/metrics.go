// Package metrics exposes session instrumentation as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gdaytreva"

// Collector records session events. It satisfies client.Observer.
type Collector struct {
	registry         *prometheus.Registry
	connectionState  prometheus.Gauge
	reconnects       prometheus.Counter
	reconnectDelay   prometheus.Gauge
	heartbeatTimeout prometheus.Counter
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	commandsSent     *prometheus.CounterVec
	commandsFailed   *prometheus.CounterVec
}

// NewCollector creates the collectors on a private registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Controller connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled.",
		}),
		reconnectDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Delay of the most recently scheduled reconnect.",
		}),
		heartbeatTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_timeouts_total",
			Help:      "Connections closed because the controller went silent.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames routed, by message type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames or entries dropped, by reason.",
		}, []string{"reason"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the controller, by command.",
		}, []string{"command"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_failed_total",
			Help:      "Commands the controller reported as failed, by command.",
		}, []string{"command"}),
	}
	c.registry.MustRegister(
		c.connectionState,
		c.reconnects,
		c.reconnectDelay,
		c.heartbeatTimeout,
		c.framesReceived,
		c.framesDropped,
		c.commandsSent,
		c.commandsFailed,
	)
	return c
}

func (c *Collector) ConnectionState(state int, name string) {
	c.connectionState.Set(float64(state))
}

func (c *Collector) Reconnect(delay time.Duration) {
	c.reconnects.Inc()
	c.reconnectDelay.Set(delay.Seconds())
}

func (c *Collector) HeartbeatTimeout() {
	c.heartbeatTimeout.Inc()
}

func (c *Collector) FrameReceived(messageType string) {
	c.framesReceived.WithLabelValues(messageType).Inc()
}

func (c *Collector) FrameDropped(reason string) {
	c.framesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) CommandSent(command string) {
	c.commandsSent.WithLabelValues(command).Inc()
}

func (c *Collector) CommandFailed(command string) {
	c.commandsFailed.WithLabelValues(command).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Error shutting down metrics server", "err", err)
		}
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
