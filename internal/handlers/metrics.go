package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/services"
)

var startTime = time.Now()

type MetricsHandler struct {
	store    *services.StateStore
	hub      *services.ChannelHub
	presence *services.SessionRegistry
	writer   services.SnapshotWriter
}

func NewMetricsHandler(store *services.StateStore, hub *services.ChannelHub, presence *services.SessionRegistry, writer services.SnapshotWriter) *MetricsHandler {
	return &MetricsHandler{store: store, hub: hub, presence: presence, writer: writer}
}

// Metrics returns Prometheus-compatible text format metrics.
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "teamsync_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "teamsync_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "teamsync_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "teamsync_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	writeGauge(&b, "teamsync_channels_open", "Number of open sync channels", float64(h.hub.ClientCount()))
	writeGauge(&b, "teamsync_users_online", "Number of joined sessions", float64(h.presence.Count()))

	persistAsync := 0.0
	if h.writer != nil && h.writer.IsAsync() {
		persistAsync = 1.0
	}
	writeGauge(&b, "teamsync_persist_async_enabled", "Whether write-behind persistence is enabled (1=yes, 0=no)", persistAsync)

	counts := h.store.Counts()
	writeGauge(&b, "teamsync_projects_total", "Number of projects", float64(counts.Projects))
	writeGauge(&b, "teamsync_users_total", "Number of recorded users", float64(counts.Users))
	writeGauge(&b, "teamsync_messages_total", "Number of chat messages across teams", float64(counts.Messages))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
