package server

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/link"
	"github.com/frobware/go-pppring/store/sqlite"
)

// journalBacklog is how many transitions may wait for the store.
const journalBacklog = 256

// HealthService names the gRPC health service reporting on device.
// "pppring/ttyS0" for "/dev/ttyS0".
func HealthService(device string) string {
	return "pppring/" + strings.TrimPrefix(device, "/dev/")
}

func servingStatus(s pppring.LinkState) healthpb.HealthCheckResponse_ServingStatus {
	if s == pppring.LinkUp {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// healthObserver mirrors link state into the health service and the
// link state gauge.
type healthObserver struct {
	health *health.Server
	logger *slog.Logger
}

func (h *healthObserver) LinkStateChanged(t link.Transition) {
	h.health.SetServingStatus(HealthService(t.Device), servingStatus(t.To))
	linkState.WithLabelValues(t.Device).Set(float64(t.To))

	switch {
	case t.To == pppring.LinkUp:
		h.logger.Info("link up", "device", t.Device, "pid", t.PID)
	case t.From == pppring.LinkUp:
		h.logger.Warn("link down", "device", t.Device, "reason", t.Reason, "pid", t.PID)
	}
}

// journal queues transitions for the store so a slow disk never stalls
// a supervisor.
type journal struct {
	store  *sqlite.Store
	runID  string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	events chan link.Transition
}

func newJournal(store *sqlite.Store, runID string, logger *slog.Logger) *journal {
	return &journal{
		store:  store,
		runID:  runID,
		logger: logger.With("component", "journal"),
		events: make(chan link.Transition, journalBacklog),
	}
}

func (j *journal) LinkStateChanged(t link.Transition) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.events <- t:
	default:
		j.logger.Warn("journal backlog full, dropping transition", "device", t.Device, "from", t.From, "to", t.To)
	}
}

// run records queued transitions until close.
func (j *journal) run() {
	for t := range j.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := j.store.Record(ctx, sqlite.Event{
			RunID:  j.runID,
			Device: t.Device,
			From:   t.From,
			To:     t.To,
			Reason: t.Reason,
			PID:    t.PID,
			At:     t.At,
		})
		cancel()
		if err != nil {
			j.logger.Warn("failed to journal transition", "device", t.Device, "error", err)
		}
	}
}

// close stops accepting transitions. run drains what is queued and
// returns.
func (j *journal) close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.closed = true
		close(j.events)
	}
}
