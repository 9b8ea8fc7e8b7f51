package hub

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Reconciler heals drift between in-memory presence and durable state. It is
// the cancellation backstop: cleanup that a lost disconnect event never
// triggered happens here instead.
type Reconciler struct {
	hub    *Hub
	users  UserStore
	logger *slog.Logger

	interval         time.Duration
	offlineThreshold time.Duration
	metricsInterval  time.Duration
}

func NewReconciler(h *Hub, users UserStore, logger *slog.Logger, interval, offlineThreshold, metricsInterval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if offlineThreshold <= 0 {
		offlineThreshold = 5 * time.Minute
	}
	if metricsInterval <= 0 {
		metricsInterval = 5 * time.Minute
	}
	return &Reconciler{
		hub:              h,
		users:            users,
		logger:           logger,
		interval:         interval,
		offlineThreshold: offlineThreshold,
		metricsInterval:  metricsInterval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. A second,
// independent ticker emits presence/resource metrics; it changes no state.
func (r *Reconciler) Run(ctx context.Context) {
	sweep := time.NewTicker(r.interval)
	metrics := time.NewTicker(r.metricsInterval)
	defer sweep.Stop()
	defer metrics.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			r.Reconcile(ctx, time.Now())
		case <-metrics.C:
			r.reportMetrics()
		}
	}
}

// Reconcile evicts connections that went quiet past the offline threshold or
// whose transport already died, then corrects durable rows still marked
// online past the threshold. Re-broadcasts the online snapshot when the
// connected count changed.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) {
	presence := r.hub.Presence()
	before := presence.Count()

	live := make([]int, 0, before)
	for _, c := range presence.Snapshot() {
		switch {
		case c.isClosed():
			r.hub.evict(c, "dead connection")
		case now.Sub(c.LastActivity()) > r.offlineThreshold:
			r.hub.evict(c, "inactive past threshold")
		default:
			live = append(live, c.UserID)
		}
	}

	// last_seen is only written at connect and disconnect, so refresh it for
	// the connections that survived the sweep; otherwise the heal below would
	// flag any session longer than the threshold.
	if err := r.users.TouchSeen(ctx, live); err != nil {
		r.logger.Warn("last seen refresh failed", "error", err)
	}

	healed, err := r.users.MarkOfflineWhereStale(ctx, r.offlineThreshold)
	if err != nil {
		r.logger.Warn("stale offline sweep failed", "error", err)
	} else if healed > 0 {
		r.logger.Info("healed stale online flags", "rows", healed)
	}

	if after := presence.Count(); after != before {
		r.logger.Info("reconciled presence", "before", before, "after", after)
		presence.BroadcastAll(EvOnlineUsers, presence.OnlineUsers())
	}
}

func (r *Reconciler) reportMetrics() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.logger.Info("presence metrics",
		"connected", r.hub.Presence().Count(),
		"live_rooms", r.hub.Membership().RoomCount(),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc_bytes", mem.HeapAlloc,
	)
}
