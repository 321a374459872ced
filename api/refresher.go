/*
refresher.go - Background reload of reference data

PURPOSE:
  Periodically rebuilds the handler's rule set and tax schedule from the
  store, so edits made through another instance sharing the database are
  picked up without a restart.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Reloads immediately on start
  - A failed reload keeps the previous snapshot and is logged
  - Requests in flight keep the snapshot they started with

CONFIGURATION:
  - Interval: How often to reload (refresh.interval, default 5m)
  - Enabled: Whether the refresher is active (refresh.enabled)

USAGE:
  refresher := NewReferenceRefresher(handler, interval)
  refresher.Start()
  // ... later
  refresher.Stop()

SEE ALSO:
  - reference.go: LoadReference
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// refreshTimeout bounds one reload.
const refreshTimeout = 10 * time.Second

// ReferenceRefresher reloads reference data on a ticker.
type ReferenceRefresher struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReferenceRefresher creates an enabled refresher.
func NewReferenceRefresher(h *Handler, interval time.Duration) *ReferenceRefresher {
	return &ReferenceRefresher{
		Handler:  h,
		Interval: interval,
		Enabled:  true,
	}
}

// Start begins the refresher. Calling Start on a running refresher does
// nothing.
func (rr *ReferenceRefresher) Start() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	log := rr.Handler.Log
	if !rr.Enabled || rr.Interval <= 0 {
		log.Info("reference refresher disabled")
		return
	}
	if rr.ticker != nil {
		return
	}

	rr.ticker = time.NewTicker(rr.Interval)
	rr.stop = make(chan struct{})
	rr.wg.Add(1)

	go rr.run(rr.ticker, rr.stop)

	log.Info("reference refresher started", zap.Duration("interval", rr.Interval))
}

// Stop stops the refresher and waits for an in-flight reload.
func (rr *ReferenceRefresher) Stop() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.ticker != nil {
		rr.ticker.Stop()
		close(rr.stop)
		rr.wg.Wait()
		rr.ticker = nil
		rr.Handler.Log.Info("reference refresher stopped")
	}
}

func (rr *ReferenceRefresher) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rr.wg.Done()

	// Run immediately on start
	rr.RunNow()

	for {
		select {
		case <-ticker.C:
			rr.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow reloads once and reports whether the reload succeeded.
func (rr *ReferenceRefresher) RunNow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	h := rr.Handler
	if err := h.LoadReference(ctx); err != nil {
		h.Log.Error("reference reload failed", zap.Error(err))
		return false
	}
	rules, taxes := h.snapshot()
	h.Log.Debug("reference reloaded",
		zap.String("rule_set_version", rules.Version()),
		zap.Int("tax_tables", taxes.Len()),
	)
	return true
}
