package collector

import (
	"context"
	"fmt"
	"runtime/debug"
)

// SyncPending moves queued records to the primary database, oldest first.
// Records the primary rejects stay pending for the next pass. Errors are
// logged and never returned.
func (c *Collector) SyncPending(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("error syncing pending data",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if !c.primary.IsConnected(ctx) {
		c.logger.Debug("Database not connected, skipping sync")
		c.refreshPending(ctx)
		return
	}

	pending, err := c.queue.GetPendingData(ctx, c.opts.SyncBatchSize)
	if err != nil {
		c.logger.Error("error syncing pending data", "error", err)
		return
	}
	if len(pending) == 0 {
		c.logger.Debug("No pending data to sync")
		c.recordSync(0)
		c.refreshPending(ctx)
		return
	}

	c.logger.Info("attempting to sync records from local storage", "count", len(pending))

	synced := 0
	for i := range pending {
		rec := &pending[i]
		if err := c.primary.SaveData(ctx, rec); err != nil {
			c.logger.Debug("record not synced, leaving pending", "id", rec.ID, "error", err)
			continue
		}
		if err := c.queue.MarkAsSynced(ctx, rec.ID); err != nil {
			c.logger.Error("error syncing pending data", "id", rec.ID, "error", err)
			c.recordSync(synced)
			return
		}
		synced++
	}

	c.logger.Info(fmt.Sprintf("Successfully synced %d/%d records", synced, len(pending)),
		"synced", synced,
		"total", len(pending),
	)
	c.metrics.RecordSyncFailures(len(pending) - synced)
	c.recordSync(synced)
	c.refreshPending(ctx)
}

func (c *Collector) recordSync(synced int) {
	c.mu.Lock()
	c.status.LastSyncAt = c.now()
	c.status.LastSynced = synced
	c.mu.Unlock()
	c.metrics.RecordSynced(synced)
}

func (c *Collector) refreshPending(ctx context.Context) {
	n, err := c.queue.PendingCount(ctx)
	if err != nil {
		c.logger.Debug("could not count pending records", "error", err)
		return
	}
	c.mu.Lock()
	c.status.LastPending = n
	c.mu.Unlock()
	c.metrics.SetPending(n)
}
