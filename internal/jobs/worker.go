package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/catalog-scraper/internal/queue"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"golang.org/x/sync/errgroup"
)

// StartWorkers consumes the queue with cfg.Workers goroutines until ctx is
// done or the queue is closed and drained. Crawls started afterwards inherit
// ctx.
func (m *Manager) StartWorkers(ctx context.Context) error {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	m.logger.Info("job workers started", "workers", m.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			return m.work(gctx, i)
		})
	}

	err := g.Wait()
	m.logger.Info("job workers stopped")
	if errors.Is(err, queue.ErrQueueClosed) {
		return nil
	}
	return err
}

func (m *Manager) work(ctx context.Context, id int) error {
	logger := m.logger.With("worker", id)

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			return err
		}

		m.process(ctx, task)
		if ctx.Err() != nil {
			logger.Debug("worker stopping")
			return ctx.Err()
		}
	}
}

// process runs one task. Failures are logged and counted; the task is not
// requeued.
func (m *Manager) process(ctx context.Context, task *queue.Task) {
	logger := m.logger.With("task_id", task.ID, "url", task.URL, "kind", task.Kind)

	record, changed, err := m.Scrape(ctx, task.Request())
	if err != nil {
		m.stats.failed.Add(1)

		var runErr *scraper.RunError
		if errors.As(err, &runErr) {
			logger.Warn("scrape failed", "state", runErr.State, "error", runErr.Err)
			return
		}
		logger.Error("failed to process task", "error", err)
		return
	}

	m.stats.done.Add(1)
	if changed {
		m.stats.changed.Add(1)
	} else {
		m.stats.unchanged.Add(1)
	}

	logger.Debug("task done",
		"changed", changed,
		"requests", record.Metrics.NumOfHTTPRequests,
		"hash", record.Hash.String())
}
