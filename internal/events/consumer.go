// Package events consumes scrape requests published by other services on a
// Redis stream and feeds them to the scrape queue.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/queue"
)

const (
	EventScrapeRequested = "SCRAPE_REQUESTED"

	// RequestPriority puts on-demand requests ahead of crawl tasks, whose
	// priority is their category depth.
	RequestPriority = 100
)

var ErrInvalidRequest = errors.New("invalid scrape request")

// StreamClient is the part of *redis.Client the consumer reads with.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Name     string
	Block    time.Duration
	Count    int64
	StoreKey string
	// Kind is used when a request does not name one.
	Kind models.Kind
}

type Consumer struct {
	redis  StreamClient
	queue  queue.Queue
	cfg    ConsumerConfig
	logger *slog.Logger
}

func NewConsumer(rc StreamClient, q queue.Queue, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if cfg.Kind == "" {
		cfg.Kind = models.KindFull
	}

	return &Consumer{
		redis:  rc,
		queue:  q,
		cfg:    cfg,
		logger: logger.With("component", "request_consumer", "stream", cfg.Stream),
	}
}

// Run reads the stream until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started", "group", c.cfg.Group, "consumer", c.cfg.Name)

	for {
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			c.logger.Error("failed to read from stream", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// poll reads one batch. Messages are acked once queued; malformed ones are
// acked and dropped.
func (c *Consumer) poll(ctx context.Context) error {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			err := c.handle(msg)
			if errors.Is(err, queue.ErrQueueClosed) {
				return err
			}
			if err != nil {
				c.logger.Warn("dropping message", "id", msg.ID, "error", err)
			}

			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			}
		}
	}
	return nil
}

func (c *Consumer) handle(msg redis.XMessage) error {
	if eventType, _ := msg.Values["event_type"].(string); eventType != EventScrapeRequested {
		return nil
	}

	req, err := c.decode(msg)
	if err != nil {
		return err
	}

	task := queue.NewTask(req, RequestPriority)
	if err := c.queue.Push(task); err != nil {
		return err
	}

	c.logger.Info("scrape request queued", "id", msg.ID, "task_id", task.ID, "url", req.URL, "kind", req.Kind)
	return nil
}

func (c *Consumer) decode(msg redis.XMessage) (models.ScrapeRequest, error) {
	var req models.ScrapeRequest

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return req, fmt.Errorf("%w: missing payload", ErrInvalidRequest)
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.URL == "" {
		return req, fmt.Errorf("%w: missing url", ErrInvalidRequest)
	}

	if req.Kind == "" {
		req.Kind = c.cfg.Kind
	}
	kind, err := models.ParseKind(string(req.Kind))
	if err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Kind = kind

	if req.StoreID == "" {
		req.StoreID = c.cfg.StoreKey
	}
	return req, nil
}
