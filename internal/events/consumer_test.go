package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/queue"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(args.Get(0).([]redis.XStream))
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(len(ids)))
	}
	return cmd
}

func newTestConsumer(rc StreamClient, q queue.Queue) *Consumer {
	return NewConsumer(rc, q, ConsumerConfig{
		Stream:   "stream:scrape_requests",
		Group:    "catalog-scraper",
		Name:     "test",
		Block:    10 * time.Millisecond,
		StoreKey: "website",
	}, slog.New(slog.DiscardHandler))
}

func message(id, eventType, payload string) redis.XMessage {
	values := map[string]interface{}{"event_type": eventType}
	if payload != "" {
		values["payload"] = payload
	}
	return redis.XMessage{ID: id, Values: values}
}

func TestConsumer_Poll(t *testing.T) {
	ctx := context.Background()

	t.Run("queues requests and acks", func(t *testing.T) {
		rc := new(MockStreamClient)
		q := queue.NewInMemoryQueue()
		c := newTestConsumer(rc, q)

		rc.On("XReadGroup", ctx, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
			return a.Group == "catalog-scraper" && a.Streams[0] == "stream:scrape_requests" && a.Streams[1] == ">"
		})).Return([]redis.XStream{{
			Stream: "stream:scrape_requests",
			Messages: []redis.XMessage{
				message("1-0", EventScrapeRequested, `{"url":"https://website.com/p/1","product_id":"p1","kind":"mpi"}`),
				message("2-0", EventScrapeRequested, `{"url":"https://website.com/p/2","store_id":"other"}`),
			},
		}}, nil)
		rc.On("XAck", ctx, "stream:scrape_requests", "catalog-scraper", []string{"1-0"}).Return(nil)
		rc.On("XAck", ctx, "stream:scrape_requests", "catalog-scraper", []string{"2-0"}).Return(nil)

		require.NoError(t, c.poll(ctx))
		require.Equal(t, 2, q.Size())

		first, err := q.TryPop()
		require.NoError(t, err)
		assert.Equal(t, "https://website.com/p/1", first.URL)
		assert.Equal(t, models.KindMpi, first.Kind)
		assert.Equal(t, "website", first.StoreID)
		assert.Equal(t, RequestPriority, first.Priority)

		second, err := q.TryPop()
		require.NoError(t, err)
		assert.Equal(t, models.KindFull, second.Kind)
		assert.Equal(t, "other", second.StoreID)

		rc.AssertExpectations(t)
	})

	t.Run("drops malformed messages", func(t *testing.T) {
		rc := new(MockStreamClient)
		q := queue.NewInMemoryQueue()
		c := newTestConsumer(rc, q)

		rc.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
			Stream: "stream:scrape_requests",
			Messages: []redis.XMessage{
				message("1-0", EventScrapeRequested, `not json`),
				message("2-0", EventScrapeRequested, `{"kind":"full"}`),
				message("3-0", EventScrapeRequested, `{"url":"https://website.com/p/1","kind":"reviews"}`),
				message("4-0", EventScrapeRequested, ""),
				message("5-0", "PRODUCT_RECORD_CHANGED", `{"url":"https://website.com/p/1"}`),
			},
		}}, nil)
		rc.On("XAck", ctx, "stream:scrape_requests", "catalog-scraper", mock.Anything).Return(nil).Times(5)

		require.NoError(t, c.poll(ctx))
		assert.Equal(t, 0, q.Size())
		rc.AssertExpectations(t)
	})

	t.Run("no messages", func(t *testing.T) {
		rc := new(MockStreamClient)
		c := newTestConsumer(rc, queue.NewInMemoryQueue())

		rc.On("XReadGroup", ctx, mock.Anything).Return(nil, redis.Nil)

		assert.NoError(t, c.poll(ctx))
		rc.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("closed queue leaves message pending", func(t *testing.T) {
		rc := new(MockStreamClient)
		q := queue.NewInMemoryQueue()
		require.NoError(t, q.Close())
		c := newTestConsumer(rc, q)

		rc.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
			Messages: []redis.XMessage{
				message("1-0", EventScrapeRequested, `{"url":"https://website.com/p/1"}`),
			},
		}}, nil)

		assert.ErrorIs(t, c.poll(ctx), queue.ErrQueueClosed)
		rc.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestConsumer_Run(t *testing.T) {
	t.Run("group exists", func(t *testing.T) {
		rc := new(MockStreamClient)
		c := newTestConsumer(rc, queue.NewInMemoryQueue())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		rc.On("XGroupCreateMkStream", ctx, "stream:scrape_requests", "catalog-scraper", "0").
			Return(errors.New("BUSYGROUP Consumer Group name already exists"))
		rc.On("XReadGroup", ctx, mock.Anything).Return(nil, redis.Nil)

		err := c.Run(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("group creation fails", func(t *testing.T) {
		rc := new(MockStreamClient)
		c := newTestConsumer(rc, queue.NewInMemoryQueue())
		ctx := context.Background()

		rc.On("XGroupCreateMkStream", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("connection refused"))

		err := c.Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create consumer group")
	})

	t.Run("stops when queue closes", func(t *testing.T) {
		rc := new(MockStreamClient)
		q := queue.NewInMemoryQueue()
		require.NoError(t, q.Close())
		c := newTestConsumer(rc, q)
		ctx := context.Background()

		rc.On("XGroupCreateMkStream", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		rc.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
			Messages: []redis.XMessage{
				message("1-0", EventScrapeRequested, `{"url":"https://website.com/p/1"}`),
			},
		}}, nil)

		assert.NoError(t, c.Run(ctx))
	})
}
