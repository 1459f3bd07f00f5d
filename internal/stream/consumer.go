package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/metrics"
)

// ErrDropped marks a handler failure that retrying cannot fix. Such entries
// are logged and acknowledged.
var ErrDropped = errors.New("entry dropped")

// Drop wraps err with ErrDropped.
func Drop(err error) error {
	return fmt.Errorf("%w: %w", ErrDropped, err)
}

// Dropf formats an error wrapped with ErrDropped.
func Dropf(format string, args ...any) error {
	return Drop(fmt.Errorf(format, args...))
}

// Handler processes one entry. Returning nil or an ErrDropped error
// acknowledges it; any other error leaves it pending for reclaim.
type Handler func(ctx context.Context, e Entry) error

// Consumer defaults.
const (
	DefaultBatchSize    = 10
	DefaultBlock        = 5 * time.Second
	DefaultClaimTimeout = 60 * time.Second
)

type ConsumerOptions struct {
	Stream   string
	Group    string
	Consumer string
	// StartID is where a newly created group starts reading. Defaults to "$".
	StartID      string
	BatchSize    int64
	Block        time.Duration
	ClaimTimeout time.Duration
}

func (o *ConsumerOptions) defaults() {
	if o.Consumer == "" {
		o.Consumer = NewConsumerName()
	}
	if o.StartID == "" {
		o.StartID = "$"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Block <= 0 {
		o.Block = DefaultBlock
	}
	if o.ClaimTimeout <= 0 {
		o.ClaimTimeout = DefaultClaimTimeout
	}
}

// NewConsumerName returns a unique consumer name for this process.
func NewConsumerName() string {
	return "consumer-" + uuid.NewString()
}

// EnsureGroup creates the consumer group and the stream if needed.
func (c *Client) EnsureGroup(ctx context.Context, streamKey, group, startID string) error {
	if startID == "" {
		startID = "$"
	}
	err := c.rdb.XGroupCreateMkStream(ctx, streamKey, group, startID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, streamKey, err)
	}
	return nil
}

// Consume runs the reclaim-then-read loop until ctx is cancelled. Entries
// pending in the group for longer than ClaimTimeout are claimed and handled
// first, then up to BatchSize new entries are read, blocking up to Block.
// Each entry is acknowledged on its own after its handler returns. Handlers
// run with a context that is not cancelled on shutdown, so an entry already
// in hand is finished.
func (c *Client) Consume(ctx context.Context, opts ConsumerOptions, h Handler) error {
	opts.defaults()
	if err := c.EnsureGroup(ctx, opts.Stream, opts.Group, opts.StartID); err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{
		"stream":   opts.Stream,
		"group":    opts.Group,
		"consumer": opts.Consumer,
	})
	log.Info("Stream consumer started")
	defer log.Info("Stream consumer stopped")

	for ctx.Err() == nil {
		if err := c.reclaim(ctx, opts, h, log); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.WithError(err).Error("Failed to reclaim pending entries")
		}

		if err := c.readNew(ctx, opts, h, log); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.WithError(err).Error("Failed to read stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	return nil
}

func (c *Client) reclaim(ctx context.Context, opts ConsumerOptions, h Handler, log *logrus.Entry) error {
	start := "0-0"
	for {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   opts.Stream,
			Group:    opts.Group,
			Consumer: opts.Consumer,
			MinIdle:  opts.ClaimTimeout,
			Start:    start,
			Count:    opts.BatchSize,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("xautoclaim: %w", err)
		}
		if len(msgs) > 0 {
			metrics.EntriesReclaimed.Add(int64(len(msgs)))
			log.WithField("count", len(msgs)).Warn("Reclaimed pending entries")
		}
		for _, msg := range msgs {
			c.handle(ctx, opts, h, msg, log)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return nil
		}
		start = next
	}
}

func (c *Client) readNew(ctx context.Context, opts ConsumerOptions, h Handler, log *logrus.Entry) error {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    opts.Group,
		Consumer: opts.Consumer,
		Streams:  []string{opts.Stream, ">"},
		Count:    opts.BatchSize,
		Block:    opts.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("xreadgroup: %w", err)
	}
	for _, s := range res {
		for _, msg := range s.Messages {
			c.handle(ctx, opts, h, msg, log)
		}
	}
	return nil
}

func (c *Client) handle(ctx context.Context, opts ConsumerOptions, h Handler, msg redis.XMessage, log *logrus.Entry) {
	metrics.EntriesConsumed.Add(1)
	entryLog := log.WithField("entry_id", msg.ID)

	e, err := ParseEntry(opts.Stream, msg)
	if err == nil {
		err = h(context.WithoutCancel(ctx), e)
	} else {
		err = Drop(err)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrDropped):
		metrics.EntriesDropped.Add(1)
		entryLog.WithError(err).Warn("Dropped stream entry")
	default:
		metrics.EntriesFailed.Add(1)
		entryLog.WithError(err).Error("Handler failed, entry left pending")
		return
	}

	if err := c.rdb.XAck(context.WithoutCancel(ctx), opts.Stream, opts.Group, msg.ID).Err(); err != nil {
		entryLog.WithError(err).Error("Failed to acknowledge entry")
		return
	}
	metrics.EntriesAcked.Add(1)
}
