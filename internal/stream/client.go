// Package stream is the durable log transport: tagged entries appended to
// redis streams and consumed through consumer groups.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
)

// DefaultScanWindow bounds how many entries Latest inspects.
const DefaultScanWindow = 100

// Client appends to and reads from redis streams.
type Client struct {
	rdb    redis.UniversalClient
	maxLen int64
}

// Option configures a Client.
type Option func(*Client)

// WithMaxLen trims streams to roughly n entries on append. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(c *Client) { c.maxLen = n }
}

func NewClient(rdb redis.UniversalClient, opts ...Option) *Client {
	c := &Client{rdb: rdb}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Redis returns the underlying redis client.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// AddArgs builds the XADD arguments for msg so callers can append inside
// their own pipeline or transaction.
func (c *Client) AddArgs(streamKey string, msg events.Message, metadata map[string]any) (*redis.XAddArgs, error) {
	fields, err := encodeFields(msg.Kind(), msg, metadata)
	if err != nil {
		return nil, fmt.Errorf("encode %s for %s: %w", msg.Kind(), streamKey, err)
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	args := &redis.XAddArgs{Stream: streamKey, Values: values}
	if c.maxLen > 0 {
		args.MaxLen = c.maxLen
		args.Approx = true
	}
	return args, nil
}

// Publish appends one entry and returns its id.
func (c *Client) Publish(ctx context.Context, streamKey string, msg events.Message, metadata map[string]any) (string, error) {
	args, err := c.AddArgs(streamKey, msg, metadata)
	if err != nil {
		return "", err
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", streamKey, err)
	}
	logrus.WithFields(logrus.Fields{
		"stream":   streamKey,
		"kind":     msg.Kind(),
		"entry_id": id,
	}).Debug("Published stream entry")
	return id, nil
}

// LatestOptions bounds a Latest scan.
type LatestOptions struct {
	ScanWindow int64
	Start      time.Time
	End        time.Time
}

// Latest scans the newest entries of streamKey, newest first, and returns up
// to count entries accepted by match. It is a bounded scan: a matching entry
// older than ScanWindow entries is not found. Entries that fail to parse are
// skipped.
func (c *Client) Latest(ctx context.Context, streamKey string, match func(Entry) bool, count int, opts LatestOptions) ([]Entry, error) {
	window := opts.ScanWindow
	if window <= 0 {
		window = DefaultScanWindow
	}
	start, end := "-", "+"
	if !opts.Start.IsZero() {
		start = idAt(opts.Start)
	}
	if !opts.End.IsZero() {
		end = idAt(opts.End)
	}

	msgs, err := c.rdb.XRevRangeN(ctx, streamKey, end, start, window).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xrevrange %s: %w", streamKey, err)
	}

	var out []Entry
	for _, msg := range msgs {
		e, err := ParseEntry(streamKey, msg)
		if err != nil {
			logrus.WithError(err).WithField("stream", streamKey).Debug("Skipping unreadable entry")
			continue
		}
		if match != nil && !match(e) {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// LatestOne returns the newest entry accepted by match.
func (c *Client) LatestOne(ctx context.Context, streamKey string, match func(Entry) bool, opts LatestOptions) (Entry, bool, error) {
	found, err := c.Latest(ctx, streamKey, match, 1, opts)
	if err != nil || len(found) == 0 {
		return Entry{}, false, err
	}
	return found[0], true, nil
}

// PayloadField matches entries whose top-level payload field key equals value.
func PayloadField(key, value string) func(Entry) bool {
	return func(e Entry) bool {
		s, _ := e.Payload[key].(string)
		return s == value
	}
}
