// Package stream wraps Redis Streams consumer-group semantics for CORE's
// stream_in/stream_out transport: the ensure_group/read/ack/add verbs of
// original_source/assistant_service/src/services/redis_stream.py, rebuilt
// against github.com/redis/go-redis/v9.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxRetries and DefaultRetryDelays implement the inbound
// retry-then-DLQ policy shared by every consumer.
var (
	DefaultMaxRetries  = 3
	DefaultRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}
)

// DLQSuffix is appended to a stream name to derive its dead-letter stream.
const DLQSuffix = ":dlq"

// Message is a single stream entry: its id plus the payload field CORE
// writes into every XADD ("payload" -> raw JSON envelope bytes).
type Message struct {
	ID      string
	Payload []byte
}

// Client wraps one Redis Streams consumer-group membership over a single
// stream, plus access to that stream's dead-letter counterpart.
type Client struct {
	rdb      redis.UniversalClient
	stream   string
	group    string
	consumer string
}

// New constructs a Client. The caller owns rdb's lifecycle.
func New(rdb redis.UniversalClient, stream, group, consumer string) *Client {
	return &Client{rdb: rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup creates the consumer group starting from the beginning of the
// stream if it does not already exist, tolerating a concurrent creator.
func (c *Client) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("stream: ensure group %s/%s: %w", c.stream, c.group, err)
}

// Read returns the next available message for this consumer: a fresh
// entry if one exists, otherwise a stale pending entry reclaimed from a
// crashed consumer via XAUTOCLAIM. Returns (nil, nil) when nothing is
// available within block.
func (c *Client) Read(ctx context.Context, block time.Duration, idleReclaim time.Duration) (*Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("stream: xreadgroup %s: %w", c.stream, err)
	}
	if msg := firstEntry(res); msg != nil {
		return msg, nil
	}

	_, claimed, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  idleReclaim,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("stream: xautoclaim %s: %w", c.stream, err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return entryToMessage(claimed[0]), nil
}

func firstEntry(streams []redis.XStream) *Message {
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil
	}
	return entryToMessage(streams[0].Messages[0])
}

func entryToMessage(x redis.XMessage) *Message {
	payload, _ := x.Values["payload"].(string)
	return &Message{ID: x.ID, Payload: []byte(payload)}
}

// Ack acknowledges successful processing of messageID.
func (c *Client) Ack(ctx context.Context, messageID string) error {
	if err := c.rdb.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("stream: xack %s %s: %w", c.stream, messageID, err)
	}
	return nil
}

// Add appends payload to the stream and returns its assigned id.
func (c *Client) Add(ctx context.Context, payload []byte) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream: xadd %s: %w", c.stream, err)
	}
	return id, nil
}

func (c *Client) dlqName() string {
	return c.stream + DLQSuffix
}

// maxDLQErrorMessageLen bounds error_message so a verbose stack trace or
// provider error body never bloats a dead-letter entry.
const maxDLQErrorMessageLen = 500

// DLQReason carries everything known about why a message is being
// dead-lettered: original_message_id, error_type, error_message,
// retry_count, and an optional user_id, stored alongside payload.
type DLQReason struct {
	OriginalMessageID string
	ErrorType         string
	ErrorMessage      string
	RetryCount        int64
	UserID            *int64
}

// SendToDLQ appends payload (the original envelope, unmodified) to the
// stream's dead-letter counterpart together with reason, truncating
// ErrorMessage to maxDLQErrorMessageLen and stamping failed_at as the
// current wall-clock time in RFC3339.
func (c *Client) SendToDLQ(ctx context.Context, payload []byte, reason DLQReason) error {
	msg := reason.ErrorMessage
	if len(msg) > maxDLQErrorMessageLen {
		msg = msg[:maxDLQErrorMessageLen]
	}
	values := map[string]any{
		"payload":             payload,
		"original_message_id": reason.OriginalMessageID,
		"error_type":          reason.ErrorType,
		"error_message":       msg,
		"retry_count":         reason.RetryCount,
		"failed_at":           time.Now().UTC().Format(time.RFC3339),
	}
	if reason.UserID != nil {
		values["user_id"] = *reason.UserID
	}
	_, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.dlqName(),
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("stream: send to dlq %s: %w", c.dlqName(), err)
	}
	return nil
}

// DLQEntry is one message sitting in a dead-letter stream.
type DLQEntry struct {
	ID                string
	Payload           []byte
	OriginalMessageID string
	ErrorType         string
	ErrorMessage      string
	RetryCount        int64
	FailedAt          string
	UserID            *int64
}

// ReadDLQ returns up to count entries from the dead-letter stream, oldest
// first.
func (c *Client) ReadDLQ(ctx context.Context, count int64) ([]DLQEntry, error) {
	res, err := c.rdb.XRange(ctx, c.dlqName(), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("stream: read dlq %s: %w", c.dlqName(), err)
	}
	if count > 0 && int64(len(res)) > count {
		res = res[:count]
	}
	out := make([]DLQEntry, 0, len(res))
	for _, x := range res {
		out = append(out, entryToDLQEntry(x))
	}
	return out, nil
}

func entryToDLQEntry(x redis.XMessage) DLQEntry {
	entry := DLQEntry{ID: x.ID}
	if v, ok := x.Values["payload"].(string); ok {
		entry.Payload = []byte(v)
	}
	if v, ok := x.Values["original_message_id"].(string); ok {
		entry.OriginalMessageID = v
	}
	if v, ok := x.Values["error_type"].(string); ok {
		entry.ErrorType = v
	}
	if v, ok := x.Values["error_message"].(string); ok {
		entry.ErrorMessage = v
	}
	if v, ok := x.Values["retry_count"].(string); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			entry.RetryCount = n
		}
	}
	if v, ok := x.Values["failed_at"].(string); ok {
		entry.FailedAt = v
	}
	if v, ok := x.Values["user_id"].(string); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			entry.UserID = &n
		}
	}
	return entry
}

// DeleteFromDLQ permanently removes an entry from the dead-letter stream.
func (c *Client) DeleteFromDLQ(ctx context.Context, messageID string) error {
	if err := c.rdb.XDel(ctx, c.dlqName(), messageID).Err(); err != nil {
		return fmt.Errorf("stream: delete from dlq %s %s: %w", c.dlqName(), messageID, err)
	}
	return nil
}

// RequeueFromDLQ re-publishes a dead-lettered payload onto the live stream
// and removes it from the dead-letter stream, for manual operator replay.
func (c *Client) RequeueFromDLQ(ctx context.Context, messageID string, payload []byte) (string, error) {
	newID, err := c.Add(ctx, payload)
	if err != nil {
		return "", err
	}
	if err := c.DeleteFromDLQ(ctx, messageID); err != nil {
		return "", err
	}
	return newID, nil
}

// GetDLQLength reports how many entries are currently dead-lettered.
func (c *Client) GetDLQLength(ctx context.Context) (int64, error) {
	n, err := c.rdb.XLen(ctx, c.dlqName()).Result()
	if err != nil {
		return 0, fmt.Errorf("stream: dlq length %s: %w", c.dlqName(), err)
	}
	return n, nil
}
