package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldKey     = "key"
	fieldBody    = "body"
	headerPrefix = "h:"
)

// RedisStreams is a Bus backed by one redis stream per topic partition and a
// redis consumer group per service. Each partition has a single named consumer,
// so entries left unacknowledged by a crashed worker are read back from the
// group's pending list when the worker restarts.
type RedisStreams struct {
	client     *redis.Client
	partitions int
	block      time.Duration

	mu       sync.Mutex
	declared map[string]bool
}

// RedisStreamsOption configures a RedisStreams bus.
type RedisStreamsOption func(*RedisStreams)

// WithBlockTime sets how long one XREADGROUP call waits for new entries.
func WithBlockTime(d time.Duration) RedisStreamsOption {
	return func(r *RedisStreams) {
		if d > 0 {
			r.block = d
		}
	}
}

// NewRedisStreams returns a stream bus over client.
func NewRedisStreams(client *redis.Client, partitions int, opts ...RedisStreamsOption) *RedisStreams {
	if partitions < 1 {
		partitions = 1
	}
	r := &RedisStreams{
		client:     client,
		partitions: partitions,
		block:      2 * time.Second,
		declared:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func streamKey(topic string, partition int) string {
	return fmt.Sprintf("%s:%d", topic, partition)
}

func consumerName(group string, partition int) string {
	return fmt.Sprintf("%s-%d", group, partition)
}

func (r *RedisStreams) Partitions() int { return r.partitions }

func (r *RedisStreams) Publish(ctx context.Context, msg Message) error {
	values := map[string]interface{}{
		fieldKey:  msg.Key,
		fieldBody: string(msg.Body),
	}
	for k, v := range msg.Headers {
		values[headerPrefix+k] = v
	}

	args := &redis.XAddArgs{
		Stream: streamKey(msg.Topic, PartitionFor(msg.Key, r.partitions)),
		Values: values,
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
	}
	return nil
}

// Declare creates the consumer group on every partition stream of topic.
func (r *RedisStreams) Declare(ctx context.Context, topic, group string) error {
	for p := 0; p < r.partitions; p++ {
		if err := r.ensureGroup(ctx, streamKey(topic, p), group); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStreams) ensureGroup(ctx context.Context, stream, group string) error {
	id := stream + "|" + group

	r.mu.Lock()
	done := r.declared[id]
	r.mu.Unlock()
	if done {
		return nil
	}

	err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}

	r.mu.Lock()
	r.declared[id] = true
	r.mu.Unlock()
	return nil
}

func (r *RedisStreams) Fetch(ctx context.Context, topic, group string, partition int) (*Delivery, error) {
	if err := checkPartition(partition, r.partitions); err != nil {
		return nil, err
	}

	stream := streamKey(topic, partition)
	if err := r.ensureGroup(ctx, stream, group); err != nil {
		return nil, err
	}
	consumer := consumerName(group, partition)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Entries delivered earlier but never acknowledged come first.
		d, err := r.read(ctx, stream, group, consumer, "0", -1)
		if err != nil {
			return nil, err
		}
		if d != nil {
			d.Topic, d.Partition, d.Redelivered = topic, partition, true
			return d, nil
		}

		d, err = r.read(ctx, stream, group, consumer, ">", r.block)
		if err != nil {
			return nil, err
		}
		if d != nil {
			d.Topic, d.Partition = topic, partition
			return d, nil
		}
	}
}

func (r *RedisStreams) read(ctx context.Context, stream, group, consumer, id string, block time.Duration) (*Delivery, error) {
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read %s: %w", stream, err)
	}

	// A pending entry deleted from the stream comes back without values. It is
	// still delivered so the consumer dead-letters it instead of losing it.
	for _, s := range res {
		if len(s.Messages) > 0 {
			return toDelivery(s.Messages[0], group), nil
		}
	}
	return nil, nil
}

func toDelivery(entry redis.XMessage, group string) *Delivery {
	d := &Delivery{ID: entry.ID, group: group}
	for k, v := range entry.Values {
		s, _ := v.(string)
		switch {
		case k == fieldKey:
			d.Key = s
		case k == fieldBody:
			d.Body = []byte(s)
		case strings.HasPrefix(k, headerPrefix):
			if d.Headers == nil {
				d.Headers = make(map[string]string)
			}
			d.Headers[strings.TrimPrefix(k, headerPrefix)] = s
		}
	}
	return d
}

func (r *RedisStreams) Ack(ctx context.Context, d *Delivery) error {
	if err := r.client.XAck(ctx, streamKey(d.Topic, d.Partition), d.group, d.ID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", d.ID, err)
	}
	return nil
}

// TrimAcknowledged deletes the entries of every partition stream of topic that
// all consumer groups of that stream have acknowledged. Streams without a
// group are left untouched.
func (r *RedisStreams) TrimAcknowledged(ctx context.Context, topic string) (int64, error) {
	var trimmed int64
	for p := 0; p < r.partitions; p++ {
		n, err := r.trimStream(ctx, streamKey(topic, p))
		if err != nil {
			return trimmed, err
		}
		trimmed += n
	}
	return trimmed, nil
}

func (r *RedisStreams) trimStream(ctx context.Context, stream string) (int64, error) {
	groups, err := r.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return 0, nil
		}
		return 0, fmt.Errorf("inspect groups of %s: %w", stream, err)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	// XTRIM MINID keeps floor itself, so the oldest pending entry survives.
	var floor streamID
	for i, g := range groups {
		keep := g.LastDeliveredID
		if g.Pending > 0 {
			pending, err := r.client.XPending(ctx, stream, g.Name).Result()
			if err != nil {
				return 0, fmt.Errorf("inspect pending of %s on %s: %w", g.Name, stream, err)
			}
			if pending.Count > 0 {
				keep = pending.Lower
			}
		}
		id, err := parseStreamID(keep)
		if err != nil {
			return 0, fmt.Errorf("group %s on %s: %w", g.Name, stream, err)
		}
		if i == 0 || id.less(floor) {
			floor = id
		}
	}
	if floor.isZero() {
		return 0, nil
	}

	n, err := r.client.XTrimMinID(ctx, stream, floor.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("trim %s: %w", stream, err)
	}
	return n, nil
}

type streamID struct {
	ms, seq uint64
}

func parseStreamID(s string) (streamID, error) {
	msPart, seqPart, _ := strings.Cut(s, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return streamID{}, fmt.Errorf("invalid stream id %q", s)
	}
	var seq uint64
	if seqPart != "" {
		if seq, err = strconv.ParseUint(seqPart, 10, 64); err != nil {
			return streamID{}, fmt.Errorf("invalid stream id %q", s)
		}
	}
	return streamID{ms: ms, seq: seq}, nil
}

func (id streamID) less(o streamID) bool {
	return id.ms < o.ms || (id.ms == o.ms && id.seq < o.seq)
}

func (id streamID) isZero() bool { return id.ms == 0 && id.seq == 0 }

func (id streamID) String() string { return fmt.Sprintf("%d-%d", id.ms, id.seq) }

// Close is a no-op; the redis client is owned by the caller.
func (r *RedisStreams) Close() error { return nil }
