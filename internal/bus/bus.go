// Package bus is the partitioned, at-least-once publish/subscribe log the
// services exchange envelopes over. Messages with the same key always land on
// the same partition, and a consumer group reads each partition in order.
package bus

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
)

var (
	ErrClosed            = errors.New("bus closed")
	ErrInvalidPartition  = errors.New("invalid partition")
	ErrUnknownDelivery   = errors.New("unknown delivery")
	ErrUnsupportedDriver = errors.New("unsupported bus driver")
)

// Message is what producers hand to the bus.
type Message struct {
	Topic   string
	Key     string
	Body    []byte
	Headers map[string]string
}

// Delivery is a message read by a consumer group from one partition. It stays
// pending until acknowledged and is delivered again otherwise.
type Delivery struct {
	Message
	Partition   int
	ID          string
	Redelivered bool

	group string
	tag   uint64
}

// Publisher appends messages to the log.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Bus is a partitioned log with consumer groups.
type Bus interface {
	Publisher
	// Partitions is the number of partitions of every topic.
	Partitions() int
	// Declare prepares topic for consumption by group.
	Declare(ctx context.Context, topic, group string) error
	// Fetch blocks until the next unacknowledged message of the partition is
	// available or ctx is done.
	Fetch(ctx context.Context, topic, group string, partition int) (*Delivery, error)
	// Ack commits the delivery so it is not delivered to group again.
	Ack(ctx context.Context, d *Delivery) error
	Close() error
}

// Binding names a consumer group that reads topic.
type Binding struct {
	Topic string
	Group string
}

// DeclareTopology declares every binding up front. Brokers that route by
// binding drop messages published before a queue exists, so producers and
// consumers both declare the full topology before they start.
func DeclareTopology(ctx context.Context, b Bus, bindings []Binding) error {
	for _, bd := range bindings {
		if err := b.Declare(ctx, bd.Topic, bd.Group); err != nil {
			return fmt.Errorf("declare %s for %s: %w", bd.Topic, bd.Group, err)
		}
	}
	return nil
}

// Trimmer is implemented by buses that keep acknowledged messages until they
// are trimmed.
type Trimmer interface {
	TrimAcknowledged(ctx context.Context, topic string) (int64, error)
}

// PublishError reports a message that could not be durably appended. The caller
// retries with the same message.
type PublishError struct {
	Topic string
	Key   string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (key %s): %v", e.Topic, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PartitionFor maps key onto one of n partitions.
func PartitionFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func checkPartition(partition, n int) error {
	if partition < 0 || partition >= n {
		return fmt.Errorf("%w: %d (partitions: %d)", ErrInvalidPartition, partition, n)
	}
	return nil
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
