package bus

import (
	"context"
	"strconv"
	"sync"
)

type partitionKey struct {
	topic     string
	partition int
}

type cursorKey struct {
	topic     string
	group     string
	partition int
}

// Memory is an in-process Bus. It keeps every message, so consumer groups can
// replay from their committed offset exactly like a durable log.
type Memory struct {
	partitions int

	mu        sync.Mutex
	logs      map[partitionKey][]Message
	cursors   map[cursorKey]int
	delivered map[cursorKey]int
	signals   map[partitionKey]chan struct{}
	closed    bool
	done      chan struct{}
}

// NewMemory returns an in-process bus with the given partition count.
func NewMemory(partitions int) *Memory {
	if partitions < 1 {
		partitions = 1
	}
	return &Memory{
		partitions: partitions,
		logs:       make(map[partitionKey][]Message),
		cursors:    make(map[cursorKey]int),
		delivered:  make(map[cursorKey]int),
		signals:    make(map[partitionKey]chan struct{}),
		done:       make(chan struct{}),
	}
}

func (m *Memory) Partitions() int { return m.partitions }

func (m *Memory) Declare(context.Context, string, string) error { return nil }

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: ErrClosed}
	}

	pk := partitionKey{topic: msg.Topic, partition: PartitionFor(msg.Key, m.partitions)}
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	m.logs[pk] = append(m.logs[pk], Message{Topic: msg.Topic, Key: msg.Key, Body: body, Headers: copyHeaders(msg.Headers)})

	if ch, ok := m.signals[pk]; ok {
		close(ch)
		delete(m.signals, pk)
	}
	return nil
}

func (m *Memory) Fetch(ctx context.Context, topic, group string, partition int) (*Delivery, error) {
	if err := checkPartition(partition, m.partitions); err != nil {
		return nil, err
	}
	pk := partitionKey{topic: topic, partition: partition}
	ck := cursorKey{topic: topic, group: group, partition: partition}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}

		offset := m.cursors[ck]
		if log := m.logs[pk]; offset < len(log) {
			msg := log[offset]
			redelivered := m.delivered[ck] > offset
			if !redelivered {
				m.delivered[ck] = offset + 1
			}
			m.mu.Unlock()
			return &Delivery{
				Message:     msg,
				Partition:   partition,
				ID:          strconv.Itoa(offset),
				Redelivered: redelivered,
				group:       group,
			}, nil
		}

		signal, ok := m.signals[pk]
		if !ok {
			signal = make(chan struct{})
			m.signals[pk] = signal
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.done:
			return nil, ErrClosed
		case <-signal:
		}
	}
}

func (m *Memory) Ack(_ context.Context, d *Delivery) error {
	offset, err := strconv.Atoi(d.ID)
	if err != nil {
		return ErrUnknownDelivery
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ck := cursorKey{topic: d.Topic, group: d.group, partition: d.Partition}
	if offset+1 > m.cursors[ck] {
		m.cursors[ck] = offset + 1
	}
	return nil
}

// Messages returns a copy of everything published to topic, in partition order.
func (m *Memory) Messages(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Message
	for p := 0; p < m.partitions; p++ {
		out = append(out, m.logs[partitionKey{topic: topic, partition: p}]...)
	}
	return out
}

// Lag returns how many messages of topic group has not acknowledged yet.
func (m *Memory) Lag(topic, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	lag := 0
	for p := 0; p < m.partitions; p++ {
		lag += len(m.logs[partitionKey{topic: topic, partition: p}]) - m.cursors[cursorKey{topic: topic, group: group, partition: p}]
	}
	return lag
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
