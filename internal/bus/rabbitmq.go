package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	rabbitExchangeType = "direct"
	headerMessageKey   = "x-message-key"
)

// AMQPChannel is the subset of *amqp.Channel the RabbitMQ bus needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Close() error
}

// RabbitMQ maps the partitioned log onto RabbitMQ: one durable direct exchange
// per topic and, per consumer group, one durable queue per partition bound with
// the partition number as routing key. A single worker reads each queue, which
// keeps per-partition order; unacknowledged messages are requeued by the broker
// when the channel closes.
type RabbitMQ struct {
	partitions   int
	pollInterval time.Duration

	mu       sync.Mutex
	ch       AMQPChannel
	conn     *amqp.Connection
	declared map[string]bool
}

// DialRabbitMQ connects to url and puts the channel in confirm mode so Publish
// returns only after the broker has taken responsibility for the message.
func DialRabbitMQ(url string, partitions int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	r := NewRabbitMQ(ch, partitions)
	r.conn = conn
	return r, nil
}

// NewRabbitMQ wraps an already opened channel.
func NewRabbitMQ(ch AMQPChannel, partitions int) *RabbitMQ {
	if partitions < 1 {
		partitions = 1
	}
	return &RabbitMQ{
		partitions:   partitions,
		pollInterval: 100 * time.Millisecond,
		ch:           ch,
		declared:     make(map[string]bool),
	}
}

func rabbitQueue(topic, group string, partition int) string {
	return fmt.Sprintf("%s.%s.%d", group, topic, partition)
}

func (r *RabbitMQ) Partitions() int { return r.partitions }

func (r *RabbitMQ) declareExchange(topic string) error {
	if r.declared[topic] {
		return nil
	}
	if err := r.ch.ExchangeDeclare(topic, rabbitExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	r.declared[topic] = true
	return nil
}

// Declare creates the exchange of topic and the partition queues of group.
func (r *RabbitMQ) Declare(_ context.Context, topic, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.declareExchange(topic); err != nil {
		return err
	}
	for p := 0; p < r.partitions; p++ {
		queue := rabbitQueue(topic, group, p)
		if r.declared[queue] {
			continue
		}
		if _, err := r.ch.QueueDeclare(queue, true, false, false, false, amqp.Table{"x-queue-type": "quorum"}); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := r.ch.QueueBind(queue, strconv.Itoa(p), topic, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
		r.declared[queue] = true
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	headers := amqp.Table{headerMessageKey: msg.Key}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	r.mu.Lock()
	if err := r.declareExchange(msg.Topic); err != nil {
		r.mu.Unlock()
		return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
	}
	confirm, err := r.ch.PublishWithDeferredConfirmWithContext(ctx, msg.Topic, strconv.Itoa(PartitionFor(msg.Key, r.partitions)), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         msg.Body,
	})
	r.mu.Unlock()
	if err != nil {
		return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
	}

	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
		}
		if !acked {
			return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: errors.New("broker nacked message")}
		}
	}
	return nil
}

func (r *RabbitMQ) Fetch(ctx context.Context, topic, group string, partition int) (*Delivery, error) {
	if err := checkPartition(partition, r.partitions); err != nil {
		return nil, err
	}
	if err := r.Declare(ctx, topic, group); err != nil {
		return nil, err
	}
	queue := rabbitQueue(topic, group, partition)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		msg, ok, err := r.ch.Get(queue, false)
		r.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("get from %s: %w", queue, err)
		}
		if ok {
			return fromAMQP(msg, topic, group, partition), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func fromAMQP(msg amqp.Delivery, topic, group string, partition int) *Delivery {
	d := &Delivery{
		Message:     Message{Topic: topic, Body: msg.Body},
		Partition:   partition,
		ID:          strconv.FormatUint(msg.DeliveryTag, 10),
		Redelivered: msg.Redelivered,
		group:       group,
		tag:         msg.DeliveryTag,
	}
	for k, v := range msg.Headers {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == headerMessageKey {
			d.Key = s
			continue
		}
		if d.Headers == nil {
			d.Headers = make(map[string]string)
		}
		d.Headers[k] = s
	}
	return d
}

func (r *RabbitMQ) Ack(_ context.Context, d *Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ch.Ack(d.tag, false); err != nil {
		return fmt.Errorf("ack %s: %w", d.ID, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.ch.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
