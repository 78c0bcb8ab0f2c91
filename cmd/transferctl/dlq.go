package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/app"
	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/events"

	"github.com/spf13/cobra"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq [topic]",
		Short: "List dead-lettered envelopes of a topic",
		Long: `Reads <topic>.dlq with the transferctl consumer group and prints each
envelope with its dead-letter reason. Messages stay pending unless --ack
is given; without it, buses that redeliver pending messages show only the
oldest message of each partition.`,
		Args: cobra.ExactArgs(1),
		RunE: runDLQ,
	}
	cmd.Flags().IntP("limit", "n", 50, "Maximum messages to read")
	cmd.Flags().Duration("wait", 2*time.Second, "How long to wait for messages per partition")
	cmd.Flags().Bool("ack", false, "Acknowledge the messages that were printed")
	cmd.Flags().String("service", config.WalletService, "Service whose configuration to use")
	return cmd
}

func runDLQ(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	wait, _ := cmd.Flags().GetDuration("wait")
	ack, _ := cmd.Flags().GetBool("ack")
	service, _ := cmd.Flags().GetString("service")

	ctx := cmd.Context()
	cfg := config.Load(service)
	infra, err := app.Connect(ctx, cfg, newLogger(cmd))
	if err != nil {
		return err
	}
	defer infra.Close()

	topic := events.DeadLetterTopic(args[0])
	if err := infra.Bus.Declare(ctx, topic, app.DeadLetterGroup); err != nil {
		return fmt.Errorf("declare %s: %w", topic, err)
	}

	read, err := readDeadLetters(ctx, infra.Bus, topic, limit, wait, ack, func(d *bus.Delivery) {
		printDeadLetter(cmd, d)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) on %s\n", read, topic)
	return nil
}

// readDeadLetters hands up to limit messages of topic to show. Without ack a
// partition is left as soon as the bus hands back a delivery already seen,
// since unacknowledged messages are delivered again.
func readDeadLetters(ctx context.Context, b bus.Bus, topic string, limit int, wait time.Duration, ack bool, show func(*bus.Delivery)) (int, error) {
	read := 0
	for p := 0; p < b.Partitions() && read < limit; p++ {
		seen := make(map[string]bool)
		for read < limit {
			d, err := fetchWithin(ctx, b, topic, p, wait)
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if err != nil {
				return read, fmt.Errorf("read %s partition %d: %w", topic, p, err)
			}
			if seen[d.ID] {
				break
			}
			seen[d.ID] = true
			read++
			show(d)

			if ack {
				if err := b.Ack(ctx, d); err != nil {
					return read, fmt.Errorf("ack %s: %w", d.ID, err)
				}
			}
		}
	}
	return read, nil
}

func fetchWithin(ctx context.Context, b bus.Bus, topic string, partition int, wait time.Duration) (*bus.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	d, err := b.Fetch(ctx, topic, app.DeadLetterGroup, partition)
	if err != nil && ctx.Err() != nil {
		return nil, context.DeadlineExceeded
	}
	return d, err
}

func printDeadLetter(cmd *cobra.Command, d *bus.Delivery) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "--- partition %d id %s key %s\n", d.Partition, d.ID, d.Key)
	fmt.Fprintf(out, "event:    %s %s\n", d.Headers[events.HeaderEventType], d.Headers[events.HeaderEventID])
	fmt.Fprintf(out, "reason:   %s\n", d.Headers[events.HeaderDeadLetterReason])
	fmt.Fprintf(out, "attempts: %s\n", d.Headers[events.HeaderAttempts])
	fmt.Fprintf(out, "body:     %s\n", string(d.Body))
}
