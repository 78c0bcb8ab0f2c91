package app

import (
	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/events"
)

// DeadLetterGroup is the consumer group transferctl reads dead letters with.
const DeadLetterGroup = "transferctl"

// Topology lists which service consumes each topic, plus the dead-letter
// channel of every topic.
func Topology() []bus.Binding {
	bindings := []bus.Binding{
		{Topic: events.TopicAccountProvisioned, Group: config.WalletService},
		{Topic: events.TopicTransferRequested, Group: config.WalletService},
		{Topic: events.TopicTransferSettled, Group: config.TransactionService},
	}
	for _, topic := range []string{
		events.TopicAccountProvisioned,
		events.TopicTransferRequested,
		events.TopicTransferSettled,
	} {
		bindings = append(bindings, bus.Binding{Topic: events.DeadLetterTopic(topic), Group: DeadLetterGroup})
	}
	return bindings
}
