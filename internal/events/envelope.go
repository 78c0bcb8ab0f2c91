package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wallettx/internal/utils/validation"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrUnknownEventType  = errors.New("unknown event type")
)

// Envelope is the unit carried on the bus. EventID identifies one publish
// attempt and is reused when that attempt is retried; TransactionID (or AccountID
// for provisioning) is the correlation and partition key.
type Envelope struct {
	EventID       string          `json:"eventId" validate:"required,uuid"`
	EventType     Type            `json:"eventType" validate:"required"`
	TransactionID string          `json:"transactionId,omitempty"`
	AccountID     string          `json:"accountId,omitempty"`
	Producer      string          `json:"producer,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt" validate:"required"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
}

// New builds an envelope with a fresh event id around payload.
func New(eventType Type, key string, producer string, payload interface{}) (Envelope, error) {
	return NewWithID(uuid.NewString(), eventType, key, producer, payload)
}

// NewWithID builds an envelope with a caller-provided event id.
func NewWithID(eventID string, eventType Type, key string, producer string, payload interface{}) (Envelope, error) {
	if eventType.Topic() == "" {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if err := validation.Struct(payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		EventID:    eventID,
		EventType:  eventType,
		Producer:   producer,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	if eventType.IsTransfer() {
		env.TransactionID = key
	} else {
		env.AccountID = key
	}
	return env, nil
}

// Key returns the partition key of the envelope.
func (e Envelope) Key() string {
	if e.TransactionID != "" {
		return e.TransactionID
	}
	return e.AccountID
}

// Topic returns the topic the envelope belongs on.
func (e Envelope) Topic() string {
	return e.EventType.Topic()
}

// Validate checks the envelope header; payloads are checked by DecodePayload.
func (e Envelope) Validate() error {
	if err := validation.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if e.EventType.Topic() == "" {
		return fmt.Errorf("%w: %w: %q", ErrMalformedEnvelope, ErrUnknownEventType, e.EventType)
	}
	if e.EventType.IsTransfer() && e.TransactionID == "" {
		return fmt.Errorf("%w: transactionId is required for %s", ErrMalformedEnvelope, e.EventType)
	}
	if !e.EventType.IsTransfer() && e.AccountID == "" {
		return fmt.Errorf("%w: accountId is required for %s", ErrMalformedEnvelope, e.EventType)
	}
	return nil
}

// Encode serializes the envelope for the bus.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates an envelope received from the bus.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodePayload unmarshals the payload into dst and validates it. The payload's
// correlation id must match the envelope's.
func (e Envelope) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validation.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var key string
	switch p := dst.(type) {
	case *TransferRequested:
		if err := validation.Amount("amount", p.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		key = p.TransactionID
	case *TransferSettled:
		if err := e.checkOutcome(p); err != nil {
			return err
		}
		key = p.TransactionID
	case *AccountProvisioned:
		if p.InitialBalance != nil {
			if err := validation.Amount("initialBalance", *p.InitialBalance); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		key = p.AccountID
	default:
		return nil
	}
	if key != e.Key() {
		return fmt.Errorf("%w: payload key %q does not match envelope key %q", ErrInvalidPayload, key, e.Key())
	}
	return nil
}

// checkOutcome requires the outcome to agree with the envelope type: a
// TransferSettled event reports SETTLED, a TransferRejected one REJECTED with a
// reason.
func (e Envelope) checkOutcome(p *TransferSettled) error {
	switch e.EventType {
	case TypeTransferSettled:
		if p.Status != StatusSettled {
			return fmt.Errorf("%w: %s carries status %s", ErrInvalidPayload, e.EventType, p.Status)
		}
	case TypeTransferRejected:
		if p.Status != StatusRejected {
			return fmt.Errorf("%w: %s carries status %s", ErrInvalidPayload, e.EventType, p.Status)
		}
		if p.StatusMessage == "" {
			return fmt.Errorf("%w: %s without a reason", ErrInvalidPayload, e.EventType)
		}
	default:
		return fmt.Errorf("%w: %s does not carry a settlement outcome", ErrInvalidPayload, e.EventType)
	}
	return nil
}
