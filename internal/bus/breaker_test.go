package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestBreakerPublisher(t *testing.T) {
	settings := BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour, HalfOpenRequests: 1}
	msg := Message{Topic: "t", Key: "k"}

	t.Run("passes through on success", func(t *testing.T) {
		next := new(mockPublisher)
		next.On("Publish", mock.Anything, msg).Return(nil)

		b := NewBreakerPublisher(next, "ok", settings, nil)
		assert.NoError(t, b.Publish(context.Background(), msg))
		assert.Equal(t, "closed", b.State())
		next.AssertExpectations(t)
	})

	t.Run("wraps plain errors", func(t *testing.T) {
		next := new(mockPublisher)
		next.On("Publish", mock.Anything, msg).Return(errors.New("boom"))

		b := NewBreakerPublisher(next, "wrap", settings, nil)
		err := b.Publish(context.Background(), msg)

		var pubErr *PublishError
		assert.ErrorAs(t, err, &pubErr)
		assert.Equal(t, "t", pubErr.Topic)
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		next := new(mockPublisher)
		next.On("Publish", mock.Anything, msg).Return(&PublishError{Topic: "t", Key: "k", Err: errors.New("down")}).Times(2)

		b := NewBreakerPublisher(next, "trip", settings, nil)
		assert.Error(t, b.Publish(context.Background(), msg))
		assert.Error(t, b.Publish(context.Background(), msg))
		assert.Equal(t, "open", b.State())

		// the open breaker rejects without calling the transport
		err := b.Publish(context.Background(), msg)
		var pubErr *PublishError
		assert.ErrorAs(t, err, &pubErr)
		next.AssertNumberOfCalls(t, "Publish", 2)
	})
}
