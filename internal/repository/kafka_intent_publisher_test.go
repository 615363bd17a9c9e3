package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func (m *mockProducer) Close() error {
	return m.Called().Error(0)
}

func TestKafkaIntentPublisher_KeysByIntentID(t *testing.T) {
	p := &mockProducer{}
	in := sampleIntent("intent-1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	p.On("Publish", mock.Anything, "conductor.intents", []byte("intent-1"), in).Return(nil).Once()
	p.On("Close").Return(nil).Once()

	pub := NewKafkaIntentPublisher(p, "conductor.intents")
	assert.NoError(t, pub.PublishIntent(context.Background(), in))
	assert.NoError(t, pub.Close())
	p.AssertExpectations(t)
}
