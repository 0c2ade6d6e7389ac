package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"academy/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, msg *OutboundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func TestKafkaGateway_Send(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	var published OutboundMessage
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		if pm.Topic != "waitlist-notifications" {
			return errors.New("wrong topic " + pm.Topic)
		}
		raw, err := pm.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &published)
	})

	gw := NewKafkaGatewayWithProducer(producer, "waitlist-notifications", logger.NewNop())
	require.NoError(t, gw.Send(context.Background(), ChannelEmail, "parent@example.com", "offer"))
	require.NoError(t, gw.Close())

	assert.Equal(t, ChannelEmail, published.Channel)
	assert.Equal(t, "parent@example.com", published.Address)
	assert.Equal(t, "offer", published.Body)
}

func TestKafkaGateway_Errors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	gw := NewKafkaGatewayWithProducer(producer, "topic", logger.NewNop())

	err := gw.Send(context.Background(), Channel("fax"), "x", "y")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	err = gw.Send(context.Background(), ChannelSMS, "+1", "y")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, gw.Close())
}

func consumerMessage(t *testing.T, msg *OutboundMessage) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := msg.ToJSON()
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "waitlist-notifications", Key: []byte(msg.Address), Value: raw}
}

func TestDeliveryHandler_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		deliverer := &mockDeliverer{}
		deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(m *OutboundMessage) bool {
			return m.Body == "offer"
		})).Return(nil).Once()
		dlq := mocks.NewSyncProducer(t, mocks.NewTestConfig())
		h := newDeliveryHandler(deliverer, dlq, "dlq", logger.NewNop())

		assert.True(t, h.process(ctx, consumerMessage(t, NewOutboundMessage(ChannelSMS, "+1", "offer"))))
		deliverer.AssertExpectations(t)
		require.NoError(t, dlq.Close())
	})

	t.Run("failed delivery goes to dlq", func(t *testing.T) {
		deliverer := &mockDeliverer{}
		deliverer.On("Deliver", mock.Anything, mock.Anything).Return(ErrDeliveryFailed).Once()
		dlq := mocks.NewSyncProducer(t, mocks.NewTestConfig())
		dlq.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var m OutboundMessage
			return json.Unmarshal(val, &m)
		})
		h := newDeliveryHandler(deliverer, dlq, "dlq", logger.NewNop())

		assert.True(t, h.process(ctx, consumerMessage(t, NewOutboundMessage(ChannelSMS, "+1", "offer"))))
		require.NoError(t, dlq.Close())
	})

	t.Run("malformed payload goes to dlq", func(t *testing.T) {
		deliverer := &mockDeliverer{}
		dlq := mocks.NewSyncProducer(t, mocks.NewTestConfig())
		dlq.ExpectSendMessageAndSucceed()
		h := newDeliveryHandler(deliverer, dlq, "dlq", logger.NewNop())

		assert.True(t, h.process(ctx, &sarama.ConsumerMessage{Value: []byte("{not json")}))
		deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
		require.NoError(t, dlq.Close())
	})

	t.Run("dlq failure leaves offset uncommitted", func(t *testing.T) {
		deliverer := &mockDeliverer{}
		deliverer.On("Deliver", mock.Anything, mock.Anything).Return(ErrDeliveryFailed).Once()
		dlq := mocks.NewSyncProducer(t, mocks.NewTestConfig())
		dlq.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		h := newDeliveryHandler(deliverer, dlq, "dlq", logger.NewNop())

		assert.False(t, h.process(ctx, consumerMessage(t, NewOutboundMessage(ChannelSMS, "+1", "offer"))))
		require.NoError(t, dlq.Close())
	})

	t.Run("shutdown leaves offset uncommitted", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		deliverer := &mockDeliverer{}
		deliverer.On("Deliver", mock.Anything, mock.Anything).Return(context.Canceled).Once()
		h := newDeliveryHandler(deliverer, nil, "", logger.NewNop())

		assert.False(t, h.process(cancelled, consumerMessage(t, NewOutboundMessage(ChannelSMS, "+1", "offer"))))
	})
}
