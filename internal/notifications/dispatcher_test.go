package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"academy/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&DeliveryLog{}, &DeadLetter{}))
	return db
}

type dispatcherFixture struct {
	dispatcher  *Dispatcher
	sms         *mockSender
	db          *gorm.DB
	deadLetters *GormDeadLetterRepository
}

func newDispatcherFixture(t *testing.T, maxRetries int) *dispatcherFixture {
	t.Helper()
	db := newTestDB(t)
	sms := &mockSender{}
	deadLetters := NewGormDeadLetterRepository(db)
	d := NewDispatcher(
		map[Channel]Sender{ChannelSMS: sms},
		RetryConfig{MaxRetries: maxRetries, Backoff: time.Millisecond},
		NewGormDeliveryLogRepository(db),
		deadLetters,
		logger.NewNop(),
	)
	return &dispatcherFixture{dispatcher: d, sms: sms, db: db, deadLetters: deadLetters}
}

func (f *dispatcherFixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestDispatcher_SendRecordsDelivery(t *testing.T) {
	f := newDispatcherFixture(t, 2)
	f.sms.On("Send", mock.Anything, mock.MatchedBy(func(m *OutboundMessage) bool {
		return m.Address == "+15551234567" && m.Body == "hello"
	})).Return("SM123", nil).Once()

	err := f.dispatcher.Send(context.Background(), ChannelSMS, "+15551234567", "hello")
	require.NoError(t, err)

	var logs []DeliveryLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "SM123", logs[0].ProviderID)
	assert.Equal(t, 1, logs[0].Attempts)
	assert.Zero(t, f.count(t, &DeadLetter{}))
	f.sms.AssertExpectations(t)
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	f.sms.On("Send", mock.Anything, mock.Anything).Return("", errors.New("503")).Twice()
	f.sms.On("Send", mock.Anything, mock.Anything).Return("SM9", nil).Once()

	require.NoError(t, f.dispatcher.Send(context.Background(), ChannelSMS, "+15550000000", "hi"))

	var log DeliveryLog
	require.NoError(t, f.db.First(&log).Error)
	assert.Equal(t, 3, log.Attempts)
	f.sms.AssertNumberOfCalls(t, "Send", 3)
}

func TestDispatcher_ExhaustedRetriesDeadLetter(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.sms.On("Send", mock.Anything, mock.Anything).Return("", errors.New("carrier rejected"))

	err := f.dispatcher.Send(context.Background(), ChannelSMS, "+15550000000", "offer")
	require.ErrorIs(t, err, ErrDeliveryFailed)

	var dls []DeadLetter
	require.NoError(t, f.db.Find(&dls).Error)
	require.Len(t, dls, 1)
	assert.Equal(t, 2, dls[0].Attempts)
	assert.Equal(t, "carrier rejected", dls[0].LastError)
	assert.Equal(t, "offer", dls[0].Body)
	assert.Zero(t, f.count(t, &DeliveryLog{}))
	f.sms.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatcher_UnsupportedChannel(t *testing.T) {
	f := newDispatcherFixture(t, 0)

	err := f.dispatcher.Send(context.Background(), ChannelEmail, "a@b.com", "hi")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
	f.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatcher_CancelledContextStopsRetrying(t *testing.T) {
	f := newDispatcherFixture(t, 5)
	f.dispatcher.retry.Backoff = time.Hour
	f.sms.On("Send", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.dispatcher.Send(ctx, ChannelSMS, "+15550000000", "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, f.count(t, &DeadLetter{}))
}

func TestDispatcher_RetryDeadLetter(t *testing.T) {
	f := newDispatcherFixture(t, 0)
	ctx := context.Background()

	f.sms.On("Send", mock.Anything, mock.Anything).Return("", errors.New("down")).Once()
	require.Error(t, f.dispatcher.Send(ctx, ChannelSMS, "+15550000000", "offer"))

	items, total, err := f.deadLetters.List(ctx, false, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	id := items[0].ID

	t.Run("failure keeps it open", func(t *testing.T) {
		f.sms.On("Send", mock.Anything, mock.Anything).Return("", errors.New("still down")).Once()

		dl, err := f.dispatcher.RetryDeadLetter(ctx, id)
		require.ErrorIs(t, err, ErrDeliveryFailed)
		assert.False(t, dl.IsResolved())

		stored, err := f.deadLetters.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, "still down", stored.LastError)
	})

	t.Run("success resolves", func(t *testing.T) {
		f.sms.On("Send", mock.Anything, mock.Anything).Return("SM1", nil).Once()

		dl, err := f.dispatcher.RetryDeadLetter(ctx, id)
		require.NoError(t, err)
		assert.True(t, dl.IsResolved())

		_, total, err := f.deadLetters.List(ctx, false, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.EqualValues(t, 1, f.count(t, &DeliveryLog{}))
	})

	t.Run("already resolved", func(t *testing.T) {
		_, err := f.dispatcher.RetryDeadLetter(ctx, id)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	})
}

func TestLogRetention_Run(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryLogRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := &DeliveryLog{Channel: ChannelSMS, Address: "+1", DeliveredAt: now.Add(-40 * 24 * time.Hour)}
	fresh := &DeliveryLog{Channel: ChannelSMS, Address: "+1", DeliveredAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	retention := NewLogRetention(repo, 30*24*time.Hour, logger.NewNop())
	retention.now = func() time.Time { return now }
	require.NoError(t, retention.Run(ctx))

	var left []DeliveryLog
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, fresh.ID, left[0].ID)
}
