package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guestflow/internal/config"
	"guestflow/internal/types"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...any)        {}
func (noopLogger) Error(string, ...any)       {}
func (noopLogger) Warn(string, ...any)        {}
func (l noopLogger) With(...any) types.Logger { return l }

// --- Mock Redis ---

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockRedis) BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) *redis.StringCmd {
	args := m.Called(ctx, source, destination, timeout)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, count, value)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockRedis) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	args := m.Called(ctx, key, members)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockRedis) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	args := m.Called(ctx, key, opt)
	return args.Get(0).(*redis.StringSliceCmd)
}

func (m *mockRedis) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, members)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockRedis) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Enabled:      true,
		MaxAttempts:  3,
		BaseBackoff:  5 * time.Second,
		PollInterval: time.Second,
	}
}

func testPayload(jobType types.JobType) types.JobPayload {
	return types.JobPayload{
		JobID:         "job-1",
		Type:          jobType,
		ReservationID: 42,
		EnqueuedAt:    time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC),
	}
}

// --- Enqueue ---

func TestQueue_Enqueue_PushesJSON(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LPush", mock.Anything, mainKey, mock.Anything).
		Return(redis.NewIntResult(1, nil))

	err := q.Enqueue(context.Background(), testPayload(types.JobFulfillReservation))
	require.NoError(t, err)

	values := rdb.Calls[0].Arguments.Get(2).([]interface{})
	require.Len(t, values, 1)
	var got types.JobPayload
	require.NoError(t, json.Unmarshal(values[0].([]byte), &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, types.JobFulfillReservation, got.Type)
	assert.Equal(t, int64(42), got.ReservationID)
}

func TestQueue_Enqueue_AssignsJobID(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LPush", mock.Anything, mainKey, mock.Anything).
		Return(redis.NewIntResult(1, nil))

	payload := testPayload(types.JobIssueAccess)
	payload.JobID = ""
	require.NoError(t, q.Enqueue(context.Background(), payload))

	values := rdb.Calls[0].Arguments.Get(2).([]interface{})
	var got types.JobPayload
	require.NoError(t, json.Unmarshal(values[0].([]byte), &got))
	assert.NotEmpty(t, got.JobID)
}

func TestQueue_Enqueue_InlineMode(t *testing.T) {
	rdb := new(mockRedis)
	cfg := testQueueConfig()
	cfg.Enabled = false

	var handled types.JobPayload
	handler := func(_ context.Context, p types.JobPayload) error {
		handled = p
		return nil
	}
	q := New(rdb, cfg, handler, noopLogger{})

	err := q.Enqueue(context.Background(), testPayload(types.JobFulfillReservation))
	require.NoError(t, err)
	assert.Equal(t, "job-1", handled.JobID)
	rdb.AssertNotCalled(t, "LPush")
}

func TestQueue_Enqueue_InlineMode_PropagatesHandlerError(t *testing.T) {
	cfg := testQueueConfig()
	cfg.Enabled = false
	handlerErr := types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	q := New(new(mockRedis), cfg, func(context.Context, types.JobPayload) error { return handlerErr }, noopLogger{})

	err := q.Enqueue(context.Background(), testPayload(types.JobFulfillReservation))
	assert.ErrorIs(t, err, handlerErr)
}

// --- Dequeue ---

func TestQueue_Dequeue_ReturnsJob(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	body, _ := json.Marshal(testPayload(types.JobIssueAccess))
	rdb.On("ZRangeByScore", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewStringSliceResult(nil, nil))
	rdb.On("BRPopLPush", mock.Anything, mainKey, processingKey, time.Second).
		Return(redis.NewStringResult(string(body), nil))

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, types.JobIssueAccess, job.Payload.Type)
	assert.Equal(t, int64(42), job.Payload.ReservationID)
}

func TestQueue_Dequeue_EmptyQueue(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("ZRangeByScore", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewStringSliceResult(nil, nil))
	rdb.On("BRPopLPush", mock.Anything, mainKey, processingKey, time.Second).
		Return(redis.NewStringResult("", redis.Nil))

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_Dequeue_DropsMalformedPayload(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("ZRangeByScore", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewStringSliceResult(nil, nil))
	rdb.On("BRPopLPush", mock.Anything, mainKey, processingKey, time.Second).
		Return(redis.NewStringResult("{not json", nil))
	rdb.On("LRem", mock.Anything, processingKey, int64(1), mock.Anything).
		Return(redis.NewIntResult(1, nil))

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	rdb.AssertCalled(t, "LRem", mock.Anything, processingKey, int64(1), mock.Anything)
}

func TestQueue_Dequeue_PromotesDueRetries(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	body, _ := json.Marshal(testPayload(types.JobFulfillReservation))
	rdb.On("ZRangeByScore", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewStringSliceResult([]string{string(body)}, nil))
	rdb.On("ZRem", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewIntResult(1, nil))
	rdb.On("LPush", mock.Anything, mainKey, mock.Anything).
		Return(redis.NewIntResult(1, nil))
	rdb.On("BRPopLPush", mock.Anything, mainKey, processingKey, time.Second).
		Return(redis.NewStringResult(string(body), nil))

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	rdb.AssertCalled(t, "LPush", mock.Anything, mainKey, mock.Anything)
}

// --- Ack / Nack ---

func TestQueue_Ack_RemovesFromProcessing(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LRem", mock.Anything, processingKey, int64(1), mock.Anything).
		Return(redis.NewIntResult(1, nil))

	err := q.Ack(context.Background(), &Job{raw: `{"job_id":"job-1"}`})
	require.NoError(t, err)
	rdb.AssertExpectations(t)
}

func TestQueue_Nack_RetryableSchedulesBackoff(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LRem", mock.Anything, processingKey, int64(1), mock.Anything).
		Return(redis.NewIntResult(1, nil))
	rdb.On("ZAdd", mock.Anything, delayedKey, mock.Anything).
		Return(redis.NewIntResult(1, nil))

	job := &Job{Payload: testPayload(types.JobFulfillReservation), raw: "raw"}
	upstreamErr := types.NewAppError(types.ErrCodeUpstreamPayment, "payment provider unavailable", nil)
	require.NoError(t, q.Nack(context.Background(), job, upstreamErr))

	members := rdb.Calls[1].Arguments.Get(2).([]redis.Z)
	require.Len(t, members, 1)
	var retried types.JobPayload
	require.NoError(t, json.Unmarshal([]byte(members[0].Member.(string)), &retried))
	assert.Equal(t, 1, retried.Attempt)
}

func TestQueue_Nack_NonRetryableDrops(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LRem", mock.Anything, processingKey, int64(1), mock.Anything).
		Return(redis.NewIntResult(1, nil))

	job := &Job{Payload: testPayload(types.JobFulfillReservation), raw: "raw"}
	fatal := types.NewAppError(types.ErrCodeValidationMissingContact, "no contact", nil)
	require.NoError(t, q.Nack(context.Background(), job, fatal))
	rdb.AssertNotCalled(t, "ZAdd")
}

func TestQueue_Nack_AttemptsExhaustedDrops(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("LRem", mock.Anything, processingKey, int64(1), mock.Anything).
		Return(redis.NewIntResult(1, nil))

	payload := testPayload(types.JobFulfillReservation)
	payload.Attempt = 2 // third attempt just failed with MaxAttempts=3
	job := &Job{Payload: payload, raw: "raw"}
	require.NoError(t, q.Nack(context.Background(), job, errors.New("transient")))
	rdb.AssertNotCalled(t, "ZAdd")
}

// --- Backoff / Health ---

func TestQueue_Backoff(t *testing.T) {
	q := New(new(mockRedis), testQueueConfig(), nil, noopLogger{})

	assert.Equal(t, 5*time.Second, q.backoff(1))
	assert.Equal(t, 10*time.Second, q.backoff(2))
	assert.Equal(t, 20*time.Second, q.backoff(3))
	assert.Equal(t, maxBackoff, q.backoff(12))
}

func TestQueue_Health(t *testing.T) {
	rdb := new(mockRedis)
	q := New(rdb, testQueueConfig(), nil, noopLogger{})

	rdb.On("Ping", mock.Anything).Return(redis.NewStatusResult("PONG", nil))
	require.NoError(t, q.Health(context.Background()))

	down := new(mockRedis)
	down.On("Ping", mock.Anything).Return(redis.NewStatusResult("", errors.New("connection refused")))
	qDown := New(down, testQueueConfig(), nil, noopLogger{})
	err := qDown.Health(context.Background())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalQueue, appErr.Code)
}

func TestQueue_Health_InlineModeAlwaysHealthy(t *testing.T) {
	cfg := testQueueConfig()
	cfg.Enabled = false
	q := New(new(mockRedis), cfg, nil, noopLogger{})
	require.NoError(t, q.Health(context.Background()))
}
