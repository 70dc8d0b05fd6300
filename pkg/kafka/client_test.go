package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"biogenie-go/internal/config"
	"biogenie-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	err   error
	calls int
}

func (p *countingProcessor) Process(context.Context, tasks.ChunkIngestTask) error {
	p.calls++
	return p.err
}

func newTracker(t *testing.T) (*AttemptTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAttemptTracker(rdb, 3), mr
}

func message(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(tasks.ChunkIngestTask{Bucket: "b", ObjectName: "class_10/a.pdf", Source: "a.pdf", Category: "10"})
	require.NoError(t, err)
	return b
}

func TestHandleMessage_SuccessCommitsAndResets(t *testing.T) {
	tracker, mr := newTracker(t)
	mr.Set("kafka:attempts:10:a.pdf", "2")

	ok := handleMessage(context.Background(), message(t), &countingProcessor{}, tracker)
	assert.True(t, ok)
	assert.False(t, mr.Exists("kafka:attempts:10:a.pdf"))
}

func TestHandleMessage_RetriesUntilLimit(t *testing.T) {
	tracker, mr := newTracker(t)
	p := &countingProcessor{err: errors.New("tika down")}
	ctx := context.Background()

	assert.False(t, handleMessage(ctx, message(t), p, tracker))
	assert.False(t, handleMessage(ctx, message(t), p, tracker))
	assert.True(t, handleMessage(ctx, message(t), p, tracker))
	assert.Equal(t, 3, p.calls)

	v, err := mr.Get("kafka:attempts:10:a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	assert.Greater(t, int64(mr.TTL("kafka:attempts:10:a.pdf")), int64(0))
}

func TestHandleMessage_MalformedIsCommitted(t *testing.T) {
	tracker, _ := newTracker(t)
	p := &countingProcessor{}

	assert.True(t, handleMessage(context.Background(), []byte("{not json"), p, tracker))
	assert.Zero(t, p.calls)
}

func TestHandleMessage_RedisDownKeepsMessage(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()
	tracker := NewAttemptTracker(rdb, 3)

	ok := handleMessage(context.Background(), message(t), &countingProcessor{err: errors.New("x")}, tracker)
	assert.False(t, ok)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: "a:9092, b:9092,"}))
}

func TestProduceWithoutInit(t *testing.T) {
	producer = nil
	assert.Error(t, ProduceIngestTask(context.Background(), tasks.ChunkIngestTask{}))
}
