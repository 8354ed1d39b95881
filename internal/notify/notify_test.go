package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "3f1c0ffee0ddba11"

func delivery(t *testing.T) KeyDelivery {
	t.Helper()
	d, err := NewKeyDelivery("bob@example.com", "a1", "report.pdf", testSecret,
		"https://drop.example.com/d/a1", time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return d
}

func TestNewKeyDelivery_RendersQRCode(t *testing.T) {
	d := delivery(t)
	require.NotEmpty(t, d.QRCode)
	assert.True(t, bytes.HasPrefix(d.QRCode, []byte("\x89PNG")), "qr code is a png")

	noURL, err := NewKeyDelivery("bob@example.com", "a1", "report.pdf", testSecret, "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, noURL.QRCode)
}

func TestLogNotifier_NeverLogsSecret(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(zap.New(core).Sugar())

	require.NoError(t, n.Deliver(context.Background(), delivery(t)))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, "key delivery", entry.Message)
	for k, v := range entry.ContextMap() {
		assert.NotContains(t, k, "secret")
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, testSecret)
		}
	}
	assert.NoError(t, n.Close())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	t.Run("publishes keyed by recipient", func(t *testing.T) {
		w := &fakeWriter{}
		n := &KafkaNotifier{writer: w, topic: "key-delivery", logger: zap.NewNop().Sugar()}

		require.NoError(t, n.Deliver(context.Background(), delivery(t)))
		require.Len(t, w.msgs, 1)
		msg := w.msgs[0]
		assert.Equal(t, "key-delivery", msg.Topic)
		assert.Equal(t, "bob@example.com", string(msg.Key))

		var got message
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, "a1", got.ArtifactID)
		assert.Equal(t, testSecret, got.Secret)
		assert.NotEmpty(t, got.QRCode)

		require.NoError(t, n.Close())
		assert.True(t, w.closed)
	})

	t.Run("broker failure", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("leader not available")}
		n := &KafkaNotifier{writer: w, topic: "key-delivery", logger: zap.NewNop().Sugar()}

		err := n.Deliver(context.Background(), delivery(t))
		assert.ErrorIs(t, err, ErrDelivery)
		assert.False(t, strings.Contains(err.Error(), testSecret))
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := NewKafkaNotifier(nil, "t", zap.NewNop().Sugar())
		assert.Error(t, err)
		_, err = NewKafkaNotifier([]string{"localhost:9092"}, "", zap.NewNop().Sugar())
		assert.Error(t, err)
	})
}

type fakeStream struct {
	args   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	f.args = append(f.args, a)
	return redis.NewStringResult("1714557600000-0", nil)
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func TestRedisNotifier(t *testing.T) {
	t.Run("appends to stream", func(t *testing.T) {
		s := &fakeStream{}
		n := &RedisNotifier{client: s, stream: "securedrop:keys", maxLen: 100, logger: zap.NewNop().Sugar()}

		require.NoError(t, n.Deliver(context.Background(), delivery(t)))
		require.Len(t, s.args, 1)
		a := s.args[0]
		assert.Equal(t, "securedrop:keys", a.Stream)
		values := a.Values.(map[string]any)
		assert.Equal(t, "a1", values["artifact_id"])

		var got message
		require.NoError(t, json.Unmarshal(values["payload"].([]byte), &got))
		assert.Equal(t, "bob@example.com", got.Recipient)

		require.NoError(t, n.Close())
		assert.True(t, s.closed)
	})

	t.Run("stream failure", func(t *testing.T) {
		n := &RedisNotifier{client: &fakeStream{err: errors.New("connection refused")}, stream: "s", logger: zap.NewNop().Sugar()}
		assert.ErrorIs(t, n.Deliver(context.Background(), delivery(t)), ErrDelivery)
	})
}

func TestConnect(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	c, err = Connect("cache:6380")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", c.Options().Addr)
	_ = c.Close()

	_, err = Connect("redis://:bad@host:notaport")
	assert.Error(t, err)
}
