package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/regtools/internal/domain"
)

const waitFor = time.Second

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, tenantID, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, "test.topic", []byte("hello")))

		select {
		case msg := <-received:
			assert.Equal(t, "hello", string(msg.Payload))
			assert.Equal(t, tenantID, msg.TenantID)
			assert.Equal(t, "test.topic", msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(waitFor):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		_, err := bus.Subscribe(ctx, "tenant-001", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, "tenant-002", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "tenant-001", "isolation.topic", []byte("msg1")))

		require.Eventually(t, func() bool { return received1.Load() == 1 }, waitFor, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), received2.Load())
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.ErrorIs(t, bus.Publish(ctx, "", "topic", []byte("data")), ErrTenantRequired)

		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrTenantRequired)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, err := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1")))
		require.Eventually(t, func() bool { return count.Load() == 1 }, waitFor, 5*time.Millisecond)

		require.NoError(t, sub.Unsubscribe())

		require.NoError(t, bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2")))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		require.NoError(t, bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast")))

		require.Eventually(t, func() bool {
			return count1.Load() == 1 && count2.Load() == 1
		}, waitFor, 5*time.Millisecond)
	})

	t.Run("PublishJSON", func(t *testing.T) {
		received := make(chan []byte, 1)
		_, err := bus.Subscribe(ctx, tenantID, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			received <- msg.Payload
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, PublishJSON(ctx, bus, tenantID, domain.TopicAlert, map[string]string{"verdict": "critical"}))

		select {
		case payload := <-received:
			var body map[string]string
			require.NoError(t, json.Unmarshal(payload, &body))
			assert.Equal(t, "critical", body["verdict"])
		case <-time.After(waitFor):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, tenantID, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "my.topic", sub.Topic())
	})
}

func TestChannelBusGlobalSubscriber(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	global := make(chan *domain.Message, 4)
	var tenant atomic.Int32

	_, err := bus.Subscribe(ctx, GlobalTenantID, "ingest.topic", func(ctx context.Context, msg *domain.Message) error {
		global <- msg
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "tenant-001", "ingest.topic", func(ctx context.Context, msg *domain.Message) error {
		tenant.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "tenant-001", "ingest.topic", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "tenant-002", "ingest.topic", []byte("b")))
	require.NoError(t, bus.Publish(ctx, GlobalTenantID, "ingest.topic", []byte("c")))
	require.NoError(t, bus.Publish(ctx, "tenant-001", "other.topic", []byte("d")))

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case msg := <-global:
			got = append(got, msg.TenantID+"/"+string(msg.Payload))
		case <-time.After(waitFor):
			t.Fatalf("timeout after %d global messages", i)
		}
	}
	assert.ElementsMatch(t, []string{"tenant-001/a", "tenant-002/b", GlobalTenantID + "/c"}, got)

	require.Eventually(t, func() bool { return tenant.Load() == 1 }, waitFor, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, global)
	assert.Equal(t, int32(1), tenant.Load())

	stats := bus.Stats()
	assert.Equal(t, uint64(4), stats.Published)
	assert.Equal(t, uint64(4), stats.Delivered)
	assert.Equal(t, 2, stats.Subscriptions)
}

func TestChannelBusDropsOnFullBuffer(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})

	_, err := bus.Subscribe(ctx, "tenant-001", "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, "tenant-001", "slow.topic", []byte("m")))
	}
	close(release)

	// One message in flight, one buffered, the rest dropped
	assert.GreaterOrEqual(t, bus.Stats().Dropped, uint64(8))
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")), ErrClosed)
	assert.ErrorIs(t, bus.Ping(ctx), ErrClosed)

	_, err = bus.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer b.Close()

		_, ok := b.(*ChannelBus)
		assert.True(t, ok, "expected ChannelBus for channel type")
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.Error(t, err)
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100
	var received atomic.Int32

	_, err := bus.Subscribe(ctx, "tenant-load", "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		require.NoError(t, bus.Publish(ctx, "tenant-load", "load.topic", []byte("msg")))
	}

	require.Eventually(t, func() bool { return received.Load() == messageCount }, 5*time.Second, 10*time.Millisecond)

	stats := bus.Stats()
	assert.Zero(t, stats.Dropped)
	assert.Equal(t, uint64(messageCount), stats.Published)
	assert.Equal(t, uint64(messageCount), stats.Delivered)
	assert.Equal(t, 1, stats.Subscriptions)
}

func TestNATSEnvelope(t *testing.T) {
	assert.Equal(t, "regtools.tenant-001.regtools.alert", natsSubject("tenant-001", domain.TopicAlert))
	assert.Equal(t, "regtools.*.regtools.alert", natsSubject("*", domain.TopicAlert))

	assert.NoError(t, subjectToken("tenant-001"))
	assert.NoError(t, subjectToken(GlobalTenantID))
	assert.ErrorIs(t, subjectToken(""), ErrTenantRequired)
	for _, bad := range []string{"fr.insurer", "*", "a>b", "two words"} {
		assert.ErrorIs(t, subjectToken(bad), ErrInvalidTenant, bad)
	}

	data, err := json.Marshal(newMessage("tenant-001", domain.TopicAlert, []byte(`{"a":1}`)))
	require.NoError(t, err)

	msg, err := decodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "tenant-001", msg.TenantID)
	assert.Equal(t, `{"a":1}`, string(msg.Payload))

	_, err = decodeMessage([]byte("not json"))
	assert.Error(t, err)
}
