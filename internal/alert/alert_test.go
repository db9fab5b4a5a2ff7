package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gridbot/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []AlertPayload
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(ctx context.Context, alert AlertPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return c.err
}

func (c *captureChannel) received() []AlertPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AlertPayload, len(c.sent))
	copy(out, c.sent)
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, f ...interface{})               {}
func (nopLogger) Info(msg string, f ...interface{})                {}
func (nopLogger) Warn(msg string, f ...interface{})                {}
func (nopLogger) Error(msg string, f ...interface{})               {}
func (nopLogger) Fatal(msg string, f ...interface{})               {}
func (n nopLogger) WithField(k string, v interface{}) core.ILogger { return n }
func (n nopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

func waitForDelivery(t *testing.T, ch *captureChannel, n int) []AlertPayload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := ch.received(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := ch.received()
	require.Len(t, got, n)
	return got
}

func TestAlertManager_DeliversToAllChannels(t *testing.T) {
	am := NewAlertManager(nopLogger{})
	first := &captureChannel{name: "first"}
	second := &captureChannel{name: "second"}
	am.AddChannel(first)
	am.AddChannel(second)

	am.Alert(context.Background(), "Order unresolved", "order EX-1 missing from venue", Warning,
		map[string]string{"pair": "XRP/BTC", "order": "EX-1"})

	got := waitForDelivery(t, first, 1)
	waitForDelivery(t, second, 1)

	payload := got[0]
	assert.Equal(t, "Order unresolved", payload.Title)
	assert.Equal(t, Warning, payload.Level)
	assert.Equal(t, "XRP/BTC", payload.Fields["pair"])
	assert.False(t, payload.Timestamp.IsZero())
}

func TestAlertManager_ChannelFailureDoesNotAffectOthers(t *testing.T) {
	am := NewAlertManager(nopLogger{})
	failing := &captureChannel{name: "failing", err: errors.New("webhook down")}
	healthy := &captureChannel{name: "healthy"}
	am.AddChannel(failing)
	am.AddChannel(healthy)

	am.Alert(context.Background(), "Tick stalled", "previous tick still running", Error, nil)

	waitForDelivery(t, healthy, 1)
}

func TestSortedKeys_StableOrder(t *testing.T) {
	fields := map[string]string{"side": "buy", "level": "2", "pair": "XRP/BTC"}
	assert.Equal(t, []string{"level", "pair", "side"}, sortedKeys(fields))
}
