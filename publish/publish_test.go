package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-meshtastic-recorder/publish"
	"github.com/robertof/go-meshtastic-recorder/store"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	return t.err
}

// fakeClient records publishes. Methods not overridden panic through the nil interface.
type fakeClient struct {
	mqtt.Client

	sent         []message
	err          error
	hang         bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.sent = append(c.sent, message{topic, qos, retained, payload.([]byte)})
	return newToken(c.err, !c.hang)
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func ptr[T any](v T) *T {
	return &v
}

func TestPublishNodes(t *testing.T) {
	c := &fakeClient{}
	p := publish.New(c, "mesh/", time.Second)

	rows := []store.NodeRow{
		{ID: "!a1b2c3d4", Num: 0xa1b2c3d4, LongName: ptr("Base camp"), LastHeard: 1717171717, HopsAway: ptr(int64(0))},
		{ID: "!00001234", Num: 0x1234, LastHeard: 1717000000},
	}

	require.NoError(t, p.PublishNodes(context.Background(), rows))
	require.Len(t, c.sent, 2)

	assert.Equal(t, "mesh/nodes/!a1b2c3d4", c.sent[0].topic)
	assert.Equal(t, byte(1), c.sent[0].qos)
	assert.True(t, c.sent[0].retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.sent[0].payload, &got))
	assert.Equal(t, "Base camp", got["long_name"])
	assert.Equal(t, float64(0), got["hops_away"])
	assert.Nil(t, got["snr"])

	assert.Equal(t, "mesh/nodes/!00001234", c.sent[1].topic)

	p.Close()
	assert.True(t, c.disconnected)
}

func TestPublishTelemetry(t *testing.T) {
	c := &fakeClient{}
	p := publish.New(c, "mesh", time.Second)

	row := store.TelemetryRow{ID: "!a1b2c3d4", Timestamp: 1717171700, Ch1Voltage: ptr(12.5)}

	require.NoError(t, p.PublishTelemetry(context.Background(), row))
	require.Len(t, c.sent, 1)
	assert.Equal(t, "mesh/telemetry/!a1b2c3d4", c.sent[0].topic)
	assert.JSONEq(t,
		`{"id":"!a1b2c3d4","timestamp":1717171700,"ch1_voltage":12.5,"ch1_current":null,"ch2_voltage":null,"ch2_current":null,"temperature":null,"humidity":null}`,
		string(c.sent[0].payload))
}

func TestPublish_BrokerError(t *testing.T) {
	brokerErr := errors.New("not authorized")
	c := &fakeClient{err: brokerErr}
	p := publish.New(c, "mesh", time.Second)

	err := p.PublishTelemetry(context.Background(), store.TelemetryRow{ID: "!00000001"}, store.TelemetryRow{ID: "!00000002"})
	assert.ErrorIs(t, err, brokerErr)
	assert.Len(t, c.sent, 1, "stops at the first failure")
}

func TestPublish_ContextCancelled(t *testing.T) {
	c := &fakeClient{hang: true}
	p := publish.New(c, "mesh", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.PublishNodes(ctx, []store.NodeRow{{ID: "!00000001"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublish_Timeout(t *testing.T) {
	c := &fakeClient{hang: true}
	p := publish.New(c, "mesh", 20*time.Millisecond)

	start := time.Now()
	err := p.PublishNodes(context.Background(), []store.NodeRow{{ID: "!00000001"}})

	assert.ErrorIs(t, err, publish.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}
