package notify

import (
	"clusterhub-service/service/config"
	"clusterhub-service/service/meta"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	dapr "github.com/dapr/go-sdk/client"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleEvent() RunEvent {
	return RunEvent{
		Type:      meta.EventRunSucceeded,
		RunID:     "run-1",
		DatasetID: "ds-1",
		Algorithm: "kmeans",
		Status:    meta.RunStatusSucceeded,
		ResultID:  "res-1",
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	p := &KafkaPublisher{writer: writer, topic: "clusterhub.runs"}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "run-1", string(msg.Key))
	assert.Equal(t, meta.EventRunSucceeded, string(msg.Headers[0].Value))

	var decoded RunEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleEvent(), decoded)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_WrapsError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, topic: "t"}
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker down")
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	topics       []string
	payloads     [][]byte
	err          error
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return &fakeToken{err: c.err}
}

func (c *fakeMQTT) Disconnect(quiesce uint) { c.disconnected = true }

func TestMQTTPublisher_TopicPerEventType(t *testing.T) {
	client := &fakeMQTT{}
	p := &MQTTPublisher{client: client, topic: "clusterhub/runs", qos: 1}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, []string{"clusterhub/runs/run.succeeded"}, client.topics)

	client.err = errors.New("not connected")
	assert.Error(t, p.Publish(context.Background(), sampleEvent()))

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

type mockDapr struct {
	mock.Mock
}

func (m *mockDapr) PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...dapr.PublishEventOption) error {
	args := m.Called(pubsubName, topicName, data)
	return args.Error(0)
}

func (m *mockDapr) Close() { m.Called() }

func TestDaprPublisher_Publish(t *testing.T) {
	client := new(mockDapr)
	payload, err := encode(sampleEvent())
	require.NoError(t, err)
	client.On("PublishEvent", "pubsub", "clusterhub.runs", payload).Return(nil).Once()
	client.On("Close").Return().Once()

	p := &DaprPublisher{client: client, pubsub: "pubsub", topic: "clusterhub.runs"}
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
	client.AssertExpectations(t)
}

type recordingPublisher struct {
	events []RunEvent
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, event RunEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("down")}
	m := Multi{failing, ok}

	err := m.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.events, 1, "一个通道失败不影响其他通道")
	assert.Len(t, failing.events, 1)
}

func TestNewFromConfig_NoChannelsIsNoop(t *testing.T) {
	p, err := NewFromConfig(config.EventsConfig{KafkaTopic: "t", MQTTTopic: "t", DaprTopic: "t"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
}

func TestNewFromConfig_Kafka(t *testing.T) {
	p, err := NewFromConfig(config.EventsConfig{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "runs"})
	require.NoError(t, err)
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "runs", kp.topic)
	assert.NoError(t, kp.Close())
}
