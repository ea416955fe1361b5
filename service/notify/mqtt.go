package notify

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 5 * time.Second

// mqttClient paho 客户端的最小子集
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher 通过 MQTT 发布事件，主题为 <topic>/<event type>
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
}

// NewMQTTPublisher 连接 broker 并创建发布器
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("连接MQTT broker失败: %w", token.Error())
	}
	return &MQTTPublisher{client: client, topic: topic, qos: 1}, nil
}

// Publish 发布事件
func (p *MQTTPublisher) Publish(ctx context.Context, event RunEvent) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	topic := p.topic + "/" + event.Type
	token := p.client.Publish(topic, p.qos, false, payload)

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("发布MQTT消息超时 topic=%s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("发布MQTT消息失败 topic=%s: %w", topic, err)
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
