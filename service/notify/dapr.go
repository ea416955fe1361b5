package notify

import (
	"context"
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
)

// eventPublisher dapr 客户端的最小子集
type eventPublisher interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...dapr.PublishEventOption) error
	Close()
}

// DaprPublisher 通过 Dapr sidecar 的 pubsub 组件发布事件
type DaprPublisher struct {
	client eventPublisher
	pubsub string
	topic  string
}

// NewDaprPublisher 创建 Dapr 发布器，需要 sidecar 已就绪
func NewDaprPublisher(pubsub, topic string) (*DaprPublisher, error) {
	client, err := dapr.NewClient()
	if err != nil {
		return nil, fmt.Errorf("创建Dapr客户端失败: %w", err)
	}
	return &DaprPublisher{client: client, pubsub: pubsub, topic: topic}, nil
}

// Publish 发布事件
func (p *DaprPublisher) Publish(ctx context.Context, event RunEvent) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	err = p.client.PublishEvent(ctx, p.pubsub, p.topic, payload,
		dapr.PublishEventWithContentType("application/json"),
		dapr.PublishEventWithMetadata(map[string]string{"event_type": event.Type}),
	)
	if err != nil {
		return fmt.Errorf("发布Dapr事件失败 pubsub=%s topic=%s: %w", p.pubsub, p.topic, err)
	}
	return nil
}

// Close 关闭客户端
func (p *DaprPublisher) Close() error {
	p.client.Close()
	return nil
}
