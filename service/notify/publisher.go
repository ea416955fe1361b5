/*
 * @module service/notify/publisher
 * @description 运行生命周期事件发布，支持 Kafka、MQTT、Dapr pubsub 多通道
 * @architecture 适配器模式 - 封装第三方消息客户端，对编排器提供统一的 Publisher 接口
 * @documentReference DESIGN.md
 * @stateFlow 编排器状态迁移 -> RunEvent -> 各通道发布
 * @rules 发布失败只记录日志，不影响运行状态；未配置任何通道时使用 Noop
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang, github.com/dapr/go-sdk
 * @refs service/analysis/orchestrator.go, service/init.go
 */

package notify

import (
	"clusterhub-service/service/config"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// RunEvent 运行生命周期事件
type RunEvent struct {
	Type         string    `json:"type"`
	RunID        string    `json:"run_id"`
	DatasetID    string    `json:"dataset_id"`
	Algorithm    string    `json:"algorithm"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ResultID     string    `json:"result_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
}

// Noop 不做任何事的发布器
type Noop struct{}

// Publish 丢弃事件
func (Noop) Publish(ctx context.Context, event RunEvent) error { return nil }

// Close 无资源需要释放
func (Noop) Close() error { return nil }

// Multi 将事件依次发布到多个通道，单个通道失败不影响其他通道
type Multi []Publisher

// Publish 发布到所有通道，返回合并后的错误
func (m Multi) Publish(ctx context.Context, event RunEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有通道
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encode(event RunEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return payload, nil
}

// NewFromConfig 按配置创建发布器，已开启的通道组合为 Multi
func NewFromConfig(cfg config.EventsConfig) (Publisher, error) {
	var publishers Multi

	if len(cfg.KafkaBrokers) > 0 {
		publishers = append(publishers, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Printf("运行事件将发布到 Kafka: %v topic=%s", cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	if cfg.MQTTBroker != "" {
		p, err := NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			publishers.Close()
			return nil, err
		}
		publishers = append(publishers, p)
		log.Printf("运行事件将发布到 MQTT: %s topic=%s", cfg.MQTTBroker, cfg.MQTTTopic)
	}

	if cfg.DaprPubSub != "" {
		p, err := NewDaprPublisher(cfg.DaprPubSub, cfg.DaprTopic)
		if err != nil {
			publishers.Close()
			return nil, err
		}
		publishers = append(publishers, p)
		log.Printf("运行事件将发布到 Dapr pubsub: %s topic=%s", cfg.DaprPubSub, cfg.DaprTopic)
	}

	switch len(publishers) {
	case 0:
		return Noop{}, nil
	case 1:
		return publishers[0], nil
	default:
		return publishers, nil
	}
}
