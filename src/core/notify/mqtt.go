// Package notify 通过 MQTT 广播评估运行结果
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"qa-compass-server/src/configs"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Ensure MQTTPublisher implements evaluation.Notifier interface
var _ evaluation.Notifier = (*MQTTPublisher)(nil)

const publishTimeout = 5 * time.Second

// publisher paho 客户端中用到的部分
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// RunCompletedMessage 运行完成消息体
type RunCompletedMessage struct {
	evaluation.Summary
	FinishedAt time.Time `json:"finished_at"`
}

// MQTTPublisher 运行完成后发布到 <topic_root>/runs/completed
type MQTTPublisher struct {
	client publisher
	topic  string
	qos    byte
	logger *utils.Logger
}

// NewMQTTPublisher 连接 broker
func NewMQTTPublisher(cfg configs.MqttConfig, logger *utils.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker未配置")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", cfg.ClientIDPrefix, time.Now().UnixNano()))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT连接丢失: %v", err)
	})

	client := mqtt.NewClient(opts)
	con := client.Connect()
	con.Wait()
	if err := con.Error(); err != nil {
		return nil, fmt.Errorf("MQTT连接失败: %w", err)
	}
	logger.Info("MQTT通知已连接: %s", cfg.Broker)
	return newPublisher(client, cfg.TopicRoot, cfg.Qos, logger), nil
}

func newPublisher(client publisher, topicRoot string, qos int, logger *utils.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  strings.TrimSuffix(topicRoot, "/") + "/runs/completed",
		qos:    byte(qos),
		logger: logger,
	}
}

// Topic 发布主题
func (p *MQTTPublisher) Topic() string {
	return p.topic
}

// RunCompleted 发布运行统计
func (p *MQTTPublisher) RunCompleted(ctx context.Context, s evaluation.Summary) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT未连接")
	}
	payload, err := json.Marshal(RunCompletedMessage{Summary: s, FinishedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("MQTT发布失败: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("MQTT发布超时")
	}
	p.logger.Debug("已发布运行结果 topic=%s run_id=%s", p.topic, s.RunID)
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
