package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/secaudit/secaudit-go/internal/retry"
	"github.com/sirupsen/logrus"
)

// Publisher 消息发布接口（RabbitMQ 实现）
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// ReportMessage 报告更新消息
type ReportMessage struct {
	Workspace string `json:"workspace"`
	Component string `json:"component"`
	Report    string `json:"report"`
	Timestamp int64  `json:"timestamp"`
}

// Producer 报告事件生产者，Notify 只入队不阻塞
type Producer struct {
	pub     Publisher
	logger  *logrus.Logger
	pending chan *ReportMessage
	timeout time.Duration
	retry   *retry.Config

	once sync.Once
	done chan struct{}
}

// NewProducer 创建生产者，buffer 为待发布队列长度
func NewProducer(pub Publisher, buffer int, logger *logrus.Logger) *Producer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Producer{
		pub:     pub,
		logger:  logger,
		pending: make(chan *ReportMessage, buffer),
		timeout: 5 * time.Second,
		retry:   retry.DefaultConfig(logger),
		done:    make(chan struct{}),
	}
}

// Notify 仅转发非空报告事件，队列满时丢弃
func (p *Producer) Notify(e events.Event) {
	if e.Kind != events.KindReport {
		return
	}
	report, ok := e.Payload.(string)
	if !ok || report == "" {
		return
	}

	msg := &ReportMessage{
		Workspace: e.Workspace,
		Component: e.Component,
		Report:    report,
		Timestamp: e.Timestamp,
	}
	select {
	case p.pending <- msg:
	default:
		p.logger.WithField("workspace", e.Workspace).Warn("Report queue full, dropping event")
	}
}

// Run 发布循环，ctx 取消后排空剩余消息再返回
func (p *Producer) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case msg := <-p.pending:
			p.publish(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-p.pending:
					p.publish(msg)
				default:
					return
				}
			}
		}
	}
}

// Wait 等待 Run 退出
func (p *Producer) Wait() {
	<-p.done
}

// PublishReport 同步发布报告消息
func (p *Producer) PublishReport(ctx context.Context, msg *ReportMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.pub.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("workspace", msg.Workspace).Error("Failed to publish report")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"workspace": msg.Workspace,
		"component": msg.Component,
		"size":      len(msg.Report),
	}).Info("Report published to queue")
	return nil
}

// SetRetry 调整后台发布的重试策略
func (p *Producer) SetRetry(cfg *retry.Config) {
	p.retry = cfg
}

// publish 后台发布，失败时按重试策略退避，重连期间的消息不会立即丢失
func (p *Producer) publish(msg *ReportMessage) {
	err := retry.Do(context.Background(), p.retry, "publish report", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.PublishReport(ctx, msg)
	})
	if err != nil {
		p.logger.WithError(err).WithField("workspace", msg.Workspace).Error("Report dropped")
	}
}
