package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/secaudit/secaudit-go/internal/retry"
	"github.com/sirupsen/logrus"
)

// RabbitMQ 报告事件发布连接
type RabbitMQ struct {
	config     *config.RabbitMQConfig
	heartbeat  time.Duration
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *logrus.Logger
	queueName  string
	reconnect  chan bool
	maxRetries int

	// 连接状态管理
	mu            sync.RWMutex
	closed        bool
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
}

// NewRabbitMQ 建立连接并声明持久化队列
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *logrus.Logger) (*RabbitMQ, error) {
	queueName := cfg.Queue
	if queueName == "" {
		queueName = "secaudit.reports"
	}

	mq := &RabbitMQ{
		config:     cfg,
		heartbeat:  10 * time.Second,
		logger:     logger,
		queueName:  queueName,
		reconnect:  make(chan bool, 10),
		maxRetries: 10,
	}

	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	return mq, nil
}

// URL 连接地址
func URL(cfg *config.RabbitMQConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.VHost,
	)
}

func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(URL(mq.config), amqp.Config{
		Heartbeat: mq.heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	mq.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	mq.channel = ch

	_, err = ch.QueueDeclare(
		mq.queueName, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	mq.connNotify = make(chan *amqp.Error, 1)
	mq.channelNotify = make(chan *amqp.Error, 1)
	mq.conn.NotifyClose(mq.connNotify)
	mq.channel.NotifyClose(mq.channelNotify)

	mq.logger.WithFields(logrus.Fields{
		"host":  mq.config.Host,
		"port":  mq.config.Port,
		"queue": mq.queueName,
	}).Info("Connected to RabbitMQ")

	return nil
}

// StartConnectionWatcher 监听连接/通道关闭并自动重连，直到 Close
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			mq.mu.RLock()
			if mq.closed {
				mq.mu.RUnlock()
				return
			}
			connNotify := mq.connNotify
			channelNotify := mq.channelNotify
			mq.mu.RUnlock()

			var cause *amqp.Error
			select {
			case cause = <-connNotify:
			case cause = <-channelNotify:
			case <-mq.reconnect:
			}

			if mq.isClosed() {
				return
			}
			if cause != nil {
				mq.logger.WithError(cause).Error("RabbitMQ connection lost")
			}
			if err := mq.Reconnect(); err != nil {
				mq.logger.WithError(err).Error("RabbitMQ reconnect gave up")
				return
			}
		}
	}()
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

// Reconnect 重新连接，线性退避
func (mq *RabbitMQ) Reconnect() error {
	mq.closeConnections()

	cfg := &retry.Config{
		MaxAttempts:     mq.maxRetries,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        retry.StrategyLinear,
		Logger:          mq.logger,
	}
	err := retry.Do(context.Background(), cfg, "rabbitmq reconnect", func(context.Context) error {
		if mq.isClosed() {
			return retry.Permanent(fmt.Errorf("client closed"))
		}
		return mq.connect()
	})
	if err != nil {
		return err
	}

	mq.logger.Info("Successfully reconnected to RabbitMQ")
	return nil
}

func (mq *RabbitMQ) closeConnections() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Publish 发布持久化 JSON 消息
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	return ch.PublishWithContext(
		ctx,
		"",           // exchange
		mq.queueName, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Close 关闭连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeConnections()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}
