package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

var errDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// AMQPBroker RabbitMQ 持久化队列，手动确认；worker 崩溃后由 broker 负责重投。
// 连接断开后下一次 Publish/Receive 会重新拨号
type AMQPBroker struct {
	url        string
	queue      string
	prefetch   int
	wait       time.Duration
	connMu     sync.Mutex
	conn       *amqp.Connection
	pubMu      sync.Mutex
	pubCh      *amqp.Channel
	consMu     sync.Mutex
	consCh     *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewAMQPBroker(url, queue string, prefetch int) (*AMQPBroker, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	b := &AMQPBroker{
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		wait:     2 * time.Second,
	}
	if _, err := b.publishChannel(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// connection 返回可用连接，已关闭时重新拨号
func (b *AMQPBroker) connection() (*amqp.Connection, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	b.conn = conn
	return conn, nil
}

// openChannel 打开通道并声明持久化队列
func (b *AMQPBroker) openChannel() (*amqp.Channel, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		b.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", b.queue, err)
	}
	return ch, nil
}

// publishChannel 供 NewAMQPBroker 启动时建立连接并声明队列
func (b *AMQPBroker) publishChannel() (*amqp.Channel, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.publishChannelLocked()
}

func (b *AMQPBroker) publishChannelLocked() (*amqp.Channel, error) {
	if b.pubCh != nil {
		return b.pubCh, nil
	}
	ch, err := b.openChannel()
	if err != nil {
		return nil, err
	}
	b.pubCh = ch
	return ch, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, jobID string) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	ch, err := b.publishChannelLocked()
	if err != nil {
		return err
	}
	err = ch.Publish(
		"",
		b.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			MessageId:    jobID,
			Timestamp:    time.Now(),
			Body:         []byte(jobID),
		},
	)
	if err != nil {
		// 通道出错后不可复用，下次发布重新打开
		ch.Close()
		b.pubCh = nil
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

// startConsumer 首次接收时才建立消费通道，纯 api 进程不会占用 prefetch 配额
func (b *AMQPBroker) startConsumer() (<-chan amqp.Delivery, error) {
	b.consMu.Lock()
	defer b.consMu.Unlock()
	if b.deliveries != nil {
		return b.deliveries, nil
	}
	ch, err := b.openChannel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		b.queue,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", b.queue, err)
	}
	b.consCh = ch
	b.deliveries = msgs
	return msgs, nil
}

// resetConsumer 丢弃已关闭的消费通道，下次 Receive 重建
func (b *AMQPBroker) resetConsumer(closed <-chan amqp.Delivery) {
	b.consMu.Lock()
	defer b.consMu.Unlock()
	if b.deliveries != closed {
		return
	}
	if b.consCh != nil {
		b.consCh.Close()
	}
	b.consCh = nil
	b.deliveries = nil
}

func (b *AMQPBroker) Receive(ctx context.Context) (*Message, error) {
	deliveries, err := b.startConsumer()
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNoMessage
	case d, ok := <-deliveries:
		if !ok {
			b.resetConsumer(deliveries)
			return nil, errDeliveriesClosed
		}
		return &Message{
			JobID: string(d.Body),
			ack:   func() error { return d.Ack(false) },
		}, nil
	}
}

// Ack 未确认的消息在通道关闭后由 RabbitMQ 重新投递
func (b *AMQPBroker) Ack(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ack == nil {
		return errors.New("rabbitmq message has no delivery")
	}
	return msg.ack()
}

func (b *AMQPBroker) Close() error {
	b.consMu.Lock()
	if b.consCh != nil {
		b.consCh.Close()
		b.consCh = nil
	}
	b.deliveries = nil
	b.consMu.Unlock()

	b.pubMu.Lock()
	if b.pubCh != nil {
		b.pubCh.Close()
		b.pubCh = nil
	}
	b.pubMu.Unlock()

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}
