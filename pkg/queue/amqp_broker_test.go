package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/streadway/amqp"
)

type recordingAcker struct {
	acked []uint64
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error { return nil }
func (a *recordingAcker) Reject(tag uint64, requeue bool) error         { return nil }

func TestAMQPReceiveAcksOnDeliveryChannel(t *testing.T) {
	acker := &recordingAcker{}
	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: []byte("job-1")}
	b := &AMQPBroker{url: "amqp://127.0.0.1:1/", wait: time.Second, deliveries: deliveries}

	msg, err := b.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", msg.JobID)
	}

	// 通道重建后旧消息仍在原通道确认
	b.resetConsumer(deliveries)
	if err := b.Ack(context.Background(), msg); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(acker.acked) != 1 || acker.acked[0] != 7 {
		t.Fatalf("expected tag 7 acked, got %v", acker.acked)
	}
}

func TestAMQPReceiveRedialsAfterChannelClosed(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	b := &AMQPBroker{url: "amqp://127.0.0.1:1/", wait: time.Second, deliveries: deliveries}

	if _, err := b.Receive(context.Background()); !errors.Is(err, errDeliveriesClosed) {
		t.Fatalf("expected closed channel error, got %v", err)
	}
	if b.deliveries != nil {
		t.Fatalf("closed consumer should be dropped")
	}

	_, err := b.Receive(context.Background())
	if err == nil || !strings.Contains(err.Error(), "dial rabbitmq") {
		t.Fatalf("next Receive should redial, got %v", err)
	}
}

func TestAMQPAckWithoutDelivery(t *testing.T) {
	b := &AMQPBroker{}
	if err := b.Ack(context.Background(), &Message{JobID: "job-1"}); err == nil {
		t.Fatalf("expected error for message without delivery")
	}
}
