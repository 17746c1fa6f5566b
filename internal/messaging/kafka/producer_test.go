package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndSucceed()

	err := producer.PublishEvent(TopicOrderEvents, "order-123", map[string]string{"order_number": "ORD-20250101-001"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.PublishEvent(TopicOrderEvents, "order-123", struct{}{}); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	if err := producer.PublishEvent(TopicOrderEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(nil, "shop", nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNewConfig(t *testing.T) {
	config := NewConfig("shop-service")

	if config.ClientID != "shop-service" {
		t.Errorf("unexpected client id %q", config.ClientID)
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Error("producer must be idempotent with a single in-flight request")
	}
	if config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Error("producer must wait for all in-sync replicas")
	}
}

func TestHeaderValue(t *testing.T) {
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte("OrderPlaced")},
	}
	if got := headerValue(headers, HeaderEventType); got != "OrderPlaced" {
		t.Errorf("unexpected header value %q", got)
	}
	if got := headerValue(headers, HeaderOutboxID); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}
