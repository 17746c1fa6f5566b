package app

import (
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(Config{KafkaBrokers: " "}, log.WithField("test", "kafka"))
	require.NoError(t, err)
	require.Nil(t, producer)
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	producer, err := initKafkaProducer(Config{
		KafkaBrokers:  "invalid-broker.invalid:9999",
		KafkaClientID: "shop-test",
	}, log.WithField("test", "kafka"))
	require.Error(t, err)
	require.Nil(t, producer)
}

func TestCloseKafkaProducer(t *testing.T) {
	logger := log.WithField("test", "kafka-close")
	closeKafkaProducer(nil, logger)

	sync := mocks.NewSyncProducer(t, nil)
	closeKafkaProducer(kafka.NewProducerFromSync(sync, logger), logger)
}
