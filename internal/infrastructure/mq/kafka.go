package mq

import (
	"oxigame/internal/config"
	"oxigame/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer Kafka 同步生产者
type Producer struct {
	producer sarama.SyncProducer
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) *Producer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		logger.Log.Fatal("创建 Kafka 生产者失败", zap.Error(err))
	}

	logger.Log.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return NewProducer(producer)
}

// NewProducer 包装已有的 sarama 生产者（测试中传入 mocks.SyncProducer）
func NewProducer(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// SendMessage 发送消息到 Kafka
func (p *Producer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() {
	if p != nil && p.producer != nil {
		if err := p.producer.Close(); err != nil {
			logger.Log.Warn("关闭 Kafka 生产者失败", zap.Error(err))
		}
	}
}
