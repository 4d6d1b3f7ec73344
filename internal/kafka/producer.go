package kafka

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Message struct {
	Key   []byte
	Value []byte
}

// Producer delivers messages to a topic. SendMessages hands all of them to
// the transport in one call.
type Producer interface {
	SendMessages(ctx context.Context, topic string, msgs ...Message) error
	Close() error
}

// ConsoleProducer logs messages instead of sending them. Used when no
// brokers are configured.
type ConsoleProducer struct {
	logger *zap.Logger
}

func NewConsoleProducer(logger *zap.Logger) Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("no kafka brokers configured, audit entries go to the log")
	return &ConsoleProducer{logger: logger}
}

func (p *ConsoleProducer) SendMessages(ctx context.Context, topic string, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, msg := range msgs {
		p.logger.Info("audit",
			zap.String("topic", topic),
			zap.ByteString("key", msg.Key),
			zap.ByteString("value", msg.Value))
	}
	return nil
}

func (p *ConsoleProducer) Close() error {
	return nil
}

type KafkaProducer struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

func NewKafkaProducer(brokers []string, logger *zap.Logger) Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("kafka producer initialised", zap.Strings("brokers", brokers))
	return &KafkaProducer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (p *KafkaProducer) SendMessages(ctx context.Context, topic string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafkago.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = kafkago.Message{
			Topic: topic,
			Key:   msg.Key,
			Value: msg.Value,
		}
	}
	return p.writer.WriteMessages(ctx, out...)
}

func (p *KafkaProducer) Close() error {
	p.logger.Info("closing kafka producer")
	return p.writer.Close()
}
