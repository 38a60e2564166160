package collaborators

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaNotify publishes notice-dispatch events to a topic instead of (or
// alongside) a direct channel, so CollectionsWorkflow notices can fan out
// to arbitrary downstream consumers without the workflow depending on any
// one broker API (§2.2 Domain stack).
type KafkaNotify struct {
	writer *kafka.Writer
}

func NewKafkaNotify(brokers []string, topic string) *KafkaNotify {
	return &KafkaNotify{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

type noticeEnvelope struct {
	Kind       NotifyEventKind   `json:"kind"`
	Recipients []string          `json:"recipients"`
	Payload    map[string]string `json:"payload"`
}

func (k *KafkaNotify) Send(ctx context.Context, kind NotifyEventKind, recipients []string, payload map[string]string) (SendResult, error) {
	body, err := json.Marshal(noticeEnvelope{Kind: kind, Recipients: recipients, Payload: payload})
	if err != nil {
		return SendResult{}, err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{Value: body})
	if err != nil {
		return SendResult{Failed: []ChannelFailure{{Channel: "kafka", Error: err.Error()}}}, err
	}
	return SendResult{Sent: []ChannelReceipt{{Channel: "kafka", ID: k.writer.Topic}}}, nil
}

func (k *KafkaNotify) Close() error {
	return k.writer.Close()
}
