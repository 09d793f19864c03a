package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// KafkaCollector 把点击事件异步发到 Kafka（多实例部署时让明细汇聚到一处）。
type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true,
		},
	}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	data, _ := json.Marshal(event)
	err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.LinkID),
		Value: data,
	})
	if err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	k.writer.Close()
}
