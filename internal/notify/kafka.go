package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"facewatch/internal/config"
)

// Kafka publishes alert payloads to a topic for downstream consumers.
// Screenshot bytes ride along base64-encoded in the JSON value.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

type kafkaAlert struct {
	Message   string    `json:"message"`
	ImageName string    `json:"image_name,omitempty"`
	ImageB64  string    `json:"image_b64,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

func (k *Kafka) SendText(ctx context.Context, message string) error {
	return k.publish(ctx, kafkaAlert{Message: message, SentAt: time.Now().UTC()})
}

func (k *Kafka) SendImage(ctx context.Context, message, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return k.publish(ctx, kafkaAlert{
		Message:   message,
		ImageName: filepath.Base(imagePath),
		ImageB64:  base64.StdEncoding.EncodeToString(data),
		SentAt:    time.Now().UTC(),
	})
}

func (k *Kafka) publish(ctx context.Context, payload kafkaAlert) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Value: value})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
