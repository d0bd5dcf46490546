package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Chmgx81/ordina/internal/service"

	"github.com/segmentio/kafka-go"
)

// LedgerEventProducer публикует события движка в Kafka. Публикация
// best-effort: отказ брокера не откатывает заказ.
type LedgerEventProducer struct {
	writer *kafka.Writer
}

func NewLedgerEventProducer(brokers []string, topic string) *LedgerEventProducer {
	return &LedgerEventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

var _ service.EventBus = (*LedgerEventProducer)(nil)

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (p *LedgerEventProducer) publish(ctx context.Context, key string, e envelope) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *LedgerEventProducer) PublishOrderPlaced(ctx context.Context, e service.OrderPlacedEvent) error {
	return p.publish(ctx, e.OrderID.String(), envelope{Type: "order.placed", Payload: e})
}

func (p *LedgerEventProducer) PublishLowStock(ctx context.Context, e service.LowStockEvent) error {
	return p.publish(ctx, e.ProductID.String(), envelope{Type: "stock.low", Payload: e})
}

func (p *LedgerEventProducer) Close() error {
	return p.writer.Close()
}
