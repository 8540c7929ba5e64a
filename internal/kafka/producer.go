package kafka

import (
	"context"
	"encoding/json"
	"time"

	"tikiti/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer        *kafka.Writer
	SettledTopic  string
	WithdrawTopic string
}

func NewProducer(brokers []string, settledTopic, withdrawTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{
		Writer:        writer,
		SettledTopic:  settledTopic,
		WithdrawTopic: withdrawTopic,
	}
}

// TicketSettledEvent is published once per settled ticket, after the
// inventory commit and balance credit.
type TicketSettledEvent struct {
	TicketID        string               `json:"ticket_id"`
	EventID         string               `json:"event_id"`
	TierID          string               `json:"tier_id"`
	Reference       string               `json:"reference"`
	Status          models.PaymentStatus `json:"status"`
	NetAmount       int64                `json:"net_amount"`
	ReconcileNeeded bool                 `json:"reconcile_needed"`
	Timestamp       time.Time            `json:"timestamp"`
}

type WithdrawalEvent struct {
	WithdrawalID string                  `json:"withdrawal_id"`
	HostID       string                  `json:"host_id"`
	Amount       int64                   `json:"amount"`
	Status       models.WithdrawalStatus `json:"status"`
	Timestamp    time.Time               `json:"timestamp"`
}

func (p *Producer) PublishTicketSettled(event TicketSettledEvent) error {
	return p.publish(p.SettledTopic, event.TicketID, event)
}

func (p *Producer) PublishWithdrawal(event WithdrawalEvent) error {
	return p.publish(p.WithdrawTopic, event.WithdrawalID, event)
}

func (p *Producer) publish(topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
