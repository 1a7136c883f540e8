package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"

	"boothpay/internal/logger"
	"boothpay/internal/models"
)

// Publisher is the part of the client the rest of the code publishes through
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	URL       string
	ClusterID string
	ClientID  string
	AckWait   time.Duration
}

func NewNATSClient(cfg Config) (*NATSClient, error) {
	// Unique client ID so several replicas can share one cluster
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.Get().Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster_id", cfg.ClusterID, "client_id", clientID)

	return &NATSClient{conn: conn}, nil
}

func (nc *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	logger.Get().Debug("Published message", "subject", subject)
	return nil
}

// SubscribeQueue subscribes with manual acks: a message is redelivered after
// ackWait unless the handler acks it.
func (nc *NATSClient) SubscribeQueue(subject, queue string, ackWait time.Duration, handler stan.MsgHandler) (stan.Subscription, error) {
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}
	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(ackWait),
		stan.MaxInflight(8))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	logger.Get().Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}

// EventPublisher turns domain events into NATS messages
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

// NotifyPaid publishes booking.paid for a committed PENDING -> PAID transition
func (p *EventPublisher) NotifyPaid(ctx context.Context, event models.BookingPaidEvent) error {
	if err := p.pub.Publish(models.EventBookingPaid, event); err != nil {
		return err
	}
	logger.WithContext(ctx).Info("Booking paid event published",
		"booking_id", event.BookingID, "order_id", event.OrderID)
	return nil
}

// RequestReconcile queues a reconciliation of orderID for the consumers
func (p *EventPublisher) RequestReconcile(ctx context.Context, orderID, source string) error {
	return p.pub.Publish(models.EventPaymentReconcileRequested, models.ReconcileRequestedEvent{
		OrderID:   orderID,
		Source:    source,
		RequestID: logger.RequestIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	})
}
